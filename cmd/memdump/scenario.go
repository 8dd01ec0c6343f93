package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/itchyny/go-yaml"
	"github.com/speakeasy-api/heapmodel/memorymodel"
)

// Scenario is a replayable sequence of memory operations.
type Scenario struct {
	Options memorymodel.Options `yaml:"options"`
	Steps   []Step              `yaml:"steps"`
}

// Step is one operation. Exactly one of the operation keys is set.
//
//	- write: $a['x']         # WriteMemory
//	  values: [1, anyint, array, object:Foo]
//	- alias: $r              # $r = &$b
//	  to: $b
//	- read: $a               # prints the entry
//	- release: $a['x']       # ReleaseMemory on every location
//	- global: g              # global $g
//	- call: f                # enter f
//	  args: {p: [1]}         # by value
//	  refs: {q: $b}          # by reference
//	- return: true
//	- commit: true
//	- widen: true
//	- branches:              # fork, run every branch, merge
//	  - [{write: $a, values: [1]}]
//	  - [{write: $a, values: [2]}]
type Step struct {
	Write    string            `yaml:"write"`
	Values   []any             `yaml:"values"`
	Alias    string            `yaml:"alias"`
	To       string            `yaml:"to"`
	Read     string            `yaml:"read"`
	Release  string            `yaml:"release"`
	Global   string            `yaml:"global"`
	Call     string            `yaml:"call"`
	Shared   bool              `yaml:"shared"`
	Args     map[string][]any  `yaml:"args"`
	Refs     map[string]string `yaml:"refs"`
	Return   bool              `yaml:"return"`
	Commit   bool              `yaml:"commit"`
	Widen    bool              `yaml:"widen"`
	Branches [][]Step          `yaml:"branches"`
}

// LoadScenario decodes a scenario over the default options.
func LoadScenario(r io.Reader) (*Scenario, error) {
	sc := &Scenario{Options: memorymodel.DefaultOptions()}
	if err := yaml.NewDecoder(r).Decode(sc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := sc.Options.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

type runner struct {
	sess    *memorymodel.Session
	cur     *memorymodel.Snapshot
	callers []*memorymodel.Snapshot
	out     io.Writer
}

// Run replays the scenario and returns the final, committed snapshot.
// Results of read steps are printed to out.
func (sc *Scenario) Run(out io.Writer) (*memorymodel.Snapshot, error) {
	r := &runner{sess: memorymodel.NewSession(sc.Options), out: out}
	r.cur = r.sess.NewSnapshot()
	if err := r.cur.StartTransaction(); err != nil {
		return nil, err
	}
	if err := r.steps(sc.Steps, "steps"); err != nil {
		return nil, err
	}
	if len(r.callers) > 0 {
		return nil, fmt.Errorf("scenario ends inside %d call(s)", len(r.callers))
	}
	if _, err := r.cur.CommitTransaction(0); err != nil {
		return nil, err
	}
	return r.cur, nil
}

func (r *runner) steps(steps []Step, where string) error {
	for i, st := range steps {
		if err := r.step(st); err != nil {
			return fmt.Errorf("%s[%d]: %w", where, i, err)
		}
	}
	return nil
}

func (r *runner) path(text string) (memorymodel.MemoryPath, error) {
	return memorymodel.ParsePath(text, r.cur.CallLevel())
}

// open starts a fresh snapshot with an open transaction.
func (r *runner) open() (*memorymodel.Snapshot, error) {
	sn := r.sess.NewSnapshot()
	return sn, sn.StartTransaction()
}

// finish commits the current snapshot and returns it.
func (r *runner) finish(widen bool) (*memorymodel.Snapshot, error) {
	var err error
	if widen {
		_, err = r.cur.WidenAndCommitTransaction(0)
	} else {
		_, err = r.cur.CommitTransaction(0)
	}
	return r.cur, err
}

// advance commits the current snapshot and continues in a successor.
func (r *runner) advance(widen bool) error {
	prev, err := r.finish(widen)
	if err != nil {
		return err
	}
	if r.cur, err = r.open(); err != nil {
		return err
	}
	return r.cur.Extend(prev)
}

func (r *runner) step(st Step) error {
	switch {
	case st.Write != "":
		p, err := r.path(st.Write)
		if err != nil {
			return err
		}
		e, err := r.entry(st.Values)
		if err != nil {
			return err
		}
		return r.cur.WriteMemory(p, e)

	case st.Alias != "":
		target, err := r.path(st.Alias)
		if err != nil {
			return err
		}
		source, err := r.path(st.To)
		if err != nil {
			return err
		}
		return r.cur.SetAlias(target, source)

	case st.Read != "":
		p, err := r.path(st.Read)
		if err != nil {
			return err
		}
		e, err := r.cur.ReadMemory(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s = %s\n", st.Read, e)
		return nil

	case st.Release != "":
		p, err := r.path(st.Release)
		if err != nil {
			return err
		}
		col, err := r.cur.Collect(p, memorymodel.CollectRead)
		if err != nil {
			return err
		}
		for _, leaf := range col.Leaves {
			if leaf.Kind != memorymodel.NodeIndex && leaf.Kind != memorymodel.NodeUnknown {
				continue
			}
			if err := r.cur.ReleaseMemory(leaf.Index); err != nil {
				return err
			}
		}
		return nil

	case st.Global != "":
		return r.cur.DeclareGlobal(strings.TrimPrefix(st.Global, "$"))

	case st.Call != "":
		return r.call(st)

	case st.Return:
		if len(r.callers) == 0 {
			return fmt.Errorf("return outside of a call")
		}
		output, err := r.finish(false)
		if err != nil {
			return err
		}
		caller := r.callers[len(r.callers)-1]
		r.callers = r.callers[:len(r.callers)-1]
		r.cur, err = r.open()
		if err != nil {
			return err
		}
		return r.cur.MergeWithCallLevel(caller, output)

	case st.Commit:
		return r.advance(false)

	case st.Widen:
		return r.advance(true)

	case len(st.Branches) > 0:
		return r.branches(st.Branches)
	}
	return fmt.Errorf("empty step")
}

func (r *runner) call(st Step) error {
	names := make([]string, 0, len(st.Args)+len(st.Refs))
	for name := range st.Args {
		names = append(names, name)
	}
	for name := range st.Refs {
		names = append(names, name)
	}
	slices.Sort(names)

	args := make([]memorymodel.Argument, 0, len(names))
	for _, name := range names {
		arg := memorymodel.Argument{Name: strings.TrimPrefix(name, "$")}
		if ref, ok := st.Refs[name]; ok {
			p, err := r.path(ref)
			if err != nil {
				return fmt.Errorf("argument %s: %w", name, err)
			}
			arg.Reference = &p
		} else {
			e, err := r.entry(st.Args[name])
			if err != nil {
				return fmt.Errorf("argument %s: %w", name, err)
			}
			// fresh arrays do not survive the caller's commit
			if len(e.Arrays()) > 0 {
				return fmt.Errorf("argument %s: pass arrays through a variable and refs", name)
			}
			arg.Value = e
		}
		args = append(args, arg)
	}

	caller, err := r.finish(false)
	if err != nil {
		return err
	}
	r.callers = append(r.callers, caller)
	if r.cur, err = r.open(); err != nil {
		return err
	}
	return r.cur.ExtendAsCall(caller, memorymodel.CallTarget{Name: st.Call, Shared: st.Shared}, nil, args)
}

func (r *runner) branches(branches [][]Step) error {
	base, err := r.finish(false)
	if err != nil {
		return err
	}
	outputs := make([]*memorymodel.Snapshot, 0, len(branches))
	for i, steps := range branches {
		r.cur, err = r.open()
		if err != nil {
			return err
		}
		if err := r.cur.Extend(base); err != nil {
			return err
		}
		if err := r.steps(steps, fmt.Sprintf("branches[%d]", i)); err != nil {
			return err
		}
		out, err := r.finish(false)
		if err != nil {
			return err
		}
		outputs = append(outputs, out)
	}
	r.cur, err = r.open()
	if err != nil {
		return err
	}
	return r.cur.Merge(outputs...)
}

// entry builds an entry from scenario values: YAML scalars, the names of
// abstract values, "array" for a fresh empty array and "object:Type" for a
// new object.
func (r *runner) entry(vals []any) (memorymodel.Entry, error) {
	out := make([]memorymodel.Value, 0, len(vals))
	for _, raw := range vals {
		v, err := r.value(raw)
		if err != nil {
			return memorymodel.Entry{}, err
		}
		out = append(out, v)
	}
	return memorymodel.NewEntry(out...), nil
}

func (r *runner) value(raw any) (memorymodel.Value, error) {
	switch x := raw.(type) {
	case nil:
		return memorymodel.Null(), nil
	case bool:
		return memorymodel.Bool(x), nil
	case int:
		return memorymodel.Int(int64(x)), nil
	case int64:
		return memorymodel.Int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return memorymodel.Float(float64(x)), nil
		}
		return memorymodel.Int(int64(x)), nil
	case float64:
		return memorymodel.Float(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return memorymodel.Int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return memorymodel.Value{}, fmt.Errorf("invalid number %q: %w", x, err)
		}
		return memorymodel.Float(f), nil
	case string:
		switch x {
		case "undefined":
			return memorymodel.Undefined(), nil
		case "anybool":
			return memorymodel.AnyBool(), nil
		case "anyint":
			return memorymodel.AnyInt(), nil
		case "anyfloat":
			return memorymodel.AnyFloat(), nil
		case "anystring":
			return memorymodel.AnyString(), nil
		case "anyscalar":
			return memorymodel.AnyScalar(), nil
		case "array":
			return r.cur.CreateArray()
		}
		if typeName, ok := strings.CutPrefix(x, "object:"); ok {
			if typeName == "" {
				return memorymodel.Value{}, fmt.Errorf("object value without a type name")
			}
			return r.cur.CreateObject(typeName)
		}
		return memorymodel.String(x), nil
	}
	return memorymodel.Value{}, fmt.Errorf("unsupported value %v (%T)", raw, raw)
}
