package memorymodel

import (
	"cmp"
	"slices"
	"strings"
)

// Extend adopts the state of a single predecessor.
func (s *Snapshot) Extend(input *Snapshot) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("Extend")
	s.extend(input)
	s.checkLevel("Extend")
	return nil
}

func (s *Snapshot) extend(input *Snapshot) {
	s.structure, s.data, s.infos, s.level = input.structure, input.data, input.infos, input.level
}

// Merge joins the states of several predecessors. Every index known to an
// input is known to the result and holds the union of the values it may
// hold in each input; a location missing from an input contributes what
// that input would read there. Must aliases survive only when every input
// agrees on them.
func (s *Snapshot) Merge(inputs ...*Snapshot) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("Merge")
	s.merge(inputs)
	s.checkLevel("Merge")
	return nil
}

func (s *Snapshot) merge(inputs []*Snapshot) {
	switch len(inputs) {
	case 0:
		return
	case 1:
		s.extend(inputs[0])
		return
	}
	level := inputs[0].level
	for _, in := range inputs[1:] {
		if in.level != level {
			invariant("Merge", ErrCallLevelMismatch, "cannot merge %s with %s", inputs[0], in)
		}
	}
	if allSame(inputs) {
		s.extend(inputs[0])
		return
	}

	m := &merger{
		session: s.session,
		inputs:  inputs,
		st:      emptyStructure().withLevel(level),
		data:    newData(),
		infos:   newInfoData(),
		done:    make(map[string]bool),
	}
	m.run()
	s.structure, s.data, s.infos, s.level = m.st, m.data, m.infos, level
	s.log.Debugf("merge inputs=%d indexes=%d", len(inputs), s.structure.IndexCount())
}

// allSame reports whether every input shares the state of the first one.
// Shared persistent maps make the comparison cheap in the common case.
func allSame(inputs []*Snapshot) bool {
	first := inputs[0]
	for _, in := range inputs[1:] {
		if !first.structure.Equal(in.structure) || !first.data.Equal(in.data) || !first.infos.Equal(in.infos) {
			return false
		}
	}
	return true
}

// mergeSource is the location of one input a merged index reads from.
type mergeSource struct {
	from  *Snapshot
	index MemoryIndex
}

type merger struct {
	session *Session
	inputs  []*Snapshot

	st    Structure
	data  Data
	infos Data

	done map[string]bool
}

func (m *merger) run() {
	m.mergeFrames()
	m.mergeTemporaries()
	m.mergeObjects()
	m.mergeAliases()
	m.mergeDeclarations()
}

func (m *merger) mergeFrames() {
	levels := make(map[int]bool)
	for _, in := range m.inputs {
		for level := range in.structure.Frames() {
			levels[level] = true
		}
	}
	for _, level := range sortedSet(levels) {
		m.mergeContainer(VariableIndex, level)
		m.mergeContainer(ControlIndex, level)
	}
}

func (m *merger) mergeContainer(kind IndexKind, level int) {
	unknown := NewAnyVariableIndex(level)
	if kind == ControlIndex {
		unknown = NewAnyControlIndex(level)
	}
	cont := newContainer(unknown)

	names := make(map[string]bool)
	var unknowns []mergeSource
	for _, in := range m.inputs {
		c, ok := in.structure.container(kind, level)
		if !ok {
			continue
		}
		unknowns = append(unknowns, mergeSource{in, c.unknown})
		for name := range c.Names() {
			names[name] = true
		}
	}
	for _, name := range sortedSet(names) {
		var srcs []mergeSource
		for _, in := range m.inputs {
			c, ok := in.structure.container(kind, level)
			if !ok {
				continue
			}
			if idx, ok := c.Get(name); ok {
				srcs = append(srcs, mergeSource{in, idx})
			} else {
				srcs = append(srcs, mergeSource{in, c.unknown})
			}
		}
		idx := rootIndex(kind, name, level)
		m.mergeIndex(idx, srcs)
		cont = cont.with(name, idx)
	}
	m.mergeIndex(unknown, unknowns)
	m.st = m.st.setContainer(kind, level, cont)
}

// mergeTemporaries joins temporaries by identity. A temporary missing from
// an input reads as undefined there.
func (m *merger) mergeTemporaries() {
	temps := make(map[string]MemoryIndex)
	for _, in := range m.inputs {
		for idx := range each(in.structure.indexes) {
			if idx.kind == TemporaryIndex && idx.Len() == 0 {
				temps[idx.key] = idx
			}
		}
	}
	keys := make([]string, 0, len(temps))
	for k := range temps {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		idx := temps[k]
		srcs := make([]mergeSource, len(m.inputs))
		for i, in := range m.inputs {
			srcs[i] = mergeSource{in, idx}
		}
		m.mergeIndex(idx, srcs)
	}
}

// mergeObjects joins object descriptors by identity. Inputs that do not
// know an object do not contribute to its fields.
func (m *merger) mergeObjects() {
	objects := make(map[uint64]Value)
	for _, in := range m.inputs {
		for obj := range in.structure.Objects() {
			objects[obj.id] = obj
		}
	}
	ids := make([]uint64, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		obj := objects[id]
		d := newObjectDescriptor(obj)
		names := make(map[string]bool)
		var unknowns []mergeSource
		for _, in := range m.inputs {
			od, ok := in.structure.Object(obj)
			if !ok {
				continue
			}
			unknowns = append(unknowns, mergeSource{in, od.unknown})
			for name := range od.Fields() {
				names[name] = true
			}
		}
		for _, name := range sortedSet(names) {
			var srcs []mergeSource
			for _, in := range m.inputs {
				od, ok := in.structure.Object(obj)
				if !ok {
					continue
				}
				if idx, ok := od.Get(name); ok {
					srcs = append(srcs, mergeSource{in, idx})
				} else {
					srcs = append(srcs, mergeSource{in, od.unknown})
				}
			}
			idx := NewObjectIndex(obj, name)
			m.mergeIndex(idx, srcs)
			d = d.with(name, idx)
		}
		m.mergeIndex(d.unknown, unknowns)
		m.st = m.st.setObject(d)
	}
}

// mergeIndex defines x and joins the entries of srcs into it. When any
// source holds an array, x owns the merged array and its elements are
// merged in turn.
func (m *merger) mergeIndex(x MemoryIndex, srcs []mergeSource) {
	if m.done[x.key] {
		return
	}
	m.done[x.key] = true
	m.st = m.st.defineIndex(x)

	arr := Value{}
	values := make([]Entry, 0, len(srcs))
	infos := make([]Entry, 0, len(srcs))
	arrays := make([]mergeArray, 0, len(srcs))
	for _, src := range srcs {
		e := src.from.data.Get(src.index)
		if as := e.Arrays(); len(as) > 0 {
			d := src.from.structure.mustArray("Merge", ownedOrFirst(src.from.structure, as, src.index))
			arrays = append(arrays, mergeArray{src.from, d})
			if arr.Kind != KindArray {
				arr = m.session.arrayFor(x)
			}
			e = e.Map(func(v Value) Value {
				if v.Kind == KindArray {
					return arr
				}
				return v
			})
		}
		values = append(values, e)
		infos = append(infos, src.from.infos.Get(src.index))
	}
	if len(values) == 0 {
		values = append(values, UndefinedEntry())
	}
	m.data = m.data.set(x, Entry{}.Union(values...))
	if info := (Entry{}).Union(infos...); !info.IsEmpty() {
		m.infos = m.infos.set(x, info)
	}
	if len(arrays) == 0 {
		return
	}

	d := newArrayDescriptor(arr).withParent(x)
	names := make(map[string]bool)
	for _, a := range arrays {
		for name := range a.desc.Indexes() {
			names[name] = true
		}
	}
	for _, name := range sortedSet(names) {
		srcs := make([]mergeSource, 0, len(arrays))
		for _, a := range arrays {
			if idx, ok := a.desc.Get(name); ok {
				srcs = append(srcs, mergeSource{a.from, idx})
			} else {
				srcs = append(srcs, mergeSource{a.from, a.desc.unknown})
			}
		}
		child := x.CreateIndex(name)
		m.mergeIndex(child, srcs)
		d = d.with(name, child)
	}
	unknowns := make([]mergeSource, 0, len(arrays))
	for _, a := range arrays {
		unknowns = append(unknowns, mergeSource{a.from, a.desc.unknown})
	}
	m.mergeIndex(d.unknown, unknowns)
	m.st = m.st.setArray(d).withOwnedArray(x, arr)
}

type mergeArray struct {
	from *Snapshot
	desc ArrayDescriptor
}

// ownedOrFirst picks the array owned by idx among as, falling back to the
// first one.
func ownedOrFirst(st Structure, as []Value, idx MemoryIndex) Value {
	if def, ok := st.Definition(idx); ok && def.HasArray() && slices.Contains(as, def.Array) {
		return def.Array
	}
	return as[0]
}

// mergeAliases keeps a must alias only when every input has it; every
// other alias known to some input becomes may. Partners missing from the
// result are dropped.
func (m *merger) mergeAliases() {
	keys := make(map[string]MemoryIndex)
	for _, in := range m.inputs {
		for idx := range each(in.structure.aliases) {
			keys[idx.key] = idx
		}
	}
	for _, idx := range keys {
		if !m.st.Exists(idx) {
			continue
		}
		var must, all IndexSet
		for i, in := range m.inputs {
			a, _ := in.structure.Aliases(idx)
			if i == 0 {
				must = a.Must
			} else {
				must = must.Intersect(a.Must)
			}
			all = all.Union(a.All())
		}
		may := all.Minus(must)
		m.st = AddAlias(m.st, idx, m.existing(must), m.existing(may))
	}
}

func (m *merger) existing(set IndexSet) []MemoryIndex {
	var out []MemoryIndex
	for _, idx := range set.Slice() {
		if m.st.Exists(idx) {
			out = append(out, idx)
		}
	}
	return out
}

func (m *merger) mergeDeclarations() {
	for _, in := range m.inputs {
		for _, decls := range each(in.structure.functions) {
			for _, d := range decls {
				m.st = m.st.withFunction(d)
			}
		}
		for _, decls := range each(in.structure.types) {
			for _, d := range decls {
				m.st = m.st.withType(d)
			}
		}
		for level, name := range each(in.structure.callStack) {
			if _, ok := m.st.Callee(level); !ok {
				m.st = m.st.withCallee(level, name)
			}
		}
	}
	m.st.functions = sortDeclarations(m.st.functions)
	m.st.types = sortDeclarations(m.st.types)
}

// sortDeclarations orders every declaration list so that merges of the same
// inputs in any order compare equal.
func sortDeclarations(table declarationTable) declarationTable {
	out := table
	for key, decls := range each(table) {
		if slices.IsSortedFunc(decls, compareDeclarations) {
			continue
		}
		sorted := slices.SortedFunc(slices.Values(decls), compareDeclarations)
		out = out.Set(key, sorted)
	}
	return out
}

func compareDeclarations(a, b Declaration) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.Source, b.Source)
}

func sortedSet[K cmp.Ordered](set map[K]bool) []K {
	out := make([]K, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
