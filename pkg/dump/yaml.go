package dump

import (
	"fmt"
	"io"
	"strconv"

	"github.com/speakeasy-api/heapmodel/memorymodel"
	"gopkg.in/yaml.v3"
)

// YAML writes sn as a YAML document with the keys level, callStack,
// indexes, arrays, objects, functions and types. Empty sections are
// omitted.
func YAML(w io.Writer, sn *memorymodel.Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(SnapshotNode(sn)); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return enc.Close()
}

// SnapshotNode builds the YAML node written by YAML.
func SnapshotNode(sn *memorymodel.Snapshot) *yaml.Node {
	st := sn.Structure()
	doc := mapping()
	addPair(doc, "level", intNode(sn.CallLevel()))

	stack := mapping()
	for level, name := range st.CallStack() {
		addPair(stack, strconv.Itoa(level), str(name))
	}
	addSection(doc, "callStack", stack)

	indexes := sequence()
	for idx, def := range st.Indexes() {
		n := mapping()
		addPair(n, "index", str(idx.String()))
		addPair(n, "values", entryNode(sn.Data().Get(idx)))
		if e, ok := sn.Infos().Lookup(idx); ok && !e.IsEmpty() {
			addPair(n, "info", entryNode(e))
		}
		if def.HasArray() {
			addPair(n, "owns", str(def.Array.String()))
		}
		if a, ok := st.Aliases(idx); ok {
			addSection(n, "must", indexSeq(a.Must.Slice()))
			addSection(n, "may", indexSeq(a.May.Slice()))
		}
		indexes.Content = append(indexes.Content, n)
	}
	addSection(doc, "indexes", indexes)

	arrays := mapping()
	for arr, d := range st.Arrays() {
		n := mapping()
		if d.IsOwned() {
			addPair(n, "parent", str(d.Parent().String()))
		}
		elems := sequence()
		for name := range d.Indexes() {
			elems.Content = append(elems.Content, str(name))
		}
		addSection(n, "elements", elems)
		addPair(arrays, arr.String(), n)
	}
	addSection(doc, "arrays", arrays)

	objects := mapping()
	for obj, d := range st.Objects() {
		fields := sequence()
		for name := range d.Fields() {
			fields.Content = append(fields.Content, str(name))
		}
		addPair(objects, obj.String(), fields)
	}
	addSection(doc, "objects", objects)

	for _, kind := range []bool{false, true} {
		decls := mapping()
		for d := range st.Declarations(kind) {
			addPair(decls, d.Name, str(d.Source))
		}
		key := "functions"
		if kind {
			key = "types"
		}
		addSection(doc, key, decls)
	}
	return doc
}

func entryNode(e memorymodel.Entry) *yaml.Node {
	n := sequence()
	n.Style = yaml.FlowStyle
	for _, v := range e.Values() {
		n.Content = append(n.Content, valueNode(v))
	}
	return n
}

// valueNode renders scalars with their YAML tag so that 1 and "1" stay
// apart. Abstract values and containers are plain strings.
func valueNode(v memorymodel.Value) *yaml.Node {
	switch v.Kind {
	case memorymodel.KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case memorymodel.KindBool:
		b, _ := v.AsBool()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
	case memorymodel.KindInt:
		i, _ := v.AsInt()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(i, 10)}
	case memorymodel.KindFloat:
		f, _ := v.AsFloat()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(f, 'g', -1, 64)}
	case memorymodel.KindString:
		s, _ := v.AsString()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.DoubleQuotedStyle}
	}
	return str(v.String())
}

func indexSeq(idxs []memorymodel.MemoryIndex) *yaml.Node {
	n := sequence()
	n.Style = yaml.FlowStyle
	for _, idx := range idxs {
		n.Content = append(n.Content, str(idx.String()))
	}
	return n
}

func mapping() *yaml.Node  { return &yaml.Node{Kind: yaml.MappingNode} }
func sequence() *yaml.Node { return &yaml.Node{Kind: yaml.SequenceNode} }

func str(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func intNode(i int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(i)}
}

func addPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, str(key), value)
}

// addSection adds value unless it is an empty collection.
func addSection(m *yaml.Node, key string, value *yaml.Node) {
	if len(value.Content) == 0 {
		return
	}
	addPair(m, key, value)
}
