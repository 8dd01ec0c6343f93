package memorymodel

import (
	"strconv"
	"strings"
)

// NodeKind is the variant of a CollectorNode.
type NodeKind uint8

const (
	// NodeIndex is an existing index.
	NodeIndex NodeKind = iota
	// NodeUnknown is an existing unknown index standing for every unnamed
	// member of its container. Writes to it are always weak.
	NodeUnknown
	// NodeUndefined is a location that does not exist yet. Its value is
	// seeded from Source; writes create it.
	NodeUndefined
	// NodeValue is a non-container value the path cannot continue through.
	// It reads as undefined and is ignored by writes.
	NodeValue
)

func (k NodeKind) String() string {
	switch k {
	case NodeIndex:
		return "index"
	case NodeUnknown:
		return "unknown"
	case NodeUndefined:
		return "undefined"
	case NodeValue:
		return "value"
	}
	return "invalid"
}

// CollectorNode is one resolved (or pending) location of a Collection.
type CollectorNode struct {
	Kind NodeKind
	// Index is the location: existing for NodeIndex and NodeUnknown, the
	// one to create for NodeUndefined.
	Index MemoryIndex
	// Source seeds a NodeUndefined location. The zero index means
	// {undefined}.
	Source MemoryIndex
	// Value is the value a NodeValue walked into.
	Value Value
	Must  bool
	// Alias marks nodes reached through an alias of a sibling.
	Alias bool
	// Implicit is KindArray or KindObject when the children need a container
	// created in this location first (write collections only).
	Implicit ValueKind
	// ImplicitObject is the object allocated for an implicit object.
	ImplicitObject Value
	Children       []*CollectorNode
}

// UndefinedChildren returns the children that do not exist yet.
func (n *CollectorNode) UndefinedChildren() []*CollectorNode {
	var out []*CollectorNode
	for _, ch := range n.Children {
		if ch.Kind == NodeUndefined {
			out = append(out, ch)
		}
	}
	return out
}

func (n *CollectorNode) String() string {
	var b strings.Builder
	b.WriteString(n.Kind.String())
	b.WriteByte(' ')
	if n.Kind == NodeValue {
		b.WriteString(n.Value.String())
	} else {
		b.WriteString(n.Index.String())
	}
	if n.Must {
		b.WriteString(" must")
	} else {
		b.WriteString(" may")
	}
	if n.Alias {
		b.WriteString(" alias")
	}
	if n.Implicit != KindUndefined {
		b.WriteString(" implicit=")
		b.WriteString(n.Implicit.String())
	}
	return b.String()
}

// Collection is the result of resolving a MemoryPath: a tree rooted at the
// path's root locations, and the leaves at the full path depth.
type Collection struct {
	Roots  []*CollectorNode
	Leaves []*CollectorNode
}

// Dump renders the tree one node per line, indented by depth.
func (c *Collection) Dump() string {
	var b strings.Builder
	var walk func(n *CollectorNode, depth int)
	walk = func(n *CollectorNode, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.String())
		b.WriteByte('\n')
		for _, ch := range n.Children {
			walk(ch, depth+1)
		}
	}
	for _, r := range c.Roots {
		walk(r, 0)
	}
	return b.String()
}

// CollectMode selects between read-only resolution and resolution for a
// write, which plans implicit containers.
type CollectMode uint8

const (
	CollectRead CollectMode = iota
	CollectWrite
)

type collector struct {
	st      Structure
	data    Data
	session *Session
	log     Logger

	write           bool
	skipLeafAliases bool
	maxAliasDepth   int

	visited map[string]bool
}

// newCollector prepares a walk over the snapshot's current state. Reads
// stop at the leaves a path names: a location's value already is the value
// of its must aliases, and may partners only share it on some paths.
func newCollector(sn *Snapshot, mode CollectMode) *collector {
	return &collector{
		st:              sn.structure,
		data:            sn.data,
		session:         sn.session,
		log:             sn.log,
		write:           mode == CollectWrite,
		skipLeafAliases: mode == CollectRead,
		maxAliasDepth:   sn.session.opts.MaxAliasDepth,
		visited:         make(map[string]bool),
	}
}

// collect walks path segment by segment. Every node at one depth is
// expanded by its aliases before the next segment is applied, so the same
// remaining suffix is resolved from every alias.
func (c *collector) collect(path MemoryPath) *Collection {
	if path.IsZero() {
		invariant("collect", ErrMalformedPath, "empty path")
	}
	segs := path.segments
	last := len(segs) - 1

	roots := c.withAliases(c.resolveRoot(path), 0, last == 0)
	col := &Collection{Roots: roots}
	frontier := roots
	for depth := 1; depth <= last; depth++ {
		var next []*CollectorNode
		for _, n := range frontier {
			children := c.withAliases(c.step(n, segs[depth]), depth, depth == last)
			n.Children = append(n.Children, children...)
			next = append(next, children...)
		}
		frontier = next
	}
	col.Leaves = frontier
	return col
}

func (c *collector) resolveRoot(path MemoryPath) []*CollectorNode {
	seg := path.segments[0]
	switch seg.Kind {
	case SegmentTemporary:
		if !c.st.Exists(seg.Temporary) {
			invariant("collect", ErrUnknownIndex, "temporary %s is not defined", seg.Temporary)
		}
		return []*CollectorNode{{Kind: NodeIndex, Index: seg.Temporary, Must: true}}
	case SegmentVariable, SegmentControl:
		kind := VariableIndex
		if seg.Kind == SegmentControl {
			kind = ControlIndex
		}
		cont, ok := c.st.container(kind, path.level)
		if !ok {
			invariant("collect", ErrCallLevelMismatch, "no frame at level %d for %s", path.level, path)
		}
		if seg.Any {
			var out []*CollectorNode
			for _, idx := range cont.Names() {
				out = append(out, &CollectorNode{Kind: NodeIndex, Index: idx})
			}
			return append(out, &CollectorNode{Kind: NodeUnknown, Index: cont.unknown})
		}
		must := len(seg.Names) == 1
		out := make([]*CollectorNode, 0, len(seg.Names))
		for _, name := range seg.Names {
			if idx, ok := cont.Get(name); ok {
				out = append(out, &CollectorNode{Kind: NodeIndex, Index: idx, Must: must})
				continue
			}
			out = append(out, &CollectorNode{
				Kind:   NodeUndefined,
				Index:  rootIndex(kind, name, path.level),
				Source: cont.unknown,
				Must:   must,
			})
		}
		return out
	}
	invariant("collect", ErrMalformedPath, "%s is not a root segment", seg.Kind)
	return nil
}

func rootIndex(kind IndexKind, name string, level int) MemoryIndex {
	if kind == ControlIndex {
		return NewControlIndex(name, level)
	}
	return NewVariableIndex(name, level)
}

// entryOf returns the entry a node holds, or would hold once created.
func (c *collector) entryOf(n *CollectorNode) Entry {
	switch n.Kind {
	case NodeIndex, NodeUnknown:
		return c.data.Get(n.Index)
	case NodeUndefined:
		if n.Source.IsZero() {
			return UndefinedEntry()
		}
		return c.data.Get(n.Source)
	}
	return NewEntry(n.Value)
}

// step resolves one field or index segment below n.
func (c *collector) step(n *CollectorNode, seg PathSegment) []*CollectorNode {
	if n.Kind == NodeValue {
		if c.write {
			return nil
		}
		return []*CollectorNode{{Kind: NodeValue, Value: Undefined()}}
	}
	entry := c.entryOf(n)
	must := n.Must && !seg.Any && len(seg.Names) == 1 && entry.Count() == 1

	b := childSet{seen: make(map[string]bool)}
	implicit := false
	var blocked Value
	hasBlocked := false
	for _, v := range entry.values {
		switch {
		case v.Kind == KindUndefined || v.Kind == KindNull:
			implicit = true
		case seg.Kind == SegmentIndex && v.Kind == KindArray:
			c.arrayChildren(&b, n, v, seg, must)
		case seg.Kind == SegmentField && v.Kind == KindObject:
			c.objectChildren(&b, n, v, seg, must)
		default:
			if !hasBlocked {
				blocked, hasBlocked = v, true
			}
		}
	}

	if implicit {
		if c.write {
			c.implicitChildren(&b, n, seg, must)
		} else {
			b.add(&CollectorNode{Kind: NodeValue, Value: Undefined()})
		}
	}
	if hasBlocked && !c.write {
		c.log.Debugf("path walks into %s below %s", blocked, n.Index)
		b.add(&CollectorNode{Kind: NodeValue, Value: blocked})
	}
	return b.nodes
}

// childSet collects the children of one node, keeping the first node for
// every location.
type childSet struct {
	nodes []*CollectorNode
	seen  map[string]bool
	value bool
}

func (b *childSet) add(n *CollectorNode) {
	if n.Kind == NodeValue {
		if b.value {
			return
		}
		b.value = true
		b.nodes = append(b.nodes, n)
		return
	}
	if b.seen[n.Index.key] {
		return
	}
	b.seen[n.Index.key] = true
	b.nodes = append(b.nodes, n)
}

func (c *collector) arrayChildren(b *childSet, n *CollectorNode, arr Value, seg PathSegment, must bool) {
	d := c.st.mustArray("collect", arr)
	owned := n.Kind != NodeUndefined && d.parent.Equals(n.Index)

	element := func(name string, idx MemoryIndex, known, strong bool) *CollectorNode {
		switch {
		case owned && known:
			return &CollectorNode{Kind: NodeIndex, Index: idx, Must: strong}
		case owned:
			return &CollectorNode{Kind: NodeUndefined, Index: n.Index.CreateIndex(name), Source: d.unknown, Must: strong}
		case known:
			return &CollectorNode{Kind: NodeUndefined, Index: n.Index.CreateIndex(name), Source: idx, Must: strong}
		default:
			return &CollectorNode{Kind: NodeUndefined, Index: n.Index.CreateIndex(name), Source: d.unknown, Must: strong}
		}
	}

	if seg.Any {
		for name, idx := range d.Indexes() {
			b.add(element(name, idx, true, false))
		}
		if owned {
			b.add(&CollectorNode{Kind: NodeUnknown, Index: d.unknown})
		} else {
			b.add(&CollectorNode{Kind: NodeUndefined, Index: n.Index.CreateUnknownIndex(), Source: d.unknown})
		}
		return
	}
	for _, name := range seg.Names {
		idx, known := d.Get(name)
		b.add(element(name, idx, known, must))
	}
}

func (c *collector) objectChildren(b *childSet, n *CollectorNode, obj Value, seg PathSegment, must bool) {
	d := c.st.mustObject("collect", obj)
	if seg.Any {
		for _, idx := range d.Fields() {
			b.add(&CollectorNode{Kind: NodeIndex, Index: idx})
		}
		b.add(&CollectorNode{Kind: NodeUnknown, Index: d.unknown})
		return
	}
	for _, name := range seg.Names {
		if idx, ok := d.Get(name); ok {
			b.add(&CollectorNode{Kind: NodeIndex, Index: idx, Must: must})
			continue
		}
		b.add(&CollectorNode{Kind: NodeUndefined, Index: NewObjectIndex(obj, name), Source: d.unknown, Must: must})
	}
}

// implicitChildren plans an implicit array or object in n for a write.
func (c *collector) implicitChildren(b *childSet, n *CollectorNode, seg PathSegment, must bool) {
	if seg.Kind == SegmentIndex {
		n.Implicit = KindArray
		if seg.Any {
			b.add(&CollectorNode{Kind: NodeUndefined, Index: n.Index.CreateUnknownIndex()})
			return
		}
		for _, name := range seg.Names {
			b.add(&CollectorNode{Kind: NodeUndefined, Index: n.Index.CreateIndex(name), Must: must})
		}
		return
	}

	n.Implicit = KindObject
	n.ImplicitObject = c.session.siteObject("implicit:"+n.Index.key, implicitTypeName)
	if seg.Any {
		b.add(&CollectorNode{Kind: NodeUndefined, Index: NewObjectUnknownIndex(n.ImplicitObject)})
		return
	}
	for _, name := range seg.Names {
		b.add(&CollectorNode{Kind: NodeUndefined, Index: NewObjectIndex(n.ImplicitObject, name), Must: must})
	}
}

// implicitTypeName is the class of objects created by writing a field of
// an undefined or null location.
const implicitTypeName = "stdClass"

// withAliases appends the alias partners of every existing node, and
// theirs in turn, keeping the original nodes first. Must partners inherit
// the node's must flag; may partners are may. A partner below the node
// itself is a reference back up the tree ($a['x'] = &$a) and is reached
// from the partner's side only.
func (c *collector) withAliases(nodes []*CollectorNode, depth int, leaf bool) []*CollectorNode {
	for _, n := range nodes {
		if n.Kind != NodeValue {
			c.visited[visitKey(n.Index, depth)] = true
		}
	}
	if leaf && c.skipLeafAliases {
		return nodes
	}

	type pending struct {
		node *CollectorNode
		hops int
	}
	queue := make([]pending, 0, len(nodes))
	for _, n := range nodes {
		queue = append(queue, pending{node: n})
	}
	out := nodes
	for i := 0; i < len(queue); i++ {
		n, hops := queue[i].node, queue[i].hops
		if n.Kind != NodeIndex && n.Kind != NodeUnknown {
			continue
		}
		a, ok := c.st.Aliases(n.Index)
		if !ok {
			continue
		}
		if hops >= c.maxAliasDepth {
			c.log.Warnf("alias depth limit %d reached at %s", c.maxAliasDepth, n.Index)
			continue
		}
		follow := func(idx MemoryIndex, must bool) {
			if n.Index.IsAncestorOf(idx) {
				return
			}
			key := visitKey(idx, depth)
			if c.visited[key] {
				return
			}
			c.visited[key] = true
			kind := NodeIndex
			if idx.IsAny() {
				kind = NodeUnknown
				must = false
			}
			an := &CollectorNode{Kind: kind, Index: idx, Must: must, Alias: true}
			out = append(out, an)
			queue = append(queue, pending{node: an, hops: hops + 1})
		}
		for _, m := range a.Must.Slice() {
			follow(m, n.Must)
		}
		for _, m := range a.May.Slice() {
			follow(m, false)
		}
	}
	return out
}

func visitKey(idx MemoryIndex, depth int) string {
	return idx.key + "#" + strconv.Itoa(depth)
}
