package memorymodel

import "slices"

// target is one location a write reaches.
type target struct {
	index  MemoryIndex
	strong bool
}

// writeTargets materializes col and returns its writable leaves, one per
// location. A location reached both strongly and weakly is written
// strongly.
func (s *Snapshot) writeTargets(col *Collection, forceWeak bool) []target {
	s.materialize(col)
	var out []target
	pos := make(map[string]int)
	for _, leaf := range col.Leaves {
		if leaf.Kind == NodeValue {
			continue
		}
		strong := leaf.Must && leaf.Kind != NodeUnknown && !leaf.Index.IsAny() && !forceWeak
		if i, ok := pos[leaf.Index.key]; ok {
			out[i].strong = out[i].strong || strong
			continue
		}
		pos[leaf.Index.key] = len(out)
		out = append(out, target{index: leaf.Index, strong: strong})
	}
	return out
}

func (s *Snapshot) writePath(path MemoryPath, value Entry, byCopy, forceWeak bool) {
	from := s.view()
	if s.mode == ModeInfo {
		// info writes attach to existing locations, aliases included
		c := newCollector(s, CollectRead)
		c.skipLeafAliases = false
		for _, t := range s.existingTargets(c.collect(path), forceWeak) {
			s.assignFrom(from, t.index, value, t.strong, byCopy)
		}
		return
	}
	col := newCollector(s, CollectWrite).collect(path)
	for _, t := range s.writeTargets(col, forceWeak) {
		// a strong write to an earlier target may have dropped this one
		if s.structure.Exists(t.index) {
			s.assignFrom(from, t.index, value, t.strong, byCopy)
		}
	}
}

func (s *Snapshot) existingTargets(col *Collection, forceWeak bool) []target {
	var out []target
	for _, leaf := range col.Leaves {
		if leaf.Kind == NodeIndex || leaf.Kind == NodeUnknown {
			out = append(out, target{index: leaf.Index, strong: leaf.Must && leaf.Kind == NodeIndex && !forceWeak})
		}
	}
	return out
}

func (s *Snapshot) readCollection(col *Collection) Entry {
	cur := s.current()
	parts := make([]Entry, 0, len(col.Leaves))
	for _, leaf := range col.Leaves {
		switch leaf.Kind {
		case NodeIndex, NodeUnknown:
			parts = append(parts, cur.Get(leaf.Index))
		case NodeUndefined:
			if leaf.Source.IsZero() {
				parts = append(parts, cur.fallback)
			} else {
				parts = append(parts, cur.Get(leaf.Source))
			}
		case NodeValue:
			parts = append(parts, cur.fallback)
		}
	}
	return Entry{}.Union(parts...)
}

// setAlias binds every target leaf to the source leaves. A single certain
// source bound to a single certain target becomes a must alias with a
// strong copy of the value; anything else is a may alias with a weak
// update.
func (s *Snapshot) setAlias(targetPath, sourcePath MemoryPath, forceMay bool) {
	if s.mode == ModeInfo {
		// aliases are structure, which info mode never changes
		return
	}
	sc := newCollector(s, CollectWrite)
	sc.skipLeafAliases = true
	sources := s.writeTargets(sc.collect(sourcePath), false)

	tc := newCollector(s, CollectWrite)
	tc.skipLeafAliases = true
	targets := s.writeTargets(tc.collect(targetPath), forceMay)

	if len(sources) == 0 || len(targets) == 0 {
		return
	}
	from := s.view()
	if len(sources) == 1 && len(targets) == 1 && sources[0].strong && targets[0].strong {
		src, dst := sources[0].index, targets[0].index
		if src.Equals(dst) {
			return
		}
		a, _ := s.structure.Aliases(src)
		must := append([]MemoryIndex{src}, a.Must.Remove(dst).Slice()...)
		may := a.May.Remove(dst).Slice()
		s.structure = MustSetAliases(s.structure, dst, must, may)
		s.assignReference(from, dst, []MemoryIndex{src}, true)
		if s.structure.Exists(dst) {
			s.infos = s.infos.set(dst, s.infos.Get(src))
		}
		s.log.Debugf("must alias %s -> %s", dst, src)
		return
	}

	// partners of a source share its location, so they become partners of
	// the targets too
	var idxs []MemoryIndex
	srcs := make([]MemoryIndex, len(sources))
	for i, src := range sources {
		srcs[i] = src.index
		a, _ := s.structure.Aliases(src.index)
		idxs = append(append(idxs, src.index), a.All().Slice()...)
	}
	idxs = NewIndexSet(idxs...).Slice()
	for _, t := range targets {
		if !s.structure.Exists(t.index) {
			continue
		}
		live := s.existing(idxs)
		if t.strong {
			s.structure = MustSetAliases(s.structure, t.index, nil, live)
		} else {
			s.structure = AddAlias(s.structure, t.index, nil, live)
		}
		s.assignReference(from, t.index, srcs, t.strong)
	}
	if s.log.Enabled(LevelDebug) {
		s.log.Debugf("may alias %s -> %s", indexList(targetIndexes(targets), 4), indexList(idxs, 4))
	}
}

// assignReference stores the joined values of sources, read from the state
// before the alias was made, at idx. Arrays of a source that is an ancestor
// of idx are not copied: the elements stay reachable through the alias, and
// a copy would nest the ancestor inside itself once more on every binding.
// idx gets a fresh empty array in their place.
func (s *Snapshot) assignReference(from memoryView, idx MemoryIndex, sources []MemoryIndex, strong bool) {
	parts := make([]Entry, len(sources))
	var cyclic []Value
	for i, src := range sources {
		parts[i] = from.data.Get(src)
		if src.IsAncestorOf(idx) {
			cyclic = append(cyclic, parts[i].Arrays()...)
		}
	}
	value := Entry{}.Union(parts...)
	if len(cyclic) > 0 {
		value = value.Filter(func(v Value) bool { return !slices.Contains(cyclic, v) })
		fresh := s.session.newArray()
		d := newArrayDescriptor(fresh)
		s.structure = s.structure.setArray(d)
		from.st = from.st.setArray(d)
		value = value.Union(NewEntry(fresh))
	}
	s.assignFrom(from, idx, value, strong, true)
}

// existing keeps the indices that are still defined.
func (s *Snapshot) existing(idxs []MemoryIndex) []MemoryIndex {
	out := make([]MemoryIndex, 0, len(idxs))
	for _, idx := range idxs {
		if s.structure.Exists(idx) {
			out = append(out, idx)
		}
	}
	return out
}

func targetIndexes(ts []target) []MemoryIndex {
	out := make([]MemoryIndex, len(ts))
	for i, t := range ts {
		out[i] = t.index
	}
	return out
}

// ----------------------------------------------------------------------------
// Materialization
// ----------------------------------------------------------------------------

// materialize creates the pending locations and implicit containers of col,
// parents before children.
func (s *Snapshot) materialize(col *Collection) {
	var walk func(n *CollectorNode)
	walk = func(n *CollectorNode) {
		if n.Kind == NodeValue {
			return
		}
		if n.Kind == NodeUndefined {
			s.createIndex(n.Index, n.Source)
		}
		switch n.Implicit {
		case KindArray:
			s.implicitArray(n.Index)
		case KindObject:
			s.implicitObject(n.Index, n.ImplicitObject)
		}
		for _, ch := range n.Children {
			walk(ch)
		}
	}
	for _, r := range col.Roots {
		walk(r)
	}
}

// createIndex defines idx, registers it with its container and seeds its
// value (and aliases, as may) from source. Existing indices are left alone.
func (s *Snapshot) createIndex(idx, source MemoryIndex) {
	if s.structure.Exists(idx) {
		return
	}
	s.register(idx)
	s.structure = s.structure.defineIndex(idx)
	if source.IsZero() || !s.structure.Exists(source) {
		return
	}
	s.assignIndex(idx, s.data.Get(source), true, true)
	if info, ok := s.infos.Lookup(source); ok {
		s.infos = s.infos.set(idx, info)
	}
	if a, ok := s.structure.Aliases(source); ok {
		s.structure = AddAlias(s.structure, idx, nil, a.All().Slice())
	}
}

// register records idx in the table, array or object it belongs to.
func (s *Snapshot) register(idx MemoryIndex) {
	switch {
	case idx.kind == TemporaryIndex && idx.Len() == 0:
		return
	case (idx.kind == VariableIndex || idx.kind == ControlIndex) && idx.Len() == 0:
		if idx.root.Any {
			return
		}
		cont, ok := s.structure.container(idx.kind, idx.level)
		if !ok {
			invariant("createIndex", ErrCallLevelMismatch, "no frame at level %d for %s", idx.level, idx)
		}
		if prev, ok := cont.Get(idx.root.Name); ok && !prev.Equals(idx) {
			invariant("createIndex", ErrDuplicateName, "%s already names %s", idx.root.Name, prev)
		}
		s.structure = s.structure.setContainer(idx.kind, idx.level, cont.with(idx.root.Name, idx))
	case idx.kind == ObjectIndex && idx.Len() == 1:
		obj, _ := idx.Object()
		if _, ok := s.structure.Object(obj); !ok {
			s.defineObject(obj)
		}
		last := idx.Last()
		if last.Any {
			return
		}
		d := s.structure.mustObject("createIndex", obj)
		if prev, ok := d.Get(last.Name); ok && !prev.Equals(idx) {
			invariant("createIndex", ErrDuplicateName, "field %s already names %s", last.Name, prev)
		}
		s.structure = s.structure.setObject(d.with(last.Name, idx))
	default:
		parent, _ := idx.Parent()
		d := s.ownArray(parent)
		last := idx.Last()
		if last.Any {
			return
		}
		if prev, ok := d.Get(last.Name); ok && !prev.Equals(idx) {
			invariant("createIndex", ErrDuplicateName, "element %s already names %s", last.Name, prev)
		}
		s.structure = s.structure.setArray(d.with(last.Name, idx))
	}
}

// unregister removes idx from its table, array or object.
func (s *Snapshot) unregister(idx MemoryIndex) {
	last := idx.Last()
	if last.Any {
		return
	}
	switch {
	case idx.kind == TemporaryIndex && idx.Len() == 0:
	case idx.Len() == 0:
		if cont, ok := s.structure.container(idx.kind, idx.level); ok {
			s.structure = s.structure.setContainer(idx.kind, idx.level, cont.without(last.Name))
		}
	case idx.kind == ObjectIndex && idx.Len() == 1:
		obj, _ := idx.Object()
		if d, ok := s.structure.Object(obj); ok {
			s.structure = s.structure.setObject(d.without(last.Name))
		}
	default:
		parent, _ := idx.Parent()
		if def, ok := s.structure.Definition(parent); ok && def.HasArray() {
			if d, ok := s.structure.Array(def.Array); ok {
				s.structure = s.structure.setArray(d.without(last.Name))
			}
		}
	}
}

// ownArray returns the array owned by idx, creating an empty one when idx
// owns none yet. The entry of idx is not changed.
func (s *Snapshot) ownArray(idx MemoryIndex) ArrayDescriptor {
	def, ok := s.structure.Definition(idx)
	if !ok {
		invariant("ownArray", ErrUnknownIndex, "%s is not defined", idx)
	}
	if def.HasArray() {
		return s.structure.mustArray("ownArray", def.Array)
	}
	arr := s.session.arrayFor(idx)
	d := newArrayDescriptor(arr).withParent(idx)
	s.structure = s.structure.setArray(d).withOwnedArray(idx, arr).defineIndex(d.unknown)
	return d
}

// implicitArray turns the undefined and null values of idx into its own
// array.
func (s *Snapshot) implicitArray(idx MemoryIndex) {
	d := s.ownArray(idx)
	old := s.data.Get(idx)
	next := old.Filter(notUndefinedOrNull).Union(NewEntry(d.array))
	s.data = s.data.set(idx, next)
	s.log.Debugf("implicit array %s at %s", d.array, idx)
}

func (s *Snapshot) implicitObject(idx MemoryIndex, obj Value) {
	s.defineObject(obj)
	old := s.data.Get(idx)
	s.data = s.data.set(idx, old.Filter(notUndefinedOrNull).Union(NewEntry(obj)))
	s.log.Debugf("implicit object %s at %s", obj, idx)
}

func notUndefinedOrNull(v Value) bool {
	return v.Kind != KindUndefined && v.Kind != KindNull
}

// ----------------------------------------------------------------------------
// Assignment
// ----------------------------------------------------------------------------

// memoryView is a read-only view of a snapshot's memory. Copies read their
// source from the view taken before the write started, so a write that
// replaces part of its own source ($a['n'] = $a) copies the old contents.
type memoryView struct {
	st   Structure
	data Data
}

func (s *Snapshot) view() memoryView {
	return memoryView{st: s.structure, data: s.data}
}

// assignIndex stores value at idx. A strong write replaces the entry, a weak
// one joins it. Arrays in value are copied into the array idx owns; with
// byCopy unset an array owned by another location is an invariant violation.
func (s *Snapshot) assignIndex(idx MemoryIndex, value Entry, strong, byCopy bool) {
	s.assignFrom(s.view(), idx, value, strong, byCopy)
}

// assignFrom is assignIndex with the arrays of value read from the view
// from.
func (s *Snapshot) assignFrom(from memoryView, idx MemoryIndex, value Entry, strong, byCopy bool) {
	if s.mode == ModeInfo {
		if strong {
			s.infos = s.infos.set(idx, value)
		} else {
			s.infos = s.infos.set(idx, s.infos.Get(idx).Union(value))
		}
		return
	}
	def, ok := s.structure.Definition(idx)
	if !ok {
		invariant("assign", ErrUnknownIndex, "%s is not defined", idx)
	}
	old := s.data.Get(idx)

	keepOwn := false
	for _, v := range value.values {
		if v.Kind == KindArray && def.HasArray() && v == def.Array {
			keepOwn = true
		}
	}

	vals := make([]Value, 0, value.Count())
	filled := keepOwn || !strong
	for _, v := range value.values {
		if v.Kind != KindArray {
			vals = append(vals, v)
			continue
		}
		d := from.st.mustArray("assign", v)
		if d.parent.Equals(idx) {
			vals = append(vals, v)
			continue
		}
		if !byCopy && d.IsOwned() {
			invariant("assign", ErrArrayOwnership, "%s is owned by %s, not %s", v, d.parent, idx)
		}
		own := s.ownArray(idx)
		if !filled {
			s.clearArray(own)
			own = s.structure.mustArray("assign", own.array)
		}
		s.copyArrayInto(from, d, own, idx, !filled)
		filled = true
		vals = append(vals, own.array)
	}
	next := NewEntry(vals...)

	// refresh: copying may have created the own array
	def, _ = s.structure.Definition(idx)
	if strong {
		if def.HasArray() && !next.Contains(def.Array) {
			s.releaseArray(def.Array)
			s.structure = s.structure.withOwnedArray(idx, Value{})
		}
		s.data = s.data.set(idx, next)
	} else {
		s.data = s.data.set(idx, old.Union(next))
	}
	if s.log.Enabled(LevelDebug) {
		if delta := entryDelta(old, s.data.Get(idx), s.session.opts.DumpMaxValues); delta != "" {
			s.log.Debugf("assign %s strong=%t %s", idx, strong, delta)
		}
	}
}

// copyArrayInto copies the elements of src, as seen in from, into dst,
// owned by idx. A strong copy expects dst to be empty; a weak one joins
// every element of dst with its counterpart in src.
func (s *Snapshot) copyArrayInto(from memoryView, src, dst ArrayDescriptor, idx MemoryIndex, strong bool) {
	if src.array == dst.array {
		return
	}
	srcUnknown := UndefinedEntry()
	if !src.unknown.IsZero() {
		srcUnknown = from.data.Get(src.unknown)
	}
	dstUnknown := s.data.Get(dst.unknown)

	copied := make(map[string]bool, src.Len())
	for name, se := range src.Indexes() {
		copied[name] = true
		de := idx.CreateIndex(name)
		if !s.structure.Exists(de) {
			s.register(de)
			s.structure = s.structure.defineIndex(de)
			if !strong {
				s.data = s.data.set(de, dstUnknown)
			}
		}
		s.assignFrom(from, de, from.data.Get(se), strong, true)
		if a, ok := from.st.Aliases(se); ok {
			// references inside an array survive the copy
			must := s.existing(append([]MemoryIndex{se}, a.Must.Slice()...))
			s.structure = AddAlias(s.structure, de, must, s.existing(a.May.Slice()))
		}
	}
	if !strong {
		cur, _ := s.structure.Array(dst.array)
		for name, de := range cur.Indexes() {
			if !copied[name] {
				s.assignFrom(from, de, srcUnknown, false, true)
			}
		}
	}
	s.assignFrom(from, dst.unknown, srcUnknown, strong, true)
}

// ----------------------------------------------------------------------------
// Release
// ----------------------------------------------------------------------------

// releaseIndex drops idx and everything it owns.
func (s *Snapshot) releaseIndex(idx MemoryIndex) {
	def, ok := s.structure.Definition(idx)
	if !ok {
		return
	}
	if def.HasArray() {
		s.releaseArray(def.Array)
	}
	s.structure = DestroyAliases(s.structure, idx)
	s.unregister(idx)
	s.structure = s.structure.undefineIndex(idx)
	s.data = s.data.remove(idx)
	s.infos = s.infos.remove(idx)
}

// clearIndex resets idx to undefined, releasing what it owns but keeping
// the index itself.
func (s *Snapshot) clearIndex(idx MemoryIndex) {
	def, ok := s.structure.Definition(idx)
	if !ok {
		return
	}
	if def.HasArray() {
		s.releaseArray(def.Array)
		s.structure = s.structure.withOwnedArray(idx, Value{})
	}
	s.structure = DestroyAliases(s.structure, idx)
	s.data = s.data.remove(idx)
	s.infos = s.infos.remove(idx)
}

func (s *Snapshot) releaseArray(arr Value) {
	d, ok := s.structure.Array(arr)
	if !ok {
		return
	}
	s.structure = s.structure.deleteArray(arr)
	for _, e := range d.Indexes() {
		s.releaseIndex(e)
	}
	if !d.unknown.IsZero() {
		s.releaseIndex(d.unknown)
	}
}

// clearArray removes every element of d and resets its unknown element.
func (s *Snapshot) clearArray(d ArrayDescriptor) {
	for _, e := range d.Indexes() {
		s.releaseIndex(e)
	}
	if cur, ok := s.structure.Array(d.array); ok {
		cur.indexes = newNameMap()
		s.structure = s.structure.setArray(cur)
	}
	s.clearIndex(d.unknown)
}
