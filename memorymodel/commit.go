package memorymodel

// CommitTransaction closes the open transaction. Entries with more than
// limit values are simplified first; limit <= 0 uses the session's
// SimplifyLimit. It reports whether the new state differs from the state
// at StartTransaction.
func (s *Snapshot) CommitTransaction(limit int) (changed bool, err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("CommitTransaction")
	if limit <= 0 {
		limit = s.session.opts.SimplifyLimit
	}
	s.data = simplifyData(s.data, limit, s.session.opts.WideningLevel)
	s.infos = simplifyData(s.infos, limit, s.session.opts.WideningLevel)
	return s.commit(), nil
}

// WidenAndCommitTransaction is CommitTransaction for loop heads: every
// entry that grew since StartTransaction is generalised so that repeated
// iterations reach a fixpoint.
func (s *Snapshot) WidenAndCommitTransaction(limit int) (changed bool, err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("WidenAndCommitTransaction")
	if limit <= 0 {
		limit = s.session.opts.SimplifyLimit
	}
	level := s.session.opts.WideningLevel
	s.data = widenData(s.oldData, s.data, level)
	s.infos = widenData(s.oldInfos, s.infos, level)
	s.data = simplifyData(s.data, limit, level)
	s.infos = simplifyData(s.infos, limit, level)
	return s.commit(), nil
}

func (s *Snapshot) commit() bool {
	s.dropUnownedArrays()
	s.checkLevel("commit")
	changed := !s.structure.Equal(s.oldStructure) || !s.data.Equal(s.oldData) || !s.infos.Equal(s.oldInfos)
	s.open = false
	s.oldStructure, s.oldData, s.oldInfos = Structure{}, Data{}, Data{}
	s.log.Debugf("commit transaction changed=%t indexes=%d", changed, s.structure.IndexCount())
	return changed
}

// dropUnownedArrays forgets arrays created during the transaction that
// were never stored.
func (s *Snapshot) dropUnownedArrays() {
	for arr, d := range s.structure.Arrays() {
		if !d.IsOwned() {
			s.structure = s.structure.deleteArray(arr)
		}
	}
}

func simplifyData(d Data, limit, level int) Data {
	if limit <= 0 {
		return d
	}
	out := d
	for idx, e := range each(d.entries) {
		if next := simplifyEntry(e, limit, level); !next.Equal(e) {
			out = out.set(idx, next)
		}
	}
	return out
}

// simplifyEntry collapses concrete scalars of e to their "any" kind when e
// holds more than limit values. With level 2 it falls back to AnyScalar
// when that is still not enough.
func simplifyEntry(e Entry, limit, level int) Entry {
	if limit <= 0 || e.Count() <= limit {
		return e
	}
	e = e.Map(func(v Value) Value {
		if v.Kind.IsConcreteScalar() {
			return Value{Kind: v.Kind.anyKind()}
		}
		return v
	})
	if e.Count() > limit && level >= 2 {
		e = e.Map(toAnyScalar)
	}
	return e
}

func toAnyScalar(v Value) Value {
	if v.Kind.IsConcreteScalar() || v.Kind.IsAnyScalar() {
		return AnyScalar()
	}
	return v
}

func widenData(old, cur Data, level int) Data {
	if level <= 0 || sameMap(old.entries, cur.entries) {
		return cur
	}
	out := cur
	for idx, e := range each(cur.entries) {
		if next := widenEntry(old.Get(idx), e, level); !next.Equal(e) {
			out = out.set(idx, next)
		}
	}
	return out
}

// maxGrownKinds is the number of scalar kinds an entry may grow by in one
// iteration before widening gives up on per-kind precision.
const maxGrownKinds = 2

// widenEntry generalises the scalars cur gained over old. At level 1 a
// concrete kind becomes its "any" value once it grows a second time; at
// level 2 any growth of scalars yields AnyScalar.
func widenEntry(old, cur Entry, level int) Entry {
	if level <= 0 || cur.IsSubsetOf(old) {
		return cur
	}
	grown := cur.Filter(func(v Value) bool {
		return v.Kind.IsConcreteScalar() && !old.Contains(v)
	})
	if grown.IsEmpty() {
		return cur
	}
	if level >= 2 {
		return cur.Map(toAnyScalar)
	}

	kinds := make(map[ValueKind]bool)
	for _, v := range grown.values {
		kinds[v.Kind] = true
	}
	if len(kinds) > maxGrownKinds {
		return cur.Map(toAnyScalar)
	}
	seen := make(map[ValueKind]bool)
	for _, v := range old.values {
		seen[v.Kind] = true
		if v.Kind.IsConcreteScalar() {
			seen[v.Kind.anyKind()] = true
		}
	}
	return cur.Map(func(v Value) Value {
		if kinds[v.Kind] && seen[v.Kind.anyKind()] {
			return Value{Kind: v.Kind.anyKind()}
		}
		return v
	})
}
