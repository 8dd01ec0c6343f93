package memorymodel

import (
	"slices"

	"github.com/benbjohnson/immutable"
)

type indexComparer struct{}

func (indexComparer) Compare(a, b MemoryIndex) int { return compareIndexes(a, b) }

var noIndexes = immutable.NewSortedSet[MemoryIndex](indexComparer{})

// IndexSet is an immutable sorted set of indices. The zero value is empty.
type IndexSet struct {
	set immutable.SortedSet[MemoryIndex]
}

// NewIndexSet builds a set from idxs, dropping duplicates.
func NewIndexSet(idxs ...MemoryIndex) IndexSet {
	if len(idxs) == 0 {
		return IndexSet{}
	}
	return IndexSet{set: immutable.NewSortedSet[MemoryIndex](indexComparer{}, idxs...)}
}

func (s IndexSet) sorted() immutable.SortedSet[MemoryIndex] {
	if s.set == (immutable.SortedSet[MemoryIndex]{}) {
		return noIndexes
	}
	return s.set
}

func (s IndexSet) Len() int      { return s.sorted().Len() }
func (s IndexSet) IsEmpty() bool { return s.Len() == 0 }

// Slice returns the members in index order.
func (s IndexSet) Slice() []MemoryIndex {
	if s.IsEmpty() {
		return nil
	}
	return s.sorted().Items()
}

func (s IndexSet) Contains(idx MemoryIndex) bool { return s.sorted().Has(idx) }

func (s IndexSet) Add(idx MemoryIndex) IndexSet {
	if s.Contains(idx) {
		return s
	}
	return IndexSet{set: s.sorted().Add(idx)}
}

func (s IndexSet) Remove(idx MemoryIndex) IndexSet {
	if !s.Contains(idx) {
		return s
	}
	return IndexSet{set: s.sorted().Delete(idx)}
}

func (s IndexSet) Union(o IndexSet) IndexSet {
	if o.Len() > s.Len() {
		s, o = o, s
	}
	for _, idx := range o.Slice() {
		s = s.Add(idx)
	}
	return s
}

func (s IndexSet) Intersect(o IndexSet) IndexSet {
	out := s
	for _, idx := range s.Slice() {
		if !o.Contains(idx) {
			out = out.Remove(idx)
		}
	}
	return out
}

func (s IndexSet) Minus(o IndexSet) IndexSet {
	for _, idx := range o.Slice() {
		s = s.Remove(idx)
	}
	return s
}

func (s IndexSet) Equal(o IndexSet) bool {
	return s.Len() == o.Len() && slices.EqualFunc(s.Slice(), o.Slice(), MemoryIndex.Equals)
}

// MemoryAlias holds the must and may alias partners of one index.
type MemoryAlias struct {
	Must IndexSet
	May  IndexSet
}

func (a MemoryAlias) IsEmpty() bool {
	return a.Must.IsEmpty() && a.May.IsEmpty()
}

// All returns must and may partners together.
func (a MemoryAlias) All() IndexSet {
	return a.Must.Union(a.May)
}

func (a MemoryAlias) equal(o MemoryAlias) bool {
	return a.Must.Equal(o.Must) && a.May.Equal(o.May)
}

func (s Structure) setAlias(idx MemoryIndex, a MemoryAlias) Structure {
	if a.IsEmpty() {
		s.aliases = s.aliases.Delete(idx)
	} else {
		s.aliases = s.aliases.Set(idx, a)
	}
	return s
}

func (s Structure) linkMust(a, b MemoryIndex) Structure {
	aa, _ := s.Aliases(a)
	aa.Must, aa.May = aa.Must.Add(b), aa.May.Remove(b)
	s = s.setAlias(a, aa)
	ba, _ := s.Aliases(b)
	ba.Must, ba.May = ba.Must.Add(a), ba.May.Remove(a)
	return s.setAlias(b, ba)
}

func (s Structure) linkMay(a, b MemoryIndex) Structure {
	aa, _ := s.Aliases(a)
	if aa.Must.Contains(b) {
		return s
	}
	aa.May = aa.May.Add(b)
	s = s.setAlias(a, aa)
	ba, _ := s.Aliases(b)
	ba.May = ba.May.Add(a)
	return s.setAlias(b, ba)
}

func (s Structure) unlink(a, b MemoryIndex) Structure {
	aa, _ := s.Aliases(a)
	aa.Must, aa.May = aa.Must.Remove(b), aa.May.Remove(b)
	s = s.setAlias(a, aa)
	ba, _ := s.Aliases(b)
	ba.Must, ba.May = ba.Must.Remove(a), ba.May.Remove(a)
	return s.setAlias(b, ba)
}

// AddAlias records must and may partners of index on both sides. A pair
// already known as must is never demoted by a may; a new must pair replaces
// an existing may pair.
func AddAlias(s Structure, index MemoryIndex, must, may []MemoryIndex) Structure {
	for _, m := range must {
		if !m.Equals(index) {
			s = s.linkMust(index, m)
		}
	}
	for _, m := range may {
		if !m.Equals(index) {
			s = s.linkMay(index, m)
		}
	}
	return s
}

// MustSetAliases replaces every alias of index with the given sets.
func MustSetAliases(s Structure, index MemoryIndex, must, may []MemoryIndex) Structure {
	return AddAlias(DestroyAliases(s, index), index, must, may)
}

// ConvertAliasesToMay demotes every must partner of index to may, on both
// sides.
func ConvertAliasesToMay(s Structure, index MemoryIndex) Structure {
	a, ok := s.Aliases(index)
	if !ok {
		return s
	}
	for _, m := range a.Must.Slice() {
		s = s.unlink(index, m)
		s = s.linkMay(index, m)
	}
	return s
}

// DestroyAliases removes index from all of its partners and drops its own
// alias entry. Partners left without aliases lose their entry too.
func DestroyAliases(s Structure, index MemoryIndex) Structure {
	a, ok := s.Aliases(index)
	if !ok {
		return s
	}
	for _, m := range a.All().Slice() {
		s = s.unlink(index, m)
	}
	s.aliases = s.aliases.Delete(index)
	return s
}
