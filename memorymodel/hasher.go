package memorymodel

import (
	"cmp"
	"hash/fnv"
	"iter"
	"slices"

	"github.com/benbjohnson/immutable"
)

type indexHasher struct{}

func (indexHasher) Hash(k MemoryIndex) uint32   { return k.Hash() }
func (indexHasher) Equal(a, b MemoryIndex) bool { return a.Equals(b) }

type stringHasher struct{}

func (stringHasher) Hash(k string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(k))
	return h.Sum32()
}
func (stringHasher) Equal(a, b string) bool { return a == b }

type uint64Hasher struct{}

func (uint64Hasher) Hash(k uint64) uint32   { return uint32(k ^ k>>32) }
func (uint64Hasher) Equal(a, b uint64) bool { return a == b }

type intHasher struct{}

func (intHasher) Hash(k int) uint32   { return uint32(k) }
func (intHasher) Equal(a, b int) bool { return a == b }

func newIndexMap[V any]() *immutable.Map[MemoryIndex, V] {
	return immutable.NewMap[MemoryIndex, V](indexHasher{})
}

func newNameMap() *immutable.Map[string, MemoryIndex] {
	return immutable.NewMap[string, MemoryIndex](stringHasher{})
}

// each yields the map's pairs in iteration (hash) order.
func each[K, V any](m *immutable.Map[K, V]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if m == nil {
			return
		}
		itr := m.Iterator()
		for !itr.Done() {
			k, v, ok := itr.Next()
			if !ok {
				return
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

// sortedKeys returns the keys of m ordered by cmpKey, for deterministic
// traversal.
func sortedKeys[K, V any](m *immutable.Map[K, V], cmpKey func(a, b K) int) []K {
	keys := make([]K, 0, mapLen(m))
	for k := range each(m) {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, cmpKey)
	return keys
}

func mapLen[K, V any](m *immutable.Map[K, V]) int {
	if m == nil {
		return 0
	}
	return m.Len()
}

func compareIndexes(a, b MemoryIndex) int {
	return cmp.Compare(a.key, b.key)
}

// sameMap reports whether two persistent maps are the same version. Equal
// handles mean nothing was written in between.
func sameMap[K, V any](a, b *immutable.Map[K, V]) bool {
	return a == b
}
