package memorymodel

import (
	"iter"

	"github.com/benbjohnson/immutable"
)

// Data is the value half of a snapshot: the entry stored at every index.
// Like Structure it is an immutable value over a persistent map. An index
// without a stored entry reads as the fallback entry: {undefined} for
// memory data, the empty entry for info data.
type Data struct {
	entries  *immutable.Map[MemoryIndex, Entry]
	fallback Entry
}

func newData() Data {
	return Data{entries: newIndexMap[Entry](), fallback: UndefinedEntry()}
}

func newInfoData() Data {
	return Data{entries: newIndexMap[Entry]()}
}

// Get returns the stored entry of idx, or the fallback.
func (d Data) Get(idx MemoryIndex) Entry {
	if e, ok := d.entries.Get(idx); ok {
		return e
	}
	return d.fallback
}

// Lookup returns the stored entry of idx and whether one was stored.
func (d Data) Lookup(idx MemoryIndex) (Entry, bool) {
	return d.entries.Get(idx)
}

func (d Data) Len() int { return mapLen(d.entries) }

func (d Data) set(idx MemoryIndex, e Entry) Data {
	if old, ok := d.entries.Get(idx); ok && old.Equal(e) {
		return d
	}
	d.entries = d.entries.Set(idx, e)
	return d
}

func (d Data) remove(idx MemoryIndex) Data {
	if _, ok := d.entries.Get(idx); !ok {
		return d
	}
	d.entries = d.entries.Delete(idx)
	return d
}

// Entries yields the stored entries in index key order.
func (d Data) Entries() iter.Seq2[MemoryIndex, Entry] {
	return func(yield func(MemoryIndex, Entry) bool) {
		for _, idx := range sortedKeys(d.entries, compareIndexes) {
			e, _ := d.entries.Get(idx)
			if !yield(idx, e) {
				return
			}
		}
	}
}

// Equal compares two data maps. A missing entry equals a stored fallback
// entry.
func (d Data) Equal(o Data) bool {
	if sameMap(d.entries, o.entries) {
		return true
	}
	for idx, e := range each(d.entries) {
		if !o.Get(idx).Equal(e) {
			return false
		}
	}
	for idx, e := range each(o.entries) {
		if _, ok := d.entries.Get(idx); !ok && !d.fallback.Equal(e) {
			return false
		}
	}
	return true
}
