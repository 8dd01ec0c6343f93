package memorymodel

import (
	"cmp"
	"iter"

	"github.com/benbjohnson/immutable"
)

// ArrayDescriptor maps the known element names of one array to their
// indices. Every other element is represented by Unknown.
//
// An array is owned by at most one index (its Parent); copying an array
// value to another index copies the descriptor. A freshly created array has
// no parent until it is first assigned.
type ArrayDescriptor struct {
	array   Value
	parent  MemoryIndex
	unknown MemoryIndex
	indexes *immutable.Map[string, MemoryIndex]
}

func newArrayDescriptor(array Value) ArrayDescriptor {
	return ArrayDescriptor{array: array, indexes: newNameMap()}
}

func (d ArrayDescriptor) Array() Value         { return d.array }
func (d ArrayDescriptor) Parent() MemoryIndex  { return d.parent }
func (d ArrayDescriptor) Unknown() MemoryIndex { return d.unknown }
func (d ArrayDescriptor) IsOwned() bool        { return !d.parent.IsZero() }
func (d ArrayDescriptor) Len() int             { return mapLen(d.indexes) }

func (d ArrayDescriptor) withParent(p MemoryIndex) ArrayDescriptor {
	d.parent = p
	d.unknown = p.CreateUnknownIndex()
	return d
}

// Get returns the index of element name.
func (d ArrayDescriptor) Get(name string) (MemoryIndex, bool) {
	return d.indexes.Get(name)
}

// Indexes yields the known elements in name order.
func (d ArrayDescriptor) Indexes() iter.Seq2[string, MemoryIndex] {
	return sortedNames(d.indexes)
}

func (d ArrayDescriptor) with(name string, idx MemoryIndex) ArrayDescriptor {
	d.indexes = d.indexes.Set(name, idx)
	return d
}

func (d ArrayDescriptor) without(name string) ArrayDescriptor {
	d.indexes = d.indexes.Delete(name)
	return d
}

func (d ArrayDescriptor) equal(o ArrayDescriptor) bool {
	return d.array == o.array && d.parent.Equals(o.parent) && d.unknown.Equals(o.unknown) &&
		nameMapsEqual(d.indexes, o.indexes)
}

// ObjectDescriptor maps the known field names of one object to their
// indices. Objects are referenced, never copied: every entry holding the
// object value shares the same fields.
type ObjectDescriptor struct {
	object  Value
	unknown MemoryIndex
	fields  *immutable.Map[string, MemoryIndex]
}

func newObjectDescriptor(obj Value) ObjectDescriptor {
	return ObjectDescriptor{object: obj, unknown: NewObjectUnknownIndex(obj), fields: newNameMap()}
}

func (d ObjectDescriptor) Object() Value        { return d.object }
func (d ObjectDescriptor) TypeName() string     { return d.object.TypeName() }
func (d ObjectDescriptor) Unknown() MemoryIndex { return d.unknown }
func (d ObjectDescriptor) Len() int             { return mapLen(d.fields) }

func (d ObjectDescriptor) Get(name string) (MemoryIndex, bool) {
	return d.fields.Get(name)
}

// Fields yields the known fields in name order.
func (d ObjectDescriptor) Fields() iter.Seq2[string, MemoryIndex] {
	return sortedNames(d.fields)
}

func (d ObjectDescriptor) with(name string, idx MemoryIndex) ObjectDescriptor {
	d.fields = d.fields.Set(name, idx)
	return d
}

func (d ObjectDescriptor) without(name string) ObjectDescriptor {
	d.fields = d.fields.Delete(name)
	return d
}

func (d ObjectDescriptor) equal(o ObjectDescriptor) bool {
	return d.object == o.object && d.unknown.Equals(o.unknown) && nameMapsEqual(d.fields, o.fields)
}

// Container is a variable or control-variable table of one call frame.
type Container struct {
	names   *immutable.Map[string, MemoryIndex]
	unknown MemoryIndex
}

func newContainer(unknown MemoryIndex) Container {
	return Container{names: newNameMap(), unknown: unknown}
}

func (c Container) Unknown() MemoryIndex { return c.unknown }
func (c Container) Len() int             { return mapLen(c.names) }

func (c Container) Get(name string) (MemoryIndex, bool) {
	return c.names.Get(name)
}

// Names yields the declared names in order.
func (c Container) Names() iter.Seq2[string, MemoryIndex] {
	return sortedNames(c.names)
}

func (c Container) with(name string, idx MemoryIndex) Container {
	c.names = c.names.Set(name, idx)
	return c
}

func (c Container) without(name string) Container {
	c.names = c.names.Delete(name)
	return c
}

func (c Container) equal(o Container) bool {
	return c.unknown.Equals(o.unknown) && nameMapsEqual(c.names, o.names)
}

func sortedNames(m *immutable.Map[string, MemoryIndex]) iter.Seq2[string, MemoryIndex] {
	return func(yield func(string, MemoryIndex) bool) {
		for _, name := range sortedKeys(m, cmp.Compare[string]) {
			idx, _ := m.Get(name)
			if !yield(name, idx) {
				return
			}
		}
	}
}

func nameMapsEqual(a, b *immutable.Map[string, MemoryIndex]) bool {
	return mapsEqual(a, b, MemoryIndex.Equals)
}

// mapsEqual compares two persistent maps entry by entry.
func mapsEqual[K, V any](a, b *immutable.Map[K, V], eq func(V, V) bool) bool {
	if sameMap(a, b) {
		return true
	}
	if mapLen(a) != mapLen(b) {
		return false
	}
	for k, va := range each(a) {
		vb, ok := b.Get(k)
		if !ok || !eq(va, vb) {
			return false
		}
	}
	return true
}
