package memorymodel

import (
	"cmp"
	"iter"
	"slices"
	"strings"

	"github.com/benbjohnson/immutable"
)

// IndexDefinition describes one existing index.
type IndexDefinition struct {
	Index MemoryIndex
	// Array is the array owned by the index; the zero Value when none.
	Array Value
}

func (d IndexDefinition) HasArray() bool { return d.Array.Kind == KindArray }

func (d IndexDefinition) equal(o IndexDefinition) bool {
	return d.Index.Equals(o.Index) && d.Array == o.Array
}

// Declaration is one function or type declaration visible at a program
// point. Source identifies the declaring node for the flow engine; it is
// opaque to the memory model.
type Declaration struct {
	Name   string
	Source string
}

// declarationTable maps lower-cased names to their declarations.
type declarationTable = *immutable.Map[string, []Declaration]

// Structure is the shape half of a snapshot: which indices exist, the
// array and object descriptors, the alias table, declarations and the call
// stack. It is an immutable value; every change returns a new Structure
// sharing all untouched maps with the old one.
type Structure struct {
	level     int
	indexes   *immutable.Map[MemoryIndex, IndexDefinition]
	variables *immutable.Map[int, Container]
	controls  *immutable.Map[int, Container]
	arrays    *immutable.Map[uint64, ArrayDescriptor]
	objects   *immutable.Map[uint64, ObjectDescriptor]
	aliases   *immutable.Map[MemoryIndex, MemoryAlias]
	functions declarationTable
	types     declarationTable
	callStack *immutable.Map[int, string]
}

func emptyStructure() Structure {
	return Structure{
		indexes:   newIndexMap[IndexDefinition](),
		variables: immutable.NewMap[int, Container](intHasher{}),
		controls:  immutable.NewMap[int, Container](intHasher{}),
		arrays:    immutable.NewMap[uint64, ArrayDescriptor](uint64Hasher{}),
		objects:   immutable.NewMap[uint64, ObjectDescriptor](uint64Hasher{}),
		aliases:   newIndexMap[MemoryAlias](),
		functions: immutable.NewMap[string, []Declaration](stringHasher{}),
		types:     immutable.NewMap[string, []Declaration](stringHasher{}),
		callStack: immutable.NewMap[int, string](intHasher{}),
	}
}

// newStructure returns the structure of an empty program: the global frame
// with its unknown variable and control indices.
func newStructure() Structure {
	return emptyStructure().withFrame(0)
}

func (s Structure) CallLevel() int { return s.level }

func (s Structure) withLevel(level int) Structure {
	s.level = level
	return s
}

// Exists reports whether idx is defined.
func (s Structure) Exists(idx MemoryIndex) bool {
	_, ok := s.indexes.Get(idx)
	return ok
}

func (s Structure) Definition(idx MemoryIndex) (IndexDefinition, bool) {
	return s.indexes.Get(idx)
}

// Indexes yields every defined index in key order.
func (s Structure) Indexes() iter.Seq2[MemoryIndex, IndexDefinition] {
	return func(yield func(MemoryIndex, IndexDefinition) bool) {
		for _, idx := range sortedKeys(s.indexes, compareIndexes) {
			def, _ := s.indexes.Get(idx)
			if !yield(idx, def) {
				return
			}
		}
	}
}

func (s Structure) IndexCount() int { return mapLen(s.indexes) }

// Variables returns the variable table of the frame at level.
func (s Structure) Variables(level int) (Container, bool) {
	return s.variables.Get(level)
}

// Controls returns the control-variable table of the frame at level.
func (s Structure) Controls(level int) (Container, bool) {
	return s.controls.Get(level)
}

// Frames yields the levels that have a variable table, lowest first.
func (s Structure) Frames() iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, level := range sortedKeys(s.variables, cmp.Compare[int]) {
			if !yield(level) {
				return
			}
		}
	}
}

func (s Structure) Array(arr Value) (ArrayDescriptor, bool) {
	if arr.Kind != KindArray {
		return ArrayDescriptor{}, false
	}
	return s.arrays.Get(arr.id)
}

// Arrays yields every array descriptor ordered by id.
func (s Structure) Arrays() iter.Seq2[Value, ArrayDescriptor] {
	return func(yield func(Value, ArrayDescriptor) bool) {
		for _, id := range sortedKeys(s.arrays, cmp.Compare[uint64]) {
			d, _ := s.arrays.Get(id)
			if !yield(d.array, d) {
				return
			}
		}
	}
}

func (s Structure) Object(obj Value) (ObjectDescriptor, bool) {
	if obj.Kind != KindObject {
		return ObjectDescriptor{}, false
	}
	return s.objects.Get(obj.id)
}

// Objects yields every object descriptor ordered by id.
func (s Structure) Objects() iter.Seq2[Value, ObjectDescriptor] {
	return func(yield func(Value, ObjectDescriptor) bool) {
		for _, id := range sortedKeys(s.objects, cmp.Compare[uint64]) {
			d, _ := s.objects.Get(id)
			if !yield(d.object, d) {
				return
			}
		}
	}
}

// Aliases returns the alias partners of idx.
func (s Structure) Aliases(idx MemoryIndex) (MemoryAlias, bool) {
	return s.aliases.Get(idx)
}

// AliasEntries yields every index with aliases in key order.
func (s Structure) AliasEntries() iter.Seq2[MemoryIndex, MemoryAlias] {
	return func(yield func(MemoryIndex, MemoryAlias) bool) {
		for _, idx := range sortedKeys(s.aliases, compareIndexes) {
			a, _ := s.aliases.Get(idx)
			if !yield(idx, a) {
				return
			}
		}
	}
}

// Functions returns the declarations of function name. Names are case
// insensitive.
func (s Structure) Functions(name string) []Declaration {
	decls, _ := s.functions.Get(strings.ToLower(name))
	return decls
}

func (s Structure) Types(name string) []Declaration {
	decls, _ := s.types.Get(strings.ToLower(name))
	return decls
}

// Declarations yields every function (types false) or type (types true)
// declaration in name order.
func (s Structure) Declarations(types bool) iter.Seq[Declaration] {
	table := s.functions
	if types {
		table = s.types
	}
	return func(yield func(Declaration) bool) {
		for _, name := range sortedKeys(table, cmp.Compare[string]) {
			decls, _ := table.Get(name)
			for _, d := range decls {
				if !yield(d) {
					return
				}
			}
		}
	}
}

// Callee returns the name of the function executing at level.
func (s Structure) Callee(level int) (string, bool) {
	return s.callStack.Get(level)
}

// CallStack yields level -> callee name, lowest level first.
func (s Structure) CallStack() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for _, level := range sortedKeys(s.callStack, cmp.Compare[int]) {
			name, _ := s.callStack.Get(level)
			if !yield(level, name) {
				return
			}
		}
	}
}

// findCallee returns the highest level executing name.
func (s Structure) findCallee(name string) (int, bool) {
	found, level := false, 0
	for l, callee := range each(s.callStack) {
		if strings.EqualFold(callee, name) && (!found || l > level) {
			found, level = true, l
		}
	}
	return level, found
}

// Equal reports whether two structures describe the same shape.
func (s Structure) Equal(o Structure) bool {
	return s.level == o.level &&
		mapsEqual(s.indexes, o.indexes, IndexDefinition.equal) &&
		mapsEqual(s.variables, o.variables, Container.equal) &&
		mapsEqual(s.controls, o.controls, Container.equal) &&
		mapsEqual(s.arrays, o.arrays, ArrayDescriptor.equal) &&
		mapsEqual(s.objects, o.objects, ObjectDescriptor.equal) &&
		mapsEqual(s.aliases, o.aliases, MemoryAlias.equal) &&
		mapsEqual(s.functions, o.functions, declarationsEqual) &&
		mapsEqual(s.types, o.types, declarationsEqual) &&
		mapsEqual(s.callStack, o.callStack, func(a, b string) bool { return a == b })
}

func declarationsEqual(a, b []Declaration) bool {
	return slices.Equal(a, b)
}

// ----------------------------------------------------------------------------
// Mutators. Each returns a new Structure.
// ----------------------------------------------------------------------------

// withFrame creates the variable and control tables of level when missing.
func (s Structure) withFrame(level int) Structure {
	if _, ok := s.variables.Get(level); !ok {
		unknown := NewAnyVariableIndex(level)
		s.variables = s.variables.Set(level, newContainer(unknown))
		s = s.defineIndex(unknown)
	}
	if _, ok := s.controls.Get(level); !ok {
		unknown := NewAnyControlIndex(level)
		s.controls = s.controls.Set(level, newContainer(unknown))
		s = s.defineIndex(unknown)
	}
	return s
}

func (s Structure) withoutFrame(level int) Structure {
	s.variables = s.variables.Delete(level)
	s.controls = s.controls.Delete(level)
	s.callStack = s.callStack.Delete(level)
	return s
}

func (s Structure) withCallee(level int, name string) Structure {
	s.callStack = s.callStack.Set(level, name)
	return s
}

func (s Structure) defineIndex(idx MemoryIndex) Structure {
	if s.Exists(idx) {
		return s
	}
	s.indexes = s.indexes.Set(idx, IndexDefinition{Index: idx})
	return s
}

func (s Structure) undefineIndex(idx MemoryIndex) Structure {
	s.indexes = s.indexes.Delete(idx)
	return s
}

func (s Structure) withOwnedArray(idx MemoryIndex, arr Value) Structure {
	def, ok := s.indexes.Get(idx)
	if !ok {
		invariant("define", ErrUnknownIndex, "index %s owns %s but is not defined", idx, arr)
	}
	def.Array = arr
	s.indexes = s.indexes.Set(idx, def)
	return s
}

// container returns the table a variable or control root lives in.
func (s Structure) container(kind IndexKind, level int) (Container, bool) {
	if kind == ControlIndex {
		return s.controls.Get(level)
	}
	return s.variables.Get(level)
}

func (s Structure) setContainer(kind IndexKind, level int, c Container) Structure {
	if kind == ControlIndex {
		s.controls = s.controls.Set(level, c)
	} else {
		s.variables = s.variables.Set(level, c)
	}
	return s
}

func (s Structure) setArray(d ArrayDescriptor) Structure {
	s.arrays = s.arrays.Set(d.array.id, d)
	return s
}

func (s Structure) deleteArray(arr Value) Structure {
	s.arrays = s.arrays.Delete(arr.id)
	return s
}

func (s Structure) setObject(d ObjectDescriptor) Structure {
	s.objects = s.objects.Set(d.object.id, d)
	return s
}

// mustArray returns the descriptor of arr or raises an invariant error.
func (s Structure) mustArray(op string, arr Value) ArrayDescriptor {
	d, ok := s.Array(arr)
	if !ok {
		invariant(op, ErrUnknownDescriptor, "no descriptor for %s", arr)
	}
	return d
}

func (s Structure) mustObject(op string, obj Value) ObjectDescriptor {
	d, ok := s.Object(obj)
	if !ok {
		invariant(op, ErrUnknownDescriptor, "no descriptor for %s", obj)
	}
	return d
}

func declare(table declarationTable, decl Declaration) declarationTable {
	key := strings.ToLower(decl.Name)
	decls, _ := table.Get(key)
	for _, d := range decls {
		if d == decl {
			return table
		}
	}
	return table.Set(key, append(append([]Declaration(nil), decls...), decl))
}

func (s Structure) withFunction(decl Declaration) Structure {
	s.functions = declare(s.functions, decl)
	return s
}

func (s Structure) withType(decl Declaration) Structure {
	s.types = declare(s.types, decl)
	return s
}
