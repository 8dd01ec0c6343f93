package memorymodel

import (
	"fmt"
)

// Mode selects which data a snapshot reads and writes.
type Mode uint8

const (
	// ModeMemory works on the values of the analysed program.
	ModeMemory Mode = iota
	// ModeInfo works on the auxiliary info values attached to the same
	// locations (taint flags, provenance, ...). Info writes never change
	// the structure.
	ModeInfo
)

func (m Mode) String() string {
	if m == ModeInfo {
		return "info"
	}
	return "memory"
}

// Snapshot is the heap abstraction at one program point. It pairs a
// Structure with the memory Data and info Data over it.
//
// A snapshot is mutated only inside a transaction: StartTransaction keeps
// the current state as the old state, the operations build new persistent
// versions, and CommitTransaction reports whether the result differs from
// the old state.
type Snapshot struct {
	session *Session
	id      uint64
	level   int
	mode    Mode

	structure Structure
	data      Data
	infos     Data

	open         bool
	oldStructure Structure
	oldData      Data
	oldInfos     Data

	log Logger
}

func (s *Snapshot) ID() uint64              { return s.id }
func (s *Snapshot) CallLevel() int          { return s.level }
func (s *Snapshot) Mode() Mode              { return s.mode }
func (s *Snapshot) Session() *Session       { return s.session }
func (s *Snapshot) Structure() Structure    { return s.structure }
func (s *Snapshot) Data() Data              { return s.data }
func (s *Snapshot) Infos() Data             { return s.infos }
func (s *Snapshot) InTransaction() bool     { return s.open }
func (s *Snapshot) OldStructure() Structure { return s.oldStructure }

func (s *Snapshot) String() string {
	return fmt.Sprintf("snapshot#%d@%d", s.id, s.level)
}

// SetMode switches between memory and info data.
func (s *Snapshot) SetMode(m Mode) {
	s.mode = m
}

// current returns the data of the active mode.
func (s *Snapshot) current() Data {
	if s.mode == ModeInfo {
		return s.infos
	}
	return s.data
}

func (s *Snapshot) requireTransaction(op string) {
	if !s.open {
		invariant(op, ErrNoTransaction, "%s has no open transaction", s)
	}
}

// checkLevel enforces that the snapshot and its structure agree on the
// call level.
func (s *Snapshot) checkLevel(op string) {
	if s.level != s.structure.level {
		invariant(op, ErrCallLevelMismatch, "%s is at level %d but its structure is at level %d", s, s.level, s.structure.level)
	}
}

// StartTransaction remembers the current state as old and opens the
// snapshot for mutation. Only handles are copied.
func (s *Snapshot) StartTransaction() (err error) {
	defer recoverInvariant(&err)
	if s.open {
		invariant("StartTransaction", ErrTransactionOpen, "%s already has an open transaction", s)
	}
	s.oldStructure, s.oldData, s.oldInfos = s.structure, s.data, s.infos
	s.open = true
	s.log.Debugf("start transaction")
	return nil
}

// ----------------------------------------------------------------------------
// Path operations
// ----------------------------------------------------------------------------

// Collect resolves path without changing the snapshot. CollectWrite also
// plans the implicit containers and pending locations a write would
// create.
func (s *Snapshot) Collect(path MemoryPath, mode CollectMode) (col *Collection, err error) {
	defer recoverInvariant(&err)
	return newCollector(s, mode).collect(path), nil
}

// ReadMemory returns the join of the entries of every location path may
// name.
func (s *Snapshot) ReadMemory(path MemoryPath) (e Entry, err error) {
	defer recoverInvariant(&err)
	return s.readCollection(newCollector(s, CollectRead).collect(path)), nil
}

// IsDefined reports whether path may hold a value other than undefined.
func (s *Snapshot) IsDefined(path MemoryPath) (bool, error) {
	e, err := s.ReadMemory(path)
	if err != nil {
		return false, err
	}
	return e.HasDefined(), nil
}

// WriteMemory assigns value to every location path may name. Arrays are
// assigned by copy.
func (s *Snapshot) WriteMemory(path MemoryPath, value Entry) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("WriteMemory")
	s.writePath(path, value, true, false)
	return nil
}

// WriteMemoryWithoutCopy assigns value without copying arrays. It is meant
// for values that are not stored anywhere else yet, such as a freshly
// created array; an array owned by another location is an error.
func (s *Snapshot) WriteMemoryWithoutCopy(path MemoryPath, value Entry) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("WriteMemoryWithoutCopy")
	s.writePath(path, value, false, false)
	return nil
}

// SetAlias binds target to source by reference ($target = &$source).
func (s *Snapshot) SetAlias(target, source MemoryPath) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("SetAlias")
	s.setAlias(target, source, false)
	return nil
}

// DeclareGlobal binds the local variable name to the global one. It has no
// effect in the global frame.
func (s *Snapshot) DeclareGlobal(name string) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("DeclareGlobal")
	if s.level == 0 {
		return nil
	}
	s.setAlias(VariablePath(s.level, name), GlobalVariablePath(name), false)
	return nil
}

// ----------------------------------------------------------------------------
// Index operations
// ----------------------------------------------------------------------------

// ReadIndex returns the entry stored at idx in the active mode.
func (s *Snapshot) ReadIndex(idx MemoryIndex) Entry {
	return s.current().Get(idx)
}

// WriteIndex assigns value strongly to idx and its must aliases and weakly
// to its may aliases. Unknown indices are always written weakly.
func (s *Snapshot) WriteIndex(idx MemoryIndex, value Entry) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("WriteIndex")
	if !s.structure.Exists(idx) {
		invariant("WriteIndex", ErrUnknownIndex, "%s is not defined", idx)
	}
	s.writeIndexWithAliases(idx, value)
	return nil
}

func (s *Snapshot) writeIndexWithAliases(idx MemoryIndex, value Entry) {
	from := s.view()
	s.assignFrom(from, idx, value, !idx.IsAny(), true)
	a, ok := from.st.Aliases(idx)
	if !ok {
		return
	}
	write := func(m MemoryIndex, strong bool) {
		// partners below idx were replaced along with it
		if idx.IsAncestorOf(m) || !s.structure.Exists(m) {
			return
		}
		s.assignFrom(from, m, value, strong, true)
	}
	for _, m := range a.Must.Slice() {
		write(m, !m.IsAny())
	}
	for _, m := range a.May.Slice() {
		write(m, false)
	}
}

// ReleaseMemory drops idx: its data, its aliases on both sides, its owned
// array and its structure entry. Unknown indices are reset to undefined
// instead. Releasing an index that does not exist has no effect.
func (s *Snapshot) ReleaseMemory(idx MemoryIndex) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("ReleaseMemory")
	if idx.IsAny() {
		s.clearIndex(idx)
		return nil
	}
	s.releaseIndex(idx)
	return nil
}

// ----------------------------------------------------------------------------
// Arrays, objects, temporaries
// ----------------------------------------------------------------------------

// CreateArray returns a new empty array. Assigning it to a location turns
// it into that location's own array.
func (s *Snapshot) CreateArray() (v Value, err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("CreateArray")
	arr := s.session.newArray()
	s.structure = s.structure.setArray(newArrayDescriptor(arr))
	return arr, nil
}

// CreateObject returns a new object of class typeName.
func (s *Snapshot) CreateObject(typeName string) (v Value, err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("CreateObject")
	obj := s.session.newObject(typeName)
	s.defineObject(obj)
	return obj, nil
}

// CreateObjectAt returns the object allocated at site, so an allocation
// inside a loop yields the same abstract object on every iteration.
func (s *Snapshot) CreateObjectAt(site, typeName string) (v Value, err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("CreateObjectAt")
	obj := s.session.siteObject(site, typeName)
	s.defineObject(obj)
	return obj, nil
}

func (s *Snapshot) defineObject(obj Value) {
	if _, ok := s.structure.Object(obj); ok {
		return
	}
	d := newObjectDescriptor(obj)
	s.structure = s.structure.setObject(d).defineIndex(d.unknown)
}

// ReadField returns the entry of field name of obj. An undeclared field
// reads as the object's unknown field.
func (s *Snapshot) ReadField(obj Value, name string) (e Entry, err error) {
	defer recoverInvariant(&err)
	d := s.structure.mustObject("ReadField", obj)
	if idx, ok := d.Get(name); ok {
		return s.current().Get(idx), nil
	}
	return s.current().Get(d.unknown), nil
}

// WriteField assigns value to field name of obj, creating the field.
func (s *Snapshot) WriteField(obj Value, name string, value Entry) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("WriteField")
	d := s.structure.mustObject("WriteField", obj)
	idx := NewObjectIndex(obj, name)
	s.createIndex(idx, d.unknown)
	s.writeIndexWithAliases(idx, value)
	return nil
}

// CreateTemporary allocates a temporary location in the current frame.
func (s *Snapshot) CreateTemporary() (idx MemoryIndex, err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("CreateTemporary")
	idx = s.session.newTemporary(s.level)
	s.structure = s.structure.defineIndex(idx)
	return idx, nil
}

// ReleaseTemporary drops a temporary created by CreateTemporary.
func (s *Snapshot) ReleaseTemporary(idx MemoryIndex) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("ReleaseTemporary")
	if idx.Kind() != TemporaryIndex {
		invariant("ReleaseTemporary", ErrMalformedPath, "%s is not a temporary", idx)
	}
	s.releaseIndex(idx)
	return nil
}

// ----------------------------------------------------------------------------
// Declarations
// ----------------------------------------------------------------------------

func (s *Snapshot) DeclareFunction(decl Declaration) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("DeclareFunction")
	s.structure = s.structure.withFunction(decl)
	return nil
}

// ResolveFunction returns every declaration of name visible here.
func (s *Snapshot) ResolveFunction(name string) []Declaration {
	return s.structure.Functions(name)
}

func (s *Snapshot) DeclareType(decl Declaration) (err error) {
	defer recoverInvariant(&err)
	s.requireTransaction("DeclareType")
	s.structure = s.structure.withType(decl)
	return nil
}

func (s *Snapshot) ResolveType(name string) []Declaration {
	return s.structure.Types(name)
}
