package memorymodel

import (
	"hash/fnv"
	"slices"
	"strconv"
	"strings"
)

// IndexKind is the variant of a MemoryIndex root.
type IndexKind uint8

const (
	VariableIndex IndexKind = iota
	ControlIndex
	TemporaryIndex
	ObjectIndex
)

func (k IndexKind) String() string {
	switch k {
	case VariableIndex:
		return "variable"
	case ControlIndex:
		return "control"
	case TemporaryIndex:
		return "temporary"
	case ObjectIndex:
		return "object"
	}
	return "unknown"
}

// IndexSegment is one step of an index path: a concrete name or "any".
type IndexSegment struct {
	Name string
	Any  bool
}

func NameSegment(name string) IndexSegment { return IndexSegment{Name: name} }
func AnySegment() IndexSegment             { return IndexSegment{Any: true} }

func (s IndexSegment) key() string {
	if s.Any {
		return "*"
	}
	return strconv.Quote(s.Name)
}

// MemoryIndex identifies one abstract storage cell. Indices are immutable
// values compared structurally: two independently built indices naming the
// same location are Equal and hash alike.
//
// For Object indices the first path segment is the field name; every other
// segment (and every segment of the other variants) is an array index.
type MemoryIndex struct {
	kind  IndexKind
	level int
	root  IndexSegment // Variable/Control name
	id    uint64       // Temporary counter or Object id
	tname string       // Object type name, display only
	path  []IndexSegment
	key   string
}

func newIndex(kind IndexKind, level int, root IndexSegment, id uint64, tname string, path []IndexSegment) MemoryIndex {
	idx := MemoryIndex{kind: kind, level: level, root: root, id: id, tname: tname, path: path}
	idx.key = idx.buildKey()
	return idx
}

func (i MemoryIndex) buildKey() string {
	var b strings.Builder
	b.Grow(16 + 8*len(i.path))
	switch i.kind {
	case VariableIndex:
		b.WriteByte('V')
	case ControlIndex:
		b.WriteByte('C')
	case TemporaryIndex:
		b.WriteByte('T')
	case ObjectIndex:
		b.WriteByte('O')
	}
	b.WriteString(strconv.Itoa(i.level))
	b.WriteByte('|')
	switch i.kind {
	case VariableIndex, ControlIndex:
		b.WriteString(i.root.key())
	default:
		b.WriteString(strconv.FormatUint(i.id, 10))
	}
	for _, seg := range i.path {
		b.WriteByte('/')
		b.WriteString(seg.key())
	}
	return b.String()
}

// NewVariableIndex returns the index of variable name at call level.
func NewVariableIndex(name string, level int) MemoryIndex {
	return newIndex(VariableIndex, level, NameSegment(name), 0, "", nil)
}

// NewAnyVariableIndex returns the unknown variable index of a frame.
func NewAnyVariableIndex(level int) MemoryIndex {
	return newIndex(VariableIndex, level, AnySegment(), 0, "", nil)
}

func NewControlIndex(name string, level int) MemoryIndex {
	return newIndex(ControlIndex, level, NameSegment(name), 0, "", nil)
}

func NewAnyControlIndex(level int) MemoryIndex {
	return newIndex(ControlIndex, level, AnySegment(), 0, "", nil)
}

func newTemporaryIndex(id uint64, level int) MemoryIndex {
	return newIndex(TemporaryIndex, level, IndexSegment{}, id, "", nil)
}

// NewObjectIndex returns the index of field name of object obj.
func NewObjectIndex(obj Value, name string) MemoryIndex {
	return newIndex(ObjectIndex, 0, IndexSegment{}, obj.ID(), obj.TypeName(), []IndexSegment{NameSegment(name)})
}

// NewObjectUnknownIndex returns the unknown field index of obj.
func NewObjectUnknownIndex(obj Value) MemoryIndex {
	return newIndex(ObjectIndex, 0, IndexSegment{}, obj.ID(), obj.TypeName(), []IndexSegment{AnySegment()})
}

func (i MemoryIndex) Kind() IndexKind    { return i.kind }
func (i MemoryIndex) CallLevel() int     { return i.level }
func (i MemoryIndex) Root() IndexSegment { return i.root }
func (i MemoryIndex) Len() int           { return len(i.path) }
func (i MemoryIndex) Key() string        { return i.key }

// ID returns the temporary counter or the object id of the root.
func (i MemoryIndex) ID() uint64 { return i.id }

// Object returns the object owning an Object index.
func (i MemoryIndex) Object() (Value, bool) {
	if i.kind != ObjectIndex {
		return Value{}, false
	}
	return objectValue(i.id, i.tname), true
}

// Path returns a copy of the index path.
func (i MemoryIndex) Path() []IndexSegment {
	return slices.Clone(i.path)
}

// Last returns the last path segment, or the root when the path is empty.
func (i MemoryIndex) Last() IndexSegment {
	if len(i.path) == 0 {
		return i.root
	}
	return i.path[len(i.path)-1]
}

// IsAny reports whether the last segment (or root of a bare index) is a
// wildcard, i.e. whether this is an unknown index.
func (i MemoryIndex) IsAny() bool {
	return i.Last().Any
}

func (i MemoryIndex) IsZero() bool {
	return i.key == ""
}

// Equals compares variant, level, root and segments.
func (i MemoryIndex) Equals(o MemoryIndex) bool {
	return i.key == o.key
}

// Hash returns a structural hash consistent with Equals.
func (i MemoryIndex) Hash() uint32 {
	h := fnv.New32a()
	h.Write([]byte(i.key))
	return h.Sum32()
}

// IsPrefixOf reports whether i's full path, root included, is a prefix of
// o's. Every index is a prefix of itself.
func (i MemoryIndex) IsPrefixOf(o MemoryIndex) bool {
	if i.kind != o.kind || i.level != o.level || i.root != o.root || i.id != o.id {
		return false
	}
	if len(i.path) > len(o.path) {
		return false
	}
	for n, seg := range i.path {
		if seg != o.path[n] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether i is a proper prefix of o.
func (i MemoryIndex) IsAncestorOf(o MemoryIndex) bool {
	return len(i.path) < len(o.path) && i.IsPrefixOf(o)
}

// Parent drops the last path segment. Bare roots and object fields (whose
// owner is an object, not an index) have no parent index.
func (i MemoryIndex) Parent() (MemoryIndex, bool) {
	if len(i.path) == 0 || (i.kind == ObjectIndex && len(i.path) == 1) {
		return MemoryIndex{}, false
	}
	return i.withPath(i.path[:len(i.path)-1]), true
}

func (i MemoryIndex) withPath(path []IndexSegment) MemoryIndex {
	return newIndex(i.kind, i.level, i.root, i.id, i.tname, slices.Clip(path))
}

// CreateIndex extends the path with a concrete name.
func (i MemoryIndex) CreateIndex(name string) MemoryIndex {
	return i.withPath(append(slices.Clone(i.path), NameSegment(name)))
}

// CreateUnknownIndex extends the path with a wildcard.
func (i MemoryIndex) CreateUnknownIndex() MemoryIndex {
	return i.withPath(append(slices.Clone(i.path), AnySegment()))
}

// CreateWithCallLevel returns the same location in another call frame.
func (i MemoryIndex) CreateWithCallLevel(level int) MemoryIndex {
	return newIndex(i.kind, level, i.root, i.id, i.tname, i.path)
}

// ToAny wildcards the last segment, or the root when the path is empty.
// Temporary and object roots cannot be wildcarded and are returned as is.
func (i MemoryIndex) ToAny() MemoryIndex {
	if len(i.path) == 0 {
		if i.kind == VariableIndex || i.kind == ControlIndex {
			return newIndex(i.kind, i.level, AnySegment(), i.id, i.tname, nil)
		}
		return i
	}
	path := slices.Clone(i.path)
	path[len(path)-1] = AnySegment()
	return i.withPath(path)
}

// String renders the index in source-like notation, e.g. $a@1["x"][?].
func (i MemoryIndex) String() string {
	var b strings.Builder
	path := i.path
	switch i.kind {
	case VariableIndex, ControlIndex:
		if i.kind == VariableIndex {
			b.WriteByte('$')
		} else {
			b.WriteByte('@')
		}
		if i.root.Any {
			b.WriteByte('?')
		} else {
			b.WriteString(i.root.Name)
		}
	case TemporaryIndex:
		b.WriteString("#tmp")
		b.WriteString(strconv.FormatUint(i.id, 10))
	case ObjectIndex:
		name := i.tname
		if name == "" {
			name = "object"
		}
		b.WriteString(name)
		b.WriteByte('#')
		b.WriteString(strconv.FormatUint(i.id, 10))
		if len(path) > 0 {
			b.WriteString("->")
			if path[0].Any {
				b.WriteByte('?')
			} else {
				b.WriteString(path[0].Name)
			}
			path = path[1:]
		}
	}
	if i.level > 0 && i.kind != ObjectIndex {
		b.WriteByte('@')
		b.WriteString(strconv.Itoa(i.level))
	}
	for _, seg := range path {
		b.WriteByte('[')
		if seg.Any {
			b.WriteByte('?')
		} else {
			b.WriteString(strconv.Quote(seg.Name))
		}
		b.WriteByte(']')
	}
	return b.String()
}
