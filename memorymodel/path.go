package memorymodel

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// SegmentKind classifies MemoryPath segments.
type SegmentKind uint8

const (
	SegmentVariable SegmentKind = iota
	SegmentControl
	SegmentTemporary
	SegmentField
	SegmentIndex
)

func (k SegmentKind) isRoot() bool {
	return k == SegmentVariable || k == SegmentControl || k == SegmentTemporary
}

func (k SegmentKind) String() string {
	switch k {
	case SegmentVariable:
		return "variable"
	case SegmentControl:
		return "control"
	case SegmentTemporary:
		return "temporary"
	case SegmentField:
		return "field"
	case SegmentIndex:
		return "index"
	}
	return "unknown"
}

// PathSegment is one step of a MemoryPath. It names one location, a small
// set of candidate names (indirect access with a known set of names), or
// any name at all.
type PathSegment struct {
	Kind      SegmentKind
	Names     []string
	Any       bool
	Temporary MemoryIndex // SegmentTemporary only
}

func (s PathSegment) String() string {
	var names string
	switch {
	case s.Any:
		names = "?"
	case len(s.Names) == 1:
		names = s.Names[0]
	default:
		names = "{" + strings.Join(s.Names, "|") + "}"
	}
	switch s.Kind {
	case SegmentVariable:
		return "$" + names
	case SegmentControl:
		return "@" + names
	case SegmentTemporary:
		return s.Temporary.String()
	case SegmentField:
		return "->" + names
	default:
		if !s.Any && len(s.Names) == 1 {
			return "[" + strconv.Quote(s.Names[0]) + "]"
		}
		return "[" + names + "]"
	}
}

// MemoryPath is a symbolic access expression built by the flow engine and
// resolved against a snapshot by the collector. Paths are immutable; the
// builder methods return extended copies.
type MemoryPath struct {
	segments []PathSegment
	global   bool
	level    int
}

// NewMemoryPath validates and builds a path. The first segment must be the
// only root segment.
func NewMemoryPath(level int, global bool, segments ...PathSegment) (MemoryPath, error) {
	if len(segments) == 0 {
		return MemoryPath{}, fmt.Errorf("%w: path has no segments", ErrMalformedPath)
	}
	for i, seg := range segments {
		if seg.Kind.isRoot() != (i == 0) {
			if i == 0 {
				return MemoryPath{}, fmt.Errorf("%w: path must start with a root segment, got %s", ErrMalformedPath, seg.Kind)
			}
			return MemoryPath{}, fmt.Errorf("%w: duplicate root segment %s at position %d", ErrMalformedPath, seg.Kind, i)
		}
		if seg.Kind != SegmentTemporary && !seg.Any && len(seg.Names) == 0 {
			return MemoryPath{}, fmt.Errorf("%w: %s segment at position %d has no names", ErrMalformedPath, seg.Kind, i)
		}
		if seg.Kind == SegmentTemporary && seg.Temporary.Kind() != TemporaryIndex {
			return MemoryPath{}, fmt.Errorf("%w: temporary segment does not name a temporary index", ErrMalformedPath)
		}
	}
	if global {
		level = 0
	}
	segs := make([]PathSegment, len(segments))
	for i, seg := range segments {
		seg.Names = slices.Clone(seg.Names)
		segs[i] = seg
	}
	return MemoryPath{segments: segs, global: global, level: level}, nil
}

func rootPath(level int, global bool, seg PathSegment) MemoryPath {
	if global {
		level = 0
	}
	return MemoryPath{segments: []PathSegment{seg}, global: global, level: level}
}

// VariablePath names one or more local variables of the frame at level.
func VariablePath(level int, names ...string) MemoryPath {
	return rootPath(level, false, namedSegment(SegmentVariable, names))
}

// GlobalVariablePath names variables of the global frame regardless of the
// current call level.
func GlobalVariablePath(names ...string) MemoryPath {
	return rootPath(0, true, namedSegment(SegmentVariable, names))
}

// AnyVariablePath names every variable of the frame at level ($$x with an
// unknown x).
func AnyVariablePath(level int) MemoryPath {
	return rootPath(level, false, PathSegment{Kind: SegmentVariable, Any: true})
}

func ControlPath(level int, names ...string) MemoryPath {
	return rootPath(level, false, namedSegment(SegmentControl, names))
}

func GlobalControlPath(names ...string) MemoryPath {
	return rootPath(0, true, namedSegment(SegmentControl, names))
}

// TemporaryPath names a temporary allocated with Snapshot.CreateTemporary.
func TemporaryPath(tmp MemoryIndex) MemoryPath {
	return rootPath(tmp.CallLevel(), false, PathSegment{Kind: SegmentTemporary, Temporary: tmp})
}

func namedSegment(kind SegmentKind, names []string) PathSegment {
	if len(names) == 0 {
		return PathSegment{Kind: kind, Any: true}
	}
	return PathSegment{Kind: kind, Names: slices.Clone(names)}
}

func (p MemoryPath) extend(seg PathSegment) MemoryPath {
	segs := make([]PathSegment, len(p.segments), len(p.segments)+1)
	copy(segs, p.segments)
	return MemoryPath{segments: append(segs, seg), global: p.global, level: p.level}
}

// Field appends an object field access. No names means any field.
func (p MemoryPath) Field(names ...string) MemoryPath {
	return p.extend(namedSegment(SegmentField, names))
}

func (p MemoryPath) AnyField() MemoryPath {
	return p.extend(PathSegment{Kind: SegmentField, Any: true})
}

// Index appends an array index access. No names means any index.
func (p MemoryPath) Index(names ...string) MemoryPath {
	return p.extend(namedSegment(SegmentIndex, names))
}

func (p MemoryPath) AnyIndex() MemoryPath {
	return p.extend(PathSegment{Kind: SegmentIndex, Any: true})
}

// Segments returns a copy of the path segments.
func (p MemoryPath) Segments() []PathSegment {
	return slices.Clone(p.segments)
}

func (p MemoryPath) Len() int          { return len(p.segments) }
func (p MemoryPath) IsGlobal() bool    { return p.global }
func (p MemoryPath) CallLevel() int    { return p.level }
func (p MemoryPath) IsZero() bool      { return len(p.segments) == 0 }
func (p MemoryPath) Root() PathSegment { return p.segments[0] }

func (p MemoryPath) String() string {
	var b strings.Builder
	if p.global {
		b.WriteString("global:")
	}
	for _, seg := range p.segments {
		b.WriteString(seg.String())
	}
	if !p.global && p.level > 0 {
		b.WriteString("@")
		b.WriteString(strconv.Itoa(p.level))
	}
	return b.String()
}
