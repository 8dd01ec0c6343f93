package memorymodel

import (
	"math"
	"strconv"
)

// ValueKind classifies abstract values stored in memory entries.
type ValueKind uint8

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindAnyBool
	KindAnyInt
	KindAnyFloat
	KindAnyString
	KindAnyScalar
	KindArray
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindAnyBool:
		return "anybool"
	case KindAnyInt:
		return "anyint"
	case KindAnyFloat:
		return "anyfloat"
	case KindAnyString:
		return "anystring"
	case KindAnyScalar:
		return "anyscalar"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// IsConcreteScalar reports whether k is a single concrete bool/int/float/string.
func (k ValueKind) IsConcreteScalar() bool {
	return k == KindBool || k == KindInt || k == KindFloat || k == KindString
}

// IsAnyScalar reports whether k stands for a whole scalar domain.
func (k ValueKind) IsAnyScalar() bool {
	return k >= KindAnyBool && k <= KindAnyScalar
}

// anyKind returns the "any" kind that subsumes a concrete scalar kind.
func (k ValueKind) anyKind() ValueKind {
	switch k {
	case KindBool:
		return KindAnyBool
	case KindInt:
		return KindAnyInt
	case KindFloat:
		return KindAnyFloat
	case KindString:
		return KindAnyString
	}
	return k
}

// Value is one abstract runtime value. It is a comparable value type, so it
// can be used directly as a map key.
//
// Arrays and objects carry a session-unique id. Objects also carry their
// type name.
type Value struct {
	Kind ValueKind
	b    bool
	i    int64
	f    uint64 // float bits, keeps Value comparable with ==
	s    string // string payload or object type name
	id   uint64 // array/object identity
}

func Undefined() Value { return Value{Kind: KindUndefined} }
func Null() Value      { return Value{Kind: KindNull} }
func Bool(b bool) Value {
	return Value{Kind: KindBool, b: b}
}
func Int(i int64) Value {
	return Value{Kind: KindInt, i: i}
}
func Float(f float64) Value {
	return Value{Kind: KindFloat, f: math.Float64bits(f)}
}
func String(s string) Value {
	return Value{Kind: KindString, s: s}
}
func AnyBool() Value   { return Value{Kind: KindAnyBool} }
func AnyInt() Value    { return Value{Kind: KindAnyInt} }
func AnyFloat() Value  { return Value{Kind: KindAnyFloat} }
func AnyString() Value { return Value{Kind: KindAnyString} }
func AnyScalar() Value { return Value{Kind: KindAnyScalar} }

func arrayValue(id uint64) Value {
	return Value{Kind: KindArray, id: id}
}

func objectValue(id uint64, typeName string) Value {
	return Value{Kind: KindObject, id: id, s: typeName}
}

func (v Value) IsUndefined() bool { return v.Kind == KindUndefined }
func (v Value) IsArray() bool     { return v.Kind == KindArray }
func (v Value) IsObject() bool    { return v.Kind == KindObject }

// ID returns the identity of an array or object value, 0 otherwise.
func (v Value) ID() uint64 {
	if v.Kind == KindArray || v.Kind == KindObject {
		return v.id
	}
	return 0
}

// TypeName returns the class name of an object value.
func (v Value) TypeName() string {
	if v.Kind == KindObject {
		return v.s
	}
	return ""
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.Kind == KindBool
}

func (v Value) AsInt() (int64, bool) {
	return v.i, v.Kind == KindInt
}

func (v Value) AsFloat() (float64, bool) {
	return math.Float64frombits(v.f), v.Kind == KindFloat
}

func (v Value) AsString() (string, bool) {
	return v.s, v.Kind == KindString
}

// IndexName converts a concrete scalar into the key it selects when used as
// an array index or field name. Non-concrete values have no name.
func (v Value) IndexName() (string, bool) {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindString:
		return v.s, true
	case KindBool:
		if v.b {
			return "1", true
		}
		return "0", true
	case KindNull:
		return "", true
	case KindFloat:
		return strconv.FormatInt(int64(math.Float64frombits(v.f)), 10), true
	}
	return "", false
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(math.Float64frombits(v.f), 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindArray:
		return "array#" + strconv.FormatUint(v.id, 10)
	case KindObject:
		return v.s + "#" + strconv.FormatUint(v.id, 10)
	default:
		return v.Kind.String()
	}
}

// compareValues orders values by kind first, then payload. Entries keep
// their values sorted with it so equal sets have equal layouts.
func compareValues(a, b Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindInt:
		return cmpOrdered(a.i, b.i)
	case KindFloat:
		if c := cmpOrdered(math.Float64frombits(a.f), math.Float64frombits(b.f)); c != 0 {
			return c
		}
		return cmpOrdered(a.f, b.f)
	case KindString:
		return cmpOrdered(a.s, b.s)
	case KindArray, KindObject:
		return cmpOrdered(a.id, b.id)
	}
	return 0
}

func cmpOrdered[T int64 | uint64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
