package memorymodel

import (
	"slices"
)

// Entry is the set of values an index may hold (the memory entry). Entries
// are immutable; every operation returns a new entry. The zero Entry is the
// empty set, which only appears for unreachable states. A location that was
// never written reads as UndefinedEntry().
//
// Values are kept sorted and normalised: a concrete scalar is dropped when
// its "any" kind is present, and every scalar is dropped under AnyScalar.
type Entry struct {
	values []Value
}

// NewEntry builds a normalised entry from vals.
func NewEntry(vals ...Value) Entry {
	if len(vals) == 0 {
		return Entry{}
	}
	out := make([]Value, len(vals))
	copy(out, vals)
	return Entry{values: normalizeValues(out)}
}

// UndefinedEntry is the entry of a location that holds nothing yet.
func UndefinedEntry() Entry {
	return Entry{values: []Value{Undefined()}}
}

func normalizeValues(vals []Value) []Value {
	slices.SortFunc(vals, compareValues)
	vals = slices.CompactFunc(vals, func(a, b Value) bool { return a == b })

	var anyKinds [KindObject + 1]bool
	for _, v := range vals {
		if v.Kind.IsAnyScalar() {
			anyKinds[v.Kind] = true
		}
	}
	if anyKinds[KindAnyScalar] {
		return slices.DeleteFunc(vals, func(v Value) bool {
			return v.Kind.IsConcreteScalar() || (v.Kind.IsAnyScalar() && v.Kind != KindAnyScalar)
		})
	}
	return slices.DeleteFunc(vals, func(v Value) bool {
		return v.Kind.IsConcreteScalar() && anyKinds[v.Kind.anyKind()]
	})
}

// Values returns a copy of the entry's values in canonical order.
func (e Entry) Values() []Value {
	return slices.Clone(e.values)
}

// Count returns the number of possible values.
func (e Entry) Count() int {
	return len(e.values)
}

func (e Entry) IsEmpty() bool {
	return len(e.values) == 0
}

// Contains reports whether v is one of the possible values. Scalars
// covered by an "any" value count as contained.
func (e Entry) Contains(v Value) bool {
	for _, x := range e.values {
		if x == v {
			return true
		}
		if v.Kind.IsConcreteScalar() && (x.Kind == v.Kind.anyKind() || x.Kind == KindAnyScalar) {
			return true
		}
		if v.Kind.IsAnyScalar() && x.Kind == KindAnyScalar {
			return true
		}
	}
	return false
}

func (e Entry) HasUndefined() bool {
	return len(e.values) > 0 && e.values[0].Kind == KindUndefined
}

// IsUndefined reports whether the entry is exactly {undefined}.
func (e Entry) IsUndefined() bool {
	return len(e.values) == 1 && e.values[0].Kind == KindUndefined
}

// HasDefined reports whether any value other than undefined is possible.
func (e Entry) HasDefined() bool {
	for _, v := range e.values {
		if v.Kind != KindUndefined {
			return true
		}
	}
	return false
}

func (e Entry) Arrays() []Value {
	return e.ofKind(KindArray)
}

func (e Entry) Objects() []Value {
	return e.ofKind(KindObject)
}

func (e Entry) ofKind(k ValueKind) []Value {
	var out []Value
	for _, v := range e.values {
		if v.Kind == k {
			out = append(out, v)
		}
	}
	return out
}

// Union returns the join of e and others.
func (e Entry) Union(others ...Entry) Entry {
	n := len(e.values)
	for _, o := range others {
		n += len(o.values)
	}
	if n == len(e.values) {
		return e
	}
	all := make([]Value, 0, n)
	all = append(all, e.values...)
	for _, o := range others {
		all = append(all, o.values...)
	}
	return Entry{values: normalizeValues(all)}
}

// Filter keeps the values for which keep returns true.
func (e Entry) Filter(keep func(Value) bool) Entry {
	out := make([]Value, 0, len(e.values))
	for _, v := range e.values {
		if keep(v) {
			out = append(out, v)
		}
	}
	return Entry{values: out}
}

// Map replaces every value with fn(value).
func (e Entry) Map(fn func(Value) Value) Entry {
	if len(e.values) == 0 {
		return e
	}
	out := make([]Value, len(e.values))
	for i, v := range e.values {
		out[i] = fn(v)
	}
	return Entry{values: normalizeValues(out)}
}

func (e Entry) Equal(o Entry) bool {
	return slices.Equal(e.values, o.values)
}

// IsSubsetOf reports whether every value of e is covered by o.
func (e Entry) IsSubsetOf(o Entry) bool {
	for _, v := range e.values {
		if !o.Contains(v) {
			return false
		}
	}
	return true
}

func (e Entry) String() string {
	return e.summary(0)
}

// summary renders at most limit values (all when limit <= 0).
func (e Entry) summary(limit int) string {
	parts := make([]string, 0, len(e.values))
	for _, v := range e.values {
		parts = append(parts, v.String())
	}
	return "{" + truncateList(parts, limit) + "}"
}
