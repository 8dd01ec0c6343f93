package memorymodel

import (
	"testing"
)

// TestEntryNormalization tests ordering, deduplication and "any" absorption
func TestEntryNormalization(t *testing.T) {
	tests := []struct {
		name string
		in   []Value
		want string
	}{
		{"empty", nil, "{}"},
		{"sorted by kind", []Value{String("s"), Int(2), Undefined(), Int(1)}, `{undefined,1,2,"s"}`},
		{"duplicates", []Value{Int(1), Int(1), Bool(true), Bool(true)}, "{true,1}"},
		{"any absorbs concrete", []Value{Int(1), AnyInt(), String("s")}, `{"s",anyint}`},
		{"anyscalar absorbs all scalars", []Value{Int(1), AnyString(), Float(1.5), AnyScalar(), Null()}, "{null,anyscalar}"},
		{"containers kept", []Value{arrayValue(2), AnyScalar(), objectValue(1, "Foo")}, "{anyscalar,array#2,Foo#1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewEntry(tt.in...).String(); got != tt.want {
				t.Errorf("NewEntry = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestEntrySetOperations tests union, subset and containment
func TestEntrySetOperations(t *testing.T) {
	a := NewEntry(Int(1), Undefined())
	b := NewEntry(Int(2))
	u := a.Union(b)
	if u.String() != "{undefined,1,2}" {
		t.Errorf("Union = %s", u)
	}
	if !a.IsSubsetOf(u) || !b.IsSubsetOf(u) {
		t.Error("Expected both operands to be subsets of the union")
	}
	if u.IsSubsetOf(a) {
		t.Error("Expected the union not to be a subset of an operand")
	}

	wide := NewEntry(AnyInt())
	if !NewEntry(Int(5)).IsSubsetOf(wide) {
		t.Error("Expected {5} to be covered by {anyint}")
	}
	if !wide.IsSubsetOf(NewEntry(AnyScalar())) {
		t.Error("Expected {anyint} to be covered by {anyscalar}")
	}
	if NewEntry(String("x")).IsSubsetOf(wide) {
		t.Error("Expected a string not to be covered by {anyint}")
	}

	if !UndefinedEntry().IsUndefined() || u.IsUndefined() || !u.HasUndefined() {
		t.Error("undefined predicates mismatch")
	}
	if UndefinedEntry().HasDefined() || !u.HasDefined() {
		t.Error("HasDefined mismatch")
	}
}

// TestEntryMapFilter tests that Map and Filter keep the entry normalised
func TestEntryMapFilter(t *testing.T) {
	e := NewEntry(Int(1), Int(2), String("s"), Undefined())
	ints := e.Map(func(v Value) Value {
		if v.Kind == KindInt {
			return AnyInt()
		}
		return v
	})
	if ints.String() != `{undefined,"s",anyint}` {
		t.Errorf("Map = %s", ints)
	}
	if got := e.Filter(func(v Value) bool { return v.Kind == KindInt }); got.Count() != 2 {
		t.Errorf("Filter = %s", got)
	}
}

// TestValueIndexName tests scalar to key conversion
func TestValueIndexName(t *testing.T) {
	tests := []struct {
		in   Value
		want string
		ok   bool
	}{
		{Int(3), "3", true},
		{String("k"), "k", true},
		{Bool(true), "1", true},
		{Bool(false), "0", true},
		{Null(), "", true},
		{Float(2.7), "2", true},
		{AnyInt(), "", false},
		{arrayValue(1), "", false},
	}
	for _, tt := range tests {
		got, ok := tt.in.IndexName()
		if got != tt.want || ok != tt.ok {
			t.Errorf("IndexName(%s) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
