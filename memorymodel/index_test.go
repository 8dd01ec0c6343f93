package memorymodel

import (
	"testing"
)

// TestIndexStructuralEquality tests that independently built indices naming
// the same location are equal and hash alike
func TestIndexStructuralEquality(t *testing.T) {
	a := NewVariableIndex("a", 1).CreateIndex("x").CreateUnknownIndex()
	b := NewVariableIndex("a", 1).CreateIndex("x").CreateUnknownIndex()
	if !a.Equals(b) {
		t.Errorf("Expected %s to equal %s", a, b)
	}
	if a.Hash() != b.Hash() {
		t.Errorf("Expected equal hashes, got %d and %d", a.Hash(), b.Hash())
	}

	others := []MemoryIndex{
		NewVariableIndex("a", 0).CreateIndex("x").CreateUnknownIndex(),
		NewControlIndex("a", 1).CreateIndex("x").CreateUnknownIndex(),
		NewVariableIndex("a", 1).CreateIndex("y").CreateUnknownIndex(),
		NewVariableIndex("a", 1).CreateIndex("x"),
		NewVariableIndex("a", 1).CreateIndex("x").CreateIndex("?"),
	}
	for _, o := range others {
		if a.Equals(o) {
			t.Errorf("Expected %s to differ from %s", a, o)
		}
	}
}

// TestIndexToAny tests wildcarding of the last segment
func TestIndexToAny(t *testing.T) {
	tests := []struct {
		name string
		in   MemoryIndex
		want MemoryIndex
	}{
		{
			name: "element",
			in:   NewVariableIndex("a", 0).CreateIndex("x"),
			want: NewVariableIndex("a", 0).CreateUnknownIndex(),
		},
		{
			name: "root variable",
			in:   NewVariableIndex("a", 2),
			want: NewAnyVariableIndex(2),
		},
		{
			name: "root control",
			in:   NewControlIndex("c", 0),
			want: NewAnyControlIndex(0),
		},
		{
			name: "already any",
			in:   NewVariableIndex("a", 0).CreateUnknownIndex(),
			want: NewVariableIndex("a", 0).CreateUnknownIndex(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.ToAny()
			if !got.Equals(tt.want) {
				t.Errorf("ToAny(%s) = %s, want %s", tt.in, got, tt.want)
			}
			if !got.IsAny() {
				t.Errorf("Expected %s to be unknown", got)
			}
			// ToAny is idempotent
			if !got.ToAny().Equals(got) {
				t.Errorf("ToAny not idempotent on %s", got)
			}
		})
	}

	tmp := newTemporaryIndex(3, 0)
	if !tmp.ToAny().Equals(tmp) {
		t.Errorf("Expected a temporary to stay as is, got %s", tmp.ToAny())
	}
}

// TestIndexRoundTrip tests that a created index comes back through Parent
func TestIndexRoundTrip(t *testing.T) {
	base := NewVariableIndex("a", 1)
	child := base.CreateIndex("k")
	parent, ok := child.Parent()
	if !ok || !parent.Equals(base) {
		t.Errorf("Parent(%s) = %s, %v", child, parent, ok)
	}
	if !base.IsPrefixOf(child) || child.IsPrefixOf(base) {
		t.Error("Expected prefix relation to hold in one direction only")
	}
	if _, ok := base.Parent(); ok {
		t.Error("Expected a root to have no parent")
	}

	moved := child.CreateWithCallLevel(3)
	if moved.CallLevel() != 3 || moved.Equals(child) {
		t.Errorf("CreateWithCallLevel(3) = %s", moved)
	}
	if !moved.CreateWithCallLevel(1).Equals(child) {
		t.Error("Expected moving back to level 1 to restore the index")
	}

	obj := objectValue(7, "Foo")
	field := NewObjectIndex(obj, "f")
	if _, ok := field.Parent(); ok {
		t.Error("Expected an object field to have no parent index")
	}
	if got, ok := field.Object(); !ok || got != obj {
		t.Errorf("Object() = %s, %v", got, ok)
	}
}

// TestIndexString tests the source-like rendering
func TestIndexString(t *testing.T) {
	tests := []struct {
		in   MemoryIndex
		want string
	}{
		{NewVariableIndex("a", 0).CreateIndex("x").CreateUnknownIndex(), `$a["x"][?]`},
		{NewVariableIndex("a", 2), "$a@2"},
		{NewAnyControlIndex(0), "@?"},
		{newTemporaryIndex(4, 1), "#tmp4@1"},
		{NewObjectIndex(objectValue(2, "Foo"), "f").CreateIndex("0"), `Foo#2->f["0"]`},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}
