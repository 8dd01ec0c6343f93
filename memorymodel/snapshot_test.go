package memorymodel

import (
	"errors"
	"testing"
)

func newTestSession() *Session {
	opts := DefaultOptions()
	opts.Logger = NoopLogger()
	return NewSession(opts)
}

// open starts a transaction on a fresh snapshot.
func open(t *testing.T, sess *Session) *Snapshot {
	t.Helper()
	sn := sess.NewSnapshot()
	if err := sn.StartTransaction(); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	return sn
}

// next opens a transaction on a new snapshot extended from prev.
func next(t *testing.T, prev *Snapshot) *Snapshot {
	t.Helper()
	sn := open(t, prev.Session())
	if err := sn.Extend(prev); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	return sn
}

func write(t *testing.T, sn *Snapshot, path string, vals ...Value) {
	t.Helper()
	if err := sn.WriteMemory(MustParsePath(path, sn.CallLevel()), NewEntry(vals...)); err != nil {
		t.Fatalf("WriteMemory(%s): %v", path, err)
	}
}

func read(t *testing.T, sn *Snapshot, path string) Entry {
	t.Helper()
	e, err := sn.ReadMemory(MustParsePath(path, sn.CallLevel()))
	if err != nil {
		t.Fatalf("ReadMemory(%s): %v", path, err)
	}
	return e
}

func expectEntry(t *testing.T, sn *Snapshot, path, want string) {
	t.Helper()
	if got := read(t, sn, path).String(); got != want {
		t.Errorf("%s = %s, want %s", path, got, want)
	}
}

func commit(t *testing.T, sn *Snapshot) bool {
	t.Helper()
	changed, err := sn.CommitTransaction(0)
	if err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}
	return changed
}

// TestWriteReadVariable tests a strong write and read of a local variable
func TestWriteReadVariable(t *testing.T) {
	sn := open(t, newTestSession())
	expectEntry(t, sn, "$a", "{undefined}")

	write(t, sn, "$a", Int(7))
	expectEntry(t, sn, "$a", "{7}")

	write(t, sn, "$a", String("x"), Null())
	expectEntry(t, sn, "$a", `{null,"x"}`)

	defined, err := sn.IsDefined(MustParsePath("$a", 0))
	if err != nil || !defined {
		t.Errorf("IsDefined($a) = %v, %v; want true", defined, err)
	}
	defined, _ = sn.IsDefined(MustParsePath("$missing", 0))
	if defined {
		t.Error("Expected $missing to be undefined")
	}
}

// TestTransactionIsolation tests that writes never leak into the predecessor
func TestTransactionIsolation(t *testing.T) {
	sess := newTestSession()
	first := open(t, sess)
	write(t, first, "$a", Int(1))
	if !commit(t, first) {
		t.Error("Expected first commit to report a change")
	}

	second := next(t, first)
	write(t, second, "$a", Int(2))
	write(t, second, "$b['k']", Int(3))
	commit(t, second)

	expectEntry(t, first, "$a", "{1}")
	expectEntry(t, first, "$b", "{undefined}")
	expectEntry(t, second, "$a", "{2}")
}

// TestCommitChangeDetection tests that commit reports semantic change only
func TestCommitChangeDetection(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$a", Int(1))
	commit(t, sn)

	if err := sn.StartTransaction(); err != nil {
		t.Fatal(err)
	}
	write(t, sn, "$a", Int(1))
	if commit(t, sn) {
		t.Error("Expected rewriting the same value to be no change")
	}

	if err := sn.StartTransaction(); err != nil {
		t.Fatal(err)
	}
	write(t, sn, "$a", Int(2))
	if !commit(t, sn) {
		t.Error("Expected a new value to be a change")
	}
}

// TestTransactionErrors tests transaction misuse
func TestTransactionErrors(t *testing.T) {
	sn := newTestSession().NewSnapshot()
	err := sn.WriteMemory(MustParsePath("$a", 0), NewEntry(Int(1)))
	if !errors.Is(err, ErrNoTransaction) {
		t.Errorf("Expected ErrNoTransaction, got %v", err)
	}
	var ie *InvariantError
	if !errors.As(err, &ie) || ie.Op != "WriteMemory" {
		t.Errorf("Expected an InvariantError from WriteMemory, got %#v", err)
	}

	if err := sn.StartTransaction(); err != nil {
		t.Fatal(err)
	}
	if err := sn.StartTransaction(); !errors.Is(err, ErrTransactionOpen) {
		t.Errorf("Expected ErrTransactionOpen, got %v", err)
	}
	if _, err := sn.ReadMemory(MustParsePath("$a", 3)); !errors.Is(err, ErrCallLevelMismatch) {
		t.Errorf("Expected ErrCallLevelMismatch for a missing frame, got %v", err)
	}
}

// TestImplicitArray tests that writing an index of an undefined variable
// creates an array owned by it
func TestImplicitArray(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$a['x']", Int(1))
	write(t, sn, "$a['y']['z']", Int(2))

	expectEntry(t, sn, "$a['x']", "{1}")
	expectEntry(t, sn, "$a['y']['z']", "{2}")
	expectEntry(t, sn, "$a['w']", "{undefined}")

	a := NewVariableIndex("a", 0)
	def, ok := sn.Structure().Definition(a)
	if !ok || !def.HasArray() {
		t.Fatalf("Expected $a to own an array, got %+v", def)
	}
	d, _ := sn.Structure().Array(def.Array)
	if !d.Parent().Equals(a) {
		t.Errorf("Expected array parent $a, got %s", d.Parent())
	}
	if d.Len() != 2 {
		t.Errorf("Expected 2 elements, got %d", d.Len())
	}
	if e := read(t, sn, "$a"); !e.Contains(def.Array) || e.Count() != 1 {
		t.Errorf("Expected $a = {%s}, got %s", def.Array, e)
	}
}

// TestArrayCopyOnAssignment tests that assigning an array copies it
func TestArrayCopyOnAssignment(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$a['x']", Int(1))
	if err := sn.WriteMemory(MustParsePath("$b", 0), read(t, sn, "$a")); err != nil {
		t.Fatal(err)
	}
	write(t, sn, "$b['x']", Int(2))

	expectEntry(t, sn, "$a['x']", "{1}")
	expectEntry(t, sn, "$b['x']", "{2}")

	ea, eb := read(t, sn, "$a"), read(t, sn, "$b")
	if ea.Equal(eb) {
		t.Errorf("Expected $a and $b to hold distinct arrays, both hold %s", ea)
	}
}

// TestWriteWithoutCopy tests the ownership rules of WriteMemoryWithoutCopy
func TestWriteWithoutCopy(t *testing.T) {
	sn := open(t, newTestSession())
	arr, err := sn.CreateArray()
	if err != nil {
		t.Fatal(err)
	}
	if err := sn.WriteMemoryWithoutCopy(MustParsePath("$c", 0), NewEntry(arr)); err != nil {
		t.Fatalf("fresh array: %v", err)
	}
	write(t, sn, "$c['k']", Int(1))
	expectEntry(t, sn, "$c['k']", "{1}")

	err = sn.WriteMemoryWithoutCopy(MustParsePath("$d", 0), read(t, sn, "$c"))
	if !errors.Is(err, ErrArrayOwnership) {
		t.Errorf("Expected ErrArrayOwnership, got %v", err)
	}

	commit(t, sn)
	if _, ok := sn.Structure().Array(arr); ok {
		t.Errorf("Expected the unstored array %s to be dropped at commit", arr)
	}
}

// TestMustAliasWrite tests that a write through $a reaches its must alias $b
func TestMustAliasWrite(t *testing.T) {
	sn := open(t, newTestSession())
	if err := sn.SetAlias(MustParsePath("$a", 0), MustParsePath("$b", 0)); err != nil {
		t.Fatal(err)
	}
	write(t, sn, "$b['k']", Int(1))
	expectEntry(t, sn, "$a['k']", "{1}")

	write(t, sn, "$a", Int(7))
	expectEntry(t, sn, "$b", "{7}")

	a, ok := sn.Structure().Aliases(NewVariableIndex("a", 0))
	if !ok || !a.Must.Contains(NewVariableIndex("b", 0)) {
		t.Errorf("Expected $a must-alias $b, got %+v", a)
	}
}

// TestMayAliasWrite tests that an alias to one of several candidates is weak
func TestMayAliasWrite(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$x", Int(1))
	write(t, sn, "$y", Int(2))
	if err := sn.SetAlias(MustParsePath("$r", 0), MustParsePath("${x|y}", 0)); err != nil {
		t.Fatal(err)
	}
	expectEntry(t, sn, "$r", "{1,2}")

	write(t, sn, "$r", Int(9))
	expectEntry(t, sn, "$x", "{1,9}")
	expectEntry(t, sn, "$y", "{2,9}")
	expectEntry(t, sn, "$r", "{9}")
}

// TestWriteIndexWithAliases tests WriteIndex on an aliased index
func TestWriteIndexWithAliases(t *testing.T) {
	sn := open(t, newTestSession())
	if err := sn.SetAlias(MustParsePath("$a", 0), MustParsePath("$b", 0)); err != nil {
		t.Fatal(err)
	}
	if err := sn.WriteIndex(NewVariableIndex("b", 0), NewEntry(Bool(true))); err != nil {
		t.Fatal(err)
	}
	expectEntry(t, sn, "$a", "{true}")

	err := sn.WriteIndex(NewVariableIndex("nope", 0), NewEntry(Int(1)))
	if !errors.Is(err, ErrUnknownIndex) {
		t.Errorf("Expected ErrUnknownIndex, got %v", err)
	}
}

// TestReleaseMemory tests that releasing an index removes everything it owns
func TestReleaseMemory(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$a['x']['y']", Int(1))
	if err := sn.SetAlias(MustParsePath("$r", 0), MustParsePath("$a['x']", 0)); err != nil {
		t.Fatal(err)
	}

	a := NewVariableIndex("a", 0)
	if err := sn.ReleaseMemory(a); err != nil {
		t.Fatal(err)
	}
	st := sn.Structure()
	for _, idx := range []MemoryIndex{a, a.CreateIndex("x"), a.CreateIndex("x").CreateIndex("y")} {
		if st.Exists(idx) {
			t.Errorf("Expected %s to be released", idx)
		}
	}
	n := 0
	for range st.Arrays() {
		n++
	}
	if n != 1 {
		t.Errorf("Expected only $r's array to remain, got %d arrays", n)
	}
	if _, ok := st.Aliases(NewVariableIndex("r", 0)); ok {
		t.Error("Expected $r to lose its alias")
	}
	vars, _ := st.Variables(0)
	if _, ok := vars.Get("a"); ok {
		t.Error("Expected $a to be removed from the variable table")
	}
	if err := sn.ReleaseMemory(a); err != nil {
		t.Errorf("Expected releasing a missing index to succeed, got %v", err)
	}
}

// TestTemporaries tests temporary creation, use and release
func TestTemporaries(t *testing.T) {
	sn := open(t, newTestSession())
	tmp, err := sn.CreateTemporary()
	if err != nil {
		t.Fatal(err)
	}
	if err := sn.WriteMemory(TemporaryPath(tmp).Index("0"), NewEntry(Int(3))); err != nil {
		t.Fatal(err)
	}
	e, err := sn.ReadMemory(TemporaryPath(tmp).Index("0"))
	if err != nil || e.String() != "{3}" {
		t.Errorf("Expected {3}, got %s (%v)", e, err)
	}

	if err := sn.ReleaseTemporary(tmp); err != nil {
		t.Fatal(err)
	}
	if _, err := sn.ReadMemory(TemporaryPath(tmp)); !errors.Is(err, ErrUnknownIndex) {
		t.Errorf("Expected ErrUnknownIndex after release, got %v", err)
	}
	if err := sn.ReleaseTemporary(NewVariableIndex("a", 0)); !errors.Is(err, ErrMalformedPath) {
		t.Errorf("Expected ErrMalformedPath for a variable, got %v", err)
	}
}

// TestObjects tests that objects are shared by reference
func TestObjects(t *testing.T) {
	sn := open(t, newTestSession())
	obj, err := sn.CreateObject("Foo")
	if err != nil {
		t.Fatal(err)
	}
	if err := sn.WriteMemory(MustParsePath("$o", 0), NewEntry(obj)); err != nil {
		t.Fatal(err)
	}
	write(t, sn, "$o->f", Int(1))
	if err := sn.WriteMemory(MustParsePath("$p", 0), read(t, sn, "$o")); err != nil {
		t.Fatal(err)
	}
	write(t, sn, "$p->g", Int(2))

	expectEntry(t, sn, "$p->f", "{1}")
	expectEntry(t, sn, "$o->g", "{2}")
	expectEntry(t, sn, "$o->h", "{undefined}")

	e, err := sn.ReadField(obj, "f")
	if err != nil || e.String() != "{1}" {
		t.Errorf("ReadField(f) = %s, %v", e, err)
	}
	if err := sn.WriteField(obj, "h", NewEntry(String("v"))); err != nil {
		t.Fatal(err)
	}
	expectEntry(t, sn, "$p->h", `{"v"}`)
}

// TestImplicitObject tests that writing a field of an undefined variable
// creates a stdClass object
func TestImplicitObject(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$n->f", Int(1))
	expectEntry(t, sn, "$n->f", "{1}")

	objs := read(t, sn, "$n").Objects()
	if len(objs) != 1 || objs[0].TypeName() != "stdClass" {
		t.Errorf("Expected one stdClass object, got %v", objs)
	}
}

// TestCreateObjectAtSite tests that one allocation site yields one object
func TestCreateObjectAtSite(t *testing.T) {
	sn := open(t, newTestSession())
	a, _ := sn.CreateObjectAt("loop:12", "Node")
	b, _ := sn.CreateObjectAt("loop:12", "Node")
	c, _ := sn.CreateObjectAt("loop:13", "Node")
	if a != b {
		t.Errorf("Expected the same object for one site, got %s and %s", a, b)
	}
	if a == c {
		t.Error("Expected different sites to allocate different objects")
	}
}

// TestReadThroughScalar tests that reading below a scalar yields undefined
func TestReadThroughScalar(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$s", Int(5))
	expectEntry(t, sn, "$s['k']", "{undefined}")
	expectEntry(t, sn, "$s->f", "{undefined}")
}

// TestAnyIndexRead tests that [?] reads every element and the unknown one
func TestAnyIndexRead(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$a['x']", Int(1))
	write(t, sn, "$a['y']", Int(2))
	expectEntry(t, sn, "$a[?]", "{undefined,1,2}")

	write(t, sn, "$a[?]", Int(3))
	expectEntry(t, sn, "$a['x']", "{1,3}")
	expectEntry(t, sn, "$a['z']", "{undefined,3}")
}

// TestInfoMode tests that info values live beside memory values
func TestInfoMode(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$a", Int(1))

	sn.SetMode(ModeInfo)
	write(t, sn, "$a", String("tainted"))
	write(t, sn, "$b", String("tainted"))
	expectEntry(t, sn, "$a", `{"tainted"}`)
	expectEntry(t, sn, "$b", "{}")
	if sn.Structure().Exists(NewVariableIndex("b", 0)) {
		t.Error("Expected an info write not to create $b")
	}

	sn.SetMode(ModeMemory)
	expectEntry(t, sn, "$a", "{1}")
}

// TestDeclarations tests function and type declarations
func TestDeclarations(t *testing.T) {
	sn := open(t, newTestSession())
	decl := Declaration{Name: "Foo", Source: "a.php:3"}
	if err := sn.DeclareFunction(decl); err != nil {
		t.Fatal(err)
	}
	if err := sn.DeclareFunction(decl); err != nil {
		t.Fatal(err)
	}
	if got := sn.ResolveFunction("foo"); len(got) != 1 || got[0] != decl {
		t.Errorf("ResolveFunction(foo) = %v", got)
	}
	if err := sn.DeclareType(Declaration{Name: "Bar", Source: "b.php:1"}); err != nil {
		t.Fatal(err)
	}
	if got := sn.ResolveType("BAR"); len(got) != 1 {
		t.Errorf("ResolveType(BAR) = %v", got)
	}
	if got := sn.ResolveType("Foo"); len(got) != 0 {
		t.Errorf("Expected functions and types to be separate, got %v", got)
	}
}

// TestWriteOwnContainer tests assigning an array into one of its own
// elements, which must copy the array as it was before the write
func TestWriteOwnContainer(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$a['n']", Int(0))
	for range 2 {
		if err := sn.WriteMemory(MustParsePath("$a['n']", 0), read(t, sn, "$a")); err != nil {
			t.Fatal(err)
		}
	}
	expectEntry(t, sn, "$a['n']['n']['n']", "{0}")
	expectEntry(t, sn, "$a['m']", "{undefined}")
}

// TestReferenceToAncestor tests elements bound by reference to the array
// that holds them
func TestReferenceToAncestor(t *testing.T) {
	sn := open(t, newTestSession())
	for _, p := range []string{"$a['x']", "$a['y']", "$a[?]"} {
		if err := sn.SetAlias(MustParsePath(p, 0), MustParsePath("$a", 0)); err != nil {
			t.Fatalf("SetAlias(%s): %v", p, err)
		}
	}
	if n := sn.Structure().IndexCount(); n > 20 {
		t.Errorf("Expected a handful of indexes, got %d", n)
	}

	write(t, sn, "$a['k']", Int(1))
	if e := read(t, sn, "$a['x']['k']"); !e.Contains(Int(1)) {
		t.Errorf("Expected $a['x']['k'] to reach $a['k'], got %s", e)
	}
	a, _ := sn.Structure().Aliases(NewVariableIndex("a", 0).CreateIndex("x"))
	if !a.Must.Contains(NewVariableIndex("a", 0)) {
		t.Errorf("Expected $a['x'] to must-alias $a, got %+v", a)
	}
	commit(t, sn)
}

// TestReferenceToDescendant tests binding an array to one of its own
// elements
func TestReferenceToDescendant(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$b['x']['v']", Int(2))
	if err := sn.SetAlias(MustParsePath("$b", 0), MustParsePath("$b['x']", 0)); err != nil {
		t.Fatal(err)
	}
	expectEntry(t, sn, "$b['v']", "{2}")
	expectEntry(t, sn, "$b['x']", "{undefined}")
	if _, ok := sn.Structure().Aliases(NewVariableIndex("b", 0)); ok {
		t.Error("Expected the alias to go with the released element")
	}
}

// TestReadMayAlias tests that reading a location does not join the values
// of its may aliases
func TestReadMayAlias(t *testing.T) {
	sn := open(t, newTestSession())
	write(t, sn, "$x", Int(1))
	write(t, sn, "$y", Int(2))
	if err := sn.SetAlias(MustParsePath("$r", 0), MustParsePath("${x|y}", 0)); err != nil {
		t.Fatal(err)
	}
	expectEntry(t, sn, "$x", "{1}")
	expectEntry(t, sn, "$y", "{2}")

	write(t, sn, "$x", Int(3))
	expectEntry(t, sn, "$x", "{3}")
	expectEntry(t, sn, "$r", "{1,2,3}")
}
