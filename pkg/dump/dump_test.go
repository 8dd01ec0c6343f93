package dump

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/speakeasy-api/heapmodel/memorymodel"
	"github.com/speakeasy-api/openapi/jsonschema/oas3"
	"gopkg.in/yaml.v3"
)

func newSnapshot(t *testing.T) *memorymodel.Snapshot {
	t.Helper()
	opts := memorymodel.DefaultOptions()
	opts.Logger = memorymodel.NoopLogger()
	sn := memorymodel.NewSession(opts).NewSnapshot()
	if err := sn.StartTransaction(); err != nil {
		t.Fatal(err)
	}
	return sn
}

func write(t *testing.T, sn *memorymodel.Snapshot, path string, vals ...memorymodel.Value) {
	t.Helper()
	if err := sn.WriteMemory(memorymodel.MustParsePath(path, sn.CallLevel()), memorymodel.NewEntry(vals...)); err != nil {
		t.Fatalf("WriteMemory(%s): %v", path, err)
	}
}

func read(t *testing.T, sn *memorymodel.Snapshot, path string) memorymodel.Entry {
	t.Helper()
	e, err := sn.ReadMemory(memorymodel.MustParsePath(path, sn.CallLevel()))
	if err != nil {
		t.Fatalf("ReadMemory(%s): %v", path, err)
	}
	return e
}

func sample(t *testing.T) *memorymodel.Snapshot {
	t.Helper()
	sn := newSnapshot(t)
	write(t, sn, "$a['x']", memorymodel.Int(1))
	write(t, sn, "$a['日本']", memorymodel.String("s"))
	if err := sn.SetAlias(memorymodel.MustParsePath("$r", 0), memorymodel.MustParsePath("$b", 0)); err != nil {
		t.Fatal(err)
	}
	if err := sn.DeclareFunction(memorymodel.Declaration{Name: "f", Source: "a.php:2"}); err != nil {
		t.Fatal(err)
	}
	return sn
}

// TestTextAlignment tests that the value column lines up with the heading,
// including rows with wide characters
func TestTextAlignment(t *testing.T) {
	sn := sample(t)
	var buf bytes.Buffer
	if err := Text(&buf, sn, Options{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	var heading, wide string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "  INDEX"):
			heading = line
		case strings.HasPrefix(line, `  $a["日本"]`):
			wide = line
		}
	}
	if heading == "" || wide == "" {
		t.Fatalf("Expected heading and element rows:\n%s", out)
	}
	col := runewidth.StringWidth(heading[:strings.Index(heading, "VALUES")])
	if got := runewidth.StringWidth(wide[:strings.Index(wide, "{")]); got != col {
		t.Errorf("Expected values at column %d, got %d:\n%s", col, got, out)
	}

	for _, want := range []string{"must=[$b]", "arrays", "functions", "a.php:2", `{"s"}`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in dump:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("Expected no escapes without Color")
	}
}

// TestTextColorAndTruncation tests the Color and MaxValues options
func TestTextColorAndTruncation(t *testing.T) {
	sn := newSnapshot(t)
	write(t, sn, "$a", memorymodel.Int(1), memorymodel.Int(2), memorymodel.Int(3))
	var buf bytes.Buffer
	if err := Text(&buf, sn, Options{Color: true, MaxValues: 2}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "{1,2,+1}") {
		t.Errorf("Expected a truncated entry:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), ansiBold) {
		t.Errorf("Expected escapes with Color:\n%q", buf.String())
	}
}

// TestYAML tests that the YAML dump decodes back to the snapshot contents
func TestYAML(t *testing.T) {
	sn := sample(t)
	var buf bytes.Buffer
	if err := YAML(&buf, sn); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Level   int `yaml:"level"`
		Indexes []struct {
			Index  string `yaml:"index"`
			Values []any  `yaml:"values"`
			Owns   string `yaml:"owns"`
			Must   []string
		} `yaml:"indexes"`
		Arrays    map[string]any    `yaml:"arrays"`
		Functions map[string]string `yaml:"functions"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to decode dump: %v\n%s", err, buf.String())
	}
	if doc.Level != 0 || len(doc.Arrays) != 1 || doc.Functions["f"] != "a.php:2" {
		t.Errorf("Unexpected document:\n%s", buf.String())
	}

	found := map[string]bool{}
	for _, n := range doc.Indexes {
		switch n.Index {
		case `$a["x"]`:
			found[n.Index] = len(n.Values) == 1 && n.Values[0] == 1
		case "$a":
			found[n.Index] = n.Owns != ""
		case "$r":
			found[n.Index] = len(n.Must) == 1 && n.Must[0] == "$b"
		}
	}
	for _, idx := range []string{`$a["x"]`, "$a", "$r"} {
		if !found[idx] {
			t.Errorf("Expected a correct entry for %s:\n%s", idx, buf.String())
		}
	}
}

// TestEntrySchemaArray tests the object schema of an array entry
func TestEntrySchemaArray(t *testing.T) {
	sn := sample(t)
	write(t, sn, "$a['m']", memorymodel.Undefined(), memorymodel.Int(4))
	s := EntrySchema(sn, read(t, sn, "$a"))
	if s == nil || len(s.GetType()) != 1 || s.GetType()[0] != oas3.SchemaTypeObject {
		t.Fatalf("Expected an object schema, got %+v", s)
	}
	if s.Properties == nil || s.Properties.Len() != 3 {
		t.Fatalf("Expected 3 properties, got %+v", s.Properties)
	}
	x, ok := s.Properties.Get("x")
	if !ok || x.Left == nil || len(x.Left.Enum) != 1 || x.Left.Enum[0].Value != "1" {
		t.Errorf("Expected x to be the integer enum [1], got %+v", x)
	}
	if strings.Join(s.Required, ",") != "x,日本" {
		t.Errorf("Expected m to be optional, got required %v", s.Required)
	}
	if s.AdditionalProperties != nil {
		t.Error("Expected no additionalProperties for an array without unknown elements")
	}
}

// TestEntrySchemaUnion tests grouping of scalar enums into anyOf
func TestEntrySchemaUnion(t *testing.T) {
	sn := newSnapshot(t)
	e := memorymodel.NewEntry(
		memorymodel.Undefined(),
		memorymodel.Int(1), memorymodel.Int(2),
		memorymodel.String("s"),
		memorymodel.AnyFloat(),
	)
	s := EntrySchema(sn, e)
	if s == nil || len(s.AnyOf) != 3 {
		t.Fatalf("Expected 3 branches, got %+v", s)
	}
	ints := s.AnyOf[0].GetLeft()
	if ints.GetType()[0] != oas3.SchemaTypeInteger || len(ints.Enum) != 2 {
		t.Errorf("Expected an integer enum with 2 values, got %+v", ints)
	}

	if EntrySchema(sn, memorymodel.UndefinedEntry()) != nil {
		t.Error("Expected nil for an undefined entry")
	}
}

// TestEntrySchemaCycle tests that self-referencing objects terminate
func TestEntrySchemaCycle(t *testing.T) {
	sn := newSnapshot(t)
	obj, err := sn.CreateObject("Node")
	if err != nil {
		t.Fatal(err)
	}
	write(t, sn, "$n", obj)
	write(t, sn, "$n->next", obj)

	s := EntrySchema(sn, read(t, sn, "$n"))
	next, ok := s.Properties.Get("next")
	if !ok || next.Left == nil || next.Left.Properties != nil {
		t.Errorf("Expected the cycle to end in a plain object, got %+v", next)
	}
}

// TestVariableSchemas tests the YAML rendering of schemas per variable
func TestVariableSchemas(t *testing.T) {
	sn := sample(t)
	out, err := yaml.Marshal(VariableSchemas(sn))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("Failed to decode schemas: %v\n%s", err, out)
	}
	a, _ := doc["$a"].(map[string]any)
	if a["type"] != "object" {
		t.Errorf("Expected $a to be an object schema:\n%s", out)
	}
	props, _ := a["properties"].(map[string]any)
	x, _ := props["x"].(map[string]any)
	if enum, _ := x["enum"].([]any); x["type"] != "integer" || len(enum) != 1 {
		t.Errorf("Expected x to be an integer enum:\n%s", out)
	}
	// $b holds only undefined: no value matches
	if doc["$b"] != false {
		t.Errorf("Expected an undefined variable to render as false:\n%s", out)
	}
}
