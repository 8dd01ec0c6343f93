package dump

import (
	"iter"
	"strconv"

	"github.com/speakeasy-api/heapmodel/memorymodel"
	"github.com/speakeasy-api/openapi/jsonschema/oas3"
	"github.com/speakeasy-api/openapi/sequencedmap"
	"gopkg.in/yaml.v3"
)

// EntrySchema describes the values e may hold as an OpenAPI 3.1 schema.
//
// Concrete scalars of one kind become an enum, "any" values become their
// plain type and arrays and objects become object schemas whose properties
// are the known elements or fields of sn. The unknown element of an array
// or object gives additionalProperties. Undefined is not a JSON value and
// is dropped; an entry holding nothing else yields nil.
func EntrySchema(sn *memorymodel.Snapshot, e memorymodel.Entry) *oas3.Schema {
	b := &schemaBuilder{sn: sn, visiting: make(map[memorymodel.Value]bool)}
	return b.entry(e)
}

type schemaBuilder struct {
	sn       *memorymodel.Snapshot
	visiting map[memorymodel.Value]bool
}

func (b *schemaBuilder) entry(e memorymodel.Entry) *oas3.Schema {
	var schemas []*oas3.Schema
	enums := make(map[memorymodel.ValueKind]*oas3.Schema)
	for _, v := range e.Values() {
		if v.Kind == memorymodel.KindUndefined {
			continue
		}
		if node, typ, ok := enumValue(v); ok {
			if s, seen := enums[v.Kind]; seen {
				s.Enum = append(s.Enum, node)
				continue
			}
			s := &oas3.Schema{Type: oas3.NewTypeFromString(typ), Enum: []*yaml.Node{node}}
			enums[v.Kind] = s
			schemas = append(schemas, s)
			continue
		}
		schemas = append(schemas, b.value(v)...)
	}

	switch len(schemas) {
	case 0:
		return nil
	case 1:
		return schemas[0]
	}
	anyOf := make([]*oas3.JSONSchema[oas3.Referenceable], len(schemas))
	for i, s := range schemas {
		anyOf[i] = oas3.NewJSONSchemaFromSchema[oas3.Referenceable](s)
	}
	return &oas3.Schema{AnyOf: anyOf}
}

// enumValue returns the enum node of a concrete scalar.
func enumValue(v memorymodel.Value) (*yaml.Node, oas3.SchemaType, bool) {
	switch v.Kind {
	case memorymodel.KindBool:
		x, _ := v.AsBool()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(x)}, oas3.SchemaTypeBoolean, true
	case memorymodel.KindInt:
		x, _ := v.AsInt()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(x, 10)}, oas3.SchemaTypeInteger, true
	case memorymodel.KindFloat:
		x, _ := v.AsFloat()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(x, 'g', -1, 64)}, oas3.SchemaTypeNumber, true
	case memorymodel.KindString:
		x, _ := v.AsString()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: x}, oas3.SchemaTypeString, true
	}
	return nil, "", false
}

func typed(typ oas3.SchemaType) *oas3.Schema {
	return &oas3.Schema{Type: oas3.NewTypeFromString(typ)}
}

func (b *schemaBuilder) value(v memorymodel.Value) []*oas3.Schema {
	switch v.Kind {
	case memorymodel.KindNull:
		return []*oas3.Schema{typed(oas3.SchemaTypeNull)}
	case memorymodel.KindAnyBool:
		return []*oas3.Schema{typed(oas3.SchemaTypeBoolean)}
	case memorymodel.KindAnyInt:
		return []*oas3.Schema{typed(oas3.SchemaTypeInteger)}
	case memorymodel.KindAnyFloat:
		return []*oas3.Schema{typed(oas3.SchemaTypeNumber)}
	case memorymodel.KindAnyString:
		return []*oas3.Schema{typed(oas3.SchemaTypeString)}
	case memorymodel.KindAnyScalar:
		return []*oas3.Schema{
			typed(oas3.SchemaTypeBoolean),
			typed(oas3.SchemaTypeInteger),
			typed(oas3.SchemaTypeNumber),
			typed(oas3.SchemaTypeString),
		}
	case memorymodel.KindArray:
		d, ok := b.sn.Structure().Array(v)
		if !ok {
			return []*oas3.Schema{typed(oas3.SchemaTypeObject)}
		}
		return []*oas3.Schema{b.container(v, d.Indexes(), d.Unknown())}
	case memorymodel.KindObject:
		d, ok := b.sn.Structure().Object(v)
		if !ok {
			return []*oas3.Schema{typed(oas3.SchemaTypeObject)}
		}
		return []*oas3.Schema{b.container(v, d.Fields(), d.Unknown())}
	}
	return nil
}

// container builds an object schema from named children. Objects may
// reach themselves through fields; a value already being described is
// cut off with a plain object schema.
func (b *schemaBuilder) container(v memorymodel.Value, children iter.Seq2[string, memorymodel.MemoryIndex], unknown memorymodel.MemoryIndex) *oas3.Schema {
	s := typed(oas3.SchemaTypeObject)
	if b.visiting[v] {
		return s
	}
	b.visiting[v] = true
	defer delete(b.visiting, v)

	data := b.sn.Data()
	props := sequencedmap.New[string, *oas3.JSONSchema[oas3.Referenceable]]()
	var required []string
	for name, idx := range children {
		e := data.Get(idx)
		child := b.entry(e)
		if child == nil {
			continue
		}
		props.Set(name, oas3.NewJSONSchemaFromSchema[oas3.Referenceable](child))
		if !e.HasUndefined() {
			required = append(required, name)
		}
	}
	if props.Len() > 0 {
		s.Properties = props
		s.Required = required
	}
	if extra := b.entry(data.Get(unknown)); extra != nil {
		s.AdditionalProperties = oas3.NewJSONSchemaFromSchema[oas3.Referenceable](extra)
	}
	return s
}

// SchemaNode renders the subset of s that EntrySchema fills in as a YAML
// mapping. A nil schema renders as false, the schema matching nothing.
func SchemaNode(s *oas3.Schema) *yaml.Node {
	if s == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "false"}
	}
	n := mapping()
	if types := s.GetType(); len(types) == 1 {
		addPair(n, "type", str(string(types[0])))
	}
	if len(s.Enum) > 0 {
		enum := sequence()
		enum.Style = yaml.FlowStyle
		enum.Content = append(enum.Content, s.Enum...)
		addPair(n, "enum", enum)
	}
	if len(s.AnyOf) > 0 {
		anyOf := sequence()
		for _, branch := range s.AnyOf {
			anyOf.Content = append(anyOf.Content, SchemaNode(branch.GetLeft()))
		}
		addPair(n, "anyOf", anyOf)
	}
	if s.Properties != nil && s.Properties.Len() > 0 {
		props := mapping()
		for name, prop := range s.Properties.All() {
			addPair(props, name, SchemaNode(prop.GetLeft()))
		}
		addPair(n, "properties", props)
	}
	if len(s.Required) > 0 {
		req := sequence()
		req.Style = yaml.FlowStyle
		for _, name := range s.Required {
			req.Content = append(req.Content, str(name))
		}
		addPair(n, "required", req)
	}
	if s.AdditionalProperties != nil {
		addPair(n, "additionalProperties", SchemaNode(s.AdditionalProperties.GetLeft()))
	}
	return n
}

// VariableSchemas maps every variable of the current frame of sn to the
// schema of its entry.
func VariableSchemas(sn *memorymodel.Snapshot) *yaml.Node {
	n := mapping()
	vars, ok := sn.Structure().Variables(sn.CallLevel())
	if !ok {
		return n
	}
	for name, idx := range vars.Names() {
		addPair(n, "$"+name, SchemaNode(EntrySchema(sn, sn.Data().Get(idx))))
	}
	return n
}
