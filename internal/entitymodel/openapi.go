// Package entitymodel renders the schema catalog as OpenAPI components and
// fingerprints it.
package entitymodel

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"spacenet/internal/mapping"
	"spacenet/internal/schema"
	"spacenet/pkg/domain"
)

const schemaRefPrefix = "#/components/schemas/"

var roleSuffix = map[domain.Role]string{
	domain.RoleCreate: "Create",
	domain.RoleUpdate: "Update",
	domain.RoleRead:   "Read",
}

// Document builds an OpenAPI document whose components hold every derived
// shape plus one discriminated union per kind and role (e.g. AnyNodeCreate).
// A component name produced twice is an error.
func Document(m *mapping.Mapping) (*openapi3.T, error) {
	schemas := openapi3.Schemas{}
	unions := map[string]*openapi3.Schema{}
	mappings := map[string]map[string]string{}
	var unionOrder []string

	for _, shape := range m.Shapes() {
		s := shapeSchema(shape)
		if err := addComponent(schemas, shape.Name(), s); err != nil {
			return nil, err
		}

		union := unionName(shape.Kind(), shape.Role())
		u, ok := unions[union]
		if !ok {
			u = &openapi3.Schema{Title: union}
			unions[union] = u
			mappings[union] = map[string]string{}
			unionOrder = append(unionOrder, union)
		}
		u.OneOf = append(u.OneOf, openapi3.NewSchemaRef(schemaRefPrefix+shape.Name(), s))
		mappings[union][string(shape.Variant())] = schemaRefPrefix + shape.Name()
	}
	for _, name := range unionOrder {
		disc, err := discriminator(mappings[name])
		if err != nil {
			return nil, err
		}
		unions[name].Discriminator = disc
		if err := addComponent(schemas, name, unions[name]); err != nil {
			return nil, err
		}
	}

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "SpaceNet entity model",
			Description: "Create, update and read shapes of every SpaceNet entity variant.",
			Version:     Version(m),
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: schemas},
	}, nil
}

func addComponent(schemas openapi3.Schemas, name string, s *openapi3.Schema) error {
	if _, dup := schemas[name]; dup {
		return fmt.Errorf("duplicate component schema %q", name)
	}
	schemas[name] = openapi3.NewSchemaRef("", s)
	return nil
}

func unionName(kind domain.EntityKind, role domain.Role) string {
	k := string(kind)
	return fmt.Sprintf("Any%s%s%s", string(k[0]-'a'+'A'), k[1:], roleSuffix[role])
}

// discriminator goes through JSON so the mapping type follows whatever the
// library declares.
func discriminator(values map[string]string) (*openapi3.Discriminator, error) {
	raw, err := json.Marshal(map[string]any{"propertyName": schema.TypeField, "mapping": values})
	if err != nil {
		return nil, err
	}
	var d openapi3.Discriminator
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("discriminator: %w", err)
	}
	return &d, nil
}

func shapeSchema(shape schema.Shape) *openapi3.Schema {
	obj := openapi3.NewObjectSchema()
	obj.Title = shape.Name()
	obj.Description = fmt.Sprintf("%s shape of %s %s", shape.Role(), shape.Variant(), shape.Kind())
	for _, f := range shape.Fields() {
		obj.WithProperty(f.Name, fieldSchema(f.FieldSpec))
	}
	obj.Required = shape.Required()
	return obj
}

func fieldSchema(f schema.FieldSpec) *openapi3.Schema {
	var s *openapi3.Schema
	switch f.Type {
	case schema.TypeFloat:
		s = openapi3.NewFloat64Schema()
	case schema.TypeInteger:
		s = openapi3.NewInt64Schema()
	case schema.TypeUUID:
		s = openapi3.NewUUIDSchema()
	default:
		s = openapi3.NewStringSchema()
	}
	if f.Min != nil {
		s = s.WithMin(*f.Min)
	}
	if f.Max != nil {
		s = s.WithMax(*f.Max)
	}
	if len(f.Enum) > 0 {
		members := make([]any, len(f.Enum))
		for i, m := range f.Enum {
			members[i] = m
		}
		s = s.WithEnum(members...)
	}
	if f.Nullable {
		s = s.WithNullable()
	}
	s.Title = f.Title
	s.Description = f.Description
	return s
}

// YAML renders the document in block style.
func YAML(doc *openapi3.T) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal openapi: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("convert openapi: %w", err)
	}
	blockStyle(&node)
	return yaml.Marshal(&node)
}

// blockStyle drops the flow and quoting styles the JSON round trip leaves
// behind. The encoder re-quotes strings that would not read back as strings.
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle | yaml.SingleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// OpenAPISpec returns the catalog document as YAML.
func OpenAPISpec(m *mapping.Mapping) ([]byte, error) {
	doc, err := Document(m)
	if err != nil {
		return nil, err
	}
	return YAML(doc)
}
