package schema

import (
	"fmt"

	"spacenet/pkg/domain"
)

const projectorComponent = "schema projector"

// ShapeField is a canonical field as seen through one role projection.
type ShapeField struct {
	FieldSpec
	Required bool
}

// Shape is a role projection of a variant: the create, update or read form.
// Shapes are derived from the canonical definition and never declare fields of
// their own, apart from the identity field added to read shapes.
type Shape struct {
	name   string
	role   domain.Role
	def    *VariantDefinition
	fields []ShapeField
	index  map[string]int
}

func newShape(name string, role domain.Role, def *VariantDefinition, fields []ShapeField) Shape {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Name] = i
	}
	return Shape{name: name, role: role, def: def, fields: fields, index: index}
}

// DeriveCreate projects the create shape: every field required except nullable
// ones, which default to null when omitted.
func DeriveCreate(def *VariantDefinition) Shape {
	fields := make([]ShapeField, 0, len(def.fields)+1)
	for _, f := range def.fields {
		fields = append(fields, ShapeField{FieldSpec: f.clone(), Required: !f.Nullable})
	}
	if def.Identity == domain.IdentityUUID {
		// Generated when omitted; accepted so exported datasets keep their ids.
		fields = append(fields, ShapeField{FieldSpec: UUID(IDField).Titled("ID", "Unique identifier")})
	}
	return newShape(def.ShapeName, domain.RoleCreate, def, fields)
}

// DeriveUpdate projects the update shape. Fields not listed in excluded become
// optional; the discriminant always stays required. excluded must be a subset
// of the canonical fields.
func DeriveUpdate(def *VariantDefinition, excluded ...string) (Shape, error) {
	keep := map[string]bool{TypeField: true}
	for _, name := range excluded {
		if !def.Has(name) {
			return Shape{}, domain.Configurationf(projectorComponent,
				"%s: excluded field %q is not a canonical field", def.ShapeName, name)
		}
		keep[name] = true
	}
	fields := make([]ShapeField, 0, len(def.fields))
	for _, f := range def.fields {
		fields = append(fields, ShapeField{FieldSpec: f.clone(), Required: keep[f.Name]})
	}
	return newShape(def.ShapeName+"Update", domain.RoleUpdate, def, fields), nil
}

// DeriveRead projects the read shape: the create fields plus the identity.
func DeriveRead(def *VariantDefinition) Shape {
	id := Integer(IDField).AtLeast(1).Titled("ID", "Identifier assigned by storage")
	if def.Identity == domain.IdentityUUID {
		id = UUID(IDField).Titled("ID", "Unique identifier")
	}
	fields := make([]ShapeField, 0, len(def.fields)+1)
	fields = append(fields, ShapeField{FieldSpec: id, Required: true})
	for _, f := range def.fields {
		fields = append(fields, ShapeField{FieldSpec: f.clone(), Required: !f.Nullable})
	}
	return newShape(def.ShapeName+"Read", domain.RoleRead, def, fields)
}

// WithName returns a copy of the shape under another name. Mapping tables use
// it to apply their hand-authored shape names.
func (s Shape) WithName(name string) Shape {
	s.name = name
	return s
}

// Name returns the shape name, e.g. "SurfaceNodeUpdate".
func (s Shape) Name() string { return s.name }

// Role returns the projection role.
func (s Shape) Role() domain.Role { return s.role }

// Kind returns the entity kind of the underlying variant.
func (s Shape) Kind() domain.EntityKind { return s.def.Kind }

// Variant returns the discriminant of the underlying variant.
func (s Shape) Variant() domain.Discriminant { return s.def.Discriminant }

// Definition returns the canonical definition the shape was derived from.
func (s Shape) Definition() *VariantDefinition { return s.def }

// IsZero reports whether the shape was never derived.
func (s Shape) IsZero() bool { return s.def == nil }

// Fields returns the projected fields in canonical order.
func (s Shape) Fields() []ShapeField {
	out := make([]ShapeField, len(s.fields))
	for i, f := range s.fields {
		out[i] = ShapeField{FieldSpec: f.clone(), Required: f.Required}
	}
	return out
}

// Field looks up a projected field.
func (s Shape) Field(name string) (ShapeField, bool) {
	i, ok := s.index[name]
	if !ok {
		return ShapeField{}, false
	}
	return s.fields[i], true
}

// Required lists required field names in canonical order.
func (s Shape) Required() []string {
	var out []string
	for _, f := range s.fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

func (s Shape) String() string {
	return fmt.Sprintf("%s(%s %s %s)", s.name, s.role, s.def.Kind, s.def.Discriminant)
}
