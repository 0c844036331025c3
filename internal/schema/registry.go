package schema

import (
	"fmt"
	"slices"

	"spacenet/pkg/domain"
)

const registryComponent = "variant registry"

// VariantDefinition is the canonical field set of one variant. The
// discriminant is always the first field and is named "type".
type VariantDefinition struct {
	Kind         domain.EntityKind
	Discriminant domain.Discriminant
	// ShapeName names the create shape, e.g. "SurfaceNode".
	ShapeName string
	Identity  domain.IdentityMode

	fields []FieldSpec
	index  map[string]int
}

// NewVariant declares a variant. Field order is preserved and drives merge
// order, storage column order and output order.
func NewVariant(kind domain.EntityKind, disc domain.Discriminant, shapeName string, identity domain.IdentityMode, fields ...FieldSpec) VariantDefinition {
	all := make([]FieldSpec, 0, len(fields)+1)
	all = append(all, FieldSpec{
		Name:        TypeField,
		Type:        TypeDiscriminant,
		Title:       "Type",
		Description: fmt.Sprintf("Type of %s", kind),
		Enum:        []string{string(disc)},
	})
	for _, f := range fields {
		all = append(all, f.clone())
	}
	return VariantDefinition{Kind: kind, Discriminant: disc, ShapeName: shapeName, Identity: identity, fields: all}
}

// Fields returns the canonical fields in declaration order, discriminant first.
func (d *VariantDefinition) Fields() []FieldSpec {
	out := make([]FieldSpec, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.clone()
	}
	return out
}

// FieldNames returns the canonical field names in declaration order.
func (d *VariantDefinition) FieldNames() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a canonical field by name.
func (d *VariantDefinition) Field(name string) (FieldSpec, bool) {
	i, ok := d.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return d.fields[i].clone(), true
}

// Has reports whether name is a canonical field.
func (d *VariantDefinition) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

func (d *VariantDefinition) validate() error {
	switch {
	case !d.Kind.Valid():
		return fmt.Errorf("unknown kind %q", d.Kind)
	case d.Discriminant == "":
		return fmt.Errorf("%s variant without discriminant", d.Kind)
	case d.ShapeName == "":
		return fmt.Errorf("%s %s: shape name required", d.Kind, d.Discriminant)
	case d.Identity != domain.IdentitySequence && d.Identity != domain.IdentityUUID:
		return fmt.Errorf("%s %s: unknown identity mode %q", d.Kind, d.Discriminant, d.Identity)
	case len(d.fields) == 0 || d.fields[0].Name != TypeField:
		return fmt.Errorf("%s %s: discriminant field missing", d.Kind, d.Discriminant)
	case d.fields[0].Nullable:
		return fmt.Errorf("%s %s: discriminant cannot be nullable", d.Kind, d.Discriminant)
	}
	d.index = make(map[string]int, len(d.fields))
	for i, f := range d.fields {
		if err := f.check(); err != nil {
			return fmt.Errorf("%s %s: %w", d.Kind, d.Discriminant, err)
		}
		if i > 0 && (f.Name == TypeField || f.Name == IDField) {
			return fmt.Errorf("%s %s: field name %q is reserved", d.Kind, d.Discriminant, f.Name)
		}
		if _, dup := d.index[f.Name]; dup {
			return fmt.Errorf("%s %s: duplicate field %q", d.Kind, d.Discriminant, f.Name)
		}
		d.index[f.Name] = i
	}
	return nil
}

type variantKey struct {
	kind domain.EntityKind
	disc domain.Discriminant
}

// Registry holds the canonical definitions of every variant. It is populated
// once during startup and read concurrently afterwards without locking.
type Registry struct {
	order   []*VariantDefinition
	byKey   map[variantKey]*VariantDefinition
	byShape map[string]*VariantDefinition
	ident   map[domain.EntityKind]domain.IdentityMode
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:   make(map[variantKey]*VariantDefinition),
		byShape: make(map[string]*VariantDefinition),
		ident:   make(map[domain.EntityKind]domain.IdentityMode),
	}
}

// Register adds a variant. Contradictory declarations fail with a
// domain.ConfigurationError.
func (r *Registry) Register(def VariantDefinition) error {
	if err := def.validate(); err != nil {
		return domain.ConfigurationError{Component: registryComponent, Detail: err.Error()}
	}
	key := variantKey{kind: def.Kind, disc: def.Discriminant}
	if _, dup := r.byKey[key]; dup {
		return domain.Configurationf(registryComponent, "%s variant %s registered twice", def.Kind, def.Discriminant)
	}
	if _, dup := r.byShape[def.ShapeName]; dup {
		return domain.Configurationf(registryComponent, "shape name %s registered twice", def.ShapeName)
	}
	if mode, ok := r.ident[def.Kind]; ok && mode != def.Identity {
		return domain.Configurationf(registryComponent, "%s variants disagree on identity mode (%s vs %s)", def.Kind, mode, def.Identity)
	}
	stored := def
	stored.fields = def.Fields()
	r.order = append(r.order, &stored)
	r.byKey[key] = &stored
	r.byShape[def.ShapeName] = &stored
	r.ident[def.Kind] = def.Identity
	return nil
}

// MustRegister registers the variants or panics. Intended for static catalogs.
func (r *Registry) MustRegister(defs ...VariantDefinition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the definition for (kind, discriminant).
func (r *Registry) Resolve(kind domain.EntityKind, disc domain.Discriminant) (*VariantDefinition, error) {
	def, ok := r.byKey[variantKey{kind: kind, disc: disc}]
	if !ok {
		return nil, domain.UnknownVariantError{Kind: kind, Discriminant: disc}
	}
	return def, nil
}

// ByShapeName resolves a definition from its create shape name.
func (r *Registry) ByShapeName(name string) (*VariantDefinition, bool) {
	def, ok := r.byShape[name]
	return def, ok
}

// Variants lists the definitions of a kind in registration order.
func (r *Registry) Variants(kind domain.EntityKind) []*VariantDefinition {
	var out []*VariantDefinition
	for _, def := range r.order {
		if def.Kind == kind {
			out = append(out, def)
		}
	}
	return out
}

// All lists every registered definition in registration order.
func (r *Registry) All() []*VariantDefinition {
	return slices.Clone(r.order)
}

// Discriminants lists the registered discriminants of a kind.
func (r *Registry) Discriminants(kind domain.EntityKind) []domain.Discriminant {
	var out []domain.Discriminant
	for _, def := range r.Variants(kind) {
		out = append(out, def.Discriminant)
	}
	return out
}

// Identity reports how records of kind receive their identity.
func (r *Registry) Identity(kind domain.EntityKind) (domain.IdentityMode, bool) {
	mode, ok := r.ident[kind]
	return mode, ok
}
