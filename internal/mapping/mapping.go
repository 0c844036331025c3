// Package mapping pairs the create, update and read shapes of every variant and
// keeps the derived shapes for lookup by name.
package mapping

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"spacenet/internal/schema"
	"spacenet/pkg/domain"
)

const component = "mapping registry"

// Invert reverses a map, failing when two keys share a value.
func Invert[K, V comparable](m map[K]V) (map[V]K, error) {
	out := make(map[V]K, len(m))
	for k, v := range m {
		if prev, dup := out[v]; dup {
			return nil, domain.Configurationf(component, "%v is the image of both %v and %v", v, prev, k)
		}
		out[v] = k
	}
	return out, nil
}

type variantRoleKey struct {
	kind domain.EntityKind
	disc domain.Discriminant
	role domain.Role
}

// Mapping is the bidirectional correspondence between create shapes and their
// update and read counterparts. It is immutable after New.
type Mapping struct {
	createToUpdate map[string]string
	updateToCreate map[string]string
	createToRead   map[string]string
	readToCreate   map[string]string

	shapes  map[string]schema.Shape
	byRole  map[variantRoleKey]string
	ordered []string
}

// New builds the mapping from the hand-authored tables and checks them
// against reg. Any inconsistency is reported as a domain.ConfigurationError.
func New(reg *schema.Registry) (*Mapping, error) {
	return NewFromTables(reg, createToUpdate, createToRead)
}

// NewFromTables builds a mapping from explicit tables.
func NewFromTables(reg *schema.Registry, toUpdate, toRead map[string]string) (*Mapping, error) {
	m := &Mapping{
		createToUpdate: maps.Clone(toUpdate),
		createToRead:   maps.Clone(toRead),
		shapes:         make(map[string]schema.Shape),
		byRole:         make(map[variantRoleKey]string),
	}
	var err error
	if m.updateToCreate, err = Invert(m.createToUpdate); err != nil {
		return nil, err
	}
	if m.readToCreate, err = Invert(m.createToRead); err != nil {
		return nil, err
	}
	if err := m.checkCompleteness(reg); err != nil {
		return nil, err
	}
	for _, def := range reg.All() {
		if err := m.derive(def); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mapping) checkCompleteness(reg *schema.Registry) error {
	var missing []string
	for _, def := range reg.All() {
		if _, ok := m.createToUpdate[def.ShapeName]; !ok {
			missing = append(missing, def.ShapeName+" has no update shape")
		}
		if _, ok := m.createToRead[def.ShapeName]; !ok {
			missing = append(missing, def.ShapeName+" has no read shape")
		}
	}
	for _, table := range []map[string]string{m.createToUpdate, m.createToRead} {
		for create := range table {
			if _, ok := reg.ByShapeName(create); !ok {
				missing = append(missing, create+" is not a registered create shape")
			}
		}
	}
	// Names must not be reused across roles.
	seen := make(map[string]domain.Role)
	for _, def := range reg.All() {
		seen[def.ShapeName] = domain.RoleCreate
	}
	for name := range m.updateToCreate {
		if role, dup := seen[name]; dup {
			missing = append(missing, name+" is both an update and a "+string(role)+" shape")
		}
		seen[name] = domain.RoleUpdate
	}
	for name := range m.readToCreate {
		if role, dup := seen[name]; dup {
			missing = append(missing, name+" is both a read and a "+string(role)+" shape")
		}
		seen[name] = domain.RoleRead
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return domain.ConfigurationError{Component: component, Detail: strings.Join(missing, "; ")}
	}
	return nil
}

func (m *Mapping) derive(def *schema.VariantDefinition) error {
	create := schema.DeriveCreate(def)
	update, err := schema.DeriveUpdate(def)
	if err != nil {
		return err
	}
	update = update.WithName(m.createToUpdate[def.ShapeName])
	read := schema.DeriveRead(def).WithName(m.createToRead[def.ShapeName])
	for _, s := range []schema.Shape{create, update, read} {
		m.shapes[s.Name()] = s
		m.byRole[variantRoleKey{kind: def.Kind, disc: def.Discriminant, role: s.Role()}] = s.Name()
		m.ordered = append(m.ordered, s.Name())
	}
	return nil
}

// CreateToUpdate returns the update shape name paired with a create shape.
func (m *Mapping) CreateToUpdate(create string) (string, bool) {
	v, ok := m.createToUpdate[create]
	return v, ok
}

// UpdateToCreate returns the create shape name an update shape belongs to.
func (m *Mapping) UpdateToCreate(update string) (string, bool) {
	v, ok := m.updateToCreate[update]
	return v, ok
}

// CreateToRead returns the read shape name paired with a create shape.
func (m *Mapping) CreateToRead(create string) (string, bool) {
	v, ok := m.createToRead[create]
	return v, ok
}

// ReadToCreate returns the create shape name a read shape belongs to.
func (m *Mapping) ReadToCreate(read string) (string, bool) {
	v, ok := m.readToCreate[read]
	return v, ok
}

// IsCreateShape reports whether name is a registered create shape.
func (m *Mapping) IsCreateShape(name string) bool {
	_, ok := m.createToUpdate[name]
	return ok
}

// IsUpdateShape reports whether name is a registered update shape.
func (m *Mapping) IsUpdateShape(name string) bool {
	_, ok := m.updateToCreate[name]
	return ok
}

// IsReadShape reports whether name is a registered read shape.
func (m *Mapping) IsReadShape(name string) bool {
	_, ok := m.readToCreate[name]
	return ok
}

// Role reports the role of a shape name.
func (m *Mapping) Role(name string) (domain.Role, bool) {
	switch {
	case m.IsCreateShape(name):
		return domain.RoleCreate, true
	case m.IsUpdateShape(name):
		return domain.RoleUpdate, true
	case m.IsReadShape(name):
		return domain.RoleRead, true
	}
	return "", false
}

// Shape returns a derived shape by name.
func (m *Mapping) Shape(name string) (schema.Shape, bool) {
	s, ok := m.shapes[name]
	return s, ok
}

// ShapeFor returns the shape of a variant in the given role.
func (m *Mapping) ShapeFor(kind domain.EntityKind, disc domain.Discriminant, role domain.Role) (schema.Shape, error) {
	name, ok := m.byRole[variantRoleKey{kind: kind, disc: disc, role: role}]
	if !ok {
		return schema.Shape{}, domain.UnknownVariantError{Kind: kind, Discriminant: disc}
	}
	return m.shapes[name], nil
}

// UpdateFor returns the update shape paired with a create or read shape.
func (m *Mapping) UpdateFor(shape schema.Shape) (schema.Shape, error) {
	return m.ShapeFor(shape.Kind(), shape.Variant(), domain.RoleUpdate)
}

// ReadFor returns the read shape paired with a create or update shape.
func (m *Mapping) ReadFor(shape schema.Shape) (schema.Shape, error) {
	return m.ShapeFor(shape.Kind(), shape.Variant(), domain.RoleRead)
}

// CreateFor returns the create shape paired with an update or read shape.
func (m *Mapping) CreateFor(shape schema.Shape) (schema.Shape, error) {
	return m.ShapeFor(shape.Kind(), shape.Variant(), domain.RoleCreate)
}

// Shapes returns every shape in registration order, create, update and read
// per variant.
func (m *Mapping) Shapes() []schema.Shape {
	out := make([]schema.Shape, 0, len(m.ordered))
	for _, name := range m.ordered {
		out = append(out, m.shapes[name])
	}
	return out
}

// Names returns every shape name sorted.
func (m *Mapping) Names() []string {
	return slices.Sorted(maps.Keys(m.shapes))
}
