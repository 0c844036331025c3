package mapping

import (
	"errors"
	"maps"
	"strings"
	"testing"

	"spacenet/internal/schema"
	"spacenet/pkg/domain"
)

func newMapping(t *testing.T) (*schema.Registry, *Mapping) {
	t.Helper()
	reg, err := schema.NewCatalogRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	m, err := New(reg)
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	return reg, m
}

func TestInvertDetectsCollisions(t *testing.T) {
	inv, err := Invert(map[string]int{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("invert: %v", err)
	}
	if !maps.Equal(inv, map[int]string{1: "a", 2: "b"}) {
		t.Fatalf("unexpected inverse: %v", inv)
	}

	_, err = Invert(map[string]string{"SurfaceNode": "Shared", "OrbitalNode": "Shared"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRoundTrips(t *testing.T) {
	_, m := newMapping(t)
	for create := range createToUpdate {
		update, ok := m.CreateToUpdate(create)
		if !ok {
			t.Fatalf("%s has no update shape", create)
		}
		if back, ok := m.UpdateToCreate(update); !ok || back != create {
			t.Fatalf("%s -> %s -> %s", create, update, back)
		}

		read, ok := m.CreateToRead(create)
		if !ok {
			t.Fatalf("%s has no read shape", create)
		}
		if back, ok := m.ReadToCreate(read); !ok || back != create {
			t.Fatalf("%s -> %s -> %s", create, read, back)
		}
	}
	if len(m.Shapes()) != 45 || len(m.Names()) != 45 {
		t.Fatalf("expected 45 shapes, got %d shapes and %d names", len(m.Shapes()), len(m.Names()))
	}
}

func TestRolePredicatesPartition(t *testing.T) {
	_, m := newMapping(t)
	for _, name := range m.Names() {
		count := 0
		for _, is := range []func(string) bool{m.IsCreateShape, m.IsUpdateShape, m.IsReadShape} {
			if is(name) {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("%s matched %d roles", name, count)
		}
		shape, ok := m.Shape(name)
		if !ok {
			t.Fatalf("%s has no shape", name)
		}
		if role, ok := m.Role(name); !ok || role != shape.Role() {
			t.Fatalf("%s: role %s, shape role %s", name, role, shape.Role())
		}
	}
	if _, ok := m.Role("Bogus"); ok {
		t.Fatalf("expected no role for an unknown name")
	}
}

func TestResourceShapeNames(t *testing.T) {
	_, m := newMapping(t)
	if update, ok := m.CreateToUpdate("ContinuousResource"); !ok || update != "ContinuousUpdate" {
		t.Fatalf("expected ContinuousUpdate, got %q", update)
	}

	shape, err := m.ShapeFor(domain.KindResource, domain.ResourceDiscrete, domain.RoleRead)
	if err != nil {
		t.Fatalf("shape for: %v", err)
	}
	if shape.Name() != "DiscreteRead" {
		t.Fatalf("expected DiscreteRead, got %s", shape.Name())
	}

	create, err := m.CreateFor(shape)
	if err != nil {
		t.Fatalf("create for: %v", err)
	}
	if create.Name() != "DiscreteResource" {
		t.Fatalf("expected DiscreteResource, got %s", create.Name())
	}
}

func TestEdgeShapesAreSymmetric(t *testing.T) {
	_, m := newMapping(t)
	for _, disc := range []domain.Discriminant{domain.EdgeSurface, domain.EdgeSpace, domain.EdgeFlight} {
		create, err := m.ShapeFor(domain.KindEdge, disc, domain.RoleCreate)
		if err != nil {
			t.Fatalf("%s create: %v", disc, err)
		}
		update, err := m.UpdateFor(create)
		if err != nil {
			t.Fatalf("%s update: %v", disc, err)
		}
		read, err := m.ReadFor(create)
		if err != nil {
			t.Fatalf("%s read: %v", disc, err)
		}

		if update.Name() != create.Name()+"Update" || read.Name() != create.Name()+"Read" {
			t.Fatalf("unexpected names for %s: %s, %s", create.Name(), update.Name(), read.Name())
		}
		if update.Variant() != disc || read.Variant() != disc {
			t.Fatalf("variant drift for %s", disc)
		}
	}
}

func TestShapeForUnknownVariant(t *testing.T) {
	_, m := newMapping(t)
	if _, err := m.ShapeFor(domain.KindNode, "Bogus", domain.RoleCreate); !errors.Is(err, domain.ErrUnknownVariant) {
		t.Fatalf("expected unknown variant, got %v", err)
	}
}

func TestNewFromTablesRejectsInconsistentTables(t *testing.T) {
	reg, _ := newMapping(t)

	t.Run("collision", func(t *testing.T) {
		update := maps.Clone(createToUpdate)
		update["OrbitalNode"] = "SurfaceNodeUpdate"
		if _, err := NewFromTables(reg, update, createToRead); !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
	t.Run("missing", func(t *testing.T) {
		read := maps.Clone(createToRead)
		delete(read, "FlightEdge")
		_, err := NewFromTables(reg, createToUpdate, read)
		if err == nil || !strings.Contains(err.Error(), "FlightEdge has no read shape") {
			t.Fatalf("expected missing read shape error, got %v", err)
		}
	})
	t.Run("unregistered", func(t *testing.T) {
		update := maps.Clone(createToUpdate)
		update["AsteroidNode"] = "AsteroidNodeUpdate"
		if _, err := NewFromTables(reg, update, createToRead); !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
	t.Run("role reuse", func(t *testing.T) {
		read := maps.Clone(createToRead)
		read["Element"] = "ResourceContainer"
		if _, err := NewFromTables(reg, createToUpdate, read); !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}
