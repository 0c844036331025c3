// Package domain defines the entity kinds, variant discriminants, storage rows
// and rule evaluation primitives shared by the spacenet schema and stores.
package domain

import (
	"fmt"
	"maps"
	"strings"
)

// EntityKind identifies one closed family of polymorphic records.
type EntityKind string

// Supported entity kinds. Each kind is persisted in its own table.
const (
	// KindNode identifies network nodes.
	KindNode EntityKind = "node"
	// KindEdge identifies network edges between nodes.
	KindEdge EntityKind = "edge"
	// KindElement identifies mission elements (carriers, agents, vehicles).
	KindElement EntityKind = "element"
	// KindResource identifies mass/volume resources.
	KindResource EntityKind = "resource"
)

var kinds = []EntityKind{KindNode, KindEdge, KindElement, KindResource}

// Kinds returns every entity kind in a stable order.
func Kinds() []EntityKind {
	return append([]EntityKind(nil), kinds...)
}

// Valid reports whether k names a known kind.
func (k EntityKind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Table returns the storage table name for the kind.
func (k EntityKind) Table() string {
	return string(k) + "s"
}

// ParseKind resolves a kind name, accepting singular or plural forms.
func ParseKind(raw string) (EntityKind, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimSuffix(name, "s")
	kind := EntityKind(name)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", raw)
	}
	return kind, nil
}

// Discriminant is the `type` literal selecting a variant within a kind.
type Discriminant string

// Node variants.
const (
	NodeSurface  Discriminant = "Surface"
	NodeOrbital  Discriminant = "Orbital"
	NodeLagrange Discriminant = "Lagrange"
)

// Edge variants.
const (
	EdgeSurface Discriminant = "Surface"
	EdgeSpace   Discriminant = "Space"
	EdgeFlight  Discriminant = "Flight"
)

// Element variants.
const (
	ElementPlain             Discriminant = "Element"
	ElementResourceContainer Discriminant = "ResourceContainer"
	ElementCarrier           Discriminant = "ElementCarrier"
	ElementHumanAgent        Discriminant = "HumanAgent"
	ElementRoboticAgent      Discriminant = "RoboticAgent"
	ElementSurfaceVehicle    Discriminant = "SurfaceVehicle"
	ElementPropulsiveVehicle Discriminant = "PropulsiveVehicle"
)

// Resource variants.
const (
	ResourceContinuous Discriminant = "Continuous"
	ResourceDiscrete   Discriminant = "Discrete"
)

// Body enumerates the celestial bodies a node can reference.
type Body string

// Supported bodies.
const (
	BodySun   Body = "Sun"
	BodyEarth Body = "Earth"
	BodyMoon  Body = "Moon"
	BodyMars  Body = "Mars"
)

// Bodies lists every body literal.
func Bodies() []string {
	return []string{string(BodySun), string(BodyEarth), string(BodyMoon), string(BodyMars)}
}

// Environment enumerates element environments.
type Environment string

// Supported environments.
const (
	EnvironmentPressurized   Environment = "Pressurized"
	EnvironmentUnpressurized Environment = "Unpressurized"
)

// Environments lists every environment literal.
func Environments() []string {
	return []string{string(EnvironmentPressurized), string(EnvironmentUnpressurized)}
}

// Class of supply bounds. Zero means unassigned; 1..10 are the SpaceNet classes.
const (
	ClassOfSupplyMin = 0
	ClassOfSupplyMax = 10
)

// Role names one of the three projections derived from a variant.
type Role string

// Projection roles.
const (
	RoleCreate Role = "create"
	RoleUpdate Role = "update"
	RoleRead   Role = "read"
)

// IdentityMode selects who assigns a record identity.
type IdentityMode string

const (
	// IdentitySequence ids are assigned by the store as increasing integers.
	IdentitySequence IdentityMode = "sequence"
	// IdentityUUID ids are generated by the schema layer at construction.
	IdentityUUID IdentityMode = "uuid"
)

// Row is the storage representation of one record. Columns hold the encoded
// variant fields keyed by storage column name; nil values are SQL NULLs.
type Row struct {
	ID       string
	Position int64
	Type     Discriminant
	Columns  map[string]any
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	cp := r
	if r.Columns != nil {
		cp.Columns = maps.Clone(r.Columns)
	}
	return cp
}

// Change describes a mutation applied to a record during a transaction.
type Change struct {
	Kind   EntityKind
	Action Action
	Before *Row
	After  *Row
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates a record was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates a record was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule severities.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Kind     EntityKind
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
