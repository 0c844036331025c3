package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"spacenet/pkg/domain"
)

type valueState uint8

const (
	stateAbsent valueState = iota
	stateNull
	statePresent
)

// Value is a field cell that distinguishes an omitted field from an explicit
// null and from a concrete value.
type Value struct {
	state valueState
	v     any
}

// Absent reports whether the field was not supplied.
func (v Value) Absent() bool { return v.state == stateAbsent }

// Null reports whether the field was explicitly null.
func (v Value) Null() bool { return v.state == stateNull }

// Present reports whether the field carries a concrete value.
func (v Value) Present() bool { return v.state == statePresent }

// Interface returns the concrete value, or nil for absent and null cells.
func (v Value) Interface() any { return v.v }

// Instance is a validated value of one shape. Instances are created per call
// and are not shared across goroutines.
type Instance struct {
	shape  Shape
	values map[string]Value
	id     string
}

// New validates payload against the shape and returns an instance. All field
// violations are reported together in one domain.ValidationError.
func (s Shape) New(payload map[string]any) (*Instance, error) {
	return s.build("", payload)
}

// NewWithIdentity builds an instance carrying an existing identity. It is used
// when re-validating a merged record, where a fresh identity must not be drawn.
func (s Shape) NewWithIdentity(id string, payload map[string]any) (*Instance, error) {
	return s.build(id, payload)
}

func (s Shape) build(id string, payload map[string]any) (*Instance, error) {
	verr := &domain.ValidationError{Kind: s.def.Kind, Variant: s.def.Discriminant, Shape: s.name}
	inst := &Instance{shape: s, values: make(map[string]Value, len(s.fields)), id: id}

	unknown := make([]string, 0)
	for key := range payload {
		if _, ok := s.index[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		verr.Add(key, payload[key], "unknown field")
	}

	for _, f := range s.fields {
		raw, supplied := payload[f.Name]
		switch {
		case !supplied || (raw == nil && s.role == domain.RoleUpdate && !f.Nullable):
			// An update treats null on a non-nullable field the same as omission.
			if f.Required {
				verr.Add(f.Name, nil, "field required")
				continue
			}
			if f.Nullable && s.role != domain.RoleUpdate {
				inst.values[f.Name] = Value{state: stateNull}
			}
		case raw == nil:
			if !f.Nullable {
				verr.Add(f.Name, nil, "may not be null")
				continue
			}
			inst.values[f.Name] = Value{state: stateNull}
		default:
			v, reason := f.Coerce(raw)
			if reason != "" {
				verr.Add(f.Name, raw, reason)
				continue
			}
			inst.values[f.Name] = Value{state: statePresent, v: v}
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if idv, ok := inst.values[IDField]; ok && idv.Present() {
		inst.id = formatID(idv.v)
	}
	if inst.id == "" && s.role == domain.RoleCreate && s.def.Identity == domain.IdentityUUID {
		inst.id = uuid.NewString()
	}
	if inst.id != "" && s.role == domain.RoleCreate && s.def.Identity == domain.IdentityUUID {
		inst.values[IDField] = Value{state: statePresent, v: inst.id}
	}
	return inst, nil
}

// Shape returns the shape the instance was validated against.
func (i *Instance) Shape() Shape { return i.shape }

// Kind returns the entity kind.
func (i *Instance) Kind() domain.EntityKind { return i.shape.def.Kind }

// Variant returns the discriminant.
func (i *Instance) Variant() domain.Discriminant { return i.shape.def.Discriminant }

// Role returns the projection role.
func (i *Instance) Role() domain.Role { return i.shape.role }

// ID returns the identity, empty for sequence-identified create instances.
func (i *Instance) ID() string { return i.id }

// Get returns a field cell.
func (i *Instance) Get(name string) Value { return i.values[name] }

// Fields returns supplied values (concrete and null) keyed by field name.
// Absent fields are omitted.
func (i *Instance) Fields() map[string]any {
	out := make(map[string]any, len(i.values))
	for name, v := range i.values {
		out[name] = v.v
	}
	return out
}

// Canonical returns the variant fields only, excluding identity.
func (i *Instance) Canonical() map[string]any {
	out := i.Fields()
	delete(out, IDField)
	return out
}

// Equal reports whether two instances carry the same shape and values.
func (i *Instance) Equal(other *Instance) bool {
	if i == nil || other == nil {
		return i == other
	}
	if i.shape.name != other.shape.name || i.id != other.id || len(i.values) != len(other.values) {
		return false
	}
	for name, v := range i.values {
		o, ok := other.values[name]
		if !ok || o.state != v.state || o.v != v.v {
			return false
		}
	}
	return true
}

// MarshalJSON writes supplied fields in canonical order.
func (i *Instance) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range i.shape.fields {
		v, ok := i.values[f.Name]
		if !ok || v.Absent() {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.v)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FieldOrder lists the names of supplied fields in canonical order.
func (i *Instance) FieldOrder() []string {
	var out []string
	for _, f := range i.shape.fields {
		if v, ok := i.values[f.Name]; ok && !v.Absent() {
			out = append(out, f.Name)
		}
	}
	return slices.Clip(out)
}

func formatID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}
