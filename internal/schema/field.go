// Package schema holds the canonical variant definitions for every entity kind
// and derives the create, update and read shapes from them.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"spacenet/pkg/domain"
)

// FieldType is the logical type of a canonical field.
type FieldType string

// Supported field types.
const (
	TypeString       FieldType = "string"
	TypeFloat        FieldType = "float"
	TypeInteger      FieldType = "integer"
	TypeEnum         FieldType = "enum"
	TypeUUID         FieldType = "uuid"
	TypeDiscriminant FieldType = "discriminant"
)

// Reserved field names.
const (
	TypeField = "type"
	IDField   = "id"
)

// FieldSpec describes one canonical field and its constraints.
type FieldSpec struct {
	Name        string
	Type        FieldType
	Title       string
	Description string
	Min         *float64
	Max         *float64
	Enum        []string
	Nullable    bool
}

// String declares a text field.
func String(name string) FieldSpec { return FieldSpec{Name: name, Type: TypeString} }

// Float declares a floating-point field.
func Float(name string) FieldSpec { return FieldSpec{Name: name, Type: TypeFloat} }

// Integer declares an integer field.
func Integer(name string) FieldSpec { return FieldSpec{Name: name, Type: TypeInteger} }

// Enum declares a field restricted to the listed string members.
func Enum(name string, members ...string) FieldSpec {
	return FieldSpec{Name: name, Type: TypeEnum, Enum: slices.Clone(members)}
}

// UUID declares a UUID-valued field.
func UUID(name string) FieldSpec { return FieldSpec{Name: name, Type: TypeUUID} }

// Between bounds the field to [lo, hi].
func (f FieldSpec) Between(lo, hi float64) FieldSpec {
	f.Min, f.Max = &lo, &hi
	return f
}

// AtLeast sets an inclusive lower bound.
func (f FieldSpec) AtLeast(lo float64) FieldSpec {
	f.Min = &lo
	return f
}

// OrNull marks the field nullable.
func (f FieldSpec) OrNull() FieldSpec {
	f.Nullable = true
	return f
}

// Titled attaches documentation used by the OpenAPI export.
func (f FieldSpec) Titled(title, description string) FieldSpec {
	f.Title, f.Description = title, description
	return f
}

func (f FieldSpec) numeric() bool {
	return f.Type == TypeFloat || f.Type == TypeInteger
}

func (f FieldSpec) clone() FieldSpec {
	cp := f
	cp.Enum = slices.Clone(f.Enum)
	if f.Min != nil {
		lo := *f.Min
		cp.Min = &lo
	}
	if f.Max != nil {
		hi := *f.Max
		cp.Max = &hi
	}
	return cp
}

// check reports contradictions in the field declaration itself.
func (f FieldSpec) check() error {
	switch {
	case f.Name == "":
		return fmt.Errorf("field name required")
	case (f.Min != nil || f.Max != nil) && !f.numeric():
		return fmt.Errorf("field %s: bounds declared on %s field", f.Name, f.Type)
	case f.Min != nil && f.Max != nil && *f.Min > *f.Max:
		return fmt.Errorf("field %s: lower bound %v exceeds upper bound %v", f.Name, *f.Min, *f.Max)
	case f.Type == TypeEnum && len(f.Enum) == 0:
		return fmt.Errorf("field %s: enum without members", f.Name)
	case f.Type != TypeEnum && f.Type != TypeDiscriminant && len(f.Enum) > 0:
		return fmt.Errorf("field %s: members declared on %s field", f.Name, f.Type)
	}
	switch f.Type {
	case TypeString, TypeFloat, TypeInteger, TypeEnum, TypeUUID, TypeDiscriminant:
	default:
		return fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
	}
	seen := make(map[string]struct{}, len(f.Enum))
	for _, m := range f.Enum {
		if _, dup := seen[m]; dup {
			return fmt.Errorf("field %s: duplicate member %q", f.Name, m)
		}
		seen[m] = struct{}{}
	}
	return nil
}

// Coerce converts a raw payload value into the field's canonical Go type
// (string, float64, int64) and checks constraints. The returned reason is
// empty when the value is accepted.
func (f FieldSpec) Coerce(raw any) (any, string) {
	var (
		out    any
		reason string
	)
	switch f.Type {
	case TypeString:
		out, reason = asString(raw)
	case TypeEnum, TypeDiscriminant:
		s, r := asString(raw)
		if r != "" {
			return nil, r
		}
		if !slices.Contains(f.Enum, s) {
			return nil, fmt.Sprintf("must be one of %v", f.Enum)
		}
		out = s
	case TypeUUID:
		s, r := asString(raw)
		if id, ok := raw.(uuid.UUID); ok {
			s, r = id.String(), ""
		}
		if r != "" {
			return nil, r
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, "must be a UUID"
		}
		out = id.String()
	case TypeFloat:
		v, r := asFloat(raw)
		if r != "" {
			return nil, r
		}
		out, reason = v, f.checkBounds(v)
	case TypeInteger:
		v, r := asInteger(raw)
		if r != "" {
			return nil, r
		}
		out, reason = v, f.checkBounds(float64(v))
	}
	if reason != "" {
		return nil, reason
	}
	return out, ""
}

func (f FieldSpec) checkBounds(v float64) string {
	if f.Min != nil && v < *f.Min {
		return "must be >= " + formatBound(*f.Min)
	}
	if f.Max != nil && v > *f.Max {
		return "must be <= " + formatBound(*f.Max)
	}
	return ""
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func asString(raw any) (string, string) {
	switch v := raw.(type) {
	case string:
		return v, ""
	case domain.Body:
		return string(v), ""
	case domain.Environment:
		return string(v), ""
	case domain.Discriminant:
		return string(v), ""
	default:
		return "", "must be a string"
	}
}

func asFloat(raw any) (float64, string) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, "must be a finite number"
		}
		return v, ""
	case float32:
		return float64(v), ""
	case int:
		return float64(v), ""
	case int32:
		return float64(v), ""
	case int64:
		return float64(v), ""
	case uint:
		return float64(v), ""
	case uint32:
		return float64(v), ""
	case uint64:
		return float64(v), ""
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, "must be a number"
		}
		return f, ""
	default:
		return 0, "must be a number"
	}
}

// asInteger accepts integral values only. Fractional magnitudes are rejected
// rather than truncated or rounded.
func asInteger(raw any) (int64, string) {
	switch v := raw.(type) {
	case int:
		return int64(v), ""
	case int32:
		return int64(v), ""
	case int64:
		return v, ""
	case uint:
		return int64(v), ""
	case uint32:
		return int64(v), ""
	case uint64:
		if v > math.MaxInt64 {
			return 0, "out of integer range"
		}
		return int64(v), ""
	case float32:
		return wholeFloat(float64(v))
	case float64:
		return wholeFloat(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, ""
		}
		f, err := v.Float64()
		if err != nil {
			return 0, "must be an integer"
		}
		return wholeFloat(f)
	default:
		return 0, "must be an integer"
	}
}

func wholeFloat(v float64) (int64, string) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, "must be an integer"
	}
	if v > math.MaxInt64 || v < math.MinInt64 {
		return 0, "out of integer range"
	}
	return int64(v), ""
}
