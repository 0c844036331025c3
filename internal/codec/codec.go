// Package codec translates validated shape instances to storage rows and back.
// Every kind is stored in one table holding the union of its variants'
// columns; fields that share a name but not a type across variants are stored
// under suffixed columns.
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"spacenet/internal/mapping"
	"spacenet/internal/schema"
	"spacenet/pkg/domain"
)

const component = "persistence encoder"

// StorageClass is the SQL affinity of a column.
type StorageClass string

// Storage classes used by the layouts.
const (
	ClassText    StorageClass = "TEXT"
	ClassReal    StorageClass = "REAL"
	ClassInteger StorageClass = "INTEGER"
)

// System column names present in every table.
const (
	ColumnID       = "id"
	ColumnPosition = "position"
	ColumnType     = "type"
)

// Column describes one storage column of a kind's table.
type Column struct {
	Name   string
	Class  StorageClass
	System bool
}

type fieldKey struct {
	disc  domain.Discriminant
	field string
}

// rename lists fields stored under a different column name for a variant.
var rename = map[domain.EntityKind]map[fieldKey]string{
	domain.KindResource: {
		{disc: domain.ResourceContinuous, field: "unit_mass"}:   "unit_mass_f",
		{disc: domain.ResourceContinuous, field: "unit_volume"}: "unit_volume_f",
		{disc: domain.ResourceDiscrete, field: "unit_mass"}:     "unit_mass_i",
		{disc: domain.ResourceDiscrete, field: "unit_volume"}:   "unit_volume_i",
	},
}

type binding struct {
	field  schema.FieldSpec
	column string
}

// Encoder converts between instances and rows. It is immutable after New.
type Encoder struct {
	reg      *schema.Registry
	mapping  *mapping.Mapping
	bindings map[domain.EntityKind]map[domain.Discriminant][]binding
	layouts  map[domain.EntityKind][]Column
}

// New builds an encoder over every registered variant. Two variants of the same
// kind that store different types in the same column are rejected.
func New(reg *schema.Registry, m *mapping.Mapping) (*Encoder, error) {
	e := &Encoder{
		reg:      reg,
		mapping:  m,
		bindings: make(map[domain.EntityKind]map[domain.Discriminant][]binding),
		layouts:  make(map[domain.EntityKind][]Column),
	}
	for _, kind := range domain.Kinds() {
		if err := e.buildKind(kind); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Encoder) buildKind(kind domain.EntityKind) error {
	layout := []Column{
		{Name: ColumnID, Class: ClassText, System: true},
		{Name: ColumnPosition, Class: ClassInteger, System: true},
		{Name: ColumnType, Class: ClassText, System: true},
	}
	classes := map[string]StorageClass{ColumnID: ClassText, ColumnPosition: ClassInteger, ColumnType: ClassText}
	owner := map[string]string{}
	byDisc := make(map[domain.Discriminant][]binding)

	for _, def := range e.reg.Variants(kind) {
		var bs []binding
		for _, f := range def.Fields() {
			if f.Name == schema.TypeField {
				continue
			}
			col := f.Name
			if renamed, ok := rename[kind][fieldKey{disc: def.Discriminant, field: f.Name}]; ok {
				col = renamed
			}
			class := classOf(f.Type)
			if prev, seen := classes[col]; seen {
				if prev != class {
					return domain.Configurationf(component, "%s column %s stored as %s by %s and %s by %s",
						kind.Table(), col, prev, owner[col], class, def.Discriminant)
				}
			} else {
				classes[col] = class
				owner[col] = string(def.Discriminant)
				layout = append(layout, Column{Name: col, Class: class})
			}
			bs = append(bs, binding{field: f, column: col})
		}
		byDisc[def.Discriminant] = bs
	}
	e.bindings[kind] = byDisc
	e.layouts[kind] = layout
	return nil
}

func classOf(t schema.FieldType) StorageClass {
	switch t {
	case schema.TypeFloat:
		return ClassReal
	case schema.TypeInteger:
		return ClassInteger
	default:
		return ClassText
	}
}

// Layout returns the columns of a kind's table: system columns first, then the
// union of variant columns in registration order.
func (e *Encoder) Layout(kind domain.EntityKind) []Column {
	return append([]Column(nil), e.layouts[kind]...)
}

// ColumnNames returns the column names of Layout(kind).
func (e *Encoder) ColumnNames(kind domain.EntityKind) []string {
	cols := e.layouts[kind]
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// ToStorage encodes a create or read instance into a row. Columns of other
// variants are not set. The row ID is the instance identity, empty when the
// store is expected to assign one.
func (e *Encoder) ToStorage(inst *schema.Instance) (domain.Row, error) {
	if inst.Role() == domain.RoleUpdate {
		return domain.Row{}, fmt.Errorf("encode %s: update instances are not stored", inst.Shape().Name())
	}
	bs, ok := e.bindings[inst.Kind()][inst.Variant()]
	if !ok {
		return domain.Row{}, domain.Configurationf(component, "no storage binding for %s %s", inst.Kind(), inst.Variant())
	}
	row := domain.Row{
		ID:      inst.ID(),
		Type:    inst.Variant(),
		Columns: make(map[string]any, len(bs)),
	}
	for _, b := range bs {
		v := inst.Get(b.field.Name)
		if v.Absent() && !b.field.Nullable {
			return domain.Row{}, fmt.Errorf("encode %s: field %s missing", inst.Shape().Name(), b.field.Name)
		}
		row.Columns[b.column] = v.Interface()
	}
	return row, nil
}

// ToSchema decodes a row into a read-shape payload keyed by field name,
// including "type" and "id". Only the row's variant columns are consulted.
func (e *Encoder) ToSchema(kind domain.EntityKind, row domain.Row) (map[string]any, error) {
	bs, ok := e.bindings[kind][row.Type]
	if !ok {
		return nil, domain.Configurationf(component, "%s row %s has unregistered type %q", kind, row.ID, row.Type)
	}
	payload := make(map[string]any, len(bs)+2)
	payload[schema.TypeField] = string(row.Type)
	id, err := e.decodeID(kind, row.ID)
	if err != nil {
		return nil, err
	}
	payload[schema.IDField] = id
	for _, b := range bs {
		raw := row.Columns[b.column]
		if raw == nil {
			payload[b.field.Name] = nil
			continue
		}
		v, err := normalise(b.field.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s %s column %s: %w", kind, row.ID, b.column, err)
		}
		payload[b.field.Name] = v
	}
	return payload, nil
}

// Decode turns a row into a validated read instance.
func (e *Encoder) Decode(kind domain.EntityKind, row domain.Row) (*schema.Instance, error) {
	payload, err := e.ToSchema(kind, row)
	if err != nil {
		return nil, err
	}
	shape, err := e.mapping.ShapeFor(kind, row.Type, domain.RoleRead)
	if err != nil {
		return nil, err
	}
	return shape.New(payload)
}

func (e *Encoder) decodeID(kind domain.EntityKind, id string) (any, error) {
	mode, _ := e.reg.Identity(kind)
	if mode == domain.IdentityUUID {
		return id, nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode %s id %q: %w", kind, id, err)
	}
	return n, nil
}

// normalise maps a driver value onto the Go type the schema layer expects.
// SQL drivers hand back int64/float64/string or []byte; JSON-backed stores
// hand back float64 or json.Number.
func normalise(t schema.FieldType, raw any) (any, error) {
	switch t {
	case schema.TypeInteger:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("fractional value %v in integer column", v)
			}
			return int64(v), nil
		case json.Number:
			return v.Int64()
		case []byte:
			return strconv.ParseInt(string(v), 10, 64)
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
	case schema.TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case json.Number:
			return v.Float64()
		case []byte:
			return strconv.ParseFloat(string(v), 64)
		case string:
			return strconv.ParseFloat(v, 64)
		}
	default:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s column", raw, t)
}
