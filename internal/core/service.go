// Package core dispatches create, get, update, delete and list calls for every
// entity kind onto a persistent store, converting between shape instances and
// storage rows.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"spacenet/internal/codec"
	"spacenet/internal/mapping"
	"spacenet/internal/schema"
	"spacenet/pkg/domain"
)

// DefaultListLimit is the page size used when a caller does not pick one.
const DefaultListLimit = 100

// Model bundles the immutable schema components built once at startup.
type Model struct {
	Registry *schema.Registry
	Mapping  *mapping.Mapping
	Encoder  *codec.Encoder
}

// NewModel builds the registry, mapping and encoder for the SpaceNet catalog.
// Any error is a ConfigurationError and must stop the process.
func NewModel() (Model, error) {
	reg, err := schema.NewCatalogRegistry()
	if err != nil {
		return Model{}, err
	}
	m, err := mapping.New(reg)
	if err != nil {
		return Model{}, err
	}
	enc, err := codec.New(reg, m)
	if err != nil {
		return Model{}, err
	}
	return Model{Registry: reg, Mapping: m, Encoder: enc}, nil
}

// Record is a stored entity in its read shape.
type Record struct {
	*schema.Instance
}

// Service exposes transactional CRUD over every entity kind.
type Service struct {
	store   domain.PersistentStore
	model   Model
	logger  *slog.Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	clock   Clock
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, model Model, opts ...ServiceOption) *Service {
	s := &Service{store: store, model: model}
	defaultObservability(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Model returns the schema components the service dispatches through.
func (s *Service) Model() Model { return s.model }

func roleError(inst *schema.Instance, want domain.Role) error {
	verr := &domain.ValidationError{Kind: inst.Kind(), Variant: inst.Variant(), Shape: inst.Shape().Name()}
	verr.Add(schema.TypeField, string(inst.Variant()), fmt.Sprintf("shape %s is not a %s shape", inst.Shape().Name(), want))
	return verr
}

func (s *Service) decode(kind domain.EntityKind, row domain.Row) (Record, error) {
	inst, err := s.model.Encoder.Decode(kind, row)
	if err != nil {
		return Record{}, err
	}
	return Record{Instance: inst}, nil
}

// Create inserts a create-shape instance and returns the stored read shape
// carrying its assigned identity.
func (s *Service) Create(ctx context.Context, inst *schema.Instance) (Record, domain.Result, error) {
	ctx, obs := s.observe(ctx, inst.Kind(), domain.ActionCreate)
	var created Record
	res, err := s.create(ctx, inst, &created)
	obs.finish(ctx, created.id(), err)
	s.logWarnings(res)
	return created, res, err
}

func (s *Service) create(ctx context.Context, inst *schema.Instance, out *Record) (domain.Result, error) {
	if !s.model.Mapping.IsCreateShape(inst.Shape().Name()) {
		return domain.Result{}, roleError(inst, domain.RoleCreate)
	}
	row, err := s.model.Encoder.ToStorage(inst)
	if err != nil {
		return domain.Result{}, err
	}
	kind := inst.Kind()
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		stored, err := tx.Insert(kind, row)
		if err != nil {
			return err
		}
		*out, err = s.decode(kind, stored)
		return err
	})
}

// CreateFromPayload resolves the create shape from the payload's "type" and
// creates the record.
func (s *Service) CreateFromPayload(ctx context.Context, kind domain.EntityKind, payload map[string]any) (Record, domain.Result, error) {
	inst, err := s.instance(kind, domain.RoleCreate, payload)
	if err != nil {
		return Record{}, domain.Result{}, err
	}
	return s.Create(ctx, inst)
}

// Get returns the record with id.
func (s *Service) Get(ctx context.Context, kind domain.EntityKind, id string) (Record, error) {
	ctx, obs := s.observe(ctx, kind, actionRead)
	var rec Record
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		row, ok := v.Find(kind, id)
		if !ok {
			return domain.NotFoundError{Kind: kind, ID: id}
		}
		var err error
		rec, err = s.decode(kind, row)
		return err
	})
	obs.finish(ctx, id, err)
	return rec, err
}

// Update merges an update-shape patch into the stored record. Present values
// overwrite, explicit nulls clear nullable fields and absent fields are kept.
// A patch whose discriminant differs from the stored one fails with a
// ConflictError and leaves the record untouched.
func (s *Service) Update(ctx context.Context, kind domain.EntityKind, id string, patch *schema.Instance) (Record, domain.Result, error) {
	ctx, obs := s.observe(ctx, kind, domain.ActionUpdate)
	var updated Record
	res, err := s.update(ctx, kind, id, patch, &updated)
	obs.finish(ctx, id, err)
	s.logWarnings(res)
	return updated, res, err
}

func (s *Service) update(ctx context.Context, kind domain.EntityKind, id string, patch *schema.Instance, out *Record) (domain.Result, error) {
	if !s.model.Mapping.IsUpdateShape(patch.Shape().Name()) {
		return domain.Result{}, roleError(patch, domain.RoleUpdate)
	}
	if patch.Kind() != kind {
		return domain.Result{}, fmt.Errorf("%s patch applied to %s %s: %w", patch.Kind(), kind, id, domain.ErrValidation)
	}
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		existing, ok := tx.Find(kind, id)
		if !ok {
			return domain.NotFoundError{Kind: kind, ID: id}
		}
		if existing.Type != patch.Variant() {
			return domain.ConflictError{Kind: kind, ID: id, Stored: existing.Type, Requested: patch.Variant()}
		}
		row, err := s.merge(kind, id, existing, patch)
		if err != nil {
			return err
		}
		stored, err := tx.Update(kind, id, func(r *domain.Row) error {
			r.Type = row.Type
			r.Columns = row.Columns
			return nil
		})
		if err != nil {
			return err
		}
		*out, err = s.decode(kind, stored)
		return err
	})
}

// merge applies the patch over the stored record in canonical field order and
// re-validates the result against the create shape.
func (s *Service) merge(kind domain.EntityKind, id string, existing domain.Row, patch *schema.Instance) (domain.Row, error) {
	current, err := s.model.Encoder.Decode(kind, existing)
	if err != nil {
		return domain.Row{}, err
	}
	merged := current.Canonical()
	for _, name := range patch.FieldOrder() {
		v := patch.Get(name)
		switch {
		case v.Present():
			merged[name] = v.Interface()
		case v.Null():
			merged[name] = nil
		}
	}
	createShape, err := s.model.Mapping.CreateFor(patch.Shape())
	if err != nil {
		return domain.Row{}, err
	}
	validated, err := createShape.NewWithIdentity(id, merged)
	if err != nil {
		return domain.Row{}, err
	}
	return s.model.Encoder.ToStorage(validated)
}

// UpdateFromPayload resolves the update shape from the payload's "type" and
// applies it to the record with id.
func (s *Service) UpdateFromPayload(ctx context.Context, kind domain.EntityKind, id string, payload map[string]any) (Record, domain.Result, error) {
	patch, err := s.instance(kind, domain.RoleUpdate, payload)
	if err != nil {
		return Record{}, domain.Result{}, err
	}
	return s.Update(ctx, kind, id, patch)
}

// Delete removes the record and returns its last read shape.
func (s *Service) Delete(ctx context.Context, kind domain.EntityKind, id string) (Record, domain.Result, error) {
	ctx, obs := s.observe(ctx, kind, domain.ActionDelete)
	var snapshot Record
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		removed, err := tx.Delete(kind, id)
		if err != nil {
			return err
		}
		snapshot, err = s.decode(kind, removed)
		return err
	})
	obs.finish(ctx, id, err)
	s.logWarnings(res)
	return snapshot, res, err
}

// List returns up to limit records after skipping offset, in insertion order.
func (s *Service) List(ctx context.Context, kind domain.EntityKind, offset, limit int) ([]Record, error) {
	ctx, obs := s.observe(ctx, kind, actionList)
	var out []Record
	err := s.list(ctx, kind, offset, limit, &out)
	obs.finish(ctx, "", err)
	return out, err
}

func (s *Service) list(ctx context.Context, kind domain.EntityKind, offset, limit int, out *[]Record) error {
	verr := &domain.ValidationError{Kind: kind, Shape: operation(actionList, kind)}
	if offset < 0 {
		verr.Add("offset", offset, "must be >= 0")
	}
	if limit < 1 {
		verr.Add("limit", limit, "must be >= 1")
	}
	if err := verr.OrNil(); err != nil {
		return err
	}
	return s.store.View(ctx, func(v domain.TransactionView) error {
		rows := v.List(kind)
		if offset >= len(rows) {
			return nil
		}
		end := len(rows)
		if limit < end-offset {
			end = offset + limit
		}
		rows = rows[offset:end]
		records := make([]Record, 0, len(rows))
		for _, row := range rows {
			rec, err := s.decode(kind, row)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		*out = records
		return nil
	})
}

// instance resolves the shape for the payload's discriminant and validates it.
func (s *Service) instance(kind domain.EntityKind, role domain.Role, payload map[string]any) (*schema.Instance, error) {
	verr := &domain.ValidationError{Kind: kind, Shape: fmt.Sprintf("%s %s payload", kind, role)}
	raw, ok := payload[schema.TypeField]
	if !ok || raw == nil {
		verr.Add(schema.TypeField, nil, "field required")
		return nil, verr
	}
	disc, ok := raw.(string)
	if !ok {
		verr.Add(schema.TypeField, raw, "must be a string")
		return nil, verr
	}
	shape, err := s.model.Mapping.ShapeFor(kind, domain.Discriminant(disc), role)
	if err != nil {
		return nil, err
	}
	return shape.New(payload)
}

func (s *Service) logWarnings(res domain.Result) {
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityBlock {
			continue
		}
		s.logger.Info("rule violation", "rule", v.Rule, "severity", v.Severity, "kind", v.Kind, "id", v.EntityID, "message", v.Message)
	}
}

func (r Record) id() string {
	if r.Instance == nil {
		return ""
	}
	return r.ID()
}
