package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"time"

	"spacenet/internal/blob/core"
	svc "spacenet/internal/core"
	"spacenet/internal/logging"
	"spacenet/internal/schema"
	"spacenet/pkg/domain"
)

// loadOrder creates referenced kinds before the kinds that point at them.
var loadOrder = []domain.EntityKind{domain.KindResource, domain.KindNode, domain.KindEdge, domain.KindElement}

// references lists id fields that point at records of another kind.
var references = map[domain.EntityKind]map[string]domain.EntityKind{
	domain.KindEdge: {
		"origin_id":      domain.KindNode,
		"destination_id": domain.KindNode,
	},
	domain.KindElement: {
		"fuel_id":       domain.KindResource,
		"propellant_id": domain.KindResource,
	},
}

// Report summarises a load.
type Report struct {
	// Created counts records per kind.
	Created map[domain.EntityKind]int
	// IDs maps each document id to the id the store assigned.
	IDs map[domain.EntityKind]map[string]string
	// Warnings collects non-blocking rule violations.
	Warnings []domain.Violation
}

// Total counts created records across kinds.
func (r Report) Total() int {
	n := 0
	for _, c := range r.Created {
		n += c
	}
	return n
}

// Exporter copies service state to and from blob storage.
type Exporter struct {
	service *svc.Service
	blobs   core.Store
	logger  *slog.Logger
	now     func() time.Time
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithLogger sets the exporter logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock fixes the export timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExporter binds a service to a blob store.
func NewExporter(service *svc.Service, blobs core.Store, opts ...Option) *Exporter {
	e := &Exporter{service: service, blobs: blobs, logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot reads every record of every kind, paging through List.
func Snapshot(ctx context.Context, service *svc.Service) (Document, error) {
	doc := Document{Version: DocumentVersion}
	for _, kind := range domain.Kinds() {
		records := make([]map[string]any, 0)
		for offset := 0; ; offset += svc.DefaultListLimit {
			page, err := service.List(ctx, kind, offset, svc.DefaultListLimit)
			if err != nil {
				return Document{}, fmt.Errorf("list %s: %w", kind, err)
			}
			for _, rec := range page {
				records = append(records, rec.Fields())
			}
			if len(page) < svc.DefaultListLimit {
				break
			}
		}
		doc.set(kind, records)
	}
	return doc, nil
}

// Export writes a snapshot of the service to key.
func (e *Exporter) Export(ctx context.Context, key string, format Format, overwrite bool) (core.Info, error) {
	doc, err := Snapshot(ctx, e.service)
	if err != nil {
		return core.Info{}, err
	}
	doc.ExportedAt = e.now().UTC().Format(time.RFC3339)
	payload, err := Encode(doc, format)
	if err != nil {
		return core.Info{}, err
	}
	info, err := e.blobs.Put(ctx, key, bytes.NewReader(payload), core.PutOptions{
		ContentType: format.ContentType(),
		Metadata: map[string]string{
			"format":  string(format),
			"records": strconv.Itoa(doc.Len()),
		},
		Overwrite: overwrite,
	})
	if err != nil {
		return core.Info{}, fmt.Errorf("store dataset %s: %w", key, err)
	}
	e.logger.Info("dataset exported", "key", info.Key, "driver", e.blobs.Driver(), "records", doc.Len(), "bytes", info.Size)
	return info, nil
}

// Fetch reads and decodes the document stored at key.
func (e *Exporter) Fetch(ctx context.Context, key string) (Document, error) {
	info, rc, err := e.blobs.Get(ctx, key)
	if err != nil {
		return Document{}, fmt.Errorf("fetch dataset %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return Document{}, fmt.Errorf("read dataset %s: %w", key, err)
	}
	format := FormatForKey(key)
	if f, err := ParseFormat(info.Metadata["format"]); err == nil {
		format = f
	}
	return Decode(data, format)
}

// Import loads the document stored at key into the service.
func (e *Exporter) Import(ctx context.Context, key string) (Report, error) {
	doc, err := e.Fetch(ctx, key)
	if err != nil {
		return Report{}, err
	}
	report, err := Load(ctx, e.service, doc)
	if err != nil {
		return report, err
	}
	e.logger.Info("dataset imported", "key", key, "records", report.Total(), "warnings", len(report.Warnings))
	return report, nil
}

// Load creates every document record through the service. Sequence ids are
// reassigned by the store, so references between records are rewritten to
// the new ids. Element UUIDs are kept. Load stops at the first failure.
func Load(ctx context.Context, service *svc.Service, doc Document) (Report, error) {
	report := Report{
		Created: make(map[domain.EntityKind]int),
		IDs:     make(map[domain.EntityKind]map[string]string),
	}
	for _, kind := range loadOrder {
		identity, _ := service.Model().Registry.Identity(kind)
		ids := make(map[string]string)
		report.IDs[kind] = ids
		for i, record := range doc.Records(kind) {
			payload := make(map[string]any, len(record))
			for k, v := range record {
				payload[k] = v
			}
			oldID, hasID := payload[schema.IDField]
			if identity == domain.IdentitySequence {
				delete(payload, schema.IDField)
			}
			if err := rewriteReferences(kind, payload, report.IDs); err != nil {
				return report, fmt.Errorf("%s %d: %w", kind, i, err)
			}
			rec, res, err := service.CreateFromPayload(ctx, kind, payload)
			if err != nil {
				return report, fmt.Errorf("%s %d: %w", kind, i, err)
			}
			if hasID && oldID != nil {
				if key, err := idKey(oldID); err == nil {
					ids[key] = rec.ID()
				}
			}
			report.Created[kind]++
			report.Warnings = append(report.Warnings, res.Violations...)
		}
	}
	return report, nil
}

func rewriteReferences(kind domain.EntityKind, payload map[string]any, ids map[domain.EntityKind]map[string]string) error {
	for field, target := range references[kind] {
		raw, ok := payload[field]
		if !ok || raw == nil {
			continue
		}
		key, err := idKey(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		mapped, ok := ids[target][key]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(mapped, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: remapped id %q is not numeric", field, mapped)
		}
		payload[field] = n
	}
	return nil
}

var errBadID = errors.New("id must be an integer or string")

// idKey normalises the numeric forms decoders produce for an id.
func idKey(v any) (string, error) {
	switch id := v.(type) {
	case string:
		return id, nil
	case int:
		return strconv.Itoa(id), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case uint64:
		return strconv.FormatUint(id, 10), nil
	case float64:
		if id != math.Trunc(id) {
			return "", errBadID
		}
		return strconv.FormatInt(int64(id), 10), nil
	case json.Number:
		if n, err := id.Int64(); err == nil {
			return strconv.FormatInt(n, 10), nil
		}
		return "", errBadID
	}
	return "", errBadID
}
