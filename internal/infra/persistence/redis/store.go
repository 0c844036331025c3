// Package redis persists entity rows to Redis. Each row is a JSON document
// under <prefix><table>:<id>; a sorted set per table scored by position keeps
// insertion order and a <prefix>counters hash keeps each table's id sequence
// and position. Transactions run against the in-memory store and the
// committed change set is written through in one MULTI/EXEC pipeline.
package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	backend "github.com/redis/go-redis/v9"

	"spacenet/internal/codec"
	"spacenet/internal/infra/persistence/memory"
	"spacenet/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPrefix = "spacenet:"

// Layout reports the columns of each kind's table.
type Layout interface {
	Layout(kind domain.EntityKind) []codec.Column
}

// Store writes every committed change set through to Redis.
type Store struct {
	*memory.Store
	client *backend.Client
	layout Layout
	prefix string
}

// Option configures the store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New connects to Redis at address and hydrates the store.
func New(ctx context.Context, address, password string, db int, layout Layout, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	store, err := NewFromClient(ctx, client, layout, engine, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// NewFromClient creates a store from an existing client, loading every row
// already present under the prefix.
func NewFromClient(ctx context.Context, client *backend.Client, layout Layout, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	s := &Store{client: client, layout: layout, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	snapshot, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.Store = memory.NewStore(engine)
	s.Store.ImportState(snapshot)
	s.Store.SetCommitHook(s.persist)
	return s, nil
}

func (s *Store) key(kind domain.EntityKind, id string) string {
	return s.prefix + kind.Table() + ":" + id
}

func (s *Store) indexKey(kind domain.EntityKind) string {
	return s.prefix + kind.Table() + ":index"
}

func (s *Store) countersKey() string {
	return s.prefix + "counters"
}

func sequenceField(kind domain.EntityKind) string { return kind.Table() + ":sequence" }
func positionField(kind domain.EntityKind) string { return kind.Table() + ":position" }

// document is the JSON form of a stored row.
type document struct {
	ID       string         `json:"id"`
	Position int64          `json:"position"`
	Type     string         `json:"type"`
	Columns  map[string]any `json:"columns"`
}

func (s *Store) load(ctx context.Context) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Tables:    make(map[domain.EntityKind][]domain.Row),
		Sequences: make(map[domain.EntityKind]int64),
		Positions: make(map[domain.EntityKind]int64),
	}
	counters, err := s.client.HGetAll(ctx, s.countersKey()).Result()
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("failed to get counters: %w", err)
	}
	for _, kind := range domain.Kinds() {
		var c memory.Counter
		if c.Sequence, err = counterValue(counters, sequenceField(kind)); err != nil {
			return memory.Snapshot{}, err
		}
		if c.Position, err = counterValue(counters, positionField(kind)); err != nil {
			return memory.Snapshot{}, err
		}
		snapshot.SetCounter(kind, c)
	}
	for _, kind := range domain.Kinds() {
		ids, err := s.client.ZRange(ctx, s.indexKey(kind), 0, -1).Result()
		if err != nil {
			return memory.Snapshot{}, fmt.Errorf("failed to list %s: %w", kind.Table(), err)
		}
		if len(ids) == 0 {
			continue
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.key(kind, id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return memory.Snapshot{}, fmt.Errorf("failed to get %s: %w", kind.Table(), err)
		}
		classes := columnClasses(s.layout.Layout(kind))
		rows := make([]domain.Row, 0, len(values))
		for i, raw := range values {
			str, ok := raw.(string)
			if !ok {
				// Index entry without a document; the row was removed out of band.
				continue
			}
			row, err := decodeDocument(str, classes)
			if err != nil {
				return memory.Snapshot{}, fmt.Errorf("failed to decode %s: %w", keys[i], err)
			}
			rows = append(rows, row)
		}
		snapshot.Tables[kind] = rows
	}
	return snapshot, nil
}

func counterValue(counters map[string]string, field string) (int64, error) {
	raw, ok := counters[field]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter %s: %w", field, err)
	}
	return n, nil
}

func columnClasses(cols []codec.Column) map[string]codec.StorageClass {
	out := make(map[string]codec.StorageClass, len(cols))
	for _, c := range cols {
		out[c.Name] = c.Class
	}
	return out
}

func decodeDocument(raw string, classes map[string]codec.StorageClass) (domain.Row, error) {
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return domain.Row{}, err
	}
	row := domain.Row{
		ID:       doc.ID,
		Position: doc.Position,
		Type:     domain.Discriminant(doc.Type),
		Columns:  make(map[string]any, len(doc.Columns)),
	}
	for name, value := range doc.Columns {
		if value == nil {
			continue
		}
		num, ok := value.(json.Number)
		if !ok {
			row.Columns[name] = value
			continue
		}
		var err error
		switch classes[name] {
		case codec.ClassInteger:
			row.Columns[name], err = num.Int64()
		default:
			row.Columns[name], err = num.Float64()
		}
		if err != nil {
			return domain.Row{}, fmt.Errorf("column %s: %w", name, err)
		}
	}
	return row, nil
}

func (s *Store) persist(ctx context.Context, changes []domain.Change, counters map[domain.EntityKind]memory.Counter) error {
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		for _, change := range changes {
			switch change.Action {
			case domain.ActionCreate, domain.ActionUpdate:
				if change.After == nil {
					return fmt.Errorf("%s %s without row", change.Action, change.Kind)
				}
				row := change.After
				data, err := json.Marshal(document{ID: row.ID, Position: row.Position, Type: string(row.Type), Columns: row.Columns})
				if err != nil {
					return fmt.Errorf("failed to marshal row: %w", err)
				}
				pipe.Set(ctx, s.key(change.Kind, row.ID), data, 0)
				pipe.ZAdd(ctx, s.indexKey(change.Kind), backend.Z{Score: float64(row.Position), Member: row.ID})
			case domain.ActionDelete:
				if change.Before == nil {
					return fmt.Errorf("delete %s without row", change.Kind)
				}
				pipe.Del(ctx, s.key(change.Kind, change.Before.ID))
				pipe.ZRem(ctx, s.indexKey(change.Kind), change.Before.ID)
			default:
				return fmt.Errorf("unsupported action %q", change.Action)
			}
		}
		for kind, c := range counters {
			pipe.HSet(ctx, s.countersKey(), sequenceField(kind), c.Sequence, positionField(kind), c.Position)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Client exposes the underlying redis client.
func (s *Store) Client() *backend.Client { return s.client }

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
