package core

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"spacenet/internal/logging"
	"spacenet/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func TestServiceObservabilityCoversOperations(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := NewJSONTracer(nil)

	svc := newInMemoryService(t, nil,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	node, _, err := svc.CreateFromPayload(ctx, domain.KindNode, ksc())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !audit.has("create_node", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == node.ID() && e.Kind == domain.KindNode && e.Action == domain.ActionCreate && e.Timestamp.Equal(fixed)
	}) {
		t.Fatalf("expected audit entry for create_node: %+v", audit.entries)
	}
	if _, err := svc.Get(ctx, domain.KindNode, node.ID()); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, _, err := svc.Delete(ctx, domain.KindNode, "404"); err == nil {
		t.Fatalf("expected delete of missing node to fail")
	}
	if !audit.has("delete_node", AuditStatusError, func(e AuditEntry) bool { return strings.Contains(e.Error, "not found") }) {
		t.Fatalf("expected audit error entry for delete_node")
	}
	if !metrics.has("delete_node", false) || !metrics.has("get_node", true) {
		t.Fatalf("unexpected metrics calls: %+v", metrics.calls)
	}
	for _, e := range audit.entries {
		if e.Operation == "get_node" {
			t.Fatalf("reads must not be audited")
		}
	}

	entries := tracer.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(entries))
	}
	if entries[2].Operation != "delete_node" || entries[2].Status != "error" || entries[2].Error == "" {
		t.Fatalf("unexpected failing span: %+v", entries[2])
	}
}

func TestServiceLogsFailuresAndRuleWarnings(t *testing.T) {
	var buf bytes.Buffer
	svc := newInMemoryService(t, NewDefaultRulesEngine(), WithLogger(logging.NewWithWriter(&buf, slog.LevelDebug)))
	ctx := context.Background()

	if _, err := svc.Get(ctx, domain.KindEdge, "9"); err == nil {
		t.Fatalf("expected missing edge")
	}
	_, _, err := svc.CreateFromPayload(ctx, domain.KindEdge, map[string]any{
		"type": "Space", "name": "TLI", "description": "trans-lunar injection",
		"origin_id": 1, "destination_id": 2, "duration": 3.0,
	})
	if err != nil {
		t.Fatalf("create edge: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"operation failed", "op=get_edge", "err=", "rule violation", "rule=edge_endpoints", "operation completed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder("spacenet_test", reg)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	svc := newInMemoryService(t, nil, WithMetricsRecorder(rec))
	ctx := context.Background()
	if _, _, err := svc.CreateFromPayload(ctx, domain.KindNode, ksc()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Get(ctx, domain.KindNode, "2"); err == nil {
		t.Fatalf("expected not found")
	}
	rec.Observe(ctx, "", true, time.Second)

	if got := promtestutil.ToFloat64(rec.operations.WithLabelValues("create_node", "success")); got != 1 {
		t.Fatalf("expected one successful create, got %v", got)
	}
	if got := promtestutil.ToFloat64(rec.operations.WithLabelValues("get_node", "error")); got != 1 {
		t.Fatalf("expected one failed get, got %v", got)
	}
	if n := promtestutil.CollectAndCount(rec.duration); n != 2 {
		t.Fatalf("expected two latency series, got %d", n)
	}
	if _, err := NewPrometheusMetricsRecorder("spacenet_test", reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "list_resource")
	span.End(nil)
	if !strings.Contains(buf.String(), `"operation":"list_resource"`) || !strings.Contains(buf.String(), `"status":"success"`) {
		t.Fatalf("unexpected trace output: %s", buf.String())
	}
}

func TestLogAuditRecorder(t *testing.T) {
	var buf bytes.Buffer
	rec := NewLogAuditRecorder(logging.NewWithWriter(&buf, slog.LevelInfo))
	rec.Record(context.Background(), AuditEntry{Operation: "update_element", Kind: domain.KindElement, EntityID: "abc", Status: AuditStatusError, Error: "boom"})
	out := buf.String()
	if !strings.Contains(out, "op=update_element") || !strings.Contains(out, "err=boom") {
		t.Fatalf("unexpected audit log: %s", out)
	}
}

func TestNoopObservabilityDefaults(t *testing.T) {
	svc := NewService(nil, Model{})
	if svc.logger == nil || svc.metrics == nil || svc.tracer == nil || svc.audit == nil || svc.clock == nil {
		t.Fatalf("expected defaults to be installed")
	}
	WithLogger(nil)(svc)
	WithTracer(nil)(svc)
	if svc.logger == nil || svc.tracer == nil {
		t.Fatalf("nil options must keep defaults")
	}
	ctx, span := svc.tracer.Start(context.Background(), "x")
	span.End(nil)
	svc.metrics.Observe(ctx, "x", true, 0)
	svc.audit.Record(ctx, AuditEntry{})
}
