package core

import (
	"context"
	"log/slog"
	"time"

	"spacenet/internal/logging"
	"spacenet/pkg/domain"
)

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation error, nil on success.
type TraceSpan interface {
	End(err error)
}

// AuditStatus is the outcome recorded for an operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed service operation.
type AuditEntry struct {
	Operation string
	Kind      domain.EntityKind
	Action    domain.Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry for every mutating operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Clock supplies timestamps for audit entries.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithClock overrides the audit clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

func defaultObservability(s *Service) {
	s.logger = logging.NewNop()
	s.metrics = noopMetrics{}
	s.tracer = noopTracer{}
	s.audit = noopAudit{}
	s.clock = ClockFunc(time.Now)
}

// operation names a service call, e.g. "create_node".
func operation(action domain.Action, kind domain.EntityKind) string {
	return string(action) + "_" + string(kind)
}

// observation tracks a running operation until finish is called.
type observation struct {
	svc     *Service
	op      string
	kind    domain.EntityKind
	action  domain.Action
	span    TraceSpan
	started time.Time
}

func (s *Service) observe(ctx context.Context, kind domain.EntityKind, action domain.Action) (context.Context, *observation) {
	op := operation(action, kind)
	ctx, span := s.tracer.Start(ctx, op)
	return ctx, &observation{svc: s, op: op, kind: kind, action: action, span: span, started: time.Now()}
}

// finish records metrics, the span, the audit entry for mutations and a log line.
func (o *observation) finish(ctx context.Context, id string, err error) {
	elapsed := time.Since(o.started)
	o.svc.metrics.Observe(ctx, o.op, err == nil, elapsed)
	o.span.End(err)
	if err != nil {
		o.svc.logger.Warn("operation failed", "op", o.op, "id", id, "error", err)
	} else {
		o.svc.logger.Debug("operation completed", "op", o.op, "id", id, "duration", elapsed)
	}
	if o.action == actionRead || o.action == actionList {
		return
	}
	entry := AuditEntry{
		Operation: o.op,
		Kind:      o.kind,
		Action:    o.action,
		EntityID:  id,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: o.svc.clock.Now().UTC(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	o.svc.audit.Record(ctx, entry)
}

// Read-only operations are traced and measured but not audited.
const (
	actionRead domain.Action = "get"
	actionList domain.Action = "list"
)
