package otel

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"

	"multidept-session-trust/backend/internal/audit/domain"
	"multidept-session-trust/backend/internal/telemetry"
)

const scope = "multidept-session-trust/backend"

// Observer counts audit drops, sink failures and degraded risk evaluations, and emits one OTel
// log record per signal. Each call is also written to the process log.
type Observer struct {
	telemetry.LogObserver

	logger   otellog.Logger
	dropped  metric.Int64Counter
	failures metric.Int64Counter
	degraded metric.Int64Counter
}

// NewObserver creates the instruments on mp. lp may be nil, in which case no log records are emitted.
func NewObserver(mp metric.MeterProvider, lp otellog.LoggerProvider) (*Observer, error) {
	meter := mp.Meter(scope)
	dropped, err := meter.Int64Counter("sessiontrust.audit.dropped",
		metric.WithDescription("Audit events discarded by the sink"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("sessiontrust.audit.sink_failures",
		metric.WithDescription("Audit events not persisted after all retries"))
	if err != nil {
		return nil, err
	}
	degraded, err := meter.Int64Counter("sessiontrust.detector.degraded",
		metric.WithDescription("Risk evaluations run with incomplete data"))
	if err != nil {
		return nil, err
	}
	o := &Observer{dropped: dropped, failures: failures, degraded: degraded}
	if lp != nil {
		o.logger = lp.Logger(scope)
	}
	return o, nil
}

func (o *Observer) AuditDropped(ctx context.Context, entry *domain.SecurityAuditLog, reason string) {
	o.LogObserver.AuditDropped(ctx, entry, reason)
	o.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", string(entry.Severity)),
		attribute.String("reason", reason),
	))
	o.emit(ctx, otellog.SeverityWarn, "audit event dropped",
		otellog.String("action", entry.Action),
		otellog.String("reason", reason))
}

func (o *Observer) AuditSinkFailed(ctx context.Context, entry *domain.SecurityAuditLog, err error) {
	o.LogObserver.AuditSinkFailed(ctx, entry, err)
	o.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", string(entry.Severity))))
	o.emit(ctx, otellog.SeverityError, "audit event not persisted",
		otellog.String("action", entry.Action),
		otellog.String("audit_id", entry.ID),
		otellog.String("error", err.Error()))
}

func (o *Observer) DetectorDegraded(ctx context.Context, sessionID, reason string) {
	o.LogObserver.DetectorDegraded(ctx, sessionID, reason)
	o.degraded.Add(ctx, 1)
	o.emit(ctx, otellog.SeverityInfo, "risk evaluation degraded",
		otellog.String("session", telemetry.ShortID(sessionID)),
		otellog.String("reason", reason))
}

func (o *Observer) emit(ctx context.Context, sev otellog.Severity, body string, attrs ...otellog.KeyValue) {
	if o.logger == nil {
		return
	}
	var rec otellog.Record
	rec.SetSeverity(sev)
	rec.SetBody(otellog.StringValue(body))
	rec.AddAttributes(attrs...)
	o.logger.Emit(ctx, rec)
}

// Must returns o, or the plain log observer when the instruments could not be created.
func Must(o *Observer, err error) telemetry.Observer {
	if err != nil {
		log.Warn().Err(err).Msg("otel observer unavailable, falling back to log")
		return telemetry.LogObserver{}
	}
	return o
}
