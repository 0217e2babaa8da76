// Package telemetry defines the observability collaborator the security core reports to.
package telemetry

import (
	"context"

	"github.com/rs/zerolog/log"

	"multidept-session-trust/backend/internal/audit/domain"
)

// Observer receives health signals from the audit sink and the session manager.
// Implementations must return quickly; they are called on request paths.
type Observer interface {
	// AuditDropped is called when an audit event was discarded to make room or after the bounded wait.
	AuditDropped(ctx context.Context, entry *domain.SecurityAuditLog, reason string)
	// AuditSinkFailed is called when an audit event could not be persisted after all retries.
	AuditSinkFailed(ctx context.Context, entry *domain.SecurityAuditLog, err error)
	// DetectorDegraded is called when risk evaluation ran with incomplete data.
	DetectorDegraded(ctx context.Context, sessionID, reason string)
}

// LogObserver reports to the process log only. Used when OpenTelemetry export is disabled.
type LogObserver struct{}

func (LogObserver) AuditDropped(_ context.Context, entry *domain.SecurityAuditLog, reason string) {
	log.Warn().Str("action", entry.Action).Str("severity", string(entry.Severity)).Str("reason", reason).Msg("audit event dropped")
}

func (LogObserver) AuditSinkFailed(_ context.Context, entry *domain.SecurityAuditLog, err error) {
	log.Error().Err(err).Str("action", entry.Action).Str("audit_id", entry.ID).Msg("audit event not persisted")
}

func (LogObserver) DetectorDegraded(_ context.Context, sessionID, reason string) {
	log.Info().Str("session", ShortID(sessionID)).Str("reason", reason).Msg("risk evaluation degraded")
}

// ShortID truncates a session id for logs so that full session identifiers never reach log storage.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "…"
}
