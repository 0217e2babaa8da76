package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"multidept-session-trust/backend/internal/audit/domain"
)

// RequestInfoExtractor returns a request attribute (client IP, user agent) from the context.
type RequestInfoExtractor func(context.Context) string

// Event is one security event as reported by a component. Empty IP or user agent are filled
// from the request context.
type Event struct {
	Action        string
	Resource      string
	UserID        string
	Username      string
	DepartmentID  string
	SessionID     string
	Success       bool
	FailureReason string
	Details       map[string]any
	Severity      domain.Severity // defaults to info on success and warning on failure
	IPAddress     string
	UserAgent     string
}

// EventLogger records security events. LogSecurityEvent is best-effort: it never fails the
// caller and never blocks past the sink's bounded wait.
type EventLogger interface {
	LogSecurityEvent(ctx context.Context, e Event)
}

// Enqueuer accepts entries for persistence; *Sink implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, entry *domain.SecurityAuditLog) error
}

// Logger implements EventLogger on top of the sink.
type Logger struct {
	sink        Enqueuer
	ipExtractor RequestInfoExtractor
	uaExtractor RequestInfoExtractor
	now         func() time.Time
}

// NewLogger returns an EventLogger that enqueues to sink. Extractors may be nil.
func NewLogger(sink Enqueuer, ipExtractor, uaExtractor RequestInfoExtractor) *Logger {
	return &Logger{sink: sink, ipExtractor: ipExtractor, uaExtractor: uaExtractor, now: time.Now}
}

// LogSecurityEvent builds the audit entry and hands it to the sink.
func (l *Logger) LogSecurityEvent(ctx context.Context, e Event) {
	if l == nil || l.sink == nil {
		return
	}
	entry := l.entry(ctx, e)
	if err := l.sink.Enqueue(ctx, entry); err != nil {
		log.Debug().Err(err).Str("action", e.Action).Msg("audit enqueue failed")
	}
}

func (l *Logger) entry(ctx context.Context, e Event) *domain.SecurityAuditLog {
	severity := e.Severity
	if !severity.Valid() {
		severity = domain.SeverityInfo
		if !e.Success {
			severity = domain.SeverityWarning
		}
	}
	ip, ua := e.IPAddress, e.UserAgent
	if ip == "" {
		ip = "unknown"
		if l.ipExtractor != nil {
			if v := l.ipExtractor(ctx); v != "" {
				ip = v
			}
		}
	}
	if ua == "" && l.uaExtractor != nil {
		ua = l.uaExtractor(ctx)
	}
	var details string
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			log.Warn().Err(err).Str("action", e.Action).Msg("audit details not serializable")
		} else {
			details = string(raw)
		}
	}
	return &domain.SecurityAuditLog{
		ID:            uuid.New().String(),
		Action:        e.Action,
		Resource:      e.Resource,
		UserID:        e.UserID,
		Username:      e.Username,
		IsSuccess:     e.Success,
		FailureReason: e.FailureReason,
		Details:       details,
		IPAddress:     ip,
		UserAgent:     ua,
		DepartmentID:  e.DepartmentID,
		SessionID:     e.SessionID,
		Severity:      severity,
		Timestamp:     l.now().UTC(),
	}
}
