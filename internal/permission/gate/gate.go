// Package gate is the per-request authorization check. Every decision produces exactly one
// audit event; the decision never waits on the audit write.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"multidept-session-trust/backend/internal/audit"
	"multidept-session-trust/backend/internal/audit/domain"
	permdomain "multidept-session-trust/backend/internal/permission/domain"
	"multidept-session-trust/backend/internal/permission/engine"
	permrepo "multidept-session-trust/backend/internal/permission/repository"
	"multidept-session-trust/backend/internal/telemetry"
	userrepo "multidept-session-trust/backend/internal/user/repository"
)

// ActionPermissionCheck is the audit action recorded for every decision.
const ActionPermissionCheck = "permission_check"

// CheckRequest describes one authorization question. DepartmentID is the target department;
// empty means the caller's own.
type CheckRequest struct {
	UserID       string
	Permission   string
	DepartmentID string
	SessionID    string
	IPAddress    string
	UserAgent    string
}

// FailureRecorder counts denied requests against the caller's session.
type FailureRecorder interface {
	RecordFailedAccess(ctx context.Context, sessionID string) error
}

// Gate resolves permissions and records the outcome.
type Gate struct {
	users     userrepo.Repository
	perms     permrepo.Repository
	evaluator engine.Evaluator
	events    audit.EventLogger
	failures  FailureRecorder
	now       func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithFailureRecorder makes denials increment the session's failed access counter.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(g *Gate) { g.failures = r }
}

// WithClock overrides time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New returns a Gate. events may be nil, in which case decisions are not audited.
func New(users userrepo.Repository, perms permrepo.Repository, evaluator engine.Evaluator, events audit.EventLogger, opts ...Option) *Gate {
	g := &Gate{users: users, perms: perms, evaluator: evaluator, events: events, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// CheckPermission reports whether the user holds the permission for the target department.
// Lookup and policy failures deny and are returned as errors.
func (g *Gate) CheckPermission(ctx context.Context, req CheckRequest) (bool, error) {
	d := g.decide(ctx, req)

	ev := audit.Event{
		Action:        ActionPermissionCheck,
		Resource:      req.Permission,
		UserID:        req.UserID,
		Username:      d.username,
		DepartmentID:  d.department,
		SessionID:     req.SessionID,
		Success:       d.allowed,
		FailureReason: d.reason,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Details: map[string]any{
			"source":            d.source,
			"target_department": d.department,
		},
	}
	if d.err != nil {
		ev.Severity = domain.SeverityError
	}
	g.LogSecurityEvent(ctx, ev)

	if !d.allowed && req.SessionID != "" && g.failures != nil {
		if err := g.failures.RecordFailedAccess(ctx, req.SessionID); err != nil {
			log.Warn().Err(err).Str("session", telemetry.ShortID(req.SessionID)).Msg("record failed access")
		}
	}
	return d.allowed, d.err
}

// LogSecurityEvent forwards an event to the audit pipeline. It never blocks past the sink's
// bounded wait and never fails.
func (g *Gate) LogSecurityEvent(ctx context.Context, e audit.Event) {
	if g.events == nil {
		return
	}
	g.events.LogSecurityEvent(ctx, e)
}

type decision struct {
	allowed    bool
	source     string
	reason     string
	username   string
	department string
	err        error
}

func (g *Gate) decide(ctx context.Context, req CheckRequest) decision {
	d := decision{source: permdomain.SourceNone, department: req.DepartmentID}
	u, err := g.users.GetByID(ctx, req.UserID)
	if err != nil {
		d.reason = "user lookup failed"
		d.err = fmt.Errorf("get user: %w", err)
		return d
	}
	if u == nil {
		d.reason = "unknown user"
		return d
	}
	d.username = u.Username
	if d.department == "" {
		d.department = u.DepartmentID
	}
	if !u.IsActive {
		d.reason = "inactive user"
		return d
	}

	perm, err := g.perms.GetPermission(ctx, req.Permission)
	if err != nil {
		d.reason = "permission lookup failed"
		d.err = fmt.Errorf("get permission: %w", err)
		return d
	}
	roles, err := g.perms.RolePermissions(ctx, u.ID)
	if err != nil {
		d.reason = "permission lookup failed"
		d.err = fmt.Errorf("role permissions: %w", err)
		return d
	}
	overrides, err := g.perms.Overrides(ctx, u.ID)
	if err != nil {
		d.reason = "permission lookup failed"
		d.err = fmt.Errorf("user overrides: %w", err)
		return d
	}

	now := g.now()
	granted, source := permdomain.Resolve(now, req.Permission, d.department, roles, overrides)
	systemOverride, _ := permdomain.Resolve(now, permdomain.PermSystemOverride, "", roles, overrides)
	d.source = source

	in := engine.Input{
		Permission:        req.Permission,
		Granted:           granted,
		Source:            source,
		DepartmentScoped:  perm != nil && perm.DepartmentScoped,
		CallerDepartment:  u.DepartmentID,
		TargetDepartment:  d.department,
		HasSystemOverride: systemOverride,
	}
	allowed, err := g.evaluator.Allow(ctx, in)
	if err != nil {
		d.reason = "policy evaluation failed"
		d.err = err
		return d
	}
	d.allowed = allowed
	if !allowed {
		d.reason = "permission not granted"
		if granted {
			d.reason = "department mismatch"
		}
	}
	return d
}
