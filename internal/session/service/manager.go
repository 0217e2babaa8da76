// Package service implements the session lifecycle: creation under the concurrent-session
// limit, per-request validation with risk evaluation, termination and maintenance.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"multidept-session-trust/backend/internal/audit"
	auditdomain "multidept-session-trust/backend/internal/audit/domain"
	"multidept-session-trust/backend/internal/platform/errs"
	"multidept-session-trust/backend/internal/security"
	"multidept-session-trust/backend/internal/session/detector"
	"multidept-session-trust/backend/internal/session/domain"
	"multidept-session-trust/backend/internal/session/lock"
	"multidept-session-trust/backend/internal/session/repository"
	"multidept-session-trust/backend/internal/telemetry"
	userdomain "multidept-session-trust/backend/internal/user/domain"
)

// Audit actions emitted by the manager.
const (
	ActionSessionCreate        = "session_create"
	ActionSessionValidate      = "session_validate"
	ActionSessionTerminated    = "session_terminated"
	ActionSessionExtended      = "session_extended"
	ActionSuspiciousActivity   = "suspicious_activity"
	ActionMfaVerified          = "mfa_verified"
	ActionSessionCleanup       = "session_cleanup"
	ActionConfigurationUpdated = "session_configuration_updated"
	resourceSession            = "session"
)

const (
	defaultActivityPageSize = 20
	maxActivityPageSize     = 100
)

// UserRepo is the minimal user repository needed by the manager.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// DeviceTrust is the part of the device trust engine the manager consults.
type DeviceTrust interface {
	IsBlocked(ctx context.Context, hash, userID string) (bool, error)
	IsTrusted(ctx context.Context, hash, userID string) (bool, error)
}

// Options tunes the manager. Zero values fall back to built-in defaults.
type Options struct {
	// Defaults is the deployment-wide policy used for users without a stored configuration.
	Defaults           *domain.SessionConfiguration
	MfaRecheckInterval time.Duration
	Thresholds         detector.Thresholds
	// RecentActivityLimit bounds the history handed to the detector.
	RecentActivityLimit int
	Observer            telemetry.Observer
	Now                 func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Defaults == nil {
		o.Defaults = domain.DefaultSessionConfiguration("")
	}
	if o.MfaRecheckInterval <= 0 {
		o.MfaRecheckInterval = 12 * time.Hour
	}
	if o.Thresholds == (detector.Thresholds{}) {
		o.Thresholds = detector.DefaultThresholds()
	}
	if o.RecentActivityLimit <= 0 {
		o.RecentActivityLimit = 20
	}
	if o.Observer == nil {
		o.Observer = telemetry.LogObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// CreateRequest carries the authenticated login that opens a session.
type CreateRequest struct {
	UserID            string
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	RememberMe        bool
	Location          string
}

// ValidationResult is the outcome of a successful ValidateSession.
type ValidationResult struct {
	Session                   *domain.Session
	RiskLevel                 domain.RiskLevel
	RiskReason                string
	RequiresReauthentication  bool
	RequiresMfaReverification bool
}

// Manager is the Session Lifecycle Manager.
type Manager struct {
	sessions repository.Repository
	activity repository.ActivityRepository
	configs  repository.ConfigurationRepository
	users    UserRepo
	devices  DeviceTrust
	locker   lock.Locker
	events   audit.EventLogger
	opts     Options
}

// NewManager returns a Manager with the given dependencies. events may be nil.
func NewManager(
	sessions repository.Repository,
	activity repository.ActivityRepository,
	configs repository.ConfigurationRepository,
	users UserRepo,
	devices DeviceTrust,
	locker lock.Locker,
	events audit.EventLogger,
	opts Options,
) *Manager {
	return &Manager{
		sessions: sessions,
		activity: activity,
		configs:  configs,
		users:    users,
		devices:  devices,
		locker:   locker,
		events:   events,
		opts:     opts.withDefaults(),
	}
}

// CreateSession opens a session for an authenticated user. When concurrent-session control is on
// and the user is at the limit, the oldest live sessions are revoked first. The limit check,
// eviction and insert run under a per-user lock.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*domain.Session, error) {
	u, err := m.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil || !u.IsActive {
		reason := "unknown user"
		if u != nil {
			reason = "inactive user"
		}
		m.log(ctx, audit.Event{Action: ActionSessionCreate, UserID: req.UserID, FailureReason: reason, IPAddress: req.IPAddress, UserAgent: req.UserAgent})
		return nil, errs.ErrNotFound
	}
	ev := audit.Event{
		Action:       ActionSessionCreate,
		UserID:       u.ID,
		Username:     u.Username,
		DepartmentID: u.DepartmentID,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
	}

	if req.DeviceFingerprint != "" {
		blocked, err := m.devices.IsBlocked(ctx, req.DeviceFingerprint, u.ID)
		if err != nil {
			return nil, fmt.Errorf("check device: %w", err)
		}
		if blocked {
			ev.FailureReason = domain.ReasonBlockedDevice
			ev.Severity = auditdomain.SeverityError
			ev.Details = map[string]any{"fingerprint": req.DeviceFingerprint}
			m.log(ctx, ev)
			return nil, errs.ErrBlocked
		}
	}

	cfg, err := m.configuration(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	rememberMe := req.RememberMe && cfg.AllowRememberMe
	requiresMfa := false
	if cfg.RequireDeviceVerification {
		trusted := false
		if req.DeviceFingerprint != "" {
			if trusted, err = m.devices.IsTrusted(ctx, req.DeviceFingerprint, u.ID); err != nil {
				return nil, fmt.Errorf("check device: %w", err)
			}
		}
		requiresMfa = !trusted
	}

	id, err := security.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	unlock, err := m.locker.Lock(ctx, "session-create:"+u.ID)
	if err != nil {
		return nil, fmt.Errorf("lock user sessions: %w", err)
	}
	defer unlock()

	now := m.opts.Now().UTC()
	if cfg.EnableConcurrentSessionControl {
		live, err := m.sessions.ListLiveByUser(ctx, u.ID, now)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		for len(live) > 0 && len(live) >= cfg.MaxConcurrentSessions {
			oldest := live[0]
			live = live[1:]
			if _, err := m.revoke(ctx, oldest, domain.ReasonLimitExceeded, now); err != nil {
				return nil, err
			}
		}
	}

	s := &domain.Session{
		ID:                        id,
		UserID:                    u.ID,
		DeviceFingerprint:         req.DeviceFingerprint,
		IPAddress:                 req.IPAddress,
		UserAgent:                 req.UserAgent,
		Location:                  req.Location,
		CreatedAt:                 now,
		LastAccessedAt:            now,
		ExpiresAt:                 now.Add(cfg.Timeout(rememberMe)),
		IsActive:                  true,
		IsRememberMe:              rememberMe,
		RequiresMfaReverification: requiresMfa,
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	ev.SessionID = s.ID
	ev.Success = true
	ev.Details = map[string]any{"remember_me": rememberMe, "requires_mfa": requiresMfa}
	m.log(ctx, ev)
	m.appendActivity(ctx, &domain.SessionActivity{
		SessionID: s.ID,
		Activity:  domain.ActivityCreated,
		Resource:  resourceSession,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		Timestamp: now,
		RiskLevel: domain.RiskLow,
	})
	log.Info().Str("user_id", u.ID).Str("session", telemetry.ShortID(s.ID)).Bool("remember_me", rememberMe).Msg("session created")
	return s, nil
}

// ValidateSession checks a session on an incoming request. Missing, revoked and expired sessions
// are rejected without being changed. Otherwise the detector runs on the request context: a
// critical verdict terminates the session, a high verdict flags it and asks for
// re-authentication, and anything below renews the session unless it sat idle too long.
func (m *Manager) ValidateSession(ctx context.Context, sessionID, ip, userAgent string) (*ValidationResult, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		m.log(ctx, audit.Event{Action: ActionSessionValidate, SessionID: sessionID, FailureReason: "session not found", IPAddress: ip, UserAgent: userAgent})
		return nil, errs.ErrNotFound
	}
	now := m.opts.Now().UTC()
	if rejectErr := terminalError(s, now); rejectErr != nil {
		m.log(ctx, audit.Event{
			Action:        ActionSessionValidate,
			UserID:        s.UserID,
			SessionID:     s.ID,
			FailureReason: rejectErr.Error(),
			IPAddress:     ip,
			UserAgent:     userAgent,
		})
		return nil, rejectErr
	}

	recent, err := m.activity.ListBySession(ctx, s.ID, int32(m.opts.RecentActivityLimit), 0)
	if err != nil {
		log.Warn().Err(err).Str("session", telemetry.ShortID(s.ID)).Msg("recent activity unavailable")
		recent = nil
	}
	res := detector.Evaluate(detector.Input{
		Session:        s,
		NewIP:          ip,
		NewUserAgent:   userAgent,
		RecentActivity: recent,
		DeviceBlocked:  m.deviceBlocked(ctx, s),
		Now:            now,
	}, m.opts.Thresholds)
	if res.Degraded {
		m.opts.Observer.DetectorDegraded(ctx, s.ID, res.Reason)
	}

	act := &domain.SessionActivity{
		SessionID:  s.ID,
		Activity:   domain.ActivityValidated,
		Resource:   resourceSession,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Timestamp:  now,
		RiskLevel:  res.Level,
		RiskReason: res.Reason,
	}
	result := &ValidationResult{RiskLevel: res.Level, RiskReason: res.Reason}

	switch res.Level {
	case domain.RiskCritical:
		act.Activity = domain.ActivityRejected
		m.appendActivity(ctx, act)
		if _, err := m.revoke(ctx, s, domain.ReasonBlockedDevice, now); err != nil {
			return nil, err
		}
		return nil, errs.ErrBlocked
	case domain.RiskHigh:
		if err := m.flag(ctx, s, res, ip, userAgent); err != nil {
			return nil, err
		}
		m.appendActivity(ctx, act)
		result.Session = s
		result.RequiresReauthentication = true
		result.RequiresMfaReverification = m.requiresMfa(s, now)
		return result, nil
	case domain.RiskMedium:
		if err := m.flag(ctx, s, res, ip, userAgent); err != nil {
			return nil, err
		}
	}

	if !s.IsRememberMe {
		cfg, err := m.configuration(ctx, s.UserID)
		if err != nil {
			return nil, err
		}
		idle := time.Duration(cfg.IdleTimeoutMinutes) * time.Minute
		if idle > 0 && now.Sub(s.LastAccessedAt) > idle {
			act.Activity = domain.ActivityRejected
			act.RiskReason = domain.ReasonIdleTimeout
			m.appendActivity(ctx, act)
			if _, err := m.revoke(ctx, s, domain.ReasonIdleTimeout, now); err != nil {
				return nil, err
			}
			return nil, errs.ErrExpired
		}
	}

	touched, err := m.sessions.Touch(ctx, s.ID, now, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if !touched {
		// terminated between the read and the renewal
		m.log(ctx, audit.Event{
			Action:        ActionSessionValidate,
			UserID:        s.UserID,
			SessionID:     s.ID,
			FailureReason: errs.ErrRevoked.Error(),
			IPAddress:     ip,
			UserAgent:     userAgent,
		})
		return nil, errs.ErrRevoked
	}
	if now.After(s.LastAccessedAt) {
		s.LastAccessedAt = now
	}
	if ip != "" {
		s.IPAddress = ip
	}
	if userAgent != "" {
		s.UserAgent = userAgent
	}
	m.appendActivity(ctx, act)
	result.Session = s
	result.RequiresMfaReverification = m.requiresMfa(s, now)
	return result, nil
}

// TerminateSession revokes a session. Terminating a session that is already terminal succeeds
// without a second audit entry; the first recorded reason stands.
func (m *Manager) TerminateSession(ctx context.Context, sessionID, reason string) (bool, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return false, errs.ErrNotFound
	}
	if _, err := m.revoke(ctx, s, reasonOr(reason, domain.ReasonLogout), m.opts.Now().UTC()); err != nil {
		return false, err
	}
	return true, nil
}

// TerminateOtherSessions revokes every live session of the user except keepSessionID and
// returns how many this call terminated.
func (m *Manager) TerminateOtherSessions(ctx context.Context, userID, keepSessionID, reason string) (int, error) {
	return m.terminateWhere(ctx, userID, reasonOr(reason, domain.ReasonOtherSessions), func(s *domain.Session) bool {
		return s.ID != keepSessionID
	})
}

// TerminateAllUserSessions revokes every live session of the user.
func (m *Manager) TerminateAllUserSessions(ctx context.Context, userID, reason string) (int, error) {
	return m.terminateWhere(ctx, userID, reasonOr(reason, domain.ReasonAdminTerminated), func(*domain.Session) bool {
		return true
	})
}

// ExtendSession pushes the expiry of a live remember-me session to now plus the extended
// timeout. It reports false for sessions that are not remember-me or already terminal.
func (m *Manager) ExtendSession(ctx context.Context, sessionID string) (bool, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return false, errs.ErrNotFound
	}
	now := m.opts.Now().UTC()
	if !s.IsRememberMe || s.IsTerminal(now) {
		return false, nil
	}
	cfg, err := m.configuration(ctx, s.UserID)
	if err != nil {
		return false, err
	}
	expiresAt := now.Add(cfg.Timeout(true))
	ok, err := m.sessions.ExtendExpiry(ctx, s.ID, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("extend session: %w", err)
	}
	if !ok {
		return false, nil
	}
	m.log(ctx, audit.Event{
		Action:    ActionSessionExtended,
		UserID:    s.UserID,
		SessionID: s.ID,
		Success:   true,
		Details:   map[string]any{"expires_at": expiresAt.Format(time.RFC3339)},
	})
	m.appendActivity(ctx, &domain.SessionActivity{
		SessionID: s.ID,
		Activity:  domain.ActivityExtended,
		Resource:  resourceSession,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		Timestamp: now,
		RiskLevel: domain.RiskLow,
	})
	return true, nil
}

// CleanupExpiredSessions marks every session past its expiry as expired. Each session is
// transitioned by exactly one sweep even when sweeps overlap.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	ids, err := m.sessions.ExpireBefore(ctx, m.opts.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	if len(ids) > 0 {
		m.log(ctx, audit.Event{
			Action:  ActionSessionCleanup,
			Success: true,
			Details: map[string]any{"expired": len(ids)},
		})
		log.Info().Int("expired", len(ids)).Msg("expired sessions swept")
	}
	return len(ids), nil
}

// RequiresMfaReverification reports whether the session must pass MFA again: the flag is set
// and MFA was never recorded or was recorded longer than the re-check interval ago.
func (m *Manager) RequiresMfaReverification(ctx context.Context, sessionID string) (bool, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return false, errs.ErrNotFound
	}
	return m.requiresMfa(s, m.opts.Now().UTC()), nil
}

// UpdateMfaVerification records a successful MFA check on a live session.
func (m *Manager) UpdateMfaVerification(ctx context.Context, sessionID string) (bool, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return false, errs.ErrNotFound
	}
	now := m.opts.Now().UTC()
	ok, err := m.sessions.RecordMfaVerification(ctx, s.ID, now)
	if err != nil {
		return false, fmt.Errorf("record mfa: %w", err)
	}
	if !ok {
		return false, nil
	}
	m.log(ctx, audit.Event{Action: ActionMfaVerified, UserID: s.UserID, SessionID: s.ID, Success: true})
	m.appendActivity(ctx, &domain.SessionActivity{
		SessionID: s.ID,
		Activity:  domain.ActivityMfaVerified,
		Resource:  resourceSession,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		Timestamp: now,
		RiskLevel: domain.RiskLow,
	})
	return true, nil
}

// GetActiveSessions returns the user's live sessions, oldest first.
func (m *Manager) GetActiveSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	return m.sessions.ListLiveByUser(ctx, userID, m.opts.Now().UTC())
}

// GetSessionDetails returns the session or errs.ErrNotFound.
func (m *Manager) GetSessionDetails(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return nil, errs.ErrNotFound
	}
	return s, nil
}

func (m *Manager) GetSessionStatistics(ctx context.Context) (*domain.SessionStatistics, error) {
	return m.sessions.Statistics(ctx, m.opts.Now().UTC())
}

// GetSessionActivity returns one page of the session's activity, newest first, and the total
// number of rows. Pages are 1-based.
func (m *Manager) GetSessionActivity(ctx context.Context, sessionID string, page, pageSize int) ([]*domain.SessionActivity, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultActivityPageSize
	}
	if pageSize > maxActivityPageSize {
		pageSize = maxActivityPageSize
	}
	if last := math.MaxInt32 / pageSize; page > last {
		page = last
	}
	items, err := m.activity.ListBySession(ctx, sessionID, int32(pageSize), int32((page-1)*pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("list activity: %w", err)
	}
	total, err := m.activity.CountBySession(ctx, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("count activity: %w", err)
	}
	return items, total, nil
}

// RecordActivity appends an application-level action to a live session's activity log.
func (m *Manager) RecordActivity(ctx context.Context, sessionID, activity, resource, ip, userAgent string, metadata map[string]string) error {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return errs.ErrNotFound
	}
	now := m.opts.Now().UTC()
	if rejectErr := terminalError(s, now); rejectErr != nil {
		return rejectErr
	}
	return m.activity.Append(ctx, &domain.SessionActivity{
		ID:        uuid.New().String(),
		SessionID: s.ID,
		Activity:  activity,
		Resource:  resource,
		IPAddress: ip,
		UserAgent: userAgent,
		Timestamp: now,
		RiskLevel: domain.RiskLow,
		Metadata:  metadata,
	})
}

// RecordFailedAccess counts a denied request against a live session. Terminal and unknown
// sessions are left alone.
func (m *Manager) RecordFailedAccess(ctx context.Context, sessionID string) error {
	if _, err := m.sessions.IncrementFailedAttempts(ctx, sessionID, m.opts.Now().UTC()); err != nil {
		return fmt.Errorf("increment failed attempts: %w", err)
	}
	return nil
}

// GetConfiguration returns the user's stored policy or the deployment defaults.
func (m *Manager) GetConfiguration(ctx context.Context, userID string) (*domain.SessionConfiguration, error) {
	return m.configuration(ctx, userID)
}

// PutConfiguration validates and stores cfg, replacing the user's previous policy entirely.
func (m *Manager) PutConfiguration(ctx context.Context, cfg *domain.SessionConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	stored := *cfg
	stored.UpdatedAt = m.opts.Now().UTC()
	if err := m.configs.Put(ctx, &stored); err != nil {
		return fmt.Errorf("put configuration: %w", err)
	}
	m.log(ctx, audit.Event{
		Action:  ActionConfigurationUpdated,
		UserID:  cfg.UserID,
		Success: true,
		Details: map[string]any{
			"max_concurrent_sessions": cfg.MaxConcurrentSessions,
			"session_timeout_minutes": cfg.SessionTimeoutMinutes,
			"idle_timeout_minutes":    cfg.IdleTimeoutMinutes,
			"allow_remember_me":       cfg.AllowRememberMe,
		},
	})
	return nil
}

func (m *Manager) configuration(ctx context.Context, userID string) (*domain.SessionConfiguration, error) {
	cfg, err := m.configs.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	if cfg != nil {
		return cfg, nil
	}
	def := *m.opts.Defaults
	def.UserID = userID
	return &def, nil
}

// revoke terminates s and audits only when this call performed the transition.
func (m *Manager) revoke(ctx context.Context, s *domain.Session, reason string, now time.Time) (bool, error) {
	ok, err := m.sessions.Revoke(ctx, s.ID, reason, now)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	if !ok {
		return false, nil
	}
	sev := auditdomain.SeverityInfo
	switch reason {
	case domain.ReasonBlockedDevice:
		sev = auditdomain.SeverityCritical
	case domain.ReasonLimitExceeded, domain.ReasonIdleTimeout:
		sev = auditdomain.SeverityWarning
	}
	m.log(ctx, audit.Event{
		Action:    ActionSessionTerminated,
		UserID:    s.UserID,
		SessionID: s.ID,
		Success:   true,
		Severity:  sev,
		Details:   map[string]any{"reason": reason},
	})
	log.Info().Str("user_id", s.UserID).Str("session", telemetry.ShortID(s.ID)).Str("reason", reason).Msg("session terminated")
	return true, nil
}

func (m *Manager) terminateWhere(ctx context.Context, userID, reason string, match func(*domain.Session) bool) (int, error) {
	now := m.opts.Now().UTC()
	live, err := m.sessions.ListLiveByUser(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	n := 0
	var firstErr error
	for _, s := range live {
		if !match(s) {
			continue
		}
		ok, err := m.revoke(ctx, s, reason, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			n++
		}
	}
	return n, firstErr
}

// flag marks the session suspicious and records the verdict.
func (m *Manager) flag(ctx context.Context, s *domain.Session, res detector.Result, ip, userAgent string) error {
	if err := m.sessions.MarkSuspicious(ctx, s.ID, res.Reason); err != nil {
		return fmt.Errorf("mark suspicious: %w", err)
	}
	s.IsSuspicious = true
	s.SuspiciousReason = res.Reason
	sev := auditdomain.SeverityWarning
	if res.Level == domain.RiskHigh {
		sev = auditdomain.SeverityError
	}
	m.log(ctx, audit.Event{
		Action:        ActionSuspiciousActivity,
		UserID:        s.UserID,
		SessionID:     s.ID,
		FailureReason: res.Reason,
		Severity:      sev,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Details:       map[string]any{"risk_level": string(res.Level), "flags": toAny(res.Flags)},
	})
	return nil
}

// deviceBlocked returns nil when the device lookup fails, so the detector reports a degraded
// evaluation instead of guessing. A session without a fingerprint references no device.
func (m *Manager) deviceBlocked(ctx context.Context, s *domain.Session) *bool {
	blocked := false
	if s.DeviceFingerprint == "" {
		return &blocked
	}
	blocked, err := m.devices.IsBlocked(ctx, s.DeviceFingerprint, s.UserID)
	if err != nil {
		log.Warn().Err(err).Str("session", telemetry.ShortID(s.ID)).Msg("device lookup failed")
		return nil
	}
	return &blocked
}

func (m *Manager) requiresMfa(s *domain.Session, now time.Time) bool {
	if !s.RequiresMfaReverification {
		return false
	}
	return s.LastMfaVerification == nil || now.Sub(*s.LastMfaVerification) > m.opts.MfaRecheckInterval
}

func (m *Manager) appendActivity(ctx context.Context, a *domain.SessionActivity) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if err := m.activity.Append(ctx, a); err != nil {
		log.Warn().Err(err).Str("session", telemetry.ShortID(a.SessionID)).Str("activity", a.Activity).Msg("append session activity")
	}
}

func (m *Manager) log(ctx context.Context, ev audit.Event) {
	if m.events == nil {
		return
	}
	ev.Resource = resourceSession
	m.events.LogSecurityEvent(ctx, ev)
}

// terminalError maps a terminal session to the rejection callers see.
func terminalError(s *domain.Session, now time.Time) error {
	switch {
	case s.IsRevoked:
		return errs.ErrRevoked
	case !s.IsActive, s.IsExpired(now):
		return errs.ErrExpired
	}
	return nil
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// IsRejection reports whether err is a session rejection rather than an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrExpired) ||
		errors.Is(err, errs.ErrRevoked) || errors.Is(err, errs.ErrBlocked)
}
