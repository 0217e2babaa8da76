package domain

import "time"

// Revocation reasons recorded on terminated sessions.
const (
	ReasonLogout          = "logout"
	ReasonLimitExceeded   = "session limit exceeded"
	ReasonBlockedDevice   = "blocked device"
	ReasonIdleTimeout     = "idle timeout"
	ReasonExpired         = "session expired"
	ReasonOtherSessions   = "terminated by user from another session"
	ReasonAdminTerminated = "terminated by administrator"
)

// Session is an authenticated, device-bound, time-limited grant of access for one user.
// A session is Active until it is revoked, expires or is swept; all three are terminal.
type Session struct {
	ID                string
	UserID            string
	DeviceFingerprint string // fingerprint hash; empty when the client sent none
	IPAddress         string // last known client address
	UserAgent         string // last known user agent
	Location          string

	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpiresAt      time.Time

	IsActive         bool
	IsRevoked        bool
	RevokedAt        *time.Time // nil when not revoked
	RevocationReason string

	IsSuspicious         bool
	SuspiciousReason     string
	FailedAccessAttempts int

	IsRememberMe              bool
	RequiresMfaReverification bool
	LastMfaVerification       *time.Time // nil until MFA is recorded
}

// IsExpired reports whether now is after the session's expiry. The expiry instant itself is
// still valid.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsTerminal reports whether the session can no longer be used: revoked, swept or expired.
func (s *Session) IsTerminal(now time.Time) bool {
	return s.IsRevoked || !s.IsActive || s.IsExpired(now)
}

// Clone returns a deep copy, so callers can hand sessions out of in-memory stores safely.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	if s.LastMfaVerification != nil {
		t := *s.LastMfaVerification
		c.LastMfaVerification = &t
	}
	return &c
}
