package domain

import (
	"fmt"
	"time"

	"multidept-session-trust/backend/internal/platform/errs"
)

// Built-in policy defaults used when neither the user nor the deployment overrides them.
const (
	DefaultMaxConcurrentSessions         = 5
	DefaultSessionTimeoutMinutes         = 480
	DefaultExtendedSessionTimeoutMinutes = 43200
	DefaultIdleTimeoutMinutes            = 30
)

// SessionConfiguration is the per-user session policy.
type SessionConfiguration struct {
	UserID                         string
	MaxConcurrentSessions          int
	SessionTimeoutMinutes          int
	ExtendedSessionTimeoutMinutes  int
	IdleTimeoutMinutes             int // 0 disables the idle check
	RequireDeviceVerification      bool
	EnableConcurrentSessionControl bool
	AllowRememberMe                bool
	UpdatedAt                      time.Time
}

// DefaultSessionConfiguration returns the built-in policy for userID.
func DefaultSessionConfiguration(userID string) *SessionConfiguration {
	return &SessionConfiguration{
		UserID:                         userID,
		MaxConcurrentSessions:          DefaultMaxConcurrentSessions,
		SessionTimeoutMinutes:          DefaultSessionTimeoutMinutes,
		ExtendedSessionTimeoutMinutes:  DefaultExtendedSessionTimeoutMinutes,
		IdleTimeoutMinutes:             DefaultIdleTimeoutMinutes,
		EnableConcurrentSessionControl: true,
		AllowRememberMe:                true,
	}
}

// Validate returns errs.ErrInvalidConfiguration when limits or timeouts are out of range.
func (c *SessionConfiguration) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: missing configuration", errs.ErrInvalidConfiguration)
	case c.UserID == "":
		return fmt.Errorf("%w: user id required", errs.ErrInvalidConfiguration)
	case c.MaxConcurrentSessions <= 0:
		return fmt.Errorf("%w: max concurrent sessions must be positive", errs.ErrInvalidConfiguration)
	case c.SessionTimeoutMinutes <= 0:
		return fmt.Errorf("%w: session timeout must be positive", errs.ErrInvalidConfiguration)
	case c.ExtendedSessionTimeoutMinutes <= 0:
		return fmt.Errorf("%w: extended session timeout must be positive", errs.ErrInvalidConfiguration)
	case c.IdleTimeoutMinutes < 0:
		return fmt.Errorf("%w: idle timeout must not be negative", errs.ErrInvalidConfiguration)
	}
	return nil
}

// Timeout returns the lifetime of a new session under this policy.
func (c *SessionConfiguration) Timeout(rememberMe bool) time.Duration {
	if rememberMe {
		return time.Duration(c.ExtendedSessionTimeoutMinutes) * time.Minute
	}
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}
