package domain

import (
	"errors"
	"testing"
	"time"

	"multidept-session-trust/backend/internal/platform/errs"
)

func TestDefaultSessionConfiguration(t *testing.T) {
	c := DefaultSessionConfiguration("u1")
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if c.MaxConcurrentSessions != 5 || c.SessionTimeoutMinutes != 480 || c.ExtendedSessionTimeoutMinutes != 43200 || c.IdleTimeoutMinutes != 30 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if !c.EnableConcurrentSessionControl || !c.AllowRememberMe || c.RequireDeviceVerification {
		t.Errorf("unexpected default flags: %+v", c)
	}
}

func TestSessionConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SessionConfiguration)
	}{
		{"no user", func(c *SessionConfiguration) { c.UserID = "" }},
		{"zero sessions", func(c *SessionConfiguration) { c.MaxConcurrentSessions = 0 }},
		{"zero timeout", func(c *SessionConfiguration) { c.SessionTimeoutMinutes = 0 }},
		{"negative extended", func(c *SessionConfiguration) { c.ExtendedSessionTimeoutMinutes = -1 }},
		{"negative idle", func(c *SessionConfiguration) { c.IdleTimeoutMinutes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultSessionConfiguration("u1")
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, errs.ErrInvalidConfiguration) {
				t.Errorf("Validate = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
	var nilCfg *SessionConfiguration
	if err := nilCfg.Validate(); !errors.Is(err, errs.ErrInvalidConfiguration) {
		t.Errorf("nil Validate = %v", err)
	}
}

func TestSessionConfiguration_Timeout(t *testing.T) {
	c := DefaultSessionConfiguration("u1")
	c.ExtendedSessionTimeoutMinutes = 1440
	if got := c.Timeout(true); got != 24*time.Hour {
		t.Errorf("remember-me timeout = %v, want 24h", got)
	}
	if got := c.Timeout(false); got != 8*time.Hour {
		t.Errorf("timeout = %v, want 8h", got)
	}
}

func TestSession_IsTerminal(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	live := &Session{IsActive: true, ExpiresAt: now.Add(time.Minute)}
	if live.IsTerminal(now) {
		t.Error("live session reported terminal")
	}
	if live.IsTerminal(now.Add(time.Minute)) {
		t.Error("session at its expiry instant should still be live")
	}
	if !live.IsTerminal(now.Add(time.Minute + time.Nanosecond)) {
		t.Error("session past its expiry should be terminal")
	}
	revoked := live.Clone()
	revoked.IsRevoked = true
	if !revoked.IsTerminal(now) {
		t.Error("revoked session should be terminal")
	}
	swept := live.Clone()
	swept.IsActive = false
	if !swept.IsTerminal(now) {
		t.Error("inactive session should be terminal")
	}
}

func TestRiskLevel_Rank(t *testing.T) {
	order := []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("%s should rank below %s", order[i-1], order[i])
		}
	}
	if RiskLevel("bogus").Rank() != RiskLow.Rank() {
		t.Error("unknown level should rank as low")
	}
}
