// Package service implements device fingerprint trust: registration, verification, and the
// admin- or policy-driven trust and block transitions.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"multidept-session-trust/backend/internal/audit"
	auditdomain "multidept-session-trust/backend/internal/audit/domain"
	"multidept-session-trust/backend/internal/device/domain"
	"multidept-session-trust/backend/internal/device/repository"
	"multidept-session-trust/backend/internal/platform/errs"
)

// Audit actions emitted by the engine.
const (
	ActionDeviceRegistered = "device_registered"
	ActionDeviceTrusted    = "device_trusted"
	ActionDeviceBlocked    = "device_blocked"
	resourceDevice         = "device"
)

// ErrUserRequired is returned when a call carries no user id.
var ErrUserRequired = errors.New("user id required")

// Engine is the Device Trust Engine. It holds no state of its own; all transitions are
// conditional updates in the repository.
type Engine struct {
	repo   repository.Repository
	events audit.EventLogger
	now    func() time.Time
}

// NewEngine returns an Engine. events may be nil.
func NewEngine(repo repository.Repository, events audit.EventLogger) *Engine {
	return &Engine{repo: repo, events: events, now: time.Now}
}

// RegisterFingerprint hashes data and records the device for userID, or advances last_seen when
// it is already known. It returns the fingerprint id and hash.
func (e *Engine) RegisterFingerprint(ctx context.Context, data domain.FingerprintData, userID string) (string, string, error) {
	if userID == "" {
		return "", "", ErrUserRequired
	}
	hash := domain.ComputeHash(data)
	now := e.now().UTC()
	candidate := &domain.DeviceFingerprint{
		ID:              uuid.New().String(),
		FingerprintHash: hash,
		UserID:          userID,
		Attributes:      data,
		FirstSeen:       now,
		LastSeen:        now,
	}
	stored, err := e.repo.Upsert(ctx, candidate)
	if err != nil {
		return "", "", fmt.Errorf("upsert fingerprint: %w", err)
	}
	if stored.ID == candidate.ID {
		e.log(ctx, audit.Event{
			Action:  ActionDeviceRegistered,
			UserID:  userID,
			Success: true,
			Details: map[string]any{"fingerprint": hash, "platform": data.Platform},
		})
	}
	return stored.ID, hash, nil
}

// VerifyFingerprint reports whether the device is known for the user.
func (e *Engine) VerifyFingerprint(ctx context.Context, hash, userID string) (bool, error) {
	d, err := e.repo.GetByHashAndUser(ctx, hash, userID)
	if err != nil {
		return false, fmt.Errorf("get fingerprint: %w", err)
	}
	return d != nil, nil
}

// IsTrusted reports whether the device is known, trusted and not blocked.
func (e *Engine) IsTrusted(ctx context.Context, hash, userID string) (bool, error) {
	d, err := e.repo.GetByHashAndUser(ctx, hash, userID)
	if err != nil {
		return false, fmt.Errorf("get fingerprint: %w", err)
	}
	return d != nil && d.IsTrusted && !d.IsBlocked, nil
}

// IsBlocked reports whether the device is blocked for the user. Unknown devices are not blocked.
func (e *Engine) IsBlocked(ctx context.Context, hash, userID string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	d, err := e.repo.GetByHashAndUser(ctx, hash, userID)
	if err != nil {
		return false, fmt.Errorf("get fingerprint: %w", err)
	}
	return d != nil && d.IsBlocked, nil
}

// TrustDevice marks a registered device trusted. It refuses with errs.ErrBlocked when the
// device is blocked and errs.ErrNotFound when it was never registered.
func (e *Engine) TrustDevice(ctx context.Context, hash, userID string) (bool, error) {
	d, err := e.repo.GetByHashAndUser(ctx, hash, userID)
	if err != nil {
		return false, fmt.Errorf("get fingerprint: %w", err)
	}
	if d == nil {
		return false, errs.ErrNotFound
	}
	if d.IsBlocked {
		e.log(ctx, audit.Event{
			Action:        ActionDeviceTrusted,
			UserID:        userID,
			FailureReason: "device is blocked",
			Details:       map[string]any{"fingerprint": hash},
		})
		return false, errs.ErrBlocked
	}
	if d.IsTrusted {
		return true, nil
	}
	ok, err := e.repo.SetTrusted(ctx, hash, userID)
	if err != nil {
		return false, fmt.Errorf("trust fingerprint: %w", err)
	}
	if !ok {
		// blocked between the read and the update
		return false, errs.ErrBlocked
	}
	e.log(ctx, audit.Event{
		Action:  ActionDeviceTrusted,
		UserID:  userID,
		Success: true,
		Details: map[string]any{"fingerprint": hash},
	})
	return true, nil
}

// BlockDevice blocks the device for the user and clears its trust. A device that was never seen
// is registered in the blocked state so that it can never open a session. Blocking an already
// blocked device is a no-op that reports true.
func (e *Engine) BlockDevice(ctx context.Context, hash, userID, reason string) (bool, error) {
	if userID == "" {
		return false, ErrUserRequired
	}
	now := e.now().UTC()
	d, err := e.repo.GetByHashAndUser(ctx, hash, userID)
	if err != nil {
		return false, fmt.Errorf("get fingerprint: %w", err)
	}
	if d == nil {
		if _, err := e.repo.Upsert(ctx, &domain.DeviceFingerprint{
			ID:              uuid.New().String(),
			FingerprintHash: hash,
			UserID:          userID,
			FirstSeen:       now,
			LastSeen:        now,
		}); err != nil {
			return false, fmt.Errorf("upsert fingerprint: %w", err)
		}
	}
	changed, err := e.repo.SetBlocked(ctx, hash, userID, reason, now)
	if err != nil {
		return false, fmt.Errorf("block fingerprint: %w", err)
	}
	if changed {
		e.log(ctx, audit.Event{
			Action:   ActionDeviceBlocked,
			UserID:   userID,
			Success:  true,
			Severity: auditdomain.SeverityCritical,
			Details:  map[string]any{"fingerprint": hash, "reason": reason},
		})
	}
	return true, nil
}

// ListDevices returns the user's devices, most recently seen first.
func (e *Engine) ListDevices(ctx context.Context, userID string) ([]*domain.DeviceFingerprint, error) {
	return e.repo.ListByUser(ctx, userID)
}

func (e *Engine) log(ctx context.Context, ev audit.Event) {
	if e.events == nil {
		return
	}
	ev.Resource = resourceDevice
	e.events.LogSecurityEvent(ctx, ev)
}
