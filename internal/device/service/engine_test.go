package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multidept-session-trust/backend/internal/audit"
	auditdomain "multidept-session-trust/backend/internal/audit/domain"
	"multidept-session-trust/backend/internal/device/domain"
	"multidept-session-trust/backend/internal/device/repository"
	"multidept-session-trust/backend/internal/platform/errs"
)

type captureEvents struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureEvents) LogSecurityEvent(_ context.Context, e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureEvents) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

var laptop = domain.FingerprintData{
	ScreenResolution: "2560x1440",
	Timezone:         "Europe/Berlin",
	Language:         "de-DE",
	Platform:         "MacIntel",
	Plugins:          []string{"PDF Viewer", "Chrome PDF Viewer"},
	ColorDepth:       30,
	UserAgent:        "Mozilla/5.0 (Macintosh)",
}

func newEngine() (*Engine, *repository.MemoryRepository, *captureEvents) {
	repo := repository.NewMemoryRepository()
	events := &captureEvents{}
	e := NewEngine(repo, events)
	clock := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	e.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return e, repo, events
}

func TestRegisterFingerprint_RoundTrip(t *testing.T) {
	e, repo, events := newEngine()
	ctx := context.Background()

	id, hash, err := e.RegisterFingerprint(ctx, laptop, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ComputeHash(laptop), hash)

	known, err := e.VerifyFingerprint(ctx, hash, "u1")
	require.NoError(t, err)
	assert.True(t, known)

	other, err := e.VerifyFingerprint(ctx, hash, "u2")
	require.NoError(t, err)
	assert.False(t, other)

	reordered := laptop
	reordered.Plugins = []string{"chrome pdf viewer", " PDF Viewer "}
	id2, hash2, err := e.RegisterFingerprint(ctx, reordered, "u1")
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, hash, hash2)

	d, err := repo.GetByHashAndUser(ctx, hash, "u1")
	require.NoError(t, err)
	assert.True(t, d.LastSeen.After(d.FirstSeen))
	assert.Equal(t, []string{ActionDeviceRegistered}, events.actions())
}

func TestRegisterFingerprint_RequiresUser(t *testing.T) {
	e, _, _ := newEngine()
	_, _, err := e.RegisterFingerprint(context.Background(), laptop, "")
	assert.ErrorIs(t, err, ErrUserRequired)
}

func TestTrustDevice(t *testing.T) {
	e, _, events := newEngine()
	ctx := context.Background()

	_, err := e.TrustDevice(ctx, "missing", "u1")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, hash, err := e.RegisterFingerprint(ctx, laptop, "u1")
	require.NoError(t, err)

	ok, err := e.TrustDevice(ctx, hash, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	trusted, err := e.IsTrusted(ctx, hash, "u1")
	require.NoError(t, err)
	assert.True(t, trusted)

	ok, err = e.TrustDevice(ctx, hash, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{ActionDeviceRegistered, ActionDeviceTrusted}, events.actions())
}

func TestTrustDevice_RefusedWhenBlocked(t *testing.T) {
	e, _, events := newEngine()
	ctx := context.Background()
	_, hash, err := e.RegisterFingerprint(ctx, laptop, "u1")
	require.NoError(t, err)
	_, err = e.TrustDevice(ctx, hash, "u1")
	require.NoError(t, err)

	ok, err := e.BlockDevice(ctx, hash, "u1", "reported stolen")
	require.NoError(t, err)
	assert.True(t, ok)

	trusted, err := e.IsTrusted(ctx, hash, "u1")
	require.NoError(t, err)
	assert.False(t, trusted, "block clears trust")

	ok, err = e.TrustDevice(ctx, hash, "u1")
	assert.ErrorIs(t, err, errs.ErrBlocked)
	assert.False(t, ok)

	blocked, err := e.IsBlocked(ctx, hash, "u1")
	require.NoError(t, err)
	assert.True(t, blocked)

	last := events.events[len(events.events)-1]
	assert.Equal(t, ActionDeviceTrusted, last.Action)
	assert.False(t, last.Success)
}

func TestBlockDevice_AuditsOnlyTransition(t *testing.T) {
	e, _, events := newEngine()
	ctx := context.Background()
	_, hash, err := e.RegisterFingerprint(ctx, laptop, "u1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err := e.BlockDevice(ctx, hash, "u1", "policy")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, []string{ActionDeviceRegistered, ActionDeviceBlocked}, events.actions())
	assert.Equal(t, auditdomain.SeverityCritical, events.events[1].Severity)
	assert.Equal(t, "device", events.events[1].Resource)
}

func TestBlockDevice_UnknownDeviceIsRegisteredBlocked(t *testing.T) {
	e, repo, _ := newEngine()
	ctx := context.Background()
	hash := domain.ComputeHash(laptop)

	ok, err := e.BlockDevice(ctx, hash, "u1", "pre-emptive")
	require.NoError(t, err)
	assert.True(t, ok)

	d, err := repo.GetByHashAndUser(ctx, hash, "u1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.IsBlocked)
	assert.Equal(t, "pre-emptive", d.BlockedReason)

	// a later sighting does not clear the block
	_, _, err = e.RegisterFingerprint(ctx, laptop, "u1")
	require.NoError(t, err)
	blocked, err := e.IsBlocked(ctx, hash, "u1")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestIsBlocked_EmptyHash(t *testing.T) {
	e, _, _ := newEngine()
	blocked, err := e.IsBlocked(context.Background(), "", "u1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestListDevices(t *testing.T) {
	e, _, _ := newEngine()
	ctx := context.Background()
	phone := laptop
	phone.Platform = "iPhone"
	_, first, err := e.RegisterFingerprint(ctx, laptop, "u1")
	require.NoError(t, err)
	_, second, err := e.RegisterFingerprint(ctx, phone, "u1")
	require.NoError(t, err)
	_, _, err = e.RegisterFingerprint(ctx, phone, "u2")
	require.NoError(t, err)

	list, err := e.ListDevices(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].FingerprintHash)
	assert.Equal(t, first, list[1].FingerprintHash)
}
