package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multidept-session-trust/backend/internal/audit/domain"
	auditrepo "multidept-session-trust/backend/internal/audit/repository"
	"multidept-session-trust/backend/internal/platform/errs"
)

type recordingObserver struct {
	mu       sync.Mutex
	dropped  []string
	reasons  []string
	failures []error
	degraded []string
}

func (o *recordingObserver) AuditDropped(_ context.Context, entry *domain.SecurityAuditLog, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, entry.ID)
	o.reasons = append(o.reasons, reason)
}

func (o *recordingObserver) AuditSinkFailed(_ context.Context, _ *domain.SecurityAuditLog, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
}

func (o *recordingObserver) DetectorDegraded(_ context.Context, sessionID, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.degraded = append(o.degraded, sessionID)
}

func (o *recordingObserver) droppedIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.dropped...)
}

// gatedRepo holds every Create until release is closed.
type gatedRepo struct {
	*auditrepo.MemoryRepository
	entered chan string
	release chan struct{}
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{
		MemoryRepository: auditrepo.NewMemoryRepository(),
		entered:          make(chan string, 64),
		release:          make(chan struct{}),
	}
}

func (g *gatedRepo) Create(ctx context.Context, a *domain.SecurityAuditLog) error {
	select {
	case g.entered <- a.ID:
	default:
	}
	<-g.release
	return g.MemoryRepository.Create(ctx, a)
}

type failingRepo struct {
	*auditrepo.MemoryRepository
	failFirst int32
	calls     atomic.Int32
}

func (f *failingRepo) Create(ctx context.Context, a *domain.SecurityAuditLog) error {
	n := f.calls.Add(1)
	if f.failFirst < 0 || n <= f.failFirst {
		return errors.New("connection refused")
	}
	return f.MemoryRepository.Create(ctx, a)
}

type recordingNotifier struct {
	mu      sync.Mutex
	actions []string
}

func (n *recordingNotifier) Notify(_ context.Context, entry *domain.SecurityAuditLog) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actions = append(n.actions, entry.Action)
	return nil
}

func entry(id string, sev domain.Severity) *domain.SecurityAuditLog {
	return &domain.SecurityAuditLog{ID: id, Action: "test", SessionID: "s1", Severity: sev, Timestamp: time.Now()}
}

func ids(entries []*domain.SecurityAuditLog) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func closeSink(t *testing.T, s *Sink) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
}

func TestSink_PersistsInOrderPerSession(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	s := NewSink(repo, &recordingObserver{}, SinkOptions{Capacity: 1024, Workers: 4})

	var want []string
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("e%03d", i)
		want = append(want, id)
		require.NoError(t, s.Enqueue(context.Background(), entry(id, domain.SeverityInfo)))
	}
	closeSink(t, s)

	assert.Equal(t, want, ids(repo.All()))
	assert.Zero(t, s.Pending())
}

func TestSink_FullQueueDropsOldestNonCritical(t *testing.T) {
	repo := newGatedRepo()
	obs := &recordingObserver{}
	s := NewSink(repo, obs, SinkOptions{Capacity: 2, Workers: 1})

	require.NoError(t, s.Enqueue(context.Background(), entry("inflight", domain.SeverityInfo)))
	<-repo.entered

	require.NoError(t, s.Enqueue(context.Background(), entry("old", domain.SeverityInfo)))
	require.NoError(t, s.Enqueue(context.Background(), entry("crit", domain.SeverityCritical)))
	require.NoError(t, s.Enqueue(context.Background(), entry("new", domain.SeverityWarning)))

	assert.Equal(t, []string{"old"}, obs.droppedIDs())
	assert.Equal(t, 2, s.Pending())

	close(repo.release)
	closeSink(t, s)
	assert.Equal(t, []string{"inflight", "crit", "new"}, ids(repo.All()))
}

func TestSink_CriticalIsNeverDropped(t *testing.T) {
	repo := newGatedRepo()
	obs := &recordingObserver{}
	s := NewSink(repo, obs, SinkOptions{Capacity: 2, Workers: 1})

	require.NoError(t, s.Enqueue(context.Background(), entry("inflight", domain.SeverityInfo)))
	<-repo.entered
	require.NoError(t, s.Enqueue(context.Background(), entry("c1", domain.SeverityCritical)))
	require.NoError(t, s.Enqueue(context.Background(), entry("c2", domain.SeverityCritical)))

	done := make(chan error, 1)
	go func() {
		done <- s.Enqueue(context.Background(), entry("c3", domain.SeverityCritical))
	}()

	close(repo.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("critical enqueue did not complete")
	}
	closeSink(t, s)

	assert.Empty(t, obs.droppedIDs())
	assert.Equal(t, []string{"inflight", "c1", "c2", "c3"}, ids(repo.All()))
}

func TestSink_NonCriticalWaitIsBounded(t *testing.T) {
	repo := newGatedRepo()
	obs := &recordingObserver{}
	s := NewSink(repo, obs, SinkOptions{Capacity: 2, Workers: 1, EnqueueWait: 20 * time.Millisecond})

	require.NoError(t, s.Enqueue(context.Background(), entry("inflight", domain.SeverityInfo)))
	<-repo.entered
	require.NoError(t, s.Enqueue(context.Background(), entry("c1", domain.SeverityCritical)))
	require.NoError(t, s.Enqueue(context.Background(), entry("c2", domain.SeverityCritical)))

	start := time.Now()
	err := s.Enqueue(context.Background(), entry("late", domain.SeverityInfo))
	assert.ErrorIs(t, err, errs.ErrSinkUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{"late"}, obs.droppedIDs())

	close(repo.release)
	closeSink(t, s)
	assert.Equal(t, []string{"inflight", "c1", "c2"}, ids(repo.All()))
}

func TestSink_RetriesTransientFailures(t *testing.T) {
	repo := &failingRepo{MemoryRepository: auditrepo.NewMemoryRepository(), failFirst: 2}
	obs := &recordingObserver{}
	s := NewSink(repo, obs, SinkOptions{Workers: 1, Capacity: 8, MaxRetries: 5, RetryInitialInterval: time.Millisecond})

	require.NoError(t, s.Enqueue(context.Background(), entry("e1", domain.SeverityInfo)))
	closeSink(t, s)

	assert.Equal(t, []string{"e1"}, ids(repo.All()))
	assert.EqualValues(t, 3, repo.calls.Load())
	assert.Empty(t, obs.failures)
}

func TestSink_ReportsPersistentFailure(t *testing.T) {
	repo := &failingRepo{MemoryRepository: auditrepo.NewMemoryRepository(), failFirst: -1}
	obs := &recordingObserver{}
	s := NewSink(repo, obs, SinkOptions{Workers: 1, Capacity: 8, MaxRetries: 3, RetryInitialInterval: time.Millisecond})

	require.NoError(t, s.Enqueue(context.Background(), entry("e1", domain.SeverityError)))
	closeSink(t, s)

	assert.Empty(t, repo.All())
	assert.EqualValues(t, 3, repo.calls.Load())
	require.Len(t, obs.failures, 1)
	assert.ErrorIs(t, obs.failures[0], errs.ErrSinkUnavailable)
}

func TestSink_NotifiesCriticalEvents(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	n := &recordingNotifier{}
	s := NewSink(repo, &recordingObserver{}, SinkOptions{Workers: 2, Capacity: 16, Notifier: n})

	require.NoError(t, s.Enqueue(context.Background(), &domain.SecurityAuditLog{ID: "1", Action: "session_created", UserID: "u", Severity: domain.SeverityInfo}))
	require.NoError(t, s.Enqueue(context.Background(), &domain.SecurityAuditLog{ID: "2", Action: "device_blocked", UserID: "u", Severity: domain.SeverityCritical}))
	closeSink(t, s)

	assert.Equal(t, []string{"device_blocked"}, n.actions)
}

func TestSink_EnqueueAfterClose(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	obs := &recordingObserver{}
	s := NewSink(repo, obs, SinkOptions{})
	closeSink(t, s)

	err := s.Enqueue(context.Background(), entry("late", domain.SeverityCritical))
	assert.ErrorIs(t, err, errs.ErrSinkUnavailable)
	assert.Equal(t, []string{"late"}, obs.droppedIDs())
	assert.Equal(t, "sink closed", obs.reasons[0])
	assert.Empty(t, repo.All())

	// second close is a no-op
	closeSink(t, s)
}

func TestSink_CloseDrainsQueue(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	s := NewSink(repo, &recordingObserver{}, SinkOptions{Workers: 3, Capacity: 300})
	for i := 0; i < 200; i++ {
		e := entry(fmt.Sprintf("e%d", i), domain.SeverityInfo)
		e.SessionID = fmt.Sprintf("s%d", i%7)
		require.NoError(t, s.Enqueue(context.Background(), e))
	}
	closeSink(t, s)
	assert.Len(t, repo.All(), 200)
	assert.Zero(t, s.Pending())
}
