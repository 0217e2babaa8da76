package audit

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"multidept-session-trust/backend/internal/audit/domain"
	auditrepo "multidept-session-trust/backend/internal/audit/repository"
	"multidept-session-trust/backend/internal/platform/errs"
	"multidept-session-trust/backend/internal/telemetry"
)

// Notifier is told about every critical event after it leaves the queue.
type Notifier interface {
	Notify(ctx context.Context, entry *domain.SecurityAuditLog) error
}

// SinkOptions sizes the queue and the persistence retries.
type SinkOptions struct {
	Capacity             int // total pending events across all shards
	Workers              int // one shard per worker
	EnqueueWait          time.Duration
	MaxRetries           uint
	RetryInitialInterval time.Duration
	PersistTimeout       time.Duration
	Notifier             Notifier
}

func (o SinkOptions) withDefaults() SinkOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Capacity < o.Workers {
		o.Capacity = 1024
	}
	if o.EnqueueWait <= 0 {
		o.EnqueueWait = 50 * time.Millisecond
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.RetryInitialInterval <= 0 {
		o.RetryInitialInterval = 100 * time.Millisecond
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 10 * time.Second
	}
	return o
}

// Sink is the bounded, asynchronous audit queue. Events are sharded by session (or user) so
// that each shard is written by a single worker in enqueue order.
type Sink struct {
	repo     auditrepo.Repository
	observer telemetry.Observer
	opts     SinkOptions
	shards   []*shard

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

type shard struct {
	mu      sync.Mutex
	pending []*domain.SecurityAuditLog
	limit   int
	wake    chan struct{}
	space   chan struct{}
	// writeMu is held while an event is popped and persisted, so writes leave a shard in order
	// even when an enqueuer flushes a slot itself.
	writeMu sync.Mutex
}

// NewSink starts the shard workers. Call Close to drain and stop them.
func NewSink(repo auditrepo.Repository, observer telemetry.Observer, opts SinkOptions) *Sink {
	if observer == nil {
		observer = telemetry.LogObserver{}
	}
	opts = opts.withDefaults()
	s := &Sink{
		repo:     repo,
		observer: observer,
		opts:     opts,
		shards:   make([]*shard, opts.Workers),
		done:     make(chan struct{}),
	}
	per := opts.Capacity / opts.Workers
	for i := range s.shards {
		s.shards[i] = &shard{
			limit: per,
			wake:  make(chan struct{}, 1),
			space: make(chan struct{}, 1),
		}
		s.wg.Add(1)
		go s.run(s.shards[i])
	}
	return s
}

// Enqueue queues entry for persistence. It never blocks longer than the configured wait, except
// that a critical event arriving at a shard full of critical events persists the oldest of them
// synchronously to make room. A dropped event is reported to the observer and yields
// errs.ErrSinkUnavailable.
func (s *Sink) Enqueue(ctx context.Context, entry *domain.SecurityAuditLog) error {
	if s.closed.Load() {
		s.observer.AuditDropped(ctx, entry, "sink closed")
		return errs.ErrSinkUnavailable
	}
	sh := s.shardFor(entry)

	sh.mu.Lock()
	if len(sh.pending) < sh.limit {
		sh.pending = append(sh.pending, entry)
		sh.mu.Unlock()
		signal(sh.wake)
		return nil
	}
	if i := sh.oldestNonCritical(); i >= 0 {
		dropped := sh.pending[i]
		sh.pending = append(sh.pending[:i], sh.pending[i+1:]...)
		sh.pending = append(sh.pending, entry)
		sh.mu.Unlock()
		signal(sh.wake)
		s.observer.AuditDropped(ctx, dropped, "queue full")
		return nil
	}
	sh.mu.Unlock()

	if entry.Severity == domain.SeverityCritical {
		s.flushSlotAndAppend(sh, entry)
		return nil
	}
	return s.waitForRoom(ctx, sh, entry)
}

// Flush persists everything currently queued. Used at shutdown and by tests.
func (s *Sink) Flush() {
	for _, sh := range s.shards {
		s.drain(sh)
	}
}

// Pending returns the number of queued, not yet persisted events.
func (s *Sink) Pending() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.pending)
		sh.mu.Unlock()
	}
	return n
}

// Close stops accepting events and drains the queue. It returns ctx.Err() if ctx ends first;
// the workers keep draining in the background in that case.
func (s *Sink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		// catch events that raced with the close flag
		s.Flush()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) run(sh *shard) {
	defer s.wg.Done()
	for {
		select {
		case <-sh.wake:
			s.drain(sh)
		case <-s.done:
			s.drain(sh)
			return
		}
	}
}

func (s *Sink) drain(sh *shard) {
	for {
		sh.writeMu.Lock()
		entry := sh.pop()
		if entry == nil {
			sh.writeMu.Unlock()
			return
		}
		s.persist(entry)
		sh.writeMu.Unlock()
	}
}

func (s *Sink) flushSlotAndAppend(sh *shard, entry *domain.SecurityAuditLog) {
	sh.writeMu.Lock()
	defer sh.writeMu.Unlock()
	for {
		sh.mu.Lock()
		if len(sh.pending) < sh.limit {
			sh.pending = append(sh.pending, entry)
			sh.mu.Unlock()
			signal(sh.wake)
			return
		}
		head := sh.pending[0]
		sh.pending = sh.pending[1:]
		sh.mu.Unlock()
		s.persist(head)
	}
}

func (s *Sink) waitForRoom(ctx context.Context, sh *shard, entry *domain.SecurityAuditLog) error {
	timer := time.NewTimer(s.opts.EnqueueWait)
	defer timer.Stop()
	for {
		select {
		case <-sh.space:
		case <-timer.C:
			s.observer.AuditDropped(ctx, entry, "queue full of critical events")
			return errs.ErrSinkUnavailable
		case <-ctx.Done():
			s.observer.AuditDropped(ctx, entry, "caller cancelled")
			return errs.ErrSinkUnavailable
		}
		sh.mu.Lock()
		if len(sh.pending) < sh.limit {
			sh.pending = append(sh.pending, entry)
			sh.mu.Unlock()
			signal(sh.wake)
			return nil
		}
		sh.mu.Unlock()
	}
}

func (s *Sink) persist(entry *domain.SecurityAuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInitialInterval
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.repo.Create(ctx, entry)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.opts.MaxRetries))
	if err != nil {
		s.observer.AuditSinkFailed(ctx, entry, fmt.Errorf("%w: %v", errs.ErrSinkUnavailable, err))
	}

	if entry.Severity == domain.SeverityCritical && s.opts.Notifier != nil {
		if err := s.opts.Notifier.Notify(ctx, entry); err != nil {
			log.Warn().Err(err).Str("action", entry.Action).Msg("critical event notification failed")
		}
	}
}

func (s *Sink) shardFor(entry *domain.SecurityAuditLog) *shard {
	key := entry.SessionID
	if key == "" {
		key = entry.UserID
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (sh *shard) pop() *domain.SecurityAuditLog {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if len(sh.pending) == 0 {
		return nil
	}
	e := sh.pending[0]
	sh.pending[0] = nil
	sh.pending = sh.pending[1:]
	signal(sh.space)
	return e
}

func (sh *shard) oldestNonCritical() int {
	for i, e := range sh.pending {
		if e.Severity != domain.SeverityCritical {
			return i
		}
	}
	return -1
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
