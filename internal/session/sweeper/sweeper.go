// Package sweeper runs the expired-session cleanup on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Cleaner is the part of the session manager the sweeper drives.
type Cleaner interface {
	CleanupExpiredSessions(ctx context.Context) (int, error)
}

// Sweeper periodically transitions expired sessions. Overlapping runs are skipped; overlapping
// sweeps across processes are safe because each session is expired by a single conditional update.
type Sweeper struct {
	cron    *cron.Cron
	cleaner Cleaner
	timeout time.Duration
	runs    atomic.Int64
}

// New parses spec (five-field cron or a descriptor such as "@every 5m") and returns a stopped Sweeper.
func New(cleaner Cleaner, spec string, timeout time.Duration) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid cron schedule '%s': %w", spec, err)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &Sweeper{
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cleaner: cleaner,
		timeout: timeout,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule cleanup: %w", err)
	}
	return s, nil
}

// Start begins the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Msg("session sweeper started")
}

// Stop halts the schedule and waits for a running sweep or ctx, whichever ends first.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single sweep now.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	s.runs.Add(1)
	return s.cleaner.CleanupExpiredSessions(ctx)
}

// Runs returns how many sweeps have been attempted.
func (s *Sweeper) Runs() int64 {
	return s.runs.Load()
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("session cleanup failed")
		return
	}
	log.Debug().Int("expired", n).Msg("session cleanup run")
}
