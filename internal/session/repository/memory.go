package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"multidept-session-trust/backend/internal/session/domain"
)

// MemoryRepository is an in-process session store used when no database is configured and in tests.
// It applies the same conditional transitions as the Postgres repository.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id].Clone(), nil
}

func (r *MemoryRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) ListLiveByUser(_ context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && !s.IsTerminal(now) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) Revoke(_ context.Context, id, reason string, now time.Time) (bool, error) {
	return r.updateLive(id, now, func(s *domain.Session) {
		at := now
		s.IsActive = false
		s.IsRevoked = true
		s.RevokedAt = &at
		s.RevocationReason = reason
	}), nil
}

func (r *MemoryRepository) Touch(_ context.Context, id string, at time.Time, ip, userAgent string) (bool, error) {
	return r.updateLive(id, at, func(s *domain.Session) {
		if at.After(s.LastAccessedAt) {
			s.LastAccessedAt = at
		}
		if ip != "" {
			s.IPAddress = ip
		}
		if userAgent != "" {
			s.UserAgent = userAgent
		}
	}), nil
}

func (r *MemoryRepository) MarkSuspicious(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.IsActive && !s.IsRevoked {
		s.IsSuspicious = true
		s.SuspiciousReason = reason
	}
	return nil
}

func (r *MemoryRepository) IncrementFailedAttempts(_ context.Context, id string, now time.Time) (bool, error) {
	return r.updateLive(id, now, func(s *domain.Session) { s.FailedAccessAttempts++ }), nil
}

func (r *MemoryRepository) ExtendExpiry(_ context.Context, id string, expiresAt, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.IsRememberMe || s.IsTerminal(now) {
		return false, nil
	}
	if expiresAt.After(s.ExpiresAt) {
		s.ExpiresAt = expiresAt
	}
	return true, nil
}

func (r *MemoryRepository) RecordMfaVerification(_ context.Context, id string, at time.Time) (bool, error) {
	return r.updateLive(id, at, func(s *domain.Session) {
		t := at
		s.LastMfaVerification = &t
	}), nil
}

func (r *MemoryRepository) ExpireBefore(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if s.IsActive && !s.IsRevoked && s.IsExpired(now) {
			s.IsActive = false
			s.RevocationReason = domain.ReasonExpired
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryRepository) Statistics(_ context.Context, now time.Time) (*domain.SessionStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st domain.SessionStatistics
	users := make(map[string]struct{})
	dayAgo := now.Add(-24 * time.Hour)
	for _, s := range r.sessions {
		st.TotalSessions++
		live := !s.IsTerminal(now)
		switch {
		case s.IsRevoked:
			st.RevokedSessions++
		case !live:
			st.ExpiredSessions++
		}
		if live {
			st.TotalActiveSessions++
			users[s.UserID] = struct{}{}
			if s.IsSuspicious {
				st.SuspiciousSessions++
			}
			if s.IsRememberMe {
				st.RememberMeSessions++
			}
		}
		if s.CreatedAt.After(dayAgo) {
			st.SessionsLast24h++
		}
	}
	st.UniqueActiveUsers = len(users)
	return &st, nil
}

func (r *MemoryRepository) updateLive(id string, now time.Time, fn func(*domain.Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.IsTerminal(now) {
		return false
	}
	fn(s)
	return true
}

// MemoryActivityRepository keeps session activity in memory.
type MemoryActivityRepository struct {
	mu    sync.Mutex
	items map[string][]*domain.SessionActivity
}

func NewMemoryActivityRepository() *MemoryActivityRepository {
	return &MemoryActivityRepository{items: make(map[string][]*domain.SessionActivity)}
}

func (r *MemoryActivityRepository) Append(_ context.Context, a *domain.SessionActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.items[a.SessionID] = append(r.items[a.SessionID], &c)
	return nil
}

func (r *MemoryActivityRepository) ListBySession(_ context.Context, sessionID string, limit, offset int32) ([]*domain.SessionActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.items[sessionID]
	if offset < 0 {
		offset = 0
	}
	var out []*domain.SessionActivity
	// newest first; appends arrive in time order
	for i := len(all) - 1 - int(offset); i >= 0 && len(out) < int(limit); i-- {
		c := *all[i]
		out = append(out, &c)
	}
	return out, nil
}

func (r *MemoryActivityRepository) CountBySession(_ context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items[sessionID]), nil
}

// MemoryConfigurationRepository keeps per-user policy in memory.
type MemoryConfigurationRepository struct {
	mu      sync.Mutex
	configs map[string]domain.SessionConfiguration
}

func NewMemoryConfigurationRepository() *MemoryConfigurationRepository {
	return &MemoryConfigurationRepository{configs: make(map[string]domain.SessionConfiguration)}
}

func (r *MemoryConfigurationRepository) Get(_ context.Context, userID string) (*domain.SessionConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryConfigurationRepository) Put(_ context.Context, c *domain.SessionConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[c.UserID] = *c
	return nil
}
