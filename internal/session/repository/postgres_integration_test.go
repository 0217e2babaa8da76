//go:build integration

package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multidept-session-trust/backend/internal/db/dbtest"
	"multidept-session-trust/backend/internal/session/domain"
)

func TestIntegration_PostgresSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.StartPostgres(t)
	repo := NewPostgresRepository(conn)
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i, id := range []string{"s-a", "s-b", "s-c"} {
		s := liveSession(id, "u1", now.Add(time.Duration(i)*time.Second))
		s.IPAddress = "10.0.0.1"
		require.NoError(t, repo.Create(ctx, s))
	}

	t.Run("list live oldest first", func(t *testing.T) {
		list, err := repo.ListLiveByUser(ctx, "u1", now.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "s-a", list[0].ID)
	})

	t.Run("concurrent revoke has one winner", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.Revoke(ctx, "s-a", domain.ReasonLogout, now.Add(time.Minute))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("touch and missing row", func(t *testing.T) {
		touched, err := repo.Touch(ctx, "s-b", now.Add(2*time.Minute), "10.0.0.9", "curl")
		require.NoError(t, err)
		assert.True(t, touched)
		s, err := repo.GetByID(ctx, "s-b")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.9", s.IPAddress)
		assert.Equal(t, "curl", s.UserAgent)

		missing, err := repo.GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("sweep expired", func(t *testing.T) {
		ids, err := repo.ExpireBefore(ctx, now.Add(9*time.Hour))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"s-b", "s-c"}, ids)

		st, err := repo.Statistics(ctx, now.Add(9*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 3, st.TotalSessions)
		assert.Equal(t, 1, st.RevokedSessions)
		assert.Equal(t, 2, st.ExpiredSessions)
		assert.Equal(t, 0, st.TotalActiveSessions)
	})
}

func TestIntegration_PostgresActivityAndConfiguration(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.StartPostgres(t)
	activity := NewPostgresActivityRepository(conn)
	configs := NewPostgresConfigurationRepository(conn)
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, activity.Append(ctx, &domain.SessionActivity{
		ID: "a1", SessionID: "s1", Activity: domain.ActivityValidated, Timestamp: now,
		RiskLevel: domain.RiskMedium, RiskReason: "ip change", Metadata: map[string]string{"k": "v"},
	}))
	list, err := activity.ListBySession(ctx, "s1", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.RiskMedium, list[0].RiskLevel)
	assert.Equal(t, "v", list[0].Metadata["k"])

	got, err := configs.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	cfg := domain.DefaultSessionConfiguration("u1")
	cfg.MaxConcurrentSessions = 2
	cfg.UpdatedAt = now
	require.NoError(t, configs.Put(ctx, cfg))
	cfg.MaxConcurrentSessions = 3
	require.NoError(t, configs.Put(ctx, cfg))
	got, err = configs.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.MaxConcurrentSessions)
}
