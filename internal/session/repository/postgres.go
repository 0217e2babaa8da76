package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"multidept-session-trust/backend/internal/session/domain"
)

const sessionColumns = `id, user_id, device_fingerprint, ip_address, user_agent, location,
	created_at, last_accessed_at, expires_at, is_active, is_revoked, revoked_at, revocation_reason,
	is_suspicious, suspicious_reason, failed_access_attempts, is_remember_me,
	requires_mfa_reverification, last_mfa_verification`

// liveClause selects sessions that are still usable at $now.
const liveClause = `is_active AND NOT is_revoked AND expires_at >= `

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		s.ID, s.UserID, s.DeviceFingerprint, s.IPAddress, s.UserAgent, s.Location,
		s.CreatedAt, s.LastAccessedAt, s.ExpiresAt, s.IsActive, s.IsRevoked, timeToNullTime(s.RevokedAt), s.RevocationReason,
		s.IsSuspicious, s.SuspiciousReason, s.FailedAccessAttempts, s.IsRememberMe,
		s.RequiresMfaReverification, timeToNullTime(s.LastMfaVerification))
	return err
}

func (r *PostgresRepository) ListLiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND `+liveClause+`$2
		ORDER BY created_at, id`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Revoke(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	return r.execOne(ctx, `UPDATE sessions
		SET is_active = FALSE, is_revoked = TRUE, revoked_at = $2, revocation_reason = $3
		WHERE id = $1 AND `+liveClause+`$2`, id, now, reason)
}

func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time, ip, userAgent string) (bool, error) {
	return r.execOne(ctx, `UPDATE sessions
		SET last_accessed_at = GREATEST(last_accessed_at, $2),
		    ip_address = CASE WHEN $3 = '' THEN ip_address ELSE $3 END,
		    user_agent = CASE WHEN $4 = '' THEN user_agent ELSE $4 END
		WHERE id = $1 AND `+liveClause+`$2`, id, at, ip, userAgent)
}

func (r *PostgresRepository) MarkSuspicious(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET is_suspicious = TRUE, suspicious_reason = $2
		WHERE id = $1 AND is_active AND NOT is_revoked`, id, reason)
	return err
}

func (r *PostgresRepository) IncrementFailedAttempts(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.execOne(ctx, `UPDATE sessions SET failed_access_attempts = failed_access_attempts + 1
		WHERE id = $1 AND `+liveClause+`$2`, id, now)
}

func (r *PostgresRepository) ExtendExpiry(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	return r.execOne(ctx, `UPDATE sessions SET expires_at = GREATEST(expires_at, $2)
		WHERE id = $1 AND is_remember_me AND `+liveClause+`$3`, id, expiresAt, now)
}

func (r *PostgresRepository) RecordMfaVerification(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.execOne(ctx, `UPDATE sessions SET last_mfa_verification = $2
		WHERE id = $1 AND `+liveClause+`$2`, id, at)
}

func (r *PostgresRepository) ExpireBefore(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `UPDATE sessions
		SET is_active = FALSE, revocation_reason = $2
		WHERE is_active AND NOT is_revoked AND expires_at < $1
		RETURNING id`, now, domain.ReasonExpired)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) Statistics(ctx context.Context, now time.Time) (*domain.SessionStatistics, error) {
	var st domain.SessionStatistics
	err := r.db.QueryRowContext(ctx, `SELECT
		COUNT(*) FILTER (WHERE `+liveClause+`$1),
		COUNT(*),
		COUNT(*) FILTER (WHERE is_revoked),
		COUNT(*) FILTER (WHERE NOT is_revoked AND (NOT is_active OR expires_at < $1)),
		COUNT(*) FILTER (WHERE is_suspicious AND `+liveClause+`$1),
		COUNT(*) FILTER (WHERE is_remember_me AND `+liveClause+`$1),
		COUNT(DISTINCT user_id) FILTER (WHERE `+liveClause+`$1),
		COUNT(*) FILTER (WHERE created_at > $2)
		FROM sessions`, now, now.Add(-24*time.Hour)).Scan(
		&st.TotalActiveSessions, &st.TotalSessions, &st.RevokedSessions, &st.ExpiredSessions,
		&st.SuspiciousSessions, &st.RememberMeSessions, &st.UniqueActiveUsers, &st.SessionsLast24h)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s         domain.Session
		revokedAt sql.NullTime
		mfaAt     sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceFingerprint, &s.IPAddress, &s.UserAgent, &s.Location,
		&s.CreatedAt, &s.LastAccessedAt, &s.ExpiresAt, &s.IsActive, &s.IsRevoked, &revokedAt, &s.RevocationReason,
		&s.IsSuspicious, &s.SuspiciousReason, &s.FailedAccessAttempts, &s.IsRememberMe,
		&s.RequiresMfaReverification, &mfaAt)
	if err != nil {
		return nil, err
	}
	s.RevokedAt = nullTimeToPtr(revokedAt)
	s.LastMfaVerification = nullTimeToPtr(mfaAt)
	return &s, nil
}

// PostgresActivityRepository stores session activity in session_activities.
type PostgresActivityRepository struct {
	db *sql.DB
}

func NewPostgresActivityRepository(db *sql.DB) *PostgresActivityRepository {
	return &PostgresActivityRepository{db: db}
}

func (r *PostgresActivityRepository) Append(ctx context.Context, a *domain.SessionActivity) error {
	meta := a.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO session_activities
		(id, session_id, activity, resource, ip_address, user_agent, occurred_at, risk_level, risk_reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.SessionID, a.Activity, a.Resource, a.IPAddress, a.UserAgent, a.Timestamp, string(a.RiskLevel), a.RiskReason, raw)
	return err
}

func (r *PostgresActivityRepository) ListBySession(ctx context.Context, sessionID string, limit, offset int32) ([]*domain.SessionActivity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, session_id, activity, resource, ip_address, user_agent,
		occurred_at, risk_level, risk_reason, metadata
		FROM session_activities WHERE session_id = $1
		ORDER BY occurred_at DESC, id DESC LIMIT $2 OFFSET $3`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.SessionActivity
	for rows.Next() {
		var (
			a    domain.SessionActivity
			risk string
			raw  []byte
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Activity, &a.Resource, &a.IPAddress, &a.UserAgent,
			&a.Timestamp, &risk, &a.RiskReason, &raw); err != nil {
			return nil, err
		}
		a.RiskLevel = domain.RiskLevel(risk)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *PostgresActivityRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_activities WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

// PostgresConfigurationRepository stores per-user policy in session_configurations.
type PostgresConfigurationRepository struct {
	db *sql.DB
}

func NewPostgresConfigurationRepository(db *sql.DB) *PostgresConfigurationRepository {
	return &PostgresConfigurationRepository{db: db}
}

// Get returns the user's configuration, or nil if none is stored.
func (r *PostgresConfigurationRepository) Get(ctx context.Context, userID string) (*domain.SessionConfiguration, error) {
	var c domain.SessionConfiguration
	err := r.db.QueryRowContext(ctx, `SELECT user_id, max_concurrent_sessions, session_timeout_minutes,
		extended_session_timeout_minutes, idle_timeout_minutes, require_device_verification,
		enable_concurrent_session_control, allow_remember_me, updated_at
		FROM session_configurations WHERE user_id = $1`, userID).Scan(
		&c.UserID, &c.MaxConcurrentSessions, &c.SessionTimeoutMinutes, &c.ExtendedSessionTimeoutMinutes,
		&c.IdleTimeoutMinutes, &c.RequireDeviceVerification, &c.EnableConcurrentSessionControl,
		&c.AllowRememberMe, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Put replaces the user's configuration.
func (r *PostgresConfigurationRepository) Put(ctx context.Context, c *domain.SessionConfiguration) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO session_configurations (user_id, max_concurrent_sessions,
		session_timeout_minutes, extended_session_timeout_minutes, idle_timeout_minutes,
		require_device_verification, enable_concurrent_session_control, allow_remember_me, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			max_concurrent_sessions = EXCLUDED.max_concurrent_sessions,
			session_timeout_minutes = EXCLUDED.session_timeout_minutes,
			extended_session_timeout_minutes = EXCLUDED.extended_session_timeout_minutes,
			idle_timeout_minutes = EXCLUDED.idle_timeout_minutes,
			require_device_verification = EXCLUDED.require_device_verification,
			enable_concurrent_session_control = EXCLUDED.enable_concurrent_session_control,
			allow_remember_me = EXCLUDED.allow_remember_me,
			updated_at = EXCLUDED.updated_at`,
		c.UserID, c.MaxConcurrentSessions, c.SessionTimeoutMinutes, c.ExtendedSessionTimeoutMinutes,
		c.IdleTimeoutMinutes, c.RequireDeviceVerification, c.EnableConcurrentSessionControl,
		c.AllowRememberMe, c.UpdatedAt)
	return err
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
