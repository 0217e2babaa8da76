package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"multidept-session-trust/backend/internal/device/domain"
)

const deviceColumns = `id, fingerprint_hash, user_id, attributes, first_seen, last_seen,
	is_trusted, is_blocked, blocked_reason, blocked_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByHashAndUser returns the fingerprint, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByHashAndUser(ctx context.Context, hash, userID string) (*domain.DeviceFingerprint, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM device_fingerprints
		WHERE fingerprint_hash = $1 AND user_id = $2`, hash, userID)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.DeviceFingerprint, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM device_fingerprints
		WHERE user_id = $1 ORDER BY last_seen DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.DeviceFingerprint
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Upsert(ctx context.Context, d *domain.DeviceFingerprint) (*domain.DeviceFingerprint, error) {
	attrs, err := json.Marshal(d.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal fingerprint attributes: %w", err)
	}
	row := r.db.QueryRowContext(ctx, `INSERT INTO device_fingerprints
		(id, fingerprint_hash, user_id, attributes, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (fingerprint_hash, user_id) DO UPDATE
		SET last_seen = GREATEST(device_fingerprints.last_seen, EXCLUDED.last_seen)
		RETURNING `+deviceColumns, d.ID, d.FingerprintHash, d.UserID, attrs, d.LastSeen)
	return scanDevice(row)
}

func (r *PostgresRepository) SetTrusted(ctx context.Context, hash, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE device_fingerprints SET is_trusted = TRUE
		WHERE fingerprint_hash = $1 AND user_id = $2 AND NOT is_blocked`, hash, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PostgresRepository) SetBlocked(ctx context.Context, hash, userID, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE device_fingerprints
		SET is_blocked = TRUE, is_trusted = FALSE, blocked_reason = $3, blocked_at = $4
		WHERE fingerprint_hash = $1 AND user_id = $2 AND NOT is_blocked`, hash, userID, reason, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.DeviceFingerprint, error) {
	var (
		d         domain.DeviceFingerprint
		attrs     []byte
		blockedAt sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.FingerprintHash, &d.UserID, &attrs, &d.FirstSeen, &d.LastSeen,
		&d.IsTrusted, &d.IsBlocked, &d.BlockedReason, &blockedAt); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &d.Attributes); err != nil {
			return nil, fmt.Errorf("decode fingerprint attributes: %w", err)
		}
	}
	if blockedAt.Valid {
		t := blockedAt.Time
		d.BlockedAt = &t
	}
	return &d, nil
}
