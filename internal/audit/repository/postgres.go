package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"multidept-session-trust/backend/internal/audit/domain"
)

const auditColumns = `id, action, resource, user_id, username, is_success, failure_reason, details,
	ip_address, user_agent, department_id, session_id, severity, occurred_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the audit log for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.SecurityAuditLog, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM security_audit_logs WHERE id = $1`, id)
	a, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int32) ([]*domain.SecurityAuditLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, col+" = $"+strconv.Itoa(len(args)))
	}
	add("user_id", f.UserID)
	add("action", f.Action)
	add("department_id", f.DepartmentID)
	add("session_id", f.SessionID)

	q := `SELECT ` + auditColumns + ` FROM security_audit_logs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	q += ` ORDER BY occurred_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.SecurityAuditLog
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create persists the entry. Entries are never updated.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.SecurityAuditLog) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO security_audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Action, a.Resource, a.UserID, a.Username, a.IsSuccess, a.FailureReason, a.Details,
		a.IPAddress, a.UserAgent, a.DepartmentID, a.SessionID, string(a.Severity), a.Timestamp)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudit(row rowScanner) (*domain.SecurityAuditLog, error) {
	var (
		a        domain.SecurityAuditLog
		severity string
	)
	if err := row.Scan(&a.ID, &a.Action, &a.Resource, &a.UserID, &a.Username, &a.IsSuccess, &a.FailureReason,
		&a.Details, &a.IPAddress, &a.UserAgent, &a.DepartmentID, &a.SessionID, &severity, &a.Timestamp); err != nil {
		return nil, err
	}
	a.Severity = domain.Severity(severity)
	return &a, nil
}
