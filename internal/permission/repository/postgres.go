package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"multidept-session-trust/backend/internal/permission/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a permission repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetPermission(ctx context.Context, name string) (*domain.Permission, error) {
	var p domain.Permission
	err := r.db.QueryRowContext(ctx,
		`SELECT name, department_scoped, description FROM permissions WHERE name = $1`, name,
	).Scan(&p.Name, &p.DepartmentScoped, &p.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) RolePermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT rp.permission_name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_name = ur.role_name
		WHERE ur.user_id = $1
		ORDER BY rp.permission_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Overrides(ctx context.Context, userID string) ([]*domain.Override, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, permission_name, is_granted, department_id, expires_at, created_at
		FROM user_permissions
		WHERE user_id = $1
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Override
	for rows.Next() {
		var (
			o       domain.Override
			dept    sql.NullString
			expires sql.NullTime
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.Permission, &o.IsGranted, &dept, &expires, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.DepartmentID = dept.String
		if expires.Valid {
			t := expires.Time
			o.ExpiresAt = &t
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpsertPermission(ctx context.Context, p *domain.Permission) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permissions (name, department_scoped, description) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET department_scoped = EXCLUDED.department_scoped, description = EXCLUDED.description`,
		p.Name, p.DepartmentScoped, p.Description)
	return err
}

func (r *PostgresRepository) UpsertRole(ctx context.Context, name, description string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO roles (name, description) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`, name, description)
	return err
}

func (r *PostgresRepository) GrantRolePermission(ctx context.Context, role, permission string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO role_permissions (role_name, permission_name) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, role, permission)
	return err
}

func (r *PostgresRepository) AssignRole(ctx context.Context, userID, role string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_name) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, role)
	return err
}

func (r *PostgresRepository) CreateOverride(ctx context.Context, o *domain.Override) error {
	dept := sql.NullString{String: o.DepartmentID, Valid: o.DepartmentID != ""}
	var expires sql.NullTime
	if o.ExpiresAt != nil {
		expires = sql.NullTime{Time: o.ExpiresAt.UTC(), Valid: true}
	}
	created := o.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_permissions (id, user_id, permission_name, is_granted, department_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.UserID, o.Permission, o.IsGranted, dept, expires, created.UTC())
	return err
}
