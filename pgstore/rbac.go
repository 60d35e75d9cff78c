// Package pgstore implements the role/grant relation over PostgreSQL.
// It backs permission.RoleStore for deployments that keep the RBAC catalog
// in SQL; any other backend can be substituted behind the same interface.
//
// Expected schema:
//
//	roles(id, name, is_system)
//	user_roles(user_id, role_id)
//	role_permissions(role_id, permission_code)
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/accessguard/accessguard/permission"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var (
	// ErrNotFound indicates the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the row already exists.
	ErrConflict = errors.New("resource conflict")
	// ErrSystemRole indicates a mutation targeted a system-protected role.
	ErrSystemRole = errors.New("system role is protected")
)

var _ permission.RoleStore = (*Store)(nil)

// Store is a permission.RoleStore over a SQL database opened with the pgx
// driver.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	return &Store{db: db}, nil
}

// Open connects using the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// GetUserRoles implements permission.RoleStore.
func (s *Store) GetUserRoles(ctx context.Context, userID string) ([]permission.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.is_system
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []permission.Role
	for rows.Next() {
		var role permission.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.IsSystem); err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// HasPermission implements permission.RoleStore.
func (s *Store) HasPermission(ctx context.Context, roleID, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from role_permissions
			where role_id = $1 and permission_code = $2
		)
	`, roleID, code).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CreateRole inserts a role.
func (s *Store) CreateRole(ctx context.Context, id, name string, isSystem bool) (permission.Role, error) {
	var role permission.Role
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, is_system)
		values ($1, $2, $3)
		returning id, name, is_system
	`, id, name, isSystem).Scan(&role.ID, &role.Name, &role.IsSystem)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return permission.Role{}, ErrConflict
		}
		return permission.Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role unless it is system-protected.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	var isSystem bool
	err := s.db.QueryRowContext(ctx, `
		select is_system from roles where id = $1
	`, roleID).Scan(&isSystem)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if isSystem {
		return ErrSystemRole
	}

	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1 and is_system = false`, roleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignRoleToUser inserts a user_roles edge.
func (s *Store) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return ErrConflict
			case pgErrForeignKeyViolation:
				return ErrNotFound
			}
		}
		return err
	}
	return nil
}

// RemoveRoleFromUser deletes a user_roles edge.
func (s *Store) RemoveRoleFromUser(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GrantPermission inserts a role_permissions edge. Granting an existing
// edge is idempotent.
func (s *Store) GrantPermission(ctx context.Context, roleID, code string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_code)
		values ($1, $2)
		on conflict do nothing
	`, roleID, code)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// RevokePermission deletes a role_permissions edge.
func (s *Store) RevokePermission(ctx context.Context, roleID, code string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from role_permissions where role_id = $1 and permission_code = $2
	`, roleID, code)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
