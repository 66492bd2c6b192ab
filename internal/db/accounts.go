package db

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/errors"
)

// Accounts queries portal users and their groups.
type Accounts struct {
	pool *pgxpool.Pool
}

// PortalUser is a row of portal_users joined with its group name.
type PortalUser struct {
	ID                   string
	Username             string
	Name                 string
	Email                string
	Avatar               string
	PasswordHash         string
	GroupID              *int
	Group                string
	IsActive             bool
	InvalidLoginAttempts int
	IsLocked             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

const selectUser = `
	SELECT u.id, u.username, u.name, u.email, u.avatar, u.password_hash,
		u.group_id, COALESCE(g.name, ''), u.is_active,
		u.invalid_login_attempts, u.is_locked, u.created_at, u.updated_at
	FROM portal_users u
	LEFT JOIN portal_user_groups g ON g.id = u.group_id`

func scanUser(row pgx.Row) (PortalUser, error) {
	var u PortalUser
	err := row.Scan(
		&u.ID, &u.Username, &u.Name, &u.Email, &u.Avatar, &u.PasswordHash,
		&u.GroupID, &u.Group, &u.IsActive,
		&u.InvalidLoginAttempts, &u.IsLocked, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func noRows(err error, format string, args ...interface{}) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFoundf(format, args...)
	}
	return err
}

func (a *Accounts) GetUser(ctx context.Context, id string) (PortalUser, error) {
	u, err := scanUser(a.pool.QueryRow(ctx, selectUser+" WHERE u.id = $1", id))
	return u, noRows(err, "portal user %q", id)
}

func (a *Accounts) GetUserByUsername(ctx context.Context, username string) (PortalUser, error) {
	u, err := scanUser(a.pool.QueryRow(ctx, selectUser+" WHERE lower(u.username) = lower($1)", username))
	return u, noRows(err, "portal user %q", username)
}

// CreateUserParams describes a new portal account. Group is a group name.
type CreateUserParams struct {
	ID           string
	Username     string
	Name         string
	Email        string
	PasswordHash string
	Group        string
}

func (a *Accounts) CreateUser(ctx context.Context, p CreateUserParams) (PortalUser, error) {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO portal_users (id, username, name, email, password_hash, group_id)
		VALUES ($1, $2, $3, $4, $5, (SELECT id FROM portal_user_groups WHERE name = $6))`,
		p.ID, p.Username, p.Name, p.Email, p.PasswordHash, p.Group,
	)
	if err != nil {
		return PortalUser{}, fmt.Errorf("failed to insert portal user: %w", err)
	}
	return a.GetUser(ctx, p.ID)
}

// Permissions lists the permission names granted to a group.
func (a *Accounts) Permissions(ctx context.Context, groupID int) ([]string, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT p.name FROM portal_group_permissions gp
		JOIN portal_permissions p ON p.id = gp.permission_id
		WHERE gp.group_id = $1
		ORDER BY p.name`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

// RecordLoginFailure increments the failure counter and locks the account
// once it reaches lockAfter.
func (a *Accounts) RecordLoginFailure(ctx context.Context, id string, lockAfter int) (int, bool, error) {
	var attempts int
	var locked bool
	err := a.pool.QueryRow(ctx, `
		UPDATE portal_users
		SET invalid_login_attempts = invalid_login_attempts + 1,
			is_locked = is_locked OR invalid_login_attempts + 1 >= $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING invalid_login_attempts, is_locked`, id, lockAfter,
	).Scan(&attempts, &locked)
	return attempts, locked, noRows(err, "portal user %q", id)
}

func (a *Accounts) ResetLoginFailures(ctx context.Context, id string) error {
	_, err := a.pool.Exec(ctx,
		"UPDATE portal_users SET invalid_login_attempts = 0, updated_at = NOW() WHERE id = $1", id)
	return err
}

// Names maps user ids to display names. Unknown ids are left out.
func (a *Accounts) Names(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := a.pool.Query(ctx, "SELECT id, name FROM portal_users WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}
