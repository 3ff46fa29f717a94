package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskline/taskline/internal/models"
)

// firstUserLockID serializes first-user detection across processes so only
// one account can ever be promoted to the bootstrap system owner.
const firstUserLockID int64 = 4920137585

// CreateUser persists a new user, applying the tenant rules: an explicitly
// supplied organization wins; otherwise the default organization is resolved
// and assigned; the very first user ever created becomes the system owner
// and carries no organization at all. A failed default-organization
// resolution fails the save — a user is never silently persisted without a
// tenant.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	var defaultOrgID *uuid.UUID
	if user.OrgID == nil {
		org, err := db.ResolveDefaultOrg(ctx)
		if err != nil {
			return fmt.Errorf("assign default organization: %w", err)
		}
		defaultOrgID = &org.ID
	}

	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", firstUserLockID); err != nil {
			return fmt.Errorf("acquire first-user lock: %w", err)
		}

		var anyUsers bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users)").Scan(&anyUsers); err != nil {
			return fmt.Errorf("check existing users: %w", err)
		}

		if !anyUsers {
			// Bootstrap: the first account supervises all tenants.
			user.IsSystemOwner = true
			user.IsAdmin = true
			user.OrgID = nil
		} else if user.OrgID == nil {
			user.OrgID = defaultOrgID
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, username, email, password_hash, is_admin, is_system_owner, org_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, user.ID, user.Username, user.Email, user.PasswordHash, user.IsAdmin, user.IsSystemOwner, user.OrgID, user.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create user: %w", ErrDuplicate)
			}
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
}

const userColumns = "id, username, email, password_hash, is_admin, is_system_owner, org_id, created_at"

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.IsSystemOwner, &u.OrgID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// GetUserByID returns a user by their ID.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(db.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// GetUserByUsername returns a user by their unique username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(db.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
}

// GetUsersByOrgID returns all users belonging to an organization.
func (db *DB) GetUsersByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.User, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+userColumns+" FROM users WHERE org_id = $1 ORDER BY username", orgID)
	if err != nil {
		return nil, fmt.Errorf("list users by org: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// GetAllUsers returns every user in the system. System-owner use only.
func (db *DB) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT " + userColumns + " FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows pgx.Rows) ([]*models.User, error) {
	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.IsSystemOwner, &u.OrgID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// UpdateUser updates a user's mutable fields.
func (db *DB) UpdateUser(ctx context.Context, user *models.User) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, is_admin = $4
		WHERE id = $1
	`, user.ID, user.Email, user.PasswordHash, user.IsAdmin)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user: %w", ErrDuplicate)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser deletes a user by ID.
func (db *DB) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BackfillOrphanUsers assigns the default organization to every non-system-
// owner user that has no organization. Called from the maintenance sweep,
// never from read paths. Returns the number of users backfilled.
func (db *DB) BackfillOrphanUsers(ctx context.Context) (int, error) {
	var orphans int
	err := db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM users WHERE org_id IS NULL AND NOT is_system_owner",
	).Scan(&orphans)
	if err != nil {
		return 0, fmt.Errorf("count orphan users: %w", err)
	}
	if orphans == 0 {
		return 0, nil
	}

	org, err := db.ResolveDefaultOrg(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE users SET org_id = $1
		WHERE org_id IS NULL AND NOT is_system_owner
	`, org.ID)
	if err != nil {
		return 0, fmt.Errorf("backfill orphan users: %w", err)
	}

	n := int(tag.RowsAffected())
	if n > 0 {
		db.logger.Info().Int("users", n).Str("org_id", org.ID.String()).Msg("backfilled orphan users")
	}
	return n, nil
}
