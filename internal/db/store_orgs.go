package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskline/taskline/internal/models"
	"github.com/taskline/taskline/pkg/slug"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update collides with a unique
// constraint, e.g. a taken username or organization slug.
var ErrDuplicate = errors.New("already exists")

// maxResolveAttempts bounds the insert-retry loop in ResolveDefaultOrg.
// Each retry means a concurrent insert collided with ours on a unique column.
const maxResolveAttempts = 3

// defaultOrgLockID serializes default-organization resolution across
// processes. FOR UPDATE on the candidate rows is not enough: an empty
// candidate set locks nothing, and the name column carries no unique
// constraint, so two first-time resolvers could otherwise both insert.
const defaultOrgLockID int64 = 4920137586

// isUniqueViolation reports whether err is a PostgreSQL unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// ResolveDefaultOrg returns the single organization carrying the canonical
// default name, creating it if absent and merging duplicates if present.
// It is safe to call concurrently from any number of processes: a
// transaction-scoped advisory lock serializes resolvers, and the candidate
// rows are additionally locked FOR UPDATE for the merge.
func (db *DB) ResolveDefaultOrg(ctx context.Context) (*models.Organization, error) {
	var lastErr error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		org, err := db.resolveDefaultOrgOnce(ctx)
		if err == nil {
			return org, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		// A concurrent insert (e.g. an organization created with a colliding
		// slug) beat ours. Loop and re-read under the lock.
		db.logger.Debug().Int("attempt", attempt+1).Msg("default org insert lost race, retrying")
		lastErr = err
	}
	return nil, fmt.Errorf("resolve default organization: %w", lastErr)
}

func (db *DB) resolveDefaultOrgOnce(ctx context.Context) (*models.Organization, error) {
	var resolved *models.Organization

	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", defaultOrgLockID); err != nil {
			return fmt.Errorf("acquire default-org lock: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT id, name, slug, created_at
			FROM organizations
			WHERE name = $1
			ORDER BY id
			FOR UPDATE
		`, models.DefaultOrgName)
		if err != nil {
			return fmt.Errorf("lock default org candidates: %w", err)
		}

		var candidates []*models.Organization
		for rows.Next() {
			var org models.Organization
			if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan default org candidate: %w", err)
			}
			candidates = append(candidates, &org)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read default org candidates: %w", err)
		}

		switch {
		case len(candidates) == 1:
			resolved = candidates[0]
			return nil

		case len(candidates) > 1:
			survivor, err := db.mergeDefaultOrgs(ctx, tx, candidates)
			if err != nil {
				return err
			}
			resolved = survivor
			return nil

		default:
			// Random slug suffix keeps concurrent creators from colliding on
			// the unique slug column; the name column is the identity here.
			org := models.NewOrganization(models.DefaultOrgName, "default-org-"+slug.Random(8))
			_, err := tx.Exec(ctx, `
				INSERT INTO organizations (id, name, slug, created_at)
				VALUES ($1, $2, $3, $4)
			`, org.ID, org.Name, org.Slug, org.CreatedAt)
			if err != nil {
				return fmt.Errorf("create default organization: %w", err)
			}
			db.logger.Info().Str("org_id", org.ID.String()).Str("slug", org.Slug).Msg("created default organization")
			resolved = org
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// mergeDefaultOrgs deduplicates multiple default organizations inside the
// caller's transaction. The survivor is the one with the most users, lowest
// id on ties; users of the losers are reassigned to the survivor before the
// loser rows are deleted, so no user ever references a deleted organization.
func (db *DB) mergeDefaultOrgs(ctx context.Context, tx pgx.Tx, candidates []*models.Organization) (*models.Organization, error) {
	survivor := candidates[0]
	best := -1
	for _, org := range candidates {
		var count int
		err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE org_id = $1`, org.ID).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("count users for default org %s: %w", org.ID, err)
		}
		if count > best {
			survivor = org
			best = count
		}
	}

	loserIDs := make([]uuid.UUID, 0, len(candidates)-1)
	for _, org := range candidates {
		if org.ID != survivor.ID {
			loserIDs = append(loserIDs, org.ID)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET org_id = $1 WHERE org_id = ANY($2)`, survivor.ID, loserIDs); err != nil {
		return nil, fmt.Errorf("reassign users from duplicate default orgs: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE projects SET org_id = $1 WHERE org_id = ANY($2)`, survivor.ID, loserIDs); err != nil {
		return nil, fmt.Errorf("reassign projects from duplicate default orgs: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE tasks SET org_id = $1 WHERE org_id = ANY($2)`, survivor.ID, loserIDs); err != nil {
		return nil, fmt.Errorf("reassign tasks from duplicate default orgs: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM organizations WHERE id = ANY($1)`, loserIDs); err != nil {
		return nil, fmt.Errorf("delete duplicate default orgs: %w", err)
	}

	db.logger.Info().
		Str("survivor_id", survivor.ID.String()).
		Int("merged", len(loserIDs)).
		Msg("merged duplicate default organizations")

	return survivor, nil
}

// CreateOrganization creates a new organization.
func (db *DB) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO organizations (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)
	`, org.ID, org.Name, org.Slug, org.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create organization: slug %q: %w", org.Slug, ErrDuplicate)
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// GetOrganizationByID returns an organization by its ID.
func (db *DB) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, slug, created_at
		FROM organizations
		WHERE id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization by ID: %w", err)
	}
	return &org, nil
}

// GetOrganizationBySlug returns an organization by its unique slug.
func (db *DB) GetOrganizationBySlug(ctx context.Context, s string) (*models.Organization, error) {
	var org models.Organization
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, slug, created_at
		FROM organizations
		WHERE slug = $1
	`, s).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization by slug: %w", err)
	}
	return &org, nil
}

// GetAllOrganizations returns all organizations ordered by name.
func (db *DB) GetAllOrganizations(ctx context.Context) ([]*models.Organization, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, slug, created_at
		FROM organizations
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		var org models.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, &org)
	}
	return orgs, rows.Err()
}

// UpdateOrganization updates an organization's display name.
func (db *DB) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE organizations SET name = $2 WHERE id = $1
	`, org.ID, org.Name)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOrganization deletes an organization and, via cascades, everything
// that belongs to it.
func (db *DB) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
