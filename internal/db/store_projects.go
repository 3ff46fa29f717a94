package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskline/taskline/internal/models"
)

const projectColumns = "id, title, description, owner_id, org_id, created_at, updated_at"

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	var description *string
	err := row.Scan(&p.ID, &p.Title, &description, &p.OwnerID, &p.OrgID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	if description != nil {
		p.Description = *description
	}
	return &p, nil
}

// CreateProject creates a new project.
func (db *DB) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO projects (id, title, description, owner_id, org_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Title, p.Description, p.OwnerID, p.OrgID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProjectByID returns a project by its ID.
func (db *DB) GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return scanProject(db.Pool.QueryRow(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = $1", id))
}

// GetProjectsByOrgID returns all projects for an organization.
func (db *DB) GetProjectsByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.Project, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE org_id = $1 ORDER BY created_at DESC", orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects by org: %w", err)
	}
	defer rows.Close()
	return collectProjects(rows)
}

// GetAllProjects returns every project. System-owner use only.
func (db *DB) GetAllProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT " + projectColumns + " FROM projects ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	return collectProjects(rows)
}

func collectProjects(rows pgx.Rows) ([]*models.Project, error) {
	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		var description *string
		if err := rows.Scan(&p.ID, &p.Title, &description, &p.OwnerID, &p.OrgID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if description != nil {
			p.Description = *description
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// UpdateProject updates a project's title and description. The owning
// organization is never touched here.
func (db *DB) UpdateProject(ctx context.Context, p *models.Project) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE projects
		SET title = $2, description = $3, updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.Title, p.Description)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject deletes a project and its tasks via cascade.
func (db *DB) DeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
