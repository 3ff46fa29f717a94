package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskline/taskline/internal/models"
)

const taskColumns = "id, title, description, status, project_id, assignee_id, org_id, created_at, updated_at"

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	var description *string
	var statusStr string
	err := row.Scan(&t.ID, &t.Title, &description, &statusStr, &t.ProjectID, &t.AssigneeID, &t.OrgID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if description != nil {
		t.Description = *description
	}
	t.Status = models.TaskStatus(statusStr)
	return &t, nil
}

// CreateTask creates a task. The task's organization is always copied from
// the parent project inside the same transaction, regardless of what the
// caller set, so task.org_id == project.org_id can never be violated at
// creation.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		var orgID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT org_id FROM projects WHERE id = $1`, t.ProjectID).Scan(&orgID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("look up project organization: %w", err)
		}
		t.OrgID = orgID

		_, err = tx.Exec(ctx, `
			INSERT INTO tasks (id, title, description, status, project_id, assignee_id, org_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, t.ID, t.Title, t.Description, string(t.Status), t.ProjectID, t.AssigneeID, t.OrgID, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil
	})
}

// GetTaskByID returns a task by its ID.
func (db *DB) GetTaskByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(db.Pool.QueryRow(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = $1", id))
}

// GetTasksByProjectID returns all tasks of a project.
func (db *DB) GetTasksByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE project_id = $1 ORDER BY created_at", projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by project: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// GetTasksByOrgID returns all tasks of an organization.
func (db *DB) GetTasksByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.Task, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE org_id = $1 ORDER BY created_at", orgID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by org: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var description *string
		var statusStr string
		if err := rows.Scan(&t.ID, &t.Title, &description, &statusStr, &t.ProjectID, &t.AssigneeID, &t.OrgID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if description != nil {
			t.Description = *description
		}
		t.Status = models.TaskStatus(statusStr)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// UpdateTask updates a task's mutable fields. The organization and project
// columns are deliberately absent from the SET list: a task never changes
// tenant or project through an update.
func (db *DB) UpdateTask(ctx context.Context, t *models.Task) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, assignee_id = $5, updated_at = NOW()
		WHERE id = $1
	`, t.ID, t.Title, t.Description, string(t.Status), t.AssigneeID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask deletes a task and its comments via cascade.
func (db *DB) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
