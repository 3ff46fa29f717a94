package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskline/taskline/internal/models"
)

const commentColumns = "id, task_id, author_id, content, is_edited, created_at, updated_at"

func scanComment(row pgx.Row) (*models.TaskComment, error) {
	var c models.TaskComment
	err := row.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &c.IsEdited, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan comment: %w", err)
	}
	return &c, nil
}

// CreateComment creates a new task comment.
func (db *DB) CreateComment(ctx context.Context, c *models.TaskComment) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO task_comments (id, task_id, author_id, content, is_edited, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.TaskID, c.AuthorID, c.Content, c.IsEdited, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// GetCommentByID returns a comment by its ID.
func (db *DB) GetCommentByID(ctx context.Context, id uuid.UUID) (*models.TaskComment, error) {
	return scanComment(db.Pool.QueryRow(ctx,
		"SELECT "+commentColumns+" FROM task_comments WHERE id = $1", id))
}

// GetCommentsByTaskID returns a task's comments in creation order.
func (db *DB) GetCommentsByTaskID(ctx context.Context, taskID uuid.UUID) ([]*models.TaskComment, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+commentColumns+" FROM task_comments WHERE task_id = $1 ORDER BY created_at", taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments by task: %w", err)
	}
	defer rows.Close()

	var comments []*models.TaskComment
	for rows.Next() {
		var c models.TaskComment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &c.IsEdited, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// UpdateComment updates a comment's content and marks it edited. The author
// column is never part of the SET list.
func (db *DB) UpdateComment(ctx context.Context, c *models.TaskComment) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE task_comments
		SET content = $2, is_edited = TRUE, updated_at = NOW()
		WHERE id = $1
	`, c.ID, c.Content)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteComment deletes a comment by ID.
func (db *DB) DeleteComment(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM task_comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
