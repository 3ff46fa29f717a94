package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskComment is a comment on a task. The author is fixed at creation and
// never reassigned; comments are listed in creation order.
type TaskComment struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	IsEdited  bool      `json:"is_edited"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTaskComment creates a new comment on the given task.
func NewTaskComment(taskID, authorID uuid.UUID, content string) *TaskComment {
	now := time.Now()
	return &TaskComment{
		ID:        uuid.New(),
		TaskID:    taskID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks required comment fields.
func (c *TaskComment) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return errors.New("content is required")
	}
	return nil
}

// CreateCommentRequest is the payload for creating a comment.
type CreateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// UpdateCommentRequest is the payload for editing a comment.
type UpdateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}
