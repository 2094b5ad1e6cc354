// Package tasks provides task records and their user-scoped storage.
package tasks

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

// Valid task statuses.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority is the urgency level of a task.
type Priority string

// Valid task priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a recognized priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Field limits enforced on create and update.
const (
	MaxTitleLen       = 255
	MaxDescriptionLen = 2000
)

// Task is a single todo item. Every task belongs to exactly one user;
// all store operations are scoped by UserID.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks field constraints. Zero-value status/priority are
// allowed here; the store applies defaults before validating.
func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > MaxTitleLen {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLen)
	}
	if len(t.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLen)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid status: %q", t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("invalid priority: %q", t.Priority)
	}
	return nil
}

// Filter narrows a task listing. Empty fields match everything.
type Filter struct {
	Status   Status
	Priority Priority
}

// Update describes a partial task update. Nil fields are left unchanged.
type Update struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
}
