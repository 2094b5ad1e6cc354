package tasks

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/UzairGhori/todo-app-fullstack/internal/events"
)

// ErrNotFound is returned when no task matches the query within the
// caller's scope. A task owned by another user is indistinguishable from
// a missing one.
var ErrNotFound = errors.New("task not found")

// Store handles task persistence. All queries are scoped by user id;
// cross-user access never succeeds, even by exact task id.
type Store struct {
	db  *sql.DB
	bus *events.Bus
}

// NewStore creates a task store on the given database, running schema
// migration. bus may be nil; events are then dropped.
func NewStore(db *sql.DB, bus *events.Bus) (*Store, error) {
	s := &Store{db: db, bus: bus}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// NewID generates a new UUIDv7.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		return uuid.New().String()
	}
	return id.String()
}

// Create persists a new task. Missing id, timestamps, status and
// priority are filled with defaults before validation.
func (s *Store) Create(t *Task) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	if t.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := t.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (id, title, description, status, priority, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.UserID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	s.bus.Publish(events.Event{
		Source: events.SourceTasks,
		Kind:   events.KindTaskCreated,
		UserID: t.UserID,
		Data:   map[string]any{"task_id": t.ID, "title": t.Title},
	})

	return nil
}

// List returns the user's tasks matching the filter, newest created
// first.
func (s *Store) List(userID string, f Filter) ([]Task, error) {
	query := `
		SELECT id, title, description, status, priority, user_id, created_at, updated_at
		FROM tasks
		WHERE user_id = ?`
	args := []any{userID}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(f.Priority))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// Get retrieves a task by exact id within the user's scope.
func (s *Store) Get(userID, id string) (*Task, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, status, priority, user_id, created_at, updated_at
		FROM tasks
		WHERE id = ? AND user_id = ?
	`, id, userID)

	var t Task
	if err := scanTask(row, &t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Resolve maps a natural-language task reference to a concrete task.
// It first tries an exact id match scoped to the user, then falls back
// to a case-insensitive substring match against the titles of the
// user's tasks, in creation order, returning the first hit. This exists
// because the model may refer to a task by a fragment of its title
// rather than its identifier.
func (s *Store) Resolve(userID, ref string) (*Task, error) {
	t, err := s.Get(userID, ref)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT id, title, description, status, priority, user_id, created_at, updated_at
		FROM tasks
		WHERE user_id = ?
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve task: %w", err)
	}
	defer rows.Close()

	owned, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(ref)
	for i := range owned {
		if strings.Contains(strings.ToLower(owned[i].Title), needle) {
			return &owned[i], nil
		}
	}
	return nil, ErrNotFound
}

// Update applies the non-nil fields of u to the task and bumps
// updated_at. Returns the updated task.
func (s *Store) Update(userID, id string, u Update) (*Task, error) {
	t, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}

	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	t.UpdatedAt = time.Now().UTC()

	if err := t.Validate(); err != nil {
		return nil, err
	}

	res, err := s.db.Exec(`
		UPDATE tasks
		SET title = ?, description = ?, status = ?, priority = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, t.Title, t.Description, string(t.Status), string(t.Priority), t.UpdatedAt, t.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	s.bus.Publish(events.Event{
		Source: events.SourceTasks,
		Kind:   events.KindTaskUpdated,
		UserID: userID,
		Data:   map[string]any{"task_id": t.ID, "title": t.Title, "status": string(t.Status)},
	})

	return t, nil
}

// ToggleComplete flips a task between completed and pending: any
// non-completed task becomes completed, a completed one returns to
// pending. Applying it twice restores the original status for pending
// tasks.
func (s *Store) ToggleComplete(userID, id string) (*Task, error) {
	t, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}

	next := StatusCompleted
	if t.Status == StatusCompleted {
		next = StatusPending
	}
	return s.Update(userID, id, Update{Status: &next})
}

// Delete permanently removes a task within the user's scope.
func (s *Store) Delete(userID, id string) error {
	t, err := s.Get(userID, id)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.bus.Publish(events.Event{
		Source: events.SourceTasks,
		Kind:   events.KindTaskDeleted,
		UserID: userID,
		Data:   map[string]any{"task_id": t.ID, "title": t.Title},
	})

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner, t *Task) error {
	var status, priority string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &t.UserID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	return nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		var t Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
