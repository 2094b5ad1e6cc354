// Package tools executes the task operations the agent may invoke. The
// catalog here must stay in sync with the textual contract in
// internal/prompts.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/UzairGhori/todo-app-fullstack/internal/tasks"
)

// Registry dispatches tool calls to the task store. Results are plain
// maps fed back to the model as JSON; failures are encoded as
// {"error": ...} entries rather than Go errors so the model can read
// and explain them.
type Registry struct {
	logger *slog.Logger
	store  *tasks.Store
}

// NewRegistry creates a tool registry over the given task store.
func NewRegistry(logger *slog.Logger, store *tasks.Store) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, store: store}
}

// Names returns the tools the registry knows, in catalog order.
func (r *Registry) Names() []string {
	return []string{"add_task", "list_tasks", "complete_task", "delete_task", "update_task"}
}

// Execute runs the named tool for the given user. It never returns a Go
// error: unknown tools, bad arguments and missing tasks all come back
// as {"error": ...} results.
func (r *Registry) Execute(ctx context.Context, userID, name string, args map[string]any) map[string]any {
	r.logger.Info("tool call", "tool", name, "user_id", userID)

	switch name {
	case "add_task":
		return r.addTask(userID, args)
	case "list_tasks":
		return r.listTasks(userID, args)
	case "complete_task":
		return r.completeTask(userID, args)
	case "delete_task":
		return r.deleteTask(userID, args)
	case "update_task":
		return r.updateTask(userID, args)
	default:
		return errResult(fmt.Sprintf("Unknown tool: %s", name))
	}
}

func (r *Registry) addTask(userID string, args map[string]any) map[string]any {
	t := tasks.Task{
		Title:       stringArg(args, "title"),
		Description: stringArg(args, "description"),
		Status:      tasks.Status(stringArg(args, "status")),
		Priority:    tasks.Priority(stringArg(args, "priority")),
		UserID:      userID,
	}
	if err := r.store.Create(&t); err != nil {
		return errResult(err.Error())
	}
	return taskResult(&t)
}

func (r *Registry) listTasks(userID string, args map[string]any) map[string]any {
	f := tasks.Filter{
		Status:   tasks.Status(stringArg(args, "status")),
		Priority: tasks.Priority(stringArg(args, "priority")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return errResult(fmt.Sprintf("invalid status: %q", f.Status))
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return errResult(fmt.Sprintf("invalid priority: %q", f.Priority))
	}

	list, err := r.store.List(userID, f)
	if err != nil {
		return errResult(err.Error())
	}

	// Abbreviated records keep the tool result inside the model's
	// context budget on long lists.
	out := make([]map[string]any, 0, len(list))
	for i := range list {
		out = append(out, map[string]any{
			"id":       list[i].ID,
			"title":    list[i].Title,
			"status":   string(list[i].Status),
			"priority": string(list[i].Priority),
		})
	}
	return map[string]any{"tasks": out, "count": len(out)}
}

func (r *Registry) completeTask(userID string, args map[string]any) map[string]any {
	t, err := r.resolve(userID, args)
	if err != nil {
		return errResult(err.Error())
	}
	t, err = r.store.ToggleComplete(userID, t.ID)
	if err != nil {
		return errResult(err.Error())
	}
	return map[string]any{
		"id":     t.ID,
		"title":  t.Title,
		"status": string(t.Status),
	}
}

func (r *Registry) deleteTask(userID string, args map[string]any) map[string]any {
	t, err := r.resolve(userID, args)
	if err != nil {
		return errResult(err.Error())
	}
	if err := r.store.Delete(userID, t.ID); err != nil {
		return errResult(err.Error())
	}
	return map[string]any{"deleted": true, "task_id": t.ID, "title": t.Title}
}

func (r *Registry) updateTask(userID string, args map[string]any) map[string]any {
	t, err := r.resolve(userID, args)
	if err != nil {
		return errResult(err.Error())
	}

	var u tasks.Update
	if v, ok := args["title"].(string); ok {
		u.Title = &v
	}
	if v, ok := args["description"].(string); ok {
		u.Description = &v
	}
	if v, ok := args["status"].(string); ok {
		s := tasks.Status(v)
		u.Status = &s
	}
	if v, ok := args["priority"].(string); ok {
		p := tasks.Priority(v)
		u.Priority = &p
	}

	t, err = r.store.Update(userID, t.ID, u)
	if err != nil {
		return errResult(err.Error())
	}
	return taskResult(t)
}

// resolve maps the task_id argument (a UUID or a title fragment) to a
// concrete task. A missing argument or unresolvable reference both read
// as "Task not found" to the model.
func (r *Registry) resolve(userID string, args map[string]any) (*tasks.Task, error) {
	ref := stringArg(args, "task_id")
	if ref == "" {
		return nil, errors.New("Task not found")
	}
	t, err := r.store.Resolve(userID, ref)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			return nil, errors.New("Task not found")
		}
		return nil, err
	}
	return t, nil
}

func taskResult(t *tasks.Task) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"status":      string(t.Status),
		"priority":    string(t.Priority),
		"user_id":     t.UserID,
		"created_at":  t.CreatedAt,
		"updated_at":  t.UpdatedAt,
	}
}

func errResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
