package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/UzairGhori/todo-app-fullstack/internal/tasks"
)

type taskCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
}

type taskUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req taskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	t := tasks.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      tasks.Status(req.Status),
		Priority:    tasks.Priority(req.Priority),
		UserID:      userIDFrom(r),
	}
	if err := s.tasks.Create(&t); err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, t, s.logger)
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	f := tasks.Filter{
		Status:   tasks.Status(r.URL.Query().Get("status")),
		Priority: tasks.Priority(r.URL.Query().Get("priority")),
	}
	if f.Status != "" && !f.Status.Valid() {
		s.errorResponse(w, http.StatusUnprocessableEntity, "invalid status filter")
		return
	}
	if f.Priority != "" && !f.Priority.Valid() {
		s.errorResponse(w, http.StatusUnprocessableEntity, "invalid priority filter")
		return
	}

	list, err := s.tasks.List(userIDFrom(r), f)
	if err != nil {
		s.logger.Error("list tasks failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, list, s.logger)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(userIDFrom(r), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Task not found")
			return
		}
		s.logger.Error("get task failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, t, s.logger)
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	var req taskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	var u tasks.Update
	u.Title = req.Title
	u.Description = req.Description
	if req.Status != nil {
		st := tasks.Status(*req.Status)
		u.Status = &st
	}
	if req.Priority != nil {
		p := tasks.Priority(*req.Priority)
		u.Priority = &p
	}

	t, err := s.tasks.Update(userIDFrom(r), r.PathValue("id"), u)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Task not found")
			return
		}
		s.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, t, s.logger)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(userIDFrom(r), r.PathValue("id")); err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Task not found")
			return
		}
		s.logger.Error("delete task failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
