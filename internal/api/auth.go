package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/UzairGhori/todo-app-fullstack/internal/auth"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        *auth.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		s.errorResponse(w, http.StatusUnprocessableEntity, "name, email, and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "registration failed")
		return
	}

	u := &auth.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(u); err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			s.errorResponse(w, http.StatusBadRequest, "Email already registered")
			return
		}
		s.logger.Error("create user failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.logger.Info("user registered", "user_id", u.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, u, s.logger)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	u, err := s.users.GetByEmail(req.Email)
	if err != nil {
		// Same response as a bad password so the endpoint does not leak
		// which emails are registered.
		s.errorResponse(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		s.errorResponse(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		s.logger.Error("issue token failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "login failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        u,
	}, s.logger)
}
