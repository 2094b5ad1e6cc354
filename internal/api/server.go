// Package api implements the TaskFlow HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/UzairGhori/todo-app-fullstack/internal/agent"
	"github.com/UzairGhori/todo-app-fullstack/internal/auth"
	"github.com/UzairGhori/todo-app-fullstack/internal/buildinfo"
	"github.com/UzairGhori/todo-app-fullstack/internal/chat"
	"github.com/UzairGhori/todo-app-fullstack/internal/events"
	"github.com/UzairGhori/todo-app-fullstack/internal/tasks"
)

// localDevOrigin is the frontend dev server, always granted CORS access.
const localDevOrigin = "http://localhost:3000"

type ctxKey int

const userIDKey ctxKey = 0

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address        string
	port           int
	logger         *slog.Logger
	users          *auth.Store
	tokens         *auth.TokenService
	tasks          *tasks.Store
	chats          *chat.Store
	loop           *agent.Loop
	bus            *events.Bus
	allowedOrigins []string
	server         *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, logger *slog.Logger, users *auth.Store, tokens *auth.TokenService, taskStore *tasks.Store, chatStore *chat.Store, loop *agent.Loop, bus *events.Bus) *Server {
	return &Server{
		address: address,
		port:    port,
		logger:  logger,
		users:   users,
		tokens:  tokens,
		tasks:   taskStore,
		chats:   chatStore,
		loop:    loop,
		bus:     bus,
	}
}

// SetAllowedOrigins configures additional CORS origins beyond the local
// frontend dev server.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.allowedOrigins = origins
}

// Handler builds the route table with middleware applied. Exposed so
// tests can drive the server through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Auth endpoints (no bearer token required)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/token", s.handleToken)

	// Task endpoints
	mux.Handle("POST /api/tasks", s.requireAuth(s.handleTaskCreate))
	mux.Handle("GET /api/tasks", s.requireAuth(s.handleTaskList))
	mux.Handle("GET /api/tasks/{id}", s.requireAuth(s.handleTaskGet))
	mux.Handle("PATCH /api/tasks/{id}", s.requireAuth(s.handleTaskUpdate))
	mux.Handle("DELETE /api/tasks/{id}", s.requireAuth(s.handleTaskDelete))

	// Chat endpoints
	mux.Handle("POST /api/chat", s.requireAuth(s.handleChat))
	mux.Handle("GET /api/conversations", s.requireAuth(s.handleConversationList))
	mux.Handle("GET /api/conversations/{id}", s.requireAuth(s.handleConversationGet))

	// Live event stream
	mux.Handle("GET /api/events", s.requireAuth(s.handleEvents))

	// Health endpoints
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(s.withCORS(mux))
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Long write timeout: a chat request may wait on the model for
		// up to the provider timeout.
		WriteTimeout: 180 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == localDevOrigin {
		return true
	}
	for _, o := range s.allowedOrigins {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}

// requireAuth verifies the bearer token and places the user id in the
// request context. The token may also arrive as a query parameter, which
// browsers need for WebSocket connections where headers cannot be set.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			s.errorResponse(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		userID, err := s.tokens.Verify(token)
		if err != nil {
			s.errorResponse(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userIDFrom returns the authenticated user id placed by requireAuth.
func userIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// errorResponse writes a FastAPI-style {"detail": ...} error body, which
// is what the frontend expects.
func (s *Server) errorResponse(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"detail": detail}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "TaskFlow",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}
