// Package auth provides user accounts, password hashing, and bearer
// token issuance/verification.
package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the user store.
var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// User is a registered account. PasswordHash never leaves the package
// boundary in API responses.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store handles user persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a user store on the given database, running schema
// migration.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at TIMESTAMP NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Create inserts a new user. Email comparison is case-insensitive; the
// address is stored lowercased.
func (s *Store) Create(u *User) error {
	if u.Name == "" || u.Email == "" || u.PasswordHash == "" {
		return fmt.Errorf("name, email, and password are required")
	}

	if u.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			u.ID = uuid.New().String()
		} else {
			u.ID = id.String()
		}
	}
	if u.Role == "" {
		u.Role = "user"
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	_, err := s.db.Exec(`
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		// Both sqlite drivers surface the UNIQUE violation in the
		// error text; matching on it avoids driver-specific error types.
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByEmail retrieves a user by email address.
func (s *Store) GetByEmail(email string) (*User, error) {
	return s.get(`SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
}

// GetByID retrieves a user by id.
func (s *Store) GetByID(id string) (*User, error) {
	return s.get(`SELECT id, name, email, password_hash, role, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) get(query string, arg any) (*User, error) {
	var u User
	err := s.db.QueryRow(query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
