// Package chat provides conversation and message storage for the
// assistant. Messages are append-only; the agent only ever sees the most
// recent window of a conversation.
package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxContentLen caps a single message body.
const MaxContentLen = 5000

// ErrNotFound is returned when a conversation does not exist within the
// caller's scope.
var ErrNotFound = errors.New("conversation not found")

// Conversation is one chat thread owned by a single user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single turn in a conversation. ToolCalls holds the
// serialized tool-call log produced while generating an assistant
// message; empty if no tool was invoked.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ToolCalls      string    `json:"tool_calls,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store handles conversation persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a conversation store on the given database, running
// schema migration.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_calls TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// CreateConversation starts a new conversation for the user.
func (s *Store) CreateConversation(userID string) (*Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	now := time.Now().UTC()
	c := &Conversation{
		ID:        newID(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(`
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

// GetConversation retrieves a conversation by id within the user's
// scope.
func (s *Store) GetConversation(userID, id string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = ? AND user_id = ?
	`, id, userID)

	var c Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns the user's conversations, most recently
// active first.
func (s *Store) ListConversations(userID string) ([]Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddMessage appends a message to a conversation and bumps the
// conversation's updated_at. Messages are never mutated after creation.
func (s *Store) AddMessage(m *Message) error {
	if m.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return fmt.Errorf("invalid role: %q", m.Role)
	}
	if len(m.Content) > MaxContentLen {
		return fmt.Errorf("content exceeds %d characters", MaxContentLen)
	}

	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, m.Role, m.Content, m.ToolCalls, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC(), m.ConversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// RecentMessages returns the last limit messages of a conversation in
// ascending chronological order.
func (s *Store) RecentMessages(conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}

	// Grab the newest rows, then flip them back into chronological order.
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, tool_calls, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ToolCalls, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Messages returns the full message history of a conversation in
// chronological order.
func (s *Store) Messages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, tool_calls, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ToolCalls, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
