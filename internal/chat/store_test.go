package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)

	c, err := s.CreateConversation("user-a")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if c.ID == "" {
		t.Error("expected generated ID")
	}

	got, err := s.GetConversation("user-a", c.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.UserID != "user-a" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-a")
	}
}

func TestGetConversationUserScoped(t *testing.T) {
	s := newTestStore(t)

	c, err := s.CreateConversation("user-a")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	if _, err := s.GetConversation("user-b", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConversation by other user = %v, want ErrNotFound", err)
	}
}

func TestAddMessageValidation(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.CreateConversation("u")

	tests := []struct {
		name string
		msg  Message
	}{
		{"bad role", Message{ConversationID: c.ID, Role: "system", Content: "x"}},
		{"missing conversation", Message{Role: RoleUser, Content: "x"}},
		{"oversized content", Message{ConversationID: c.ID, Role: RoleUser, Content: strings.Repeat("a", MaxContentLen+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			if err := s.AddMessage(&msg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRecentMessagesWindow(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.CreateConversation("u")

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		msg := &Message{
			ConversationID: c.ID,
			Role:           RoleUser,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AddMessage(msg); err != nil {
			t.Fatalf("AddMessage(%d): %v", i, err)
		}
	}

	got, err := s.RecentMessages(c.ID, 20)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("len = %d, want 20", len(got))
	}
	// Window holds the last 20 messages, oldest first.
	if got[0].Content != "message 5" {
		t.Errorf("first = %q, want %q", got[0].Content, "message 5")
	}
	if got[19].Content != "message 24" {
		t.Errorf("last = %q, want %q", got[19].Content, "message 24")
	}
}

func TestAddMessageTouchesConversation(t *testing.T) {
	s := newTestStore(t)
	c, _ := s.CreateConversation("u")

	before := c.UpdatedAt
	time.Sleep(10 * time.Millisecond)

	msg := &Message{ConversationID: c.ID, Role: RoleAssistant, Content: "done", ToolCalls: `[{"tool":"add_task"}]`}
	if err := s.AddMessage(msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	got, err := s.GetConversation("u", c.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if !got.UpdatedAt.After(before) {
		t.Error("expected updated_at to advance")
	}

	msgs, err := s.Messages(c.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ToolCalls == "" {
		t.Errorf("expected stored tool_calls, got %+v", msgs)
	}
}

func TestListConversationsMostRecentFirst(t *testing.T) {
	s := newTestStore(t)

	c1, _ := s.CreateConversation("u")
	c2, _ := s.CreateConversation("u")
	s.CreateConversation("other")

	// Touch c1 so it becomes the most recent.
	time.Sleep(10 * time.Millisecond)
	if err := s.AddMessage(&Message{ConversationID: c1.ID, Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	list, err := s.ListConversations("u")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != c1.ID || list[1].ID != c2.ID {
		t.Errorf("order = [%s %s], want [%s %s]", list[0].ID, list[1].ID, c1.ID, c2.ID)
	}
}
