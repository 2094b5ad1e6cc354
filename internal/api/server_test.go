package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/UzairGhori/todo-app-fullstack/internal/agent"
	"github.com/UzairGhori/todo-app-fullstack/internal/auth"
	"github.com/UzairGhori/todo-app-fullstack/internal/chat"
	"github.com/UzairGhori/todo-app-fullstack/internal/events"
	"github.com/UzairGhori/todo-app-fullstack/internal/llm"
	"github.com/UzairGhori/todo-app-fullstack/internal/tasks"
	"github.com/UzairGhori/todo-app-fullstack/internal/tools"
)

// scriptedLLM returns canned responses in sequence.
type scriptedLLM struct {
	responses []string
	err       error
	n         int
}

func (m *scriptedLLM) Chat(ctx context.Context, messages []llm.Message, maxTokens int) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	i := m.n
	m.n++
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T, client llm.Client) *httptest.Server {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	bus := events.New()

	taskStore, err := tasks.NewStore(db, bus)
	if err != nil {
		t.Fatalf("task store: %v", err)
	}
	chatStore, err := chat.NewStore(db)
	if err != nil {
		t.Fatalf("chat store: %v", err)
	}
	userStore, err := auth.NewStore(db)
	if err != nil {
		t.Fatalf("user store: %v", err)
	}
	tokens := auth.NewTokenService("test-secret")

	registry := tools.NewRegistry(logger, taskStore)
	loop := agent.NewLoop(logger, client, registry, bus, 0)

	s := NewServer("", 0, logger, userStore, tokens, taskStore, chatStore, loop, bus)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// registerAndLogin creates an account and returns its bearer token.
func registerAndLogin(t *testing.T, base, email string) string {
	t.Helper()

	resp, _ := doJSON(t, "POST", base+"/api/auth/register", "", map[string]string{
		"name": "Test User", "email": email, "password": "hunter22",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	resp, body := doJSON(t, "POST", base+"/api/auth/token", "", map[string]string{
		"email": email, "password": "hunter22",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d", resp.StatusCode)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatal("missing access_token")
	}
	if body["token_type"] != "bearer" {
		t.Errorf("token_type = %v", body["token_type"])
	}
	return token
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})

	resp, _ := doJSON(t, "POST", srv.URL+"/api/auth/register", "", map[string]string{
		"email": "a@b.com",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("missing fields status = %d, want 422", resp.StatusCode)
	}

	registerAndLogin(t, srv.URL, "dup@example.com")
	resp, body := doJSON(t, "POST", srv.URL+"/api/auth/register", "", map[string]string{
		"name": "Again", "email": "dup@example.com", "password": "x",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("duplicate status = %d, want 400", resp.StatusCode)
	}
	if body["detail"] != "Email already registered" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})
	registerAndLogin(t, srv.URL, "u@example.com")

	resp, _ := doJSON(t, "POST", srv.URL+"/api/auth/token", "", map[string]string{
		"email": "u@example.com", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})

	resp, _ := doJSON(t, "GET", srv.URL+"/api/tasks", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, "GET", srv.URL+"/api/tasks", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestTaskCRUD(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})
	token := registerAndLogin(t, srv.URL, "crud@example.com")

	resp, created := doJSON(t, "POST", srv.URL+"/api/tasks", token, map[string]string{
		"title": "Buy milk",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if created["status"] != "pending" || created["priority"] != "medium" {
		t.Errorf("defaults not applied: %v", created)
	}
	id := created["id"].(string)

	resp, _ = doJSON(t, "PATCH", srv.URL+"/api/tasks/"+id, token, map[string]string{
		"priority": "high",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("patch status = %d", resp.StatusCode)
	}

	resp, got := doJSON(t, "GET", srv.URL+"/api/tasks/"+id, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if got["priority"] != "high" || got["title"] != "Buy milk" {
		t.Errorf("task after patch = %v", got)
	}

	req, _ := http.NewRequest("DELETE", srv.URL+"/api/tasks/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", delResp.StatusCode)
	}

	resp, body := doJSON(t, "GET", srv.URL+"/api/tasks/"+id, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
	if body["detail"] != "Task not found" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestTaskListFilter(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})
	token := registerAndLogin(t, srv.URL, "filter@example.com")

	doJSON(t, "POST", srv.URL+"/api/tasks", token, map[string]string{"title": "a", "priority": "high"})
	doJSON(t, "POST", srv.URL+"/api/tasks", token, map[string]string{"title": "b", "priority": "low"})

	req, _ := http.NewRequest("GET", srv.URL+"/api/tasks?priority=high", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()

	var list []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0]["title"] != "a" {
		t.Errorf("filtered list = %v", list)
	}
}

func TestTaskUserIsolation(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})
	alice := registerAndLogin(t, srv.URL, "alice@example.com")
	mallory := registerAndLogin(t, srv.URL, "mallory@example.com")

	_, created := doJSON(t, "POST", srv.URL+"/api/tasks", alice, map[string]string{"title": "Secret"})
	id := created["id"].(string)

	resp, _ := doJSON(t, "GET", srv.URL+"/api/tasks/"+id, mallory, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cross-user get status = %d, want 404", resp.StatusCode)
	}
}

func TestChatFlow(t *testing.T) {
	client := &scriptedLLM{responses: []string{
		`<tool_call>{"name": "add_task", "args": {"title": "Buy milk"}}</tool_call>`,
		"I've added \"Buy milk\" to your list.",
	}}
	srv := newTestServer(t, client)
	token := registerAndLogin(t, srv.URL, "chat@example.com")

	resp, body := doJSON(t, "POST", srv.URL+"/api/chat", token, map[string]string{
		"message": "add a task to buy milk",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	convID, _ := body["conversation_id"].(string)
	if convID == "" {
		t.Fatal("missing conversation_id")
	}
	msg, _ := body["message"].(map[string]any)
	if msg["role"] != "assistant" {
		t.Errorf("role = %v", msg["role"])
	}
	if !strings.Contains(msg["content"].(string), "Buy milk") {
		t.Errorf("content = %v", msg["content"])
	}
	if msg["tool_calls"] == nil || msg["tool_calls"] == "" {
		t.Error("assistant message missing tool call log")
	}

	// The tool actually created the task.
	req, _ := http.NewRequest("GET", srv.URL+"/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	listResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	var list []map[string]any
	json.NewDecoder(listResp.Body).Decode(&list)
	if len(list) != 1 || list[0]["title"] != "Buy milk" {
		t.Errorf("tasks after chat = %v", list)
	}

	// A follow-up in the same conversation gets the stored history.
	client.responses = append(client.responses, "You have 1 task: Buy milk.")
	resp, body = doJSON(t, "POST", srv.URL+"/api/chat", token, map[string]string{
		"message": "what's on my list?", "conversation_id": convID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("follow-up status = %d", resp.StatusCode)
	}
	if body["conversation_id"] != convID {
		t.Errorf("conversation_id = %v, want %v", body["conversation_id"], convID)
	}

	// Full transcript is retrievable.
	resp, convBody := doJSON(t, "GET", srv.URL+"/api/conversations/"+convID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get conversation status = %d", resp.StatusCode)
	}
	messages, _ := convBody["messages"].([]any)
	if len(messages) != 4 {
		t.Errorf("message count = %d, want 4", len(messages))
	}
}

func TestChatValidation(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})
	token := registerAndLogin(t, srv.URL, "cv@example.com")

	resp, _ := doJSON(t, "POST", srv.URL+"/api/chat", token, map[string]string{"message": ""})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("empty message status = %d, want 422", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", srv.URL+"/api/chat", token, map[string]string{
		"message": strings.Repeat("x", 2001),
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("long message status = %d, want 422", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", srv.URL+"/api/chat", token, map[string]string{
		"message": "hi", "conversation_id": "no-such-conversation",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown conversation status = %d, want 404", resp.StatusCode)
	}
}

func TestChatAgentError(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{err: fmt.Errorf("provider down")})
	token := registerAndLogin(t, srv.URL, "err@example.com")

	resp, body := doJSON(t, "POST", srv.URL+"/api/chat", token, map[string]string{
		"message": "hello",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	detail, _ := body["detail"].(string)
	if strings.Contains(detail, "provider down") {
		t.Error("error detail leaks provider failure to the client")
	}
}

func TestHealthAndRoot(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})

	resp, body := doJSON(t, "GET", srv.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, "GET", srv.URL+"/", "", nil)
	if resp.StatusCode != http.StatusOK || body["name"] != "TaskFlow" {
		t.Errorf("root = %d %v", resp.StatusCode, body)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})

	req, _ := http.NewRequest("OPTIONS", srv.URL+"/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}

	req, _ = http.NewRequest("OPTIONS", srv.URL+"/api/tasks", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow-origin %q for unknown origin", got)
	}
}

func TestEventStream(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{responses: []string{"ok"}})
	token := registerAndLogin(t, srv.URL, "ws@example.com")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	doJSON(t, "POST", srv.URL+"/api/tasks", token, map[string]string{"title": "Watched task"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var e struct {
		Source string         `json:"source"`
		Kind   string         `json:"kind"`
		Data   map[string]any `json:"data"`
	}
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if e.Source != "tasks" || e.Kind != "task_created" {
		t.Errorf("event = %+v", e)
	}
	if e.Data["title"] != "Watched task" {
		t.Errorf("event data = %v", e.Data)
	}
}
