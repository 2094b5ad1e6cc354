package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/UzairGhori/todo-app-fullstack/internal/chat"
	"github.com/UzairGhori/todo-app-fullstack/internal/llm"
)

// Limits on a single inbound chat message.
const (
	maxChatMessageLen = 2000
	// historyWindow is how many stored messages the agent sees.
	historyWindow = 20
)

// fallbackReply is returned when the model produced an empty final
// answer, which happens when generation is cut off right after a tool
// round.
const fallbackReply = "I'm sorry, I couldn't come up with a response. Please try again."

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type chatResponse struct {
	ConversationID string       `json:"conversation_id"`
	Message        chat.Message `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusUnprocessableEntity, "message is required")
		return
	}
	if len(req.Message) > maxChatMessageLen {
		s.errorResponse(w, http.StatusUnprocessableEntity, "message exceeds 2000 characters")
		return
	}

	// Load the conversation, or start a fresh one when none was given.
	conv, err := s.loadOrCreateConversation(userID, req.ConversationID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Conversation not found")
			return
		}
		s.logger.Error("load conversation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "chat failed")
		return
	}

	userMsg := chat.Message{
		ConversationID: conv.ID,
		Role:           chat.RoleUser,
		Content:        req.Message,
	}
	if err := s.chats.AddMessage(&userMsg); err != nil {
		s.logger.Error("persist user message failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "chat failed")
		return
	}

	recent, err := s.chats.RecentMessages(conv.ID, historyWindow)
	if err != nil {
		s.logger.Error("load history failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "chat failed")
		return
	}
	history := make([]llm.Message, 0, len(recent))
	for _, m := range recent {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	result, err := s.loop.Run(r.Context(), userID, conv.ID, history)
	if err != nil {
		// The stored user message stays; the client can retry and the
		// agent will see it in history.
		s.logger.Error("agent run failed", "error", err, "conversation_id", conv.ID)
		s.errorResponse(w, http.StatusInternalServerError, "Something went wrong processing your message")
		return
	}

	reply := strings.TrimSpace(result.Reply)
	if reply == "" {
		reply = fallbackReply
	}
	if len(reply) > chat.MaxContentLen {
		reply = reply[:chat.MaxContentLen]
	}

	asstMsg := chat.Message{
		ConversationID: conv.ID,
		Role:           chat.RoleAssistant,
		Content:        reply,
		ToolCalls:      result.ToolCallLog,
	}
	if err := s.chats.AddMessage(&asstMsg); err != nil {
		s.logger.Error("persist assistant message failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "chat failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, chatResponse{
		ConversationID: conv.ID,
		Message:        asstMsg,
	}, s.logger)
}

func (s *Server) loadOrCreateConversation(userID, id string) (*chat.Conversation, error) {
	if id != "" {
		return s.chats.GetConversation(userID, id)
	}
	return s.chats.CreateConversation(userID)
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	list, err := s.chats.ListConversations(userIDFrom(r))
	if err != nil {
		s.logger.Error("list conversations failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if list == nil {
		list = []chat.Conversation{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, list, s.logger)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	conv, err := s.chats.GetConversation(userIDFrom(r), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Conversation not found")
			return
		}
		s.logger.Error("get conversation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}

	messages, err := s.chats.Messages(conv.ID)
	if err != nil {
		s.logger.Error("get messages failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"conversation": conv,
		"messages":     messages,
	}, s.logger)
}
