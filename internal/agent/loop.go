// Package agent implements the bounded tool-calling loop that turns a
// chat request into tool executions and a final reply.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/UzairGhori/todo-app-fullstack/internal/events"
	"github.com/UzairGhori/todo-app-fullstack/internal/llm"
)

// maxRounds bounds model calls per request. Each tool call consumes a
// round; a purely conversational reply ends the loop early.
const maxRounds = 3

// defaultMaxTokens caps generation length per model call.
const defaultMaxTokens = 1000

// ToolExecutor runs a named tool for a user. Implementations never
// return a Go error; failures are encoded in the result map so they can
// be fed back to the model as text.
type ToolExecutor interface {
	Execute(ctx context.Context, userID, name string, args map[string]any) map[string]any
}

// toolCallRecord is one entry in the per-request tool log.
type toolCallRecord struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

// Result is the outcome of one agent run.
type Result struct {
	// Reply is the assistant's final text. May be empty if the model
	// produced nothing after its last tool call.
	Reply string
	// ToolCallLog is a JSON array recording each executed tool call in
	// order, or "" when no tools ran.
	ToolCallLog string
}

// Loop drives the request/parse/execute cycle against the model.
type Loop struct {
	logger    *slog.Logger
	client    llm.Client
	tools     ToolExecutor
	bus       *events.Bus
	maxTokens int
}

// NewLoop creates an agent loop. bus may be nil to disable event
// publishing; maxTokens zero means defaultMaxTokens.
func NewLoop(logger *slog.Logger, client llm.Client, tools ToolExecutor, bus *events.Bus, maxTokens int) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Loop{
		logger:    logger,
		client:    client,
		tools:     tools,
		bus:       bus,
		maxTokens: maxTokens,
	}
}

// Run executes the agent loop over the given history. history is the
// stored conversation including the newest user message; instructions
// are injected here, never stored. Provider errors abort the run and
// propagate to the caller.
func (l *Loop) Run(ctx context.Context, userID, conversationID string, history []llm.Message) (*Result, error) {
	messages := BuildMessages(history)
	var log []toolCallRecord

	l.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindRequestStart,
		UserID: userID,
		Data:   map[string]any{"conversation_id": conversationID},
	})

	reply := ""
	rounds := 0
	for rounds < maxRounds {
		rounds++

		text, err := l.client.Chat(ctx, messages, l.maxTokens)
		if err != nil {
			return nil, fmt.Errorf("model call (round %d): %w", rounds, err)
		}
		reply = text

		call, ok := ParseToolCall(text)
		if !ok {
			break
		}

		l.logger.Debug("executing tool", "tool", call.Name, "round", rounds)
		result := l.tools.Execute(ctx, userID, call.Name, call.Args)
		log = append(log, toolCallRecord{Tool: call.Name, Input: call.Args})

		l.bus.Publish(events.Event{
			Source: events.SourceAgent,
			Kind:   events.KindToolCall,
			UserID: userID,
			Data:   map[string]any{"tool": call.Name},
		})

		resultJSON, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal tool result: %w", err)
		}
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: text},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("[Tool Result for %s]: %s", call.Name, resultJSON)},
		)
	}

	l.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindRequestComplete,
		UserID: userID,
		Data:   map[string]any{"conversation_id": conversationID, "rounds": rounds, "tool_calls": len(log)},
	})

	res := &Result{Reply: reply}
	if len(log) > 0 {
		b, err := json.Marshal(log)
		if err != nil {
			return nil, fmt.Errorf("marshal tool log: %w", err)
		}
		res.ToolCallLog = string(b)
	}
	return res, nil
}
