// Package llm provides the chat-completion client used by the agent.
package llm

import "context"

// Message roles used on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a chat exchange with the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the interface the agent loop depends on. The provider is
// treated as unreliable free text: no structured function-calling
// contract is assumed.
type Client interface {
	// Chat sends the message sequence with a generation cap and
	// returns one assistant text completion.
	Chat(ctx context.Context, messages []Message, maxTokens int) (string, error)
}
