package agent

import (
	"github.com/UzairGhori/todo-app-fullstack/internal/llm"
	"github.com/UzairGhori/todo-app-fullstack/internal/prompts"
)

// BuildMessages converts stored history into the message sequence sent
// to the model. The instruction block is injected into the first
// user-role message only; later turns carry the conversation as-is, so
// the instructions appear exactly once per request regardless of
// history length. The input slice is not modified.
func BuildMessages(history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	injected := false
	for _, m := range history {
		if !injected && m.Role == llm.RoleUser {
			m.Content = "[INSTRUCTIONS]\n" + prompts.AgentInstructions() + "\n[/INSTRUCTIONS]\n\nUser request: " + m.Content
			injected = true
		}
		out = append(out, m)
	}
	return out
}
