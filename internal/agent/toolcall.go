package agent

import (
	"encoding/json"
	"regexp"
)

// toolCallRE finds the first delimited tool-call block in model output.
// The block is searched for, not matched whole: models often wrap it in
// prose despite being told not to.
var toolCallRE = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)

// ToolCall is one parsed tool invocation from model output.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ParseToolCall extracts a tool invocation from one round of model
// output, or reports that none is present. Parsing is fail-open:
// malformed JSON inside the delimiters degrades to "no tool call" so
// that a broken reply becomes a conversational answer instead of a
// failed turn. Only the first delimited block is considered.
func ParseToolCall(text string) (*ToolCall, bool) {
	m := toolCallRE.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}

	var call ToolCall
	if err := json.Unmarshal([]byte(m[1]), &call); err != nil {
		return nil, false
	}
	if call.Name == "" {
		return nil, false
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	return &call, true
}
