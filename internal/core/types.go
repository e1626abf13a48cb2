package core

import (
	"bytes"
	"encoding/json"
)

// Caller-facing roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single caller-supplied conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ParseMessages decodes a request body holding an ordered JSON array of messages.
func ParseMessages(body []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, NewClientInputError("request body is empty", nil)
	}
	if trimmed[0] != '[' {
		return nil, NewClientInputError("request body must be a JSON array of {role, content} messages", nil)
	}

	var msgs []Message
	if err := json.Unmarshal(trimmed, &msgs); err != nil {
		return nil, NewClientInputError("invalid request body: "+err.Error(), err)
	}
	if len(msgs) == 0 {
		return nil, NewClientInputError("at least one message is required", nil)
	}
	return msgs, nil
}

// MapRole maps a caller role onto a provider's vocabulary.
// "assistant" becomes assistantRole; every other value, including unknown ones, becomes userRole.
func MapRole(role, assistantRole, userRole string) string {
	if role == RoleAssistant {
		return assistantRole
	}
	return userRole
}

// Usage represents token usage reported by a provider stream.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
