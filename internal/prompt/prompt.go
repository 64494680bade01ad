// Package prompt builds the ordered message list sent to the model: one
// system entry carrying the bot prompt and its knowledge documents, followed
// by the client's conversation history.
package prompt

import (
	"encoding/json"
	"strings"
)

// ContextPreamble introduces the knowledge documents inside the system entry.
const ContextPreamble = "Context:"

// Role of a prompt entry. The zero value is RoleUnknown.
type Role int

const (
	RoleUnknown Role = iota
	RoleSystem
	RoleUser
	RoleAssistant
)

// ParseRole maps a client-supplied role. Only "user" and "assistant" are
// accepted; anything else, "system" included, is RoleUnknown.
func ParseRole(s string) Role {
	switch s {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// UnmarshalJSON never fails: a role that is not a known string decodes as
// RoleUnknown and is dropped later by Assemble.
func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*r = RoleUnknown
		return nil
	}
	*r = ParseRole(s)
	return nil
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Message is one prompt entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Assemble returns the system entry followed by the history entries whose role
// is user or assistant, in the given order.
func Assemble(systemPrompt string, documents []string, history []Message) []Message {
	system := systemPrompt
	if len(documents) > 0 {
		system += "\n\n" + ContextPreamble + "\n" + strings.Join(documents, "\n")
	}

	out := make([]Message, 0, len(history)+1)
	out = append(out, Message{Role: RoleSystem, Content: system})
	for _, m := range history {
		switch m.Role {
		case RoleUser, RoleAssistant:
			out = append(out, Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}
