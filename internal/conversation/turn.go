// Package conversation holds the append-only log of turns exchanged in a
// document chat session.
package conversation

import (
	"fmt"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleError:
		return true
	}
	return false
}

// Turn is a single entry in the conversation.
type Turn struct {
	// ID marks a user turn whose answer is still pending. Empty for turns
	// that never wait on the network.
	ID   string `json:"id,omitempty"`
	Role Role   `json:"type"`
	Text string `json:"content"`
	// Evidence is only set on assistant turns.
	Evidence []string `json:"sources,omitempty"`
}

// UserTurn builds a user question with a fresh pending marker.
func UserTurn(text string) Turn {
	return Turn{ID: uuid.NewString(), Role: RoleUser, Text: text}
}

func AssistantTurn(text string, evidence []string) Turn {
	return Turn{Role: RoleAssistant, Text: text, Evidence: evidence}
}

func SystemTurn(text string) Turn {
	return Turn{Role: RoleSystem, Text: text}
}

func ErrorTurn(text string) Turn {
	return Turn{Role: RoleError, Text: text}
}

// UploadedTurn announces a successful upload of documentName.
func UploadedTurn(documentName string) Turn {
	return SystemTurn(fmt.Sprintf("PDF \"%s\" uploaded successfully! You can now ask questions about it.", documentName))
}

// clone copies the evidence slice so the turn shares no memory with the caller.
// Empty evidence is normalised to nil.
func (t Turn) clone() Turn {
	if len(t.Evidence) == 0 {
		t.Evidence = nil
	} else {
		t.Evidence = append([]string(nil), t.Evidence...)
	}
	return t
}
