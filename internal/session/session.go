package session

import "DocChat/internal/conversation"

// UnknownDocument names a restored session whose document name was lost.
const UnknownDocument = "unknown document"

// Session binds one uploaded document to the questions asked about it.
// ID and DocumentName are either both set or both empty.
type Session struct {
	ID           string `json:"id"`
	DocumentName string `json:"document_name"`
}

// Active reports whether the session exists.
func (s Session) Active() bool {
	return s.ID != ""
}

// Phase is the controller's position in the session lifecycle.
type Phase int

const (
	NoSession Phase = iota
	Uploading
	Active
	Asking
)

func (p Phase) String() string {
	switch p {
	case NoSession:
		return "no-session"
	case Uploading:
		return "uploading"
	case Active:
		return "active"
	case Asking:
		return "asking"
	}
	return "unknown"
}

// State is a point-in-time view of the controller for rendering.
type State struct {
	Phase   Phase
	Session Session
	Log     *conversation.Log
}
