package store

import "context"

// Keys written by the client. Values are opaque strings.
const (
	KeyAccessToken      = "access_token"
	KeyUserID           = "user_id"
	KeyCurrentSessionID = "current_session_id"
	KeyChatMessages     = "chat_messages"
	KeyDocumentName     = "document_name"
)

// AllKeys lists every key the client writes, in the order logout removes them.
var AllKeys = []string{
	KeyAccessToken,
	KeyUserID,
	KeyChatMessages,
	KeyDocumentName,
	KeyCurrentSessionID,
}

// SessionKeys are the keys describing the current session and its conversation.
// The conversation is removed before the session id so a partial reset never
// leaves a conversation that looks like it still belongs to a live session.
var SessionKeys = []string{
	KeyChatMessages,
	KeyDocumentName,
	KeyCurrentSessionID,
}

// Store is durable key-value storage. Writes to different keys are independent;
// callers must tolerate a crash between any two of them.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// RemoveAll removes each key in order, returning the first error but
// attempting every key.
func RemoveAll(ctx context.Context, s Store, keys ...string) error {
	var firstErr error
	for _, key := range keys {
		if err := s.Remove(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
