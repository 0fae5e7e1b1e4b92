// Package gateway is the client side of the document chat API: uploading a
// document, asking questions about it and authenticating.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrUnauthorized means the server rejected the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials means login was refused for the given email/password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UnknownDetail is reported when the server gives no reason for a failure.
const UnknownDetail = "Unknown error"

// ServerError is any failure other than an authorization problem: a non-2xx
// status, an unreadable response or a transport error.
type ServerError struct {
	Status int // 0 when no response was received
	Detail string
	Err    error
}

func (e *ServerError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("server error: %s", e.Detail)
	}
	return fmt.Sprintf("server error %d: %s", e.Status, e.Detail)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// Detail extracts the user-facing reason from err.
func Detail(err error) string {
	var serr *ServerError
	if errors.As(err, &serr) && serr.Detail != "" {
		return serr.Detail
	}
	return UnknownDetail
}

// UploadResult identifies the session created by an upload.
type UploadResult struct {
	SessionID    string
	DocumentName string
}

// Answer is the server's reply to a question.
type Answer struct {
	Text     string
	Evidence []string
}

// Credential is the identity issued on login.
type Credential struct {
	Token  string
	UserID string
}

// Gateway is the set of remote operations the client depends on. Each method
// is invoked at most once per user action and never retried.
type Gateway interface {
	// Upload sends a document and opens a session bound to it.
	// Fails with ErrUnauthorized or *ServerError.
	Upload(ctx context.Context, name string, body io.Reader) (UploadResult, error)

	// Ask asks a question within a session.
	// Fails with ErrUnauthorized or *ServerError.
	Ask(ctx context.Context, question, sessionID string) (Answer, error)

	// Authenticate exchanges an email and password for a credential.
	// Fails with ErrInvalidCredentials or *ServerError.
	Authenticate(ctx context.Context, email, password string) (Credential, error)

	// Signup registers a new account. Fails with *ServerError.
	Signup(ctx context.Context, email, password string) error
}

// TokenSource supplies the bearer token attached to outgoing requests.
// An empty token means no Authorization header is sent.
type TokenSource interface {
	Token() string
}
