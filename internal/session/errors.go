package session

import (
	"errors"
	"fmt"

	"DocChat/internal/auth"
	"DocChat/internal/conversation"
	"DocChat/internal/gateway"
)

// ErrValidation wraps every locally rejected action. Nothing is sent and no
// state changes.
var ErrValidation = errors.New("invalid action")

var (
	ErrNoFile          = fmt.Errorf("%w: no file selected", ErrValidation)
	ErrUploadInFlight  = fmt.Errorf("%w: an upload is already in progress", ErrValidation)
	ErrDocumentPresent = fmt.Errorf("%w: a document is already uploaded, start a new chat first", ErrValidation)
	ErrEmptyQuestion   = fmt.Errorf("%w: question is empty", ErrValidation)
	ErrNoSession       = fmt.Errorf("%w: upload a PDF first", ErrValidation)
	ErrAskInFlight     = fmt.Errorf("%w: a question is already in progress", ErrValidation)
)

// ErrorKind classifies failures surfaced to the user.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindUnauthorized ends the login; everything persisted is cleared.
	KindUnauthorized
	// KindValidation is reported inline with no state change.
	KindValidation
	// KindInvalidCredentials is a refused login, reported on the login form.
	KindInvalidCredentials
	// KindServer is any other remote failure; the session stays usable.
	KindServer
	// KindMalformedState is unreadable persisted data, recovered as empty.
	KindMalformedState
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindInvalidCredentials:
		return "invalid-credentials"
	case KindServer:
		return "server"
	case KindMalformedState:
		return "malformed-state"
	}
	return "unknown"
}

// Kind classifies err. Anything unrecognised counts as a server failure.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, gateway.ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrValidation), errors.Is(err, auth.ErrMissingCredentials):
		return KindValidation
	case errors.Is(err, gateway.ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, conversation.ErrMalformed):
		return KindMalformedState
	default:
		return KindServer
	}
}
