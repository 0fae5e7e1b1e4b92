package backend

import "encoding/json"

// API routes of the document chat server
const (
	PathSignup = "/api/auth/signup"
	PathLogin  = "/api/auth/login"
	PathUpload = "/api/upload"
	PathChat   = "/api/chat"
	PathHealth = "/api/health"

	// UploadField is the multipart form field carrying the document
	UploadField = "file"
)

// CredentialsRequest is the body of signup and login requests
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the response from the login endpoint
type LoginResponse struct {
	Message     string          `json:"message"`
	AccessToken string          `json:"access_token"`
	UserID      string          `json:"user_id"`
	User        json.RawMessage `json:"user,omitempty"`
}

// UploadResponse represents the response from the upload endpoint
type UploadResponse struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
}

// ChatRequest represents the request body for the chat endpoint
type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// ChatResponse represents the response from the chat endpoint
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// ErrorResponse is the error body the server returns with non-2xx statuses.
// Detail is usually a string but validation failures carry a list of objects.
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// DetailText renders Detail as a human readable message
func (e ErrorResponse) DetailText() string {
	if len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	return string(e.Detail)
}
