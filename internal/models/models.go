// Package models defines the core data structures for ScanDesk.
//
// It includes the API envelope types and input validation limits shared
// across modules.
package models

import "errors"

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a user message
	MaxMessageLength = 4096
	// MaxConversationIDLength defines the maximum allowed length for a conversation identifier
	MaxConversationIDLength = 128
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage          = errors.New("message cannot be empty")
	ErrMessageTooLong        = errors.New("message exceeds maximum length")
	ErrEmptyConversationID   = errors.New("conversation id cannot be empty")
	ErrConversationIDTooLong = errors.New("conversation id exceeds maximum length")
)

// Status values used in API response envelopes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// APIResponse is the envelope returned by every HTTP endpoint.
type APIResponse struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success builds an ok envelope around a result payload.
func Success(result any) APIResponse {
	return APIResponse{Status: StatusOK, Result: result}
}

// Error builds an error envelope with a user-facing message.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Error: message}
}

// TurnRequest is the body of a POST message endpoint call.
type TurnRequest struct {
	Message string `json:"message"`
}

// Validate checks the turn request against the input limits.
func (r *TurnRequest) Validate() error {
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// TurnResponse carries the assistant reply for one processed turn.
type TurnResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
}

// ValidateConversationID checks a path-supplied conversation identifier.
func ValidateConversationID(id string) error {
	if id == "" {
		return ErrEmptyConversationID
	}
	if len(id) > MaxConversationIDLength {
		return ErrConversationIDTooLong
	}
	return nil
}
