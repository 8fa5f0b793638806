// Package tools defines the boundary to the patient record backend: an
// executor that runs one named operation and returns a normalized, tagged
// result the conversation core can branch on without inspecting transports.
package tools

import (
	"context"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// ResultKind tags the normalized outcome of a backend operation.
type ResultKind string

const (
	// ResultSuccess carries the operation's data payload.
	ResultSuccess ResultKind = "success"
	// ResultValidationError carries per-field error lists (HTTP 400 class).
	ResultValidationError ResultKind = "validation_error"
	// ResultNotFound reports a missing record (HTTP 404 class).
	ResultNotFound ResultKind = "not_found"
	// ResultTransportError reports timeouts, 5xx, and unreachable backends.
	ResultTransportError ResultKind = "transport_error"
)

// FallbackValidationMessage replaces unparseable validation payloads. The
// core must never raise on a malformed backend body.
const FallbackValidationMessage = "The request could not be processed. Please check your input and try again."

// Result is the tagged outcome of one backend operation. The field-error map
// is populated only for the validation variant.
type Result struct {
	Kind             ResultKind          `json:"kind"`
	StatusCode       int                 `json:"status_code,omitempty"`
	Data             map[string]any      `json:"data,omitempty"`
	ValidationErrors map[string][]string `json:"validation_errors,omitempty"`
	Message          string              `json:"message,omitempty"`
	Retryable        bool                `json:"retryable"`
}

// Executor runs one named operation against the backend. Retry and backoff
// live behind this interface, never in the conversation core. A non-nil
// error means the call could not be attempted at all; backend-level failures
// arrive as Result variants.
type Executor interface {
	Execute(ctx context.Context, op models.Intent, snapshot map[string]string) (*Result, error)
}
