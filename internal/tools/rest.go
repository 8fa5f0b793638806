package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// DefaultRequestTimeout bounds a single backend call when no client is
// injected.
const DefaultRequestTimeout = 30 * time.Second

// RESTExecutor implements Executor against the record backend's REST API.
// It maps status-code classes onto Result variants and performs no retries.
type RESTExecutor struct {
	baseURL    string
	httpClient *http.Client
}

// RESTOpts holds configuration for the REST executor.
type RESTOpts struct {
	HTTPClient *http.Client
}

// RESTOption configures the REST executor.
type RESTOption func(*RESTOpts)

// WithHTTPClient injects a custom HTTP client (used by tests).
func WithHTTPClient(client *http.Client) RESTOption {
	return func(o *RESTOpts) { o.HTTPClient = client }
}

// NewRESTExecutor creates an executor targeting the given backend base URL.
func NewRESTExecutor(baseURL string, opts ...RESTOption) (*RESTExecutor, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend base URL not set")
	}
	var cfg RESTOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	slog.Debug("tools.NewRESTExecutor: executor created", "baseURL", baseURL)
	return &RESTExecutor{baseURL: strings.TrimRight(baseURL, "/"), httpClient: cfg.HTTPClient}, nil
}

// route maps an operation to its backend method and path. Identifier-scoped
// routes interpolate the patient_id from the snapshot.
func (e *RESTExecutor) route(op models.Intent, snapshot map[string]string) (method, path string, withBody bool, err error) {
	id := snapshot[models.FieldPatientID]
	switch op {
	case models.IntentCreatePatient:
		return http.MethodPost, "/api/patients", true, nil
	case models.IntentUpdatePatient:
		return http.MethodPut, "/api/patients/" + id, true, nil
	case models.IntentDeletePatient:
		return http.MethodDelete, "/api/patients/" + id, false, nil
	case models.IntentListPatients:
		return http.MethodGet, "/api/patients", false, nil
	case models.IntentPatientDetails:
		return http.MethodGet, "/api/patients/" + id, false, nil
	case models.IntentScanFiles:
		return http.MethodGet, "/api/patients/" + id + "/scans", false, nil
	case models.IntentStatistics:
		return http.MethodGet, "/api/statistics", false, nil
	default:
		return "", "", false, fmt.Errorf("no backend route for operation %s", op)
	}
}

// Execute runs the operation and normalizes the response. Transport failures
// come back as a retryable transport_error result, not a raw error, so the
// conversation core has a single shape to branch on.
func (e *RESTExecutor) Execute(ctx context.Context, op models.Intent, snapshot map[string]string) (*Result, error) {
	method, path, withBody, err := e.route(op, snapshot)
	if err != nil {
		slog.Error("RESTExecutor.Execute: unroutable operation", "op", op, "error", err)
		return nil, err
	}

	var body io.Reader
	if withBody {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend request: %w", err)
	}
	if withBody {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("RESTExecutor.Execute: calling backend", "op", op, "method", method, "path", path)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		slog.Warn("RESTExecutor.Execute: transport failure", "op", op, "error", err)
		return &Result{Kind: ResultTransportError, Message: "backend unreachable", Retryable: true}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		slog.Warn("RESTExecutor.Execute: failed to read response body", "op", op, "error", err)
		return &Result{Kind: ResultTransportError, StatusCode: resp.StatusCode, Message: "backend response unreadable", Retryable: true}, nil
	}

	result := normalizeResponse(resp.StatusCode, raw)
	slog.Debug("RESTExecutor.Execute: backend responded", "op", op, "status", resp.StatusCode, "kind", result.Kind)
	return result, nil
}

// normalizeResponse maps a status code and body onto the tagged result type.
func normalizeResponse(statusCode int, body []byte) *Result {
	switch {
	case statusCode >= 200 && statusCode < 300:
		data := map[string]any{}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &data); err != nil {
				slog.Warn("tools.normalizeResponse: success body not a JSON object", "status", statusCode, "error", err)
				data = map[string]any{}
			}
		}
		return &Result{Kind: ResultSuccess, StatusCode: statusCode, Data: data}
	case statusCode == http.StatusBadRequest:
		fieldErrors, message := parseValidationPayload(body)
		return &Result{Kind: ResultValidationError, StatusCode: statusCode, ValidationErrors: fieldErrors, Message: message}
	case statusCode == http.StatusNotFound:
		return &Result{Kind: ResultNotFound, StatusCode: statusCode, Message: "record not found"}
	default:
		return &Result{Kind: ResultTransportError, StatusCode: statusCode, Message: "backend error", Retryable: statusCode >= 500}
	}
}

// validationPayload is the backend's 400 body shape.
type validationPayload struct {
	Errors map[string][]string `json:"errors"`
}

// parseValidationPayload decodes the per-field error lists from a 400 body.
// A malformed or empty payload degrades to the fixed fallback message and an
// empty field map.
func parseValidationPayload(body []byte) (map[string][]string, string) {
	var payload validationPayload
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Errors) == 0 {
		if err != nil {
			slog.Warn("tools.parseValidationPayload: malformed validation payload", "error", err)
		}
		return map[string][]string{}, FallbackValidationMessage
	}
	return payload.Errors, ""
}
