package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/BTreeMap/ScanDesk/internal/models"
	"github.com/BTreeMap/ScanDesk/internal/tools"
)

// transportFailureReply is the fixed reply for timeouts, 5xx, and unreachable
// backends. Such failures never mutate the validated fields.
const transportFailureReply = "I'm having trouble reaching the records system right now. Please try again in a moment."

// handleExecuteCreate runs the registration against the backend.
func (o *Orchestrator) handleExecuteCreate(ctx context.Context, t *turn) (handlerResult, error) {
	return o.executeMutation(ctx, t, models.IntentCreatePatient, true, func(result *tools.Result) string {
		if id := dataString(result.Data, "id"); id != "" {
			return fmt.Sprintf("Patient record created (ID %s).", id)
		}
		return "Patient record created."
	})
}

// handleExecuteUpdate runs the record update against the backend.
func (o *Orchestrator) handleExecuteUpdate(ctx context.Context, t *turn) (handlerResult, error) {
	return o.executeMutation(ctx, t, models.IntentUpdatePatient, true, func(result *tools.Result) string {
		return "Patient record updated."
	})
}

// handleExecuteDelete runs the confirmed deletion against the backend.
func (o *Orchestrator) handleExecuteDelete(ctx context.Context, t *turn) (handlerResult, error) {
	// A delete carries only the record identifier, so there is no collect
	// stage to route a field-level rejection back to.
	return o.executeMutation(ctx, t, models.IntentDeletePatient, false, func(result *tools.Result) string {
		return "Patient record deleted."
	})
}

// executeMutation is the shared create/update/delete execution policy:
// success resets the workflow, a field-level validation failure routes back
// to the matching collect stage with precise guidance, a missing record
// resets the workflow with next actions, and a transport failure leaves the
// validated fields untouched.
func (o *Orchestrator) executeMutation(ctx context.Context, t *turn, intent models.Intent, validationRecovery bool, successReply func(*tools.Result) string) (handlerResult, error) {
	state := t.state
	result, err := o.executor.Execute(ctx, intent, state.Snapshot())
	if err != nil {
		slog.Error("Orchestrator.executeMutation: tool call failed", "error", err, "intent", intent)
		state.Metrics.ToolErrors++
		return handlerResult{reply: transportFailureReply, token: models.TokenToolError, endTurn: true}, nil
	}

	switch result.Kind {
	case tools.ResultSuccess:
		reply := successReply(result)
		state.ResetWorkflow()
		state.Metrics.CompletedOperations++
		return handlerResult{reply: reply, token: models.TokenExecuted, endTurn: true}, nil

	case tools.ResultValidationError:
		if !validationRecovery {
			state.Metrics.ToolErrors++
			state.ResetWorkflow()
			return handlerResult{reply: transportFailureReply, token: models.TokenToolError, endTurn: true}, nil
		}
		return handlerResult{
			reply: o.applyValidationFailure(state, result),
			token: models.TokenValidationFailed,
		}, nil

	case tools.ResultNotFound:
		if intent == models.IntentCreatePatient {
			// The backend has no record to miss on a create; treat an
			// unexpected 404 like any other backend fault.
			state.Metrics.ToolErrors++
			return handlerResult{reply: transportFailureReply, token: models.TokenToolError, endTurn: true}, nil
		}
		state.ResetWorkflow()
		return handlerResult{reply: notFoundReply(), token: models.TokenNotFound, endTurn: true}, nil

	default:
		slog.Warn("Orchestrator.executeMutation: transport failure", "intent", intent, "statusCode", result.StatusCode, "retryable", result.Retryable)
		state.Metrics.ToolErrors++
		return handlerResult{reply: transportFailureReply, token: models.TokenToolError, endTurn: true}, nil
	}
}

// applyValidationFailure re-populates the pending field set with exactly the
// offending field names, drops their rejected values, and composes the
// field-scoped correction reply. Already-valid fields (such as the record
// identifier) are preserved.
func (o *Orchestrator) applyValidationFailure(state *models.ConversationState, result *tools.Result) string {
	fields := make([]string, 0, len(result.ValidationErrors))
	for field := range result.ValidationErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	if len(fields) == 0 {
		message := result.Message
		if message == "" {
			message = tools.FallbackValidationMessage
		}
		state.LastToolError = message
		return message
	}

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		delete(state.ValidatedFields, field)
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(result.ValidationErrors[field], "; ")))
	}
	state.SetPendingFields(fields)
	reply := fmt.Sprintf("Please correct the following issues: %s", strings.Join(parts, ", "))
	state.LastToolError = reply
	return reply
}

func notFoundReply() string {
	return "That patient record was not found. You can say \"list patients\" to see existing records, or \"cancel\" to start over."
}

// dataString reads a string-ish value out of a tool result payload.
func dataString(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}
