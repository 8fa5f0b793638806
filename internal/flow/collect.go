package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// handleCollectCreate gathers the fields a patient registration needs.
func (o *Orchestrator) handleCollectCreate(ctx context.Context, t *turn) (handlerResult, error) {
	t.state.PendingAction = models.PendingActionCreate
	return o.collectFields(ctx, t, models.IntentCreatePatient)
}

// handleCollectUpdate gathers the record identifier plus any updated values.
func (o *Orchestrator) handleCollectUpdate(ctx context.Context, t *turn) (handlerResult, error) {
	t.state.PendingAction = models.PendingActionUpdate
	return o.collectFields(ctx, t, models.IntentUpdatePatient)
}

// handleCollectDelete gathers the record identifier and, once it has one,
// arms the confirmation gate instead of executing directly.
func (o *Orchestrator) handleCollectDelete(ctx context.Context, t *turn) (handlerResult, error) {
	state := t.state
	state.PendingAction = models.PendingActionDelete

	result, done, err := o.mergeAndCheckFields(ctx, t, models.IntentDeletePatient)
	if err != nil || !done {
		return result, err
	}

	state.ConfirmationRequired = true
	state.AwaitingConfirmationType = models.ConfirmationTypeDelete
	state.SelectedPatientID = state.ValidatedFields[models.FieldPatientID]
	reply := fmt.Sprintf("Are you sure you want to delete patient %s? This cannot be undone. Please answer yes or no.", state.SelectedPatientID)
	return handlerResult{reply: reply, token: models.TokenConfirmationNeeded, endTurn: true}, nil
}

// collectFields is the shared create/update collection policy: merge the
// extractor's output, then either move to execution or run the one-retry
// clarification guard.
func (o *Orchestrator) collectFields(ctx context.Context, t *turn, intent models.Intent) (handlerResult, error) {
	result, done, err := o.mergeAndCheckFields(ctx, t, intent)
	if err != nil || !done {
		return result, err
	}
	return handlerResult{token: models.TokenFieldsComplete}, nil
}

// mergeAndCheckFields merges newly extracted fields into the validated set
// and computes what is still missing. done is true when every required field
// is present; otherwise result carries the clarification prompt or the loop
// abort.
func (o *Orchestrator) mergeAndCheckFields(ctx context.Context, t *turn, intent models.Intent) (result handlerResult, done bool, err error) {
	state := t.state

	// A validation failure earlier in this same turn already produced the
	// correction prompt; re-extracting from the same message would just
	// reinstate the rejected values.
	if state.LastToolError != "" {
		state.LastToolError = ""
		return handlerResult{token: models.TokenFieldsMissing, endTurn: true}, false, nil
	}

	extracted, extractErr := o.classifier.ExtractFields(ctx, t.userText, models.KnownFields(intent))
	if extractErr != nil {
		slog.Warn("Orchestrator.mergeAndCheckFields: extractor unavailable", "error", extractErr, "intent", intent)
		extracted = map[string]string{}
	}
	for field, value := range extracted {
		if value == "" {
			continue
		}
		state.ExtractedFields[field] = value
		state.ValidatedFields[field] = value
	}

	missing := models.MissingFields(intent, state.ValidatedFields)
	if len(missing) == 0 {
		state.SetPendingFields(nil)
		return handlerResult{}, true, nil
	}

	if state.ClarificationLoopCount >= 1 {
		slog.Debug("Orchestrator.mergeAndCheckFields: clarification loop guard tripped", "intent", intent, "missing", missing)
		state.ResetWorkflow()
		o.recordEvent("clarification_abort", false, map[string]string{"intent": string(intent)})
		return handlerResult{
			reply:   "This is taking too long. Let's start over - say \"cancel\", or send the request again with all the details in one message.",
			token:   models.TokenLoopAbort,
			endTurn: true,
		}, false, nil
	}

	state.ClarificationLoopCount++
	state.SetPendingFields(missing)
	return handlerResult{
		reply:   clarificationPrompt(missing),
		token:   models.TokenFieldsMissing,
		endTurn: true,
	}, false, nil
}

// clarificationPrompt lists the missing fields with one example format each.
func clarificationPrompt(missing []string) string {
	parts := make([]string, 0, len(missing))
	for _, field := range missing {
		if example := models.FieldExample(field); example != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", field, example))
		} else {
			parts = append(parts, field)
		}
	}
	return fmt.Sprintf("I still need the following details: %s.", strings.Join(parts, ", "))
}
