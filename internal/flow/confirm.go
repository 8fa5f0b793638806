package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

var affirmativeAnswers = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "yup": true,
	"sure": true, "ok": true, "okay": true, "confirm": true, "confirmed": true,
	"go ahead": true, "do it": true,
}

var negativeAnswers = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true,
	"don't": true, "do not": true, "negative": true,
}

func isAffirmative(message string) bool {
	return affirmativeAnswers[strings.ToLower(strings.TrimSpace(message))]
}

func isNegative(message string) bool {
	return negativeAnswers[strings.ToLower(strings.TrimSpace(message))]
}

// handleConfirm resolves a pending yes/no gate before a destructive
// operation. An affirmative routes to the matching execute node; a negative
// clears the gate; anything else re-prompts and keeps the gate armed.
func (o *Orchestrator) handleConfirm(ctx context.Context, t *turn) (handlerResult, error) {
	state := t.state

	switch state.AwaitingConfirmationType {
	case models.ConfirmationTypeDelete:
		if isAffirmative(t.userText) {
			// The routing context needs the confirmation type to pick the
			// execute node, so record it before clearing the gate.
			t.confirm = state.AwaitingConfirmationType
			state.ConfirmationRequired = false
			state.AwaitingConfirmationType = models.ConfirmationTypeNone
			slog.Debug("Orchestrator.handleConfirm: deletion confirmed", "patientID", state.SelectedPatientID)
			return handlerResult{token: models.TokenConfirmed}, nil
		}
		if isNegative(t.userText) {
			state.ResetWorkflow()
			return handlerResult{
				reply:   "Okay, the record will not be deleted.",
				token:   models.TokenDenied,
				endTurn: true,
			}, nil
		}
		return handlerResult{
			reply:   "I need a clear answer before deleting anything. Please answer yes or no.",
			token:   models.TokenDenied,
			endTurn: true,
		}, nil

	default:
		// The gate was armed without a type; clear it rather than trap the
		// conversation.
		state.ConfirmationRequired = false
		return handlerResult{
			reply:   "There's nothing awaiting confirmation. How can I help?",
			token:   models.TokenDenied,
			endTurn: true,
		}, nil
	}
}
