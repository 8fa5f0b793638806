package flow

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// handleClassify runs the external classifier and consults the intent entry
// table. A pending confirmation pre-empts everything: whatever the user said
// (short of a cancellation phrase, which ingest already caught), the turn
// routes to the confirmation handler first.
func (o *Orchestrator) handleClassify(ctx context.Context, t *turn) (handlerResult, error) {
	state := t.state
	if state.ConfirmationRequired {
		slog.Debug("Orchestrator.handleClassify: confirmation pending, pre-empting classification")
		return handlerResult{token: models.TokenConfirmationPending}, nil
	}

	intent, err := o.classifier.Classify(ctx, t.userText)
	if err != nil {
		slog.Warn("Orchestrator.handleClassify: classifier unavailable, falling back to unknown", "error", err)
		intent = models.IntentUnknown
	}

	intent = o.resumeWorkflowIntent(state, intent)
	if intent == models.IntentUnknown {
		return handlerResult{token: models.TokenUnknownIntent}, nil
	}

	state.Intent = intent
	t.intent = intent
	t.hasIntent = true
	slog.Debug("Orchestrator.handleClassify: intent classified", "intent", intent)
	return handlerResult{token: models.TokenClassified}, nil
}

// resumeWorkflowIntent keeps a multi-turn workflow alive across follow-up
// messages. A message that classifies as unknown while a workflow is
// collecting fields (for example "S1234567D" in answer to a prompt) resumes
// that workflow's intent instead of falling into the capability listing.
func (o *Orchestrator) resumeWorkflowIntent(state *models.ConversationState, classified models.Intent) models.Intent {
	if classified != models.IntentUnknown {
		return classified
	}
	if state.PendingAction != models.PendingActionNone {
		resumed := state.PendingAction.Intent()
		slog.Debug("Orchestrator.resumeWorkflowIntent: resuming pending workflow", "intent", resumed)
		return resumed
	}
	if len(state.PendingFields) > 0 && state.Intent != models.IntentUnknown {
		slog.Debug("Orchestrator.resumeWorkflowIntent: resuming field collection", "intent", state.Intent)
		return state.Intent
	}
	return classified
}
