package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// cancellationVocabulary lists the phrases that abort the active workflow at
// ingest, before classification runs. Matching is case-insensitive substring
// matching on the trimmed message. Cancellation beats a pending
// confirmation: a user saying "cancel" while a delete awaits yes/no gets the
// cancellation, not a confirmation denial.
var cancellationVocabulary = []string{
	"cancel",
	"stop",
	"abort",
	"never mind",
	"nevermind",
	"forget it",
	"quit",
}

func isCancellation(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, phrase := range cancellationVocabulary {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

// handleIngest is the entry node for every turn. It checks the cancellation
// vocabulary and otherwise hands the message to classification.
func (o *Orchestrator) handleIngest(ctx context.Context, t *turn) (handlerResult, error) {
	if isCancellation(t.userText) {
		slog.Debug("Orchestrator.handleIngest: cancellation phrase detected")
		return handlerResult{token: models.TokenCancelled}, nil
	}
	return handlerResult{token: models.TokenProceed}, nil
}

// handleCancel resets the workflow when one is active and counts the abort.
// With no active workflow it replies without touching the counters.
func (o *Orchestrator) handleCancel(ctx context.Context, t *turn) (handlerResult, error) {
	state := t.state
	if !state.HasActiveWorkflow() {
		return handlerResult{
			reply:   "There's no active operation to cancel. How can I help?",
			token:   models.TokenResetDone,
			endTurn: true,
		}, nil
	}

	slog.Debug("Orchestrator.handleCancel: aborting active workflow", "pendingAction", state.PendingAction)
	action := string(state.PendingAction)
	state.ResetWorkflow()
	state.Metrics.AbortedOperations++
	if o.instruments != nil {
		o.instruments.OperationsAborted.Inc()
	}
	o.recordEvent("operation_cancelled", true, map[string]string{"pending_action": action})
	return handlerResult{
		reply:   "Okay, I've cancelled the current operation. How else can I help?",
		token:   models.TokenResetDone,
		endTurn: true,
	}, nil
}
