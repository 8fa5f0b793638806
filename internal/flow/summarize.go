package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

const summarySystemPrompt = "You condense patient record conversations. " +
	"Summarize the following exchange in at most two sentences, keeping any patient identifiers mentioned."

// handleSummarize condenses the rolling message window into the history
// summary before the turn finalizes. The language model is optional; when it
// is unavailable the summary degrades to a plain recap line. The accumulated
// message counter restarts so the next summarization happens only after
// another full window.
func (o *Orchestrator) handleSummarize(ctx context.Context, t *turn) (handlerResult, error) {
	state := t.state
	t.summarized = true

	transcript := make([]string, 0, len(state.RecentMessages))
	for _, message := range state.RecentMessages {
		transcript = append(transcript, message.Role+": "+message.Content)
	}

	summary, err := o.classifier.GenerateReply(ctx, summarySystemPrompt, strings.Join(transcript, "\n"))
	if err != nil || strings.TrimSpace(summary) == "" {
		if err != nil {
			slog.Warn("Orchestrator.handleSummarize: summary generation failed, using recap", "error", err)
		}
		summary = fmt.Sprintf("Conversation with %d message(s); last intent: %s.", state.TotalMessages, state.Intent)
	}

	state.HistorySummary = summary
	state.TotalMessages = 0
	return handlerResult{token: models.TokenSummarized}, nil
}
