package flow

import (
	"context"
	"strings"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// capability pairs a supported action with one concrete example phrase.
type capability struct {
	action  string
	example string
}

var capabilities = []capability{
	{"Register a patient", "register patient Tan Wei Ming, NRIC S1234567D, born 1984-06-21"},
	{"Update a record", "update patient 1042's contact number to 91234567"},
	{"Delete a record", "delete patient 1042"},
	{"List patients", "list patients"},
	{"Show a patient's details", "show me patient 1042"},
	{"Fetch scan files", "get the scan files for patient 1042"},
	{"Show statistics", "how many patients do we have?"},
	{"Cancel the current operation", "cancel"},
}

// handleUnknown is the terminal fallback for unclassifiable input. It always
// enumerates what the system can do, with one example per capability.
func (o *Orchestrator) handleUnknown(ctx context.Context, t *turn) (handlerResult, error) {
	lines := make([]string, 0, len(capabilities)+1)
	lines = append(lines, "I didn't catch that. Here's what I can do:")
	for _, c := range capabilities {
		lines = append(lines, "- "+c.action+`, e.g. "`+c.example+`"`)
	}
	return handlerResult{
		reply:   strings.Join(lines, "\n"),
		token:   models.TokenCapabilitiesShown,
		endTurn: true,
	}, nil
}
