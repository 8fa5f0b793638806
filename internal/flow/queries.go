package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/BTreeMap/ScanDesk/internal/models"
	"github.com/BTreeMap/ScanDesk/internal/tools"
)

// handleListPatients fetches and renders the known patient records.
func (o *Orchestrator) handleListPatients(ctx context.Context, t *turn) (handlerResult, error) {
	state := t.state
	result, err := o.executor.Execute(ctx, models.IntentListPatients, state.Snapshot())
	if err != nil || result.Kind != tools.ResultSuccess {
		return o.queryFailure(t, err, result, false)
	}

	patients, _ := result.Data["patients"].([]any)
	if len(patients) == 0 {
		return handlerResult{reply: "No patient records found.", token: models.TokenExecuted, endTurn: true}, nil
	}
	lines := make([]string, 0, len(patients)+1)
	lines = append(lines, fmt.Sprintf("Found %d patient record(s):", len(patients)))
	for _, p := range patients {
		record, ok := p.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", dataString(record, "id"), dataString(record, "patient_name")))
	}
	return handlerResult{reply: strings.Join(lines, "\n"), token: models.TokenExecuted, endTurn: true}, nil
}

// handlePatientDetails fetches one record. A missing identifier produces a
// prompt and the field-collection continuation picks the answer up next turn.
func (o *Orchestrator) handlePatientDetails(ctx context.Context, t *turn) (handlerResult, error) {
	state := t.state
	if result, done, err := o.requirePatientID(ctx, t, models.IntentPatientDetails); err != nil || !done {
		return result, err
	}

	result, err := o.executor.Execute(ctx, models.IntentPatientDetails, state.Snapshot())
	if err != nil || result.Kind != tools.ResultSuccess {
		return o.queryFailure(t, err, result, true)
	}

	state.SetPendingFields(nil)
	return handlerResult{reply: renderRecord(result.Data), token: models.TokenExecuted, endTurn: true}, nil
}

// handleScanFiles walks the two-step download sub-flow: pick a patient, list
// the scan files, then fetch download links only after an explicit go-ahead.
func (o *Orchestrator) handleScanFiles(ctx context.Context, t *turn) (handlerResult, error) {
	state := t.state
	state.PendingAction = models.PendingActionDownload

	if state.DownloadStage == models.DownloadStageConfirm {
		return o.resolveDownloadConfirmation(ctx, t)
	}

	state.DownloadStage = models.DownloadStageSelectPatient
	if result, done, err := o.requirePatientID(ctx, t, models.IntentScanFiles); err != nil || !done {
		return result, err
	}

	result, err := o.executor.Execute(ctx, models.IntentScanFiles, state.Snapshot())
	if err != nil || result.Kind != tools.ResultSuccess {
		return o.queryFailure(t, err, result, true)
	}

	scans, _ := result.Data["scans"].([]any)
	if len(scans) == 0 {
		state.ResetWorkflow()
		return handlerResult{reply: "No scan files are on record for that patient.", token: models.TokenExecuted, endTurn: true}, nil
	}

	lines := make([]string, 0, len(scans)+2)
	lines = append(lines, fmt.Sprintf("Found %d scan file(s):", len(scans)))
	for _, s := range scans {
		record, ok := s.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", dataString(record, "filename"), dataString(record, "scan_type")))
	}
	lines = append(lines, "Would you like the download links? Please answer yes or no.")
	state.DownloadStage = models.DownloadStageConfirm
	return handlerResult{reply: strings.Join(lines, "\n"), token: models.TokenExecuted, endTurn: true}, nil
}

// resolveDownloadConfirmation handles the yes/no answer to the download
// offer. A denial resets the sub-flow without touching the abort counter.
func (o *Orchestrator) resolveDownloadConfirmation(ctx context.Context, t *turn) (handlerResult, error) {
	state := t.state
	if !isAffirmative(t.userText) {
		state.ResetWorkflow()
		return handlerResult{reply: "Okay, I won't fetch the download links.", token: models.TokenResetDone, endTurn: true}, nil
	}

	result, err := o.executor.Execute(ctx, models.IntentScanFiles, state.Snapshot())
	if err != nil || result.Kind != tools.ResultSuccess {
		return o.queryFailure(t, err, result, true)
	}

	scans, _ := result.Data["scans"].([]any)
	lines := make([]string, 0, len(scans)+1)
	lines = append(lines, "Here are the download links:")
	for _, s := range scans {
		record, ok := s.(map[string]any)
		if !ok {
			continue
		}
		if url := dataString(record, "download_url"); url != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", dataString(record, "filename"), url))
		}
	}
	state.ResetWorkflow()
	state.Metrics.CompletedOperations++
	return handlerResult{reply: strings.Join(lines, "\n"), token: models.TokenExecuted, endTurn: true}, nil
}

// handleStatistics fetches and renders the aggregate record statistics.
func (o *Orchestrator) handleStatistics(ctx context.Context, t *turn) (handlerResult, error) {
	result, err := o.executor.Execute(ctx, models.IntentStatistics, t.state.Snapshot())
	if err != nil || result.Kind != tools.ResultSuccess {
		return o.queryFailure(t, err, result, false)
	}

	keys := make([]string, 0, len(result.Data))
	for key := range result.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys)+1)
	lines = append(lines, "Current statistics:")
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", key, dataString(result.Data, key)))
	}
	return handlerResult{reply: strings.Join(lines, "\n"), token: models.TokenExecuted, endTurn: true}, nil
}

// requirePatientID extracts a record identifier from the message when the
// state does not already carry one. done is false when the turn must end
// with a prompt for the identifier.
func (o *Orchestrator) requirePatientID(ctx context.Context, t *turn, intent models.Intent) (result handlerResult, done bool, err error) {
	state := t.state
	if state.ValidatedFields[models.FieldPatientID] != "" || state.SelectedPatientID != "" {
		return handlerResult{}, true, nil
	}

	extracted, extractErr := o.classifier.ExtractFields(ctx, t.userText, models.KnownFields(intent))
	if extractErr != nil {
		slog.Warn("Orchestrator.requirePatientID: extractor unavailable", "error", extractErr, "intent", intent)
	}
	if id := extracted[models.FieldPatientID]; id != "" {
		state.ValidatedFields[models.FieldPatientID] = id
		return handlerResult{}, true, nil
	}

	state.Intent = intent
	state.SetPendingFields([]string{models.FieldPatientID})
	reply := fmt.Sprintf("Which patient? Please give me the patient ID (%s).", models.FieldExample(models.FieldPatientID))
	return handlerResult{reply: reply, token: models.TokenFieldsMissing, endTurn: true}, false, nil
}

// queryFailure maps a failed read-only tool call onto the reply and token the
// routing table expects. Transport failures leave the validated fields alone.
func (o *Orchestrator) queryFailure(t *turn, callErr error, result *tools.Result, notFoundRecovers bool) (handlerResult, error) {
	state := t.state
	if callErr == nil && result != nil && result.Kind == tools.ResultNotFound && notFoundRecovers {
		state.ResetWorkflow()
		return handlerResult{reply: notFoundReply(), token: models.TokenNotFound, endTurn: true}, nil
	}
	if callErr != nil {
		slog.Error("Orchestrator.queryFailure: tool call failed", "error", callErr)
	}
	state.Metrics.ToolErrors++
	return handlerResult{reply: transportFailureReply, token: models.TokenToolError, endTurn: true}, nil
}

// renderRecord formats a patient record payload for display.
func renderRecord(data map[string]any) string {
	record, ok := data["patient"].(map[string]any)
	if !ok {
		record = data
	}
	order := []string{
		models.FieldPatientID, "id", models.FieldPatientName, models.FieldNRIC,
		models.FieldDateOfBirth, models.FieldContactNumber,
	}
	lines := []string{"Patient record:"}
	seen := make(map[string]bool)
	for _, key := range order {
		if value := dataString(record, key); value != "" && !seen[key] {
			lines = append(lines, fmt.Sprintf("- %s: %s", key, value))
			seen[key] = true
		}
	}
	if len(lines) == 1 {
		return "The record was retrieved but contained no displayable fields."
	}
	return strings.Join(lines, "\n")
}
