package models

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestAddMessageRollingWindow(t *testing.T) {
	state := NewConversationState()
	for i := 1; i <= 7; i++ {
		state.AddMessage(MessageRoleUser, fmt.Sprintf("message %d", i))
	}

	if len(state.RecentMessages) != MaxRecentMessages {
		t.Fatalf("expected window of %d messages, got %d", MaxRecentMessages, len(state.RecentMessages))
	}
	// The two oldest messages must have been evicted, order preserved.
	for i, msg := range state.RecentMessages {
		expected := fmt.Sprintf("message %d", i+3)
		if msg.Content != expected {
			t.Errorf("window position %d: expected %q, got %q", i, expected, msg.Content)
		}
	}
	if state.TotalMessages != 7 {
		t.Errorf("expected total message count 7, got %d", state.TotalMessages)
	}
}

func TestResetWorkflowClearsBaseline(t *testing.T) {
	state := NewConversationState()
	state.Intent = IntentCreatePatient
	state.PendingAction = PendingActionCreate
	state.AwaitingConfirmationType = ConfirmationTypeDelete
	state.DownloadStage = DownloadStageSelectPatient
	state.ValidatedFields[FieldNRIC] = "S1234567D"
	state.ExtractedFields[FieldNRIC] = "S1234567D"
	state.SetPendingFields([]string{FieldPatientName})
	state.ClarificationLoopCount = 1
	state.ConfirmationRequired = true
	state.SelectedPatientID = "1042"
	state.LastToolError = "boom"
	state.AddMessage(MessageRoleUser, "hello")
	state.Metrics.AbortedOperations = 2

	state.ResetWorkflow()

	if state.PendingAction != PendingActionNone {
		t.Errorf("expected pending action none, got %s", state.PendingAction)
	}
	if state.AwaitingConfirmationType != ConfirmationTypeNone {
		t.Errorf("expected confirmation type none, got %s", state.AwaitingConfirmationType)
	}
	if state.DownloadStage != DownloadStageNone {
		t.Errorf("expected download stage none, got %s", state.DownloadStage)
	}
	if len(state.ValidatedFields) != 0 || len(state.ExtractedFields) != 0 || len(state.PendingFields) != 0 {
		t.Error("expected field maps and pending set cleared")
	}
	if state.ClarificationLoopCount != 0 {
		t.Errorf("expected loop counter zeroed, got %d", state.ClarificationLoopCount)
	}
	if state.ConfirmationRequired {
		t.Error("expected confirmation gate cleared")
	}
	if state.SelectedPatientID != "" || state.LastToolError != "" {
		t.Error("expected scratch fields cleared")
	}
	// Rolling window and counters survive the reset.
	if len(state.RecentMessages) != 1 {
		t.Errorf("expected message window preserved, got %d entries", len(state.RecentMessages))
	}
	if state.Metrics.AbortedOperations != 2 {
		t.Errorf("expected aborted counter preserved, got %d", state.Metrics.AbortedOperations)
	}
}

func TestSnapshotIncludesSelectedPatient(t *testing.T) {
	state := NewConversationState()
	state.ValidatedFields[FieldNRIC] = "S1234567D"
	state.SelectedPatientID = "1042"

	snapshot := state.Snapshot()
	if snapshot[FieldNRIC] != "S1234567D" {
		t.Errorf("expected nric in snapshot, got %q", snapshot[FieldNRIC])
	}
	if snapshot[FieldPatientID] != "1042" {
		t.Errorf("expected selected patient id in snapshot, got %q", snapshot[FieldPatientID])
	}

	// Mutating the snapshot must not leak back into the state.
	snapshot[FieldNRIC] = "changed"
	if state.ValidatedFields[FieldNRIC] != "S1234567D" {
		t.Error("snapshot mutation leaked into conversation state")
	}
}

func TestConversationStateJSONRoundTrip(t *testing.T) {
	state := NewConversationState()
	state.Intent = IntentDeletePatient
	state.PendingAction = PendingActionDelete
	state.AwaitingConfirmationType = ConfirmationTypeDelete
	state.ConfirmationRequired = true
	state.AddMessage(MessageRoleUser, "delete patient 1042")
	state.AddMessage(MessageRoleAssistant, "are you sure?")

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded ConversationState
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if decoded.Intent != IntentDeletePatient {
		t.Errorf("expected intent %s, got %s", IntentDeletePatient, decoded.Intent)
	}
	if decoded.AwaitingConfirmationType != ConfirmationTypeDelete {
		t.Errorf("expected confirmation type %s, got %s", ConfirmationTypeDelete, decoded.AwaitingConfirmationType)
	}
	if len(decoded.RecentMessages) != 2 || decoded.RecentMessages[0].Role != MessageRoleUser {
		t.Errorf("expected ordered role-tagged messages, got %+v", decoded.RecentMessages)
	}
}

func TestHasActiveWorkflow(t *testing.T) {
	state := NewConversationState()
	if state.HasActiveWorkflow() {
		t.Error("fresh state should have no active workflow")
	}
	state.PendingAction = PendingActionUpdate
	if !state.HasActiveWorkflow() {
		t.Error("pending action should count as an active workflow")
	}
	state.ResetWorkflow()
	state.ConfirmationRequired = true
	if !state.HasActiveWorkflow() {
		t.Error("pending confirmation should count as an active workflow")
	}
}
