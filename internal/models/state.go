// Package models defines state management structures for ScanDesk conversations.
package models

import "sort"

// MaxRecentMessages is the fixed capacity of the rolling message window.
const MaxRecentMessages = 5

// MessageRoleUser and MessageRoleAssistant tag entries in the rolling window.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message is a single role-tagged entry in the rolling conversation window.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationMetrics holds per-conversation counters that survive workflow resets.
type ConversationMetrics struct {
	AbortedOperations   int `json:"aborted_operations"`
	CompletedOperations int `json:"completed_operations"`
	ToolErrors          int `json:"tool_errors"`
}

// ConversationState is the mutable per-conversation record. It is owned
// exclusively by the turn currently processing it; callers must serialize
// turns per conversation.
type ConversationState struct {
	Intent                   Intent              `json:"intent"`
	PendingAction            PendingAction       `json:"pending_action"`
	AwaitingConfirmationType ConfirmationType    `json:"awaiting_confirmation_type"`
	DownloadStage            DownloadStage       `json:"download_stage"`
	ExtractedFields          map[string]string   `json:"extracted_fields"`
	ValidatedFields          map[string]string   `json:"validated_fields"`
	PendingFields            []string            `json:"pending_fields"`
	ClarificationLoopCount   int                 `json:"clarification_loop_count"`
	ConfirmationRequired     bool                `json:"confirmation_required"`
	DisambiguationOptions    []string            `json:"disambiguation_options,omitempty"`
	SelectedPatientID        string              `json:"selected_patient_id,omitempty"`
	LastToolError            string              `json:"last_tool_error,omitempty"`
	HistorySummary           string              `json:"history_summary,omitempty"`
	RecentMessages           []Message           `json:"recent_messages"`
	TotalMessages            int                 `json:"total_messages"`
	Metrics                  ConversationMetrics `json:"metrics"`
}

// NewConversationState creates an empty state with all sub-states at their
// "none" values.
func NewConversationState() *ConversationState {
	return &ConversationState{
		Intent:                   IntentUnknown,
		PendingAction:            PendingActionNone,
		AwaitingConfirmationType: ConfirmationTypeNone,
		DownloadStage:            DownloadStageNone,
		ExtractedFields:          make(map[string]string),
		ValidatedFields:          make(map[string]string),
		PendingFields:            []string{},
		RecentMessages:           []Message{},
	}
}

// AddMessage appends a role-tagged message to the rolling window, evicting the
// oldest entry once the window holds MaxRecentMessages.
func (s *ConversationState) AddMessage(role, content string) {
	s.RecentMessages = append(s.RecentMessages, Message{Role: role, Content: content})
	if len(s.RecentMessages) > MaxRecentMessages {
		s.RecentMessages = s.RecentMessages[len(s.RecentMessages)-MaxRecentMessages:]
	}
	s.TotalMessages++
}

// HasActiveWorkflow reports whether a multi-turn operation is in flight.
func (s *ConversationState) HasActiveWorkflow() bool {
	return s.PendingAction != PendingActionNone ||
		s.ConfirmationRequired ||
		s.DownloadStage != DownloadStageNone
}

// ResetWorkflow returns the state to its clean baseline: pending, extracted,
// and validated fields cleared, loop counter zeroed, confirmation gate and
// disambiguation scratch dropped. The rolling window and the per-conversation
// counters are preserved.
func (s *ConversationState) ResetWorkflow() {
	s.Intent = IntentUnknown
	s.PendingAction = PendingActionNone
	s.AwaitingConfirmationType = ConfirmationTypeNone
	s.DownloadStage = DownloadStageNone
	s.ExtractedFields = make(map[string]string)
	s.ValidatedFields = make(map[string]string)
	s.PendingFields = []string{}
	s.ClarificationLoopCount = 0
	s.ConfirmationRequired = false
	s.DisambiguationOptions = nil
	s.SelectedPatientID = ""
	s.LastToolError = ""
}

// Snapshot copies the validated fields (plus the selected record identifier,
// when set) for handoff to the tool layer. The tool layer never sees the
// mutable state itself.
func (s *ConversationState) Snapshot() map[string]string {
	snapshot := make(map[string]string, len(s.ValidatedFields)+1)
	for k, v := range s.ValidatedFields {
		snapshot[k] = v
	}
	if s.SelectedPatientID != "" {
		snapshot[FieldPatientID] = s.SelectedPatientID
	}
	return snapshot
}

// SetPendingFields replaces the pending field set, stored sorted so the
// serialized form is stable.
func (s *ConversationState) SetPendingFields(fields []string) {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	s.PendingFields = sorted
}
