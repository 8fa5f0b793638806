package models

import "strings"

// Intent is a closed enumeration of user goals the agent supports.
type Intent string

const (
	// IntentCreatePatient registers a new patient record.
	IntentCreatePatient Intent = "create_patient"
	// IntentUpdatePatient updates an existing patient record.
	IntentUpdatePatient Intent = "update_patient"
	// IntentDeletePatient deletes a patient record (confirmation gated).
	IntentDeletePatient Intent = "delete_patient"
	// IntentListPatients lists known patient records.
	IntentListPatients Intent = "list_patients"
	// IntentPatientDetails fetches one patient record.
	IntentPatientDetails Intent = "patient_details"
	// IntentScanFiles fetches scan artifacts for a patient.
	IntentScanFiles Intent = "scan_files"
	// IntentStatistics fetches aggregate statistics.
	IntentStatistics Intent = "statistics"
	// IntentCancel aborts the active workflow.
	IntentCancel Intent = "cancel"
	// IntentUnknown is the documented classifier fallback.
	IntentUnknown Intent = "unknown"
)

// String returns the string representation of the intent.
func (i Intent) String() string {
	return string(i)
}

// IsValidIntent checks if the given intent is part of the closed intent set.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentCreatePatient, IntentUpdatePatient, IntentDeletePatient,
		IntentListPatients, IntentPatientDetails, IntentScanFiles,
		IntentStatistics, IntentCancel, IntentUnknown:
		return true
	default:
		return false
	}
}

// AllIntents returns every intent in the closed intent set.
func AllIntents() []Intent {
	return []Intent{
		IntentCreatePatient, IntentUpdatePatient, IntentDeletePatient,
		IntentListPatients, IntentPatientDetails, IntentScanFiles,
		IntentStatistics, IntentCancel, IntentUnknown,
	}
}

// ParseIntent maps a raw classifier label to an Intent, falling back to
// IntentUnknown for anything outside the closed set.
func ParseIntent(raw string) Intent {
	candidate := Intent(strings.ToLower(strings.TrimSpace(raw)))
	if IsValidIntent(candidate) {
		return candidate
	}
	return IntentUnknown
}

// PendingAction tracks which multi-turn workflow is in flight.
type PendingAction string

const (
	// PendingActionNone means no workflow is active.
	PendingActionNone PendingAction = "none"
	// PendingActionCreate marks an in-flight patient registration.
	PendingActionCreate PendingAction = "create"
	// PendingActionUpdate marks an in-flight record update.
	PendingActionUpdate PendingAction = "update"
	// PendingActionDelete marks an in-flight deletion.
	PendingActionDelete PendingAction = "delete"
	// PendingActionDownload marks an in-flight scan artifact retrieval.
	PendingActionDownload PendingAction = "download"
)

// Intent returns the intent that resumes this workflow on a follow-up turn.
func (a PendingAction) Intent() Intent {
	switch a {
	case PendingActionCreate:
		return IntentCreatePatient
	case PendingActionUpdate:
		return IntentUpdatePatient
	case PendingActionDelete:
		return IntentDeletePatient
	case PendingActionDownload:
		return IntentScanFiles
	default:
		return IntentUnknown
	}
}

// ConfirmationType identifies which destructive action awaits a yes/no answer.
type ConfirmationType string

const (
	// ConfirmationTypeNone means no confirmation is pending.
	ConfirmationTypeNone ConfirmationType = "none"
	// ConfirmationTypeDelete gates a pending record deletion.
	ConfirmationTypeDelete ConfirmationType = "delete"
)

// DownloadStage tracks the multi-turn scan artifact retrieval sub-flow.
type DownloadStage string

const (
	// DownloadStageNone means no download is staged.
	DownloadStageNone DownloadStage = "none"
	// DownloadStageSelectPatient awaits the user's choice of patient.
	DownloadStageSelectPatient DownloadStage = "select_patient"
	// DownloadStageConfirm awaits the go-ahead to fetch artifacts.
	DownloadStageConfirm DownloadStage = "confirm_download"
)
