// Package models defines the core data structures for ScanDesk.
//
// It includes the closed stage, token, and intent enumerations shared across
// the routing, flow, and tool modules, plus the per-conversation state record.
package models

// Node identifies a single processing stage in the conversation graph.
type Node string

const (
	// NodeIngest is the entry stage for every turn.
	NodeIngest Node = "ingest"
	// NodeClassify runs intent classification on the user message.
	NodeClassify Node = "classify"
	// NodeCollectCreate gathers the fields required to register a patient.
	NodeCollectCreate Node = "collect_create"
	// NodeExecuteCreate performs the patient registration against the backend.
	NodeExecuteCreate Node = "execute_create"
	// NodeCollectUpdate gathers the fields required to update a patient record.
	NodeCollectUpdate Node = "collect_update"
	// NodeExecuteUpdate performs the record update against the backend.
	NodeExecuteUpdate Node = "execute_update"
	// NodeCollectDelete gathers the record identifier for a deletion.
	NodeCollectDelete Node = "collect_delete"
	// NodeExecuteDelete performs the deletion after confirmation.
	NodeExecuteDelete Node = "execute_delete"
	// NodeListPatients fetches and renders the patient list.
	NodeListPatients Node = "list_patients"
	// NodePatientDetails fetches a single patient record.
	NodePatientDetails Node = "patient_details"
	// NodeScanFiles stages and fetches scan artifacts for a patient.
	NodeScanFiles Node = "scan_files"
	// NodeStatistics fetches aggregate statistics from the backend.
	NodeStatistics Node = "statistics"
	// NodeConfirm handles yes/no answers to a pending destructive action.
	NodeConfirm Node = "confirm"
	// NodeCancel resets any active workflow on explicit cancellation.
	NodeCancel Node = "cancel"
	// NodeUnknown replies with the supported capabilities.
	NodeUnknown Node = "unknown"
	// NodeSummarize condenses the rolling history before finalization.
	NodeSummarize Node = "summarize"
	// NodeFinalize is the terminal end-of-turn stage.
	NodeFinalize Node = "finalize"
)

// String returns the string representation of the node.
func (n Node) String() string {
	return string(n)
}

// IsTerminal reports whether the node ends the turn.
func (n Node) IsTerminal() bool {
	return n == NodeFinalize
}

// IsValidNode checks if the given node is part of the closed stage set.
func IsValidNode(n Node) bool {
	switch n {
	case NodeIngest, NodeClassify,
		NodeCollectCreate, NodeExecuteCreate,
		NodeCollectUpdate, NodeExecuteUpdate,
		NodeCollectDelete, NodeExecuteDelete,
		NodeListPatients, NodePatientDetails, NodeScanFiles, NodeStatistics,
		NodeConfirm, NodeCancel, NodeUnknown, NodeSummarize, NodeFinalize:
		return true
	default:
		return false
	}
}

// AllNodes returns every node in the closed stage set.
func AllNodes() []Node {
	return []Node{
		NodeIngest, NodeClassify,
		NodeCollectCreate, NodeExecuteCreate,
		NodeCollectUpdate, NodeExecuteUpdate,
		NodeCollectDelete, NodeExecuteDelete,
		NodeListPatients, NodePatientDetails, NodeScanFiles, NodeStatistics,
		NodeConfirm, NodeCancel, NodeUnknown, NodeSummarize, NodeFinalize,
	}
}

// Token names the reason control moves from one node to the next.
type Token string

const (
	// TokenProceed moves ingest forward to classification.
	TokenProceed Token = "proceed"
	// TokenCancelled routes to the cancellation handler.
	TokenCancelled Token = "cancelled"
	// TokenClassified routes from classification to the intent's entry node.
	TokenClassified Token = "classified"
	// TokenConfirmationPending preempts classification while a confirmation gate is set.
	TokenConfirmationPending Token = "confirmation_pending"
	// TokenUnknownIntent routes to the capability listing.
	TokenUnknownIntent Token = "unknown_intent"
	// TokenFieldsComplete moves a collect node to its execute node.
	TokenFieldsComplete Token = "fields_complete"
	// TokenFieldsMissing ends the turn with a clarification prompt outstanding.
	TokenFieldsMissing Token = "fields_missing"
	// TokenLoopAbort ends a workflow that re-prompted too many times.
	TokenLoopAbort Token = "loop_abort"
	// TokenConfirmationNeeded ends the turn awaiting a yes/no answer.
	TokenConfirmationNeeded Token = "confirmation_needed"
	// TokenConfirmed routes an affirmative answer to the pending execute node.
	TokenConfirmed Token = "confirmed"
	// TokenDenied clears the confirmation gate and ends the turn.
	TokenDenied Token = "denied"
	// TokenExecuted reports a successful backend operation.
	TokenExecuted Token = "executed"
	// TokenValidationFailed routes back to the collect node with field errors.
	TokenValidationFailed Token = "validation_failed"
	// TokenNotFound reports a missing record and ends the workflow.
	TokenNotFound Token = "not_found"
	// TokenToolError reports a transport-level backend failure.
	TokenToolError Token = "tool_error"
	// TokenResetDone reports that cancellation handling finished.
	TokenResetDone Token = "reset_done"
	// TokenCapabilitiesShown reports that the capability listing was emitted.
	TokenCapabilitiesShown Token = "capabilities_shown"
	// TokenSummarize diverts a finalize-bound transition through summarization.
	TokenSummarize Token = "summarize"
	// TokenSummarized moves summarization to finalization.
	TokenSummarized Token = "summarized"
	// TokenEnd is the terminal token emitted by the finalize node.
	TokenEnd Token = "end"
)

// String returns the string representation of the token.
func (t Token) String() string {
	return string(t)
}

// IsValidToken checks if the given token is part of the closed token set.
func IsValidToken(t Token) bool {
	switch t {
	case TokenProceed, TokenCancelled, TokenClassified, TokenConfirmationPending,
		TokenUnknownIntent, TokenFieldsComplete, TokenFieldsMissing, TokenLoopAbort,
		TokenConfirmationNeeded, TokenConfirmed, TokenDenied, TokenExecuted,
		TokenValidationFailed, TokenNotFound, TokenToolError, TokenResetDone,
		TokenCapabilitiesShown, TokenSummarize, TokenSummarized, TokenEnd:
		return true
	default:
		return false
	}
}
