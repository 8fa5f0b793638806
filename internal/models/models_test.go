package models

import (
	"strings"
	"testing"
)

func TestParseIntent(t *testing.T) {
	if got := ParseIntent(" Create_Patient "); got != IntentCreatePatient {
		t.Errorf("expected %s, got %s", IntentCreatePatient, got)
	}
	if got := ParseIntent("order pizza"); got != IntentUnknown {
		t.Errorf("expected fallback %s, got %s", IntentUnknown, got)
	}
	if got := ParseIntent(""); got != IntentUnknown {
		t.Errorf("expected fallback %s for empty input, got %s", IntentUnknown, got)
	}
}

func TestClosedEnumerations(t *testing.T) {
	for _, n := range AllNodes() {
		if !IsValidNode(n) {
			t.Errorf("node %s not recognized by IsValidNode", n)
		}
	}
	if IsValidNode("warp_drive") {
		t.Error("unexpected node accepted")
	}
	for _, i := range AllIntents() {
		if !IsValidIntent(i) {
			t.Errorf("intent %s not recognized by IsValidIntent", i)
		}
	}
	if IsValidToken("teleport") {
		t.Error("unexpected token accepted")
	}
}

func TestPendingActionIntentMapping(t *testing.T) {
	cases := map[PendingAction]Intent{
		PendingActionCreate:   IntentCreatePatient,
		PendingActionUpdate:   IntentUpdatePatient,
		PendingActionDelete:   IntentDeletePatient,
		PendingActionDownload: IntentScanFiles,
		PendingActionNone:     IntentUnknown,
	}
	for action, expected := range cases {
		if got := action.Intent(); got != expected {
			t.Errorf("action %s: expected intent %s, got %s", action, expected, got)
		}
	}
}

func TestMissingFields(t *testing.T) {
	missing := MissingFields(IntentCreatePatient, map[string]string{FieldPatientName: "Tan Wei Ming"})
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing fields, got %v", missing)
	}
	if missing[0] != FieldDateOfBirth || missing[1] != FieldNRIC {
		t.Errorf("expected sorted missing fields, got %v", missing)
	}

	if got := MissingFields(IntentListPatients, nil); len(got) != 0 {
		t.Errorf("list intent requires no fields, got %v", got)
	}
}

func TestFieldExamples(t *testing.T) {
	for _, field := range RequiredFields(IntentCreatePatient) {
		if FieldExample(field) == "" {
			t.Errorf("field %s has no example format", field)
		}
	}
	if !strings.HasPrefix(FieldExample(FieldNRIC), "e.g.") {
		t.Errorf("unexpected example format: %q", FieldExample(FieldNRIC))
	}
}

func TestTurnRequestValidate(t *testing.T) {
	req := TurnRequest{}
	if err := req.Validate(); err != ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	req.Message = strings.Repeat("a", MaxMessageLength+1)
	if err := req.Validate(); err != ErrMessageTooLong {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
	req.Message = "list patients"
	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}
}
