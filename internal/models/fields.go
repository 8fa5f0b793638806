package models

import "sort"

// Canonical field names shared between the extractor, the collect handlers,
// and the tool layer.
const (
	FieldPatientID     = "patient_id"
	FieldPatientName   = "patient_name"
	FieldNRIC          = "nric"
	FieldDateOfBirth   = "date_of_birth"
	FieldContactNumber = "contact_number"
	FieldScanType      = "scan_type"
)

// requiredFields maps each intent to the fields that must be validated before
// its execute node may run. Intents absent from the table require nothing.
var requiredFields = map[Intent][]string{
	IntentCreatePatient:  {FieldPatientName, FieldNRIC, FieldDateOfBirth},
	IntentUpdatePatient:  {FieldPatientID},
	IntentDeletePatient:  {FieldPatientID},
	IntentPatientDetails: {FieldPatientID},
	IntentScanFiles:      {FieldPatientID},
}

// UpdatableFields lists the mutable fields an update operation may carry in
// addition to the record identifier.
var UpdatableFields = []string{
	FieldPatientName, FieldNRIC, FieldDateOfBirth, FieldContactNumber, FieldScanType,
}

// fieldExamples gives one concrete example format per field for clarification
// prompts.
var fieldExamples = map[string]string{
	FieldPatientID:     "e.g. 1042",
	FieldPatientName:   "e.g. Tan Wei Ming",
	FieldNRIC:          "e.g. S1234567D",
	FieldDateOfBirth:   "e.g. 1984-06-21",
	FieldContactNumber: "e.g. 91234567",
	FieldScanType:      "e.g. chest x-ray",
}

// RequiredFields returns the required field names for an intent, sorted.
func RequiredFields(intent Intent) []string {
	fields := append([]string(nil), requiredFields[intent]...)
	sort.Strings(fields)
	return fields
}

// KnownFields returns every field name the extractor may look for on behalf
// of an intent: the required set plus, for updates, the mutable fields.
func KnownFields(intent Intent) []string {
	fields := RequiredFields(intent)
	if intent == IntentUpdatePatient {
		fields = append(fields, UpdatableFields...)
		sort.Strings(fields)
	}
	return fields
}

// MissingFields computes which required fields for the intent are absent from
// the validated set, sorted for stable prompts.
func MissingFields(intent Intent, validated map[string]string) []string {
	var missing []string
	for _, field := range requiredFields[intent] {
		if validated[field] == "" {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

// FieldExample returns the example format for a field, or an empty string when
// none is registered.
func FieldExample(field string) string {
	return fieldExamples[field]
}
