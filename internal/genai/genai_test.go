package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp openai.ChatCompletion
	err  error
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &m.resp, nil
}

func completionWith(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestClassify_KnownIntent(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith("create_patient")}, model: openai.ChatModelGPT4oMini}
	intent, err := client.Classify(context.Background(), "please register a new patient")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if intent != models.IntentCreatePatient {
		t.Errorf("expected %s, got %s", models.IntentCreatePatient, intent)
	}
}

func TestClassify_UnparseableLabelFallsBack(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith("I think the user wants to create a patient")}, model: openai.ChatModelGPT4oMini}
	intent, err := client.Classify(context.Background(), "register someone")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if intent != models.IntentUnknown {
		t.Errorf("expected fallback %s, got %s", models.IntentUnknown, intent)
	}
}

func TestClassify_ServiceErrorFallsBack(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: openai.ChatModelGPT4oMini}
	intent, err := client.Classify(context.Background(), "anything")
	if err == nil {
		t.Error("expected error to be surfaced")
	}
	if intent != models.IntentUnknown {
		t.Errorf("expected fallback %s, got %s", models.IntentUnknown, intent)
	}
}

func TestExtractFields_ParsesJSONObject(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith(`{"nric": "S1234567D", "patient_name": "Tan Wei Ming"}`)}, model: openai.ChatModelGPT4oMini}
	fields, err := client.ExtractFields(context.Background(), "name Tan Wei Ming nric S1234567D", []string{models.FieldNRIC, models.FieldPatientName})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fields[models.FieldNRIC] != "S1234567D" || fields[models.FieldPatientName] != "Tan Wei Ming" {
		t.Errorf("unexpected extraction result: %v", fields)
	}
}

func TestExtractFields_CodeFenceAndUnknownKeys(t *testing.T) {
	payload := "```json\n{\"nric\": \"S1234567D\", \"favorite_color\": \"blue\"}\n```"
	client := &Client{chat: &mockChatService{resp: completionWith(payload)}, model: openai.ChatModelGPT4oMini}
	fields, err := client.ExtractFields(context.Background(), "nric S1234567D", []string{models.FieldNRIC})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(fields) != 1 || fields[models.FieldNRIC] != "S1234567D" {
		t.Errorf("expected only the known field, got %v", fields)
	}
}

func TestExtractFields_MalformedPayloadDegrades(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith("not json at all")}, model: openai.ChatModelGPT4oMini}
	fields, err := client.ExtractFields(context.Background(), "hello", []string{models.FieldNRIC})
	if err != nil {
		t.Fatalf("malformed payload should degrade, not error: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("expected empty map, got %v", fields)
	}
}

func TestGenerateReply_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: openai.ChatCompletion{}}, model: openai.ChatModelGPT4oMini}
	_, err := client.GenerateReply(context.Background(), "sys", "usr")
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}

func TestDisabledClient(t *testing.T) {
	client := NewDisabledClient()
	intent, err := client.Classify(context.Background(), "anything")
	if err != nil || intent != models.IntentUnknown {
		t.Errorf("expected silent unknown fallback, got %s / %v", intent, err)
	}
	fields, err := client.ExtractFields(context.Background(), "anything", []string{models.FieldNRIC})
	if err != nil || len(fields) != 0 {
		t.Errorf("expected empty extraction, got %v / %v", fields, err)
	}
	if _, err := client.GenerateReply(context.Background(), "s", "u"); err != ErrClientDisabled {
		t.Errorf("expected ErrClientDisabled, got %v", err)
	}
}
