package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/ScanDesk/internal/metrics"
	"github.com/BTreeMap/ScanDesk/internal/models"
	"github.com/BTreeMap/ScanDesk/internal/store"
)

// mockProcessor echoes the message and counts concurrent invocations.
type mockProcessor struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	err      error
}

func (m *mockProcessor) ProcessMessage(ctx context.Context, userText string, state *models.ConversationState) (string, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.err != nil {
		return "", m.err
	}
	state.AddMessage(models.MessageRoleUser, userText)
	return "echo: " + userText, nil
}

func newTestServer(t *testing.T, processor MessageProcessor) (*Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	return NewServer(processor, st), st
}

func postMessage(t *testing.T, handler http.Handler, conversationID, message string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(models.TurnRequest{Message: message})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+conversationID+"/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMessageEndpointRunsTurnAndPersists(t *testing.T) {
	server, st := newTestServer(t, &mockProcessor{})
	handler := server.Handler()

	rec := postMessage(t, handler, "conv-1", "hello")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Status != models.StatusOK {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
	if !strings.Contains(rec.Body.String(), "echo: hello") {
		t.Errorf("expected reply in body, got %s", rec.Body.String())
	}

	state, err := st.LoadConversation(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state == nil || len(state.RecentMessages) != 1 {
		t.Error("expected mutated state persisted after the turn")
	}
}

func TestMessageEndpointRejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t, &mockProcessor{})
	handler := server.Handler()

	rec := postMessage(t, handler, "conv-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty message, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/messages", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	longID := strings.Repeat("x", models.MaxConversationIDLength+1)
	rec = postMessage(t, handler, longID, "hello")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized conversation id, got %d", rec.Code)
	}
}

func TestMessageEndpointSurfacesTurnFailure(t *testing.T) {
	server, _ := newTestServer(t, &mockProcessor{err: errors.New("handler defect")})
	handler := server.Handler()

	rec := postMessage(t, handler, "conv-1", "hello")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on turn failure, got %d", rec.Code)
	}
}

func TestTurnsForSameConversationAreSerialized(t *testing.T) {
	processor := &mockProcessor{}
	server, _ := newTestServer(t, processor)
	handler := server.Handler()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			postMessage(t, handler, "conv-1", "hello")
		}()
	}
	wg.Wait()

	if processor.maxSeen != 1 {
		t.Errorf("expected at most one in-flight turn per conversation, saw %d", processor.maxSeen)
	}
}

func TestGetAndDeleteConversation(t *testing.T) {
	server, st := newTestServer(t, &mockProcessor{})
	handler := server.Handler()
	ctx := context.Background()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/conv-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown conversation, got %d", rec.Code)
	}

	state := models.NewConversationState()
	state.Intent = models.IntentListPatients
	if err := st.SaveConversation(ctx, "conv-1", state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/conv-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(models.IntentListPatients)) {
		t.Errorf("expected state in body, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/conversations/conv-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	loaded, err := st.LoadConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Error("expected conversation removed")
	}
}

func TestMetricsExport(t *testing.T) {
	recorder, err := metrics.NewRecorder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := store.NewInMemoryStore()
	server := NewServer(&mockProcessor{}, st, WithRecorder(recorder))
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/export", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "statistics") {
		t.Errorf("expected statistics in export, got %s", rec.Body.String())
	}
}

func TestMetricsExportWithoutRecorder(t *testing.T) {
	server, _ := newTestServer(t, &mockProcessor{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/export", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without recorder, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &mockProcessor{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("expected health payload, got %s", rec.Body.String())
	}
}
