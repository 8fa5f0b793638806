// Package api provides the HTTP surface for ScanDesk.
//
// It exposes RESTful endpoints for running conversation turns, inspecting
// and resetting conversation state, and exporting operational metrics. Turns
// for the same conversation are serialized with a per-conversation lock; the
// orchestration core relies on each state being owned by exactly one
// in-flight turn.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/ScanDesk/internal/metrics"
	"github.com/BTreeMap/ScanDesk/internal/models"
	"github.com/BTreeMap/ScanDesk/internal/store"
)

// DefaultReadHeaderTimeout bounds slow-header clients.
const DefaultReadHeaderTimeout = 10 * time.Second

// MessageProcessor is the orchestration seam the server drives. It mutates
// the passed state in place and returns the assistant reply.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, userText string, state *models.ConversationState) (string, error)
}

// Server wires the turn endpoints to the orchestrator, the conversation
// store, and the metrics recorder.
type Server struct {
	processor      MessageProcessor
	st             store.Store
	recorder       *metrics.Recorder
	metricsHandler http.Handler

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Opts holds optional configuration for Server construction.
type Opts struct {
	Recorder       *metrics.Recorder
	MetricsHandler http.Handler
}

// Option configures server construction.
type Option func(*Opts)

// WithRecorder attaches the bounded operational event log for /metrics/export.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Opts) { o.Recorder = r }
}

// WithMetricsHandler attaches the Prometheus scrape handler for /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *Opts) { o.MetricsHandler = h }
}

// NewServer creates the API server.
func NewServer(processor MessageProcessor, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	handler := cfg.MetricsHandler
	if handler == nil {
		handler = promhttp.Handler()
	}
	return &Server{
		processor:      processor,
		st:             st,
		recorder:       cfg.Recorder,
		metricsHandler: handler,
		locks:          make(map[string]*sync.Mutex),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /conversations/{id}/messages", s.messageHandler)
	mux.HandleFunc("GET /conversations/{id}", s.getConversationHandler)
	mux.HandleFunc("DELETE /conversations/{id}", s.deleteConversationHandler)
	mux.HandleFunc("GET /metrics/export", s.metricsExportHandler)
	mux.Handle("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// Run starts the HTTP server on the given address and blocks.
func (s *Server) Run(addr string) error {
	slog.Info("Server.Run: ScanDesk API listening", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	return srv.ListenAndServe()
}

// conversationLock returns the mutex serializing turns for one conversation.
func (s *Server) conversationLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	return lock
}

// messageHandler handles POST /conversations/{id}/messages.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	slog.Debug("Server.messageHandler: invoked", "conversationID", conversationID)

	if err := models.ValidateConversationID(conversationID); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messageHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	lock := s.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.st.LoadConversation(r.Context(), conversationID)
	if err != nil {
		slog.Error("Server.messageHandler: load failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}
	if state == nil {
		state = models.NewConversationState()
	}

	reply, err := s.processor.ProcessMessage(r.Context(), req.Message, state)
	if err != nil {
		slog.Error("Server.messageHandler: turn failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	if err := s.st.SaveConversation(r.Context(), conversationID, state); err != nil {
		// The turn already ran; losing persistence degrades continuity, not
		// the reply.
		slog.Error("Server.messageHandler: save failed", "error", err, "conversationID", conversationID)
	}

	writeJSONResponse(w, http.StatusOK, models.Success(models.TurnResponse{
		ConversationID: conversationID,
		Reply:          reply,
	}))
}

// getConversationHandler handles GET /conversations/{id}.
func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if err := models.ValidateConversationID(conversationID); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	state, err := s.st.LoadConversation(r.Context(), conversationID)
	if err != nil {
		slog.Error("Server.getConversationHandler: load failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

// deleteConversationHandler handles DELETE /conversations/{id}.
func (s *Server) deleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if err := models.ValidateConversationID(conversationID); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	lock := s.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.st.DeleteConversation(r.Context(), conversationID); err != nil {
		slog.Error("Server.deleteConversationHandler: delete failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete conversation"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"conversation_id": conversationID, "state": "reset"}))
}

// metricsExportHandler handles GET /metrics/export.
func (s *Server) metricsExportHandler(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Metrics recorder not configured"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.recorder.Export()))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
