// Package flow implements the conversation orchestration core: one node
// handler per processing stage, driven by a turn loop that commits every
// stage change through the route enforcer.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ScanDesk/internal/genai"
	"github.com/BTreeMap/ScanDesk/internal/metrics"
	"github.com/BTreeMap/ScanDesk/internal/models"
	"github.com/BTreeMap/ScanDesk/internal/routing"
	"github.com/BTreeMap/ScanDesk/internal/tools"
)

// DefaultMaxTransitions bounds the node loop within a single turn. A healthy
// turn never needs more than a handful of hops; hitting the bound indicates a
// handler defect, not user input.
const DefaultMaxTransitions = 10

// DefaultSummaryThreshold is the accumulated message count at which a turn
// routes through the history summarization step before finalizing.
const DefaultSummaryThreshold = 5

// handlerResult is what every node handler returns: the reply fragment to
// accumulate, the transition token to route on, and whether the turn ends
// after this node.
type handlerResult struct {
	reply   string
	token   models.Token
	endTurn bool
}

// turn is the per-invocation scratch shared between the orchestrator loop and
// the handlers. It carries the routing overrides a handler establishes for
// the transition it emits.
type turn struct {
	state      *models.ConversationState
	userText   string
	replies    []string
	intent     models.Intent
	hasIntent  bool
	confirm    models.ConfirmationType
	summarized bool
}

func (t *turn) addReply(reply string) {
	if reply != "" {
		t.replies = append(t.replies, reply)
	}
}

type handlerFunc func(ctx context.Context, t *turn) (handlerResult, error)

// Orchestrator runs one conversation turn at a time: ingest, classify, and
// hop node to node until finalize, committing every hop through the
// enforcer. It owns no conversation state; the caller passes the state in
// and serializes turns per conversation.
type Orchestrator struct {
	matrix           *routing.Matrix
	enforcer         *routing.Enforcer
	classifier       genai.ClientInterface
	executor         tools.Executor
	recorder         *metrics.Recorder
	instruments      *metrics.Instruments
	maxTransitions   int
	summaryThreshold int
	handlers         map[models.Node]handlerFunc
}

// Opts holds optional configuration for Orchestrator construction.
type Opts struct {
	Recorder         *metrics.Recorder
	Instruments      *metrics.Instruments
	MaxTransitions   int
	SummaryThreshold int
}

// Option configures orchestrator construction.
type Option func(*Opts)

// WithRecorder attaches the bounded operational event log.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Opts) { o.Recorder = r }
}

// WithInstruments attaches the Prometheus collectors.
func WithInstruments(i *metrics.Instruments) Option {
	return func(o *Opts) { o.Instruments = i }
}

// WithMaxTransitions overrides the per-turn node loop bound.
func WithMaxTransitions(n int) Option {
	return func(o *Opts) { o.MaxTransitions = n }
}

// WithSummaryThreshold overrides the accumulated message count that triggers
// history summarization.
func WithSummaryThreshold(n int) Option {
	return func(o *Opts) { o.SummaryThreshold = n }
}

// NewOrchestrator wires the turn loop to its collaborators. The matrix must
// already have passed its self-check (NewMatrix runs it).
func NewOrchestrator(matrix *routing.Matrix, enforcer *routing.Enforcer, classifier genai.ClientInterface, executor tools.Executor, opts ...Option) *Orchestrator {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxTransitions <= 0 {
		cfg.MaxTransitions = DefaultMaxTransitions
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = DefaultSummaryThreshold
	}
	o := &Orchestrator{
		matrix:           matrix,
		enforcer:         enforcer,
		classifier:       classifier,
		executor:         executor,
		recorder:         cfg.Recorder,
		instruments:      cfg.Instruments,
		maxTransitions:   cfg.MaxTransitions,
		summaryThreshold: cfg.SummaryThreshold,
	}
	o.handlers = map[models.Node]handlerFunc{
		models.NodeIngest:         o.handleIngest,
		models.NodeClassify:       o.handleClassify,
		models.NodeCollectCreate:  o.handleCollectCreate,
		models.NodeExecuteCreate:  o.handleExecuteCreate,
		models.NodeCollectUpdate:  o.handleCollectUpdate,
		models.NodeExecuteUpdate:  o.handleExecuteUpdate,
		models.NodeCollectDelete:  o.handleCollectDelete,
		models.NodeExecuteDelete:  o.handleExecuteDelete,
		models.NodeListPatients:   o.handleListPatients,
		models.NodePatientDetails: o.handlePatientDetails,
		models.NodeScanFiles:      o.handleScanFiles,
		models.NodeStatistics:     o.handleStatistics,
		models.NodeConfirm:        o.handleConfirm,
		models.NodeCancel:         o.handleCancel,
		models.NodeUnknown:        o.handleUnknown,
		models.NodeSummarize:      o.handleSummarize,
		models.NodeFinalize:       o.handleFinalize,
	}
	return o
}

// ProcessMessage runs one conversation turn. It mutates state in place and
// returns the accumulated reply. Callers decide when to persist the state.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userText string, state *models.ConversationState) (string, error) {
	start := time.Now()
	t := &turn{state: state, userText: strings.TrimSpace(userText)}
	state.AddMessage(models.MessageRoleUser, userText)

	reply, err := o.runTurn(ctx, t)
	intentLabel := string(state.Intent)
	if err != nil {
		o.recordTurn(intentLabel, time.Since(start), false)
		return "", err
	}

	if reply == "" {
		reply = "I'm not sure how to help with that. Try asking me to list patients, or say \"cancel\" to start over."
	}
	state.AddMessage(models.MessageRoleAssistant, reply)
	o.recordTurn(intentLabel, time.Since(start), true)
	return reply, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, t *turn) (string, error) {
	current := models.NodeIngest
	for hop := 0; hop < o.maxTransitions; hop++ {
		handler, ok := o.handlers[current]
		if !ok {
			return "", fmt.Errorf("no handler registered for node %s", current)
		}
		result, err := handler(ctx, t)
		if err != nil {
			return "", fmt.Errorf("node %s handler failed: %w", current, err)
		}
		t.addReply(result.reply)
		slog.Debug("Orchestrator.runTurn: node handled", "node", current, "token", result.token, "endTurn", result.endTurn)

		next, token, rctx := o.propose(current, result.token, t)
		committed, err := o.enforcer.Enforce(current, next, token, rctx)
		if err != nil {
			if o.instruments != nil {
				o.instruments.RoutingViolationsTotal.Inc()
			}
			slog.Error("Orchestrator.runTurn: routing violation", "from", current, "to", next, "token", token, "error", err)
			return "", err
		}
		if committed == "" {
			break
		}
		current = committed
	}
	return strings.Join(t.replies, "\n\n"), nil
}

// propose computes the destination for (current, token), applying the intent
// and confirmation overrides and the summarization interception: a
// finalize-bound transition on a conversation that has accumulated enough
// messages is rewritten to route through the summarize node first.
func (o *Orchestrator) propose(current models.Node, token models.Token, t *turn) (models.Node, models.Token, *routing.Context) {
	var rctx *routing.Context
	var dest models.Node

	switch {
	case token == models.TokenClassified && t.hasIntent:
		rctx = &routing.Context{Intent: t.intent, HasIntent: true}
		if entry, ok := o.matrix.EntryNode(t.intent); ok {
			dest = entry
		}
	case token == models.TokenConfirmed && t.confirm != models.ConfirmationTypeNone:
		rctx = &routing.Context{Confirmation: t.confirm}
		if target, ok := o.matrix.ConfirmTarget(t.confirm); ok {
			dest = target
		}
	default:
		dest, _ = o.matrix.Destination(current, token)
	}

	if dest == models.NodeFinalize && current != models.NodeSummarize && !t.summarized &&
		t.state.TotalMessages >= o.summaryThreshold {
		return models.NodeSummarize, models.TokenSummarize, nil
	}
	return dest, token, rctx
}

func (o *Orchestrator) recordTurn(intent string, elapsed time.Duration, success bool) {
	if o.recorder != nil {
		o.recorder.Add(metrics.Entry{
			Timestamp: time.Now(),
			Operation: "turn",
			Duration:  elapsed,
			Success:   success,
			Attributes: map[string]string{
				"intent": intent,
			},
		})
	}
	if o.instruments != nil {
		status := "success"
		if !success {
			status = "error"
		}
		o.instruments.TurnsTotal.WithLabelValues(intent, status).Inc()
		o.instruments.TurnDurationSeconds.Observe(elapsed.Seconds())
	}
}

// recordEvent appends a non-turn operational event to the bounded log.
func (o *Orchestrator) recordEvent(operation string, success bool, attributes map[string]string) {
	if o.recorder == nil {
		return
	}
	o.recorder.Add(metrics.Entry{
		Timestamp:  time.Now(),
		Operation:  operation,
		Success:    success,
		Attributes: attributes,
	})
}

// handleFinalize marks the end of the turn. It emits the terminal token and
// no reply; the accumulated fragments are the turn's output.
func (o *Orchestrator) handleFinalize(ctx context.Context, t *turn) (handlerResult, error) {
	return handlerResult{token: models.TokenEnd, endTurn: true}, nil
}
