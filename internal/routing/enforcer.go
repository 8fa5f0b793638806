package routing

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// ConfigurationError reports a malformed routing table. It is fatal at
// startup and never raised at runtime.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("routing configuration error: %s", e.Reason)
}

// RoutingViolationError reports that a handler proposed a transition absent
// from the routing table. It names the source, destination, and token
// verbatim so the missing entry can be located in NewMatrix without a
// debugger. It indicates a programming defect, not bad user input.
type RoutingViolationError struct {
	From  models.Node
	To    models.Node
	Token models.Token
}

func (e *RoutingViolationError) Error() string {
	return fmt.Sprintf("routing violation: transition %s -> %s via token %s is not declared in the routing matrix (routing.NewMatrix)",
		e.From, e.To, e.Token)
}

// Enforcer is the single choke point through which every node-to-node
// transition must pass. No handler sets the next stage directly.
type Enforcer struct {
	matrix *Matrix
}

// NewEnforcer wraps a validated matrix with the commit contract.
func NewEnforcer(m *Matrix) *Enforcer {
	return &Enforcer{matrix: m}
}

// Enforce validates (from, to, token) against the matrix and returns the
// committed destination. On an illegal transition it returns a
// RoutingViolationError embedding the offending triple.
func (e *Enforcer) Enforce(from, to models.Node, token models.Token, ctx *Context) (models.Node, error) {
	if !e.matrix.ValidateTransition(from, to, token, ctx) {
		err := &RoutingViolationError{From: from, To: to, Token: token}
		slog.Error("Enforcer.Enforce: illegal transition proposed", "from", from, "to", to, "token", token, "error", err)
		return "", err
	}
	slog.Debug("Enforcer.Enforce: transition committed", "from", from, "to", to, "token", token)
	return to, nil
}
