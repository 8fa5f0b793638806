// Package routing defines the authoritative stage graph for conversation
// turns: which transition tokens each node may emit and where each token
// lands. The matrix is built once, checked once, and never mutated.
package routing

import (
	"fmt"
	"sort"

	"github.com/BTreeMap/ScanDesk/internal/models"
)

// Context carries the per-transition overrides the validator must honor: the
// classified intent (which short-circuits the default classify destination)
// and the pending confirmation type (which selects the execute node an
// affirmative answer lands on).
type Context struct {
	Intent       models.Intent
	HasIntent    bool
	Confirmation models.ConfirmationType
}

// Matrix is the immutable routing table: Node -> (Token -> Node), plus the
// intent entry-node override table and the per-node terminal token set.
type Matrix struct {
	table          map[models.Node]map[models.Token]models.Node
	terminalTokens map[models.Node]map[models.Token]bool
	intentEntry    map[models.Intent]models.Node
	confirmTarget  map[models.ConfirmationType]models.Node
}

// NewMatrix constructs the routing table and runs the startup self-check.
// A self-check failure is a configuration error and is returned as such;
// callers treat it as fatal.
func NewMatrix() (*Matrix, error) {
	m := &Matrix{
		table: map[models.Node]map[models.Token]models.Node{
			models.NodeIngest: {
				models.TokenProceed:   models.NodeClassify,
				models.TokenCancelled: models.NodeCancel,
			},
			models.NodeClassify: {
				// The classified destination is overridden per intent; the
				// table entry is the fallback for an absent override.
				models.TokenClassified:          models.NodeUnknown,
				models.TokenConfirmationPending: models.NodeConfirm,
				models.TokenUnknownIntent:       models.NodeUnknown,
			},
			models.NodeCollectCreate: {
				models.TokenFieldsComplete: models.NodeExecuteCreate,
				models.TokenFieldsMissing:  models.NodeFinalize,
				models.TokenLoopAbort:      models.NodeFinalize,
				models.TokenSummarize:      models.NodeSummarize,
			},
			models.NodeExecuteCreate: {
				models.TokenExecuted:         models.NodeFinalize,
				models.TokenValidationFailed: models.NodeCollectCreate,
				models.TokenToolError:        models.NodeFinalize,
				models.TokenSummarize:        models.NodeSummarize,
			},
			models.NodeCollectUpdate: {
				models.TokenFieldsComplete: models.NodeExecuteUpdate,
				models.TokenFieldsMissing:  models.NodeFinalize,
				models.TokenLoopAbort:      models.NodeFinalize,
				models.TokenSummarize:      models.NodeSummarize,
			},
			models.NodeExecuteUpdate: {
				models.TokenExecuted:         models.NodeFinalize,
				models.TokenValidationFailed: models.NodeCollectUpdate,
				models.TokenNotFound:         models.NodeFinalize,
				models.TokenToolError:        models.NodeFinalize,
				models.TokenSummarize:        models.NodeSummarize,
			},
			models.NodeCollectDelete: {
				models.TokenConfirmationNeeded: models.NodeFinalize,
				models.TokenFieldsMissing:      models.NodeFinalize,
				models.TokenLoopAbort:          models.NodeFinalize,
				models.TokenSummarize:          models.NodeSummarize,
			},
			models.NodeExecuteDelete: {
				models.TokenExecuted:  models.NodeFinalize,
				models.TokenNotFound:  models.NodeFinalize,
				models.TokenToolError: models.NodeFinalize,
				models.TokenSummarize: models.NodeSummarize,
			},
			models.NodeListPatients: {
				models.TokenExecuted:  models.NodeFinalize,
				models.TokenToolError: models.NodeFinalize,
				models.TokenSummarize: models.NodeSummarize,
			},
			models.NodePatientDetails: {
				models.TokenExecuted:      models.NodeFinalize,
				models.TokenFieldsMissing: models.NodeFinalize,
				models.TokenNotFound:      models.NodeFinalize,
				models.TokenToolError:     models.NodeFinalize,
				models.TokenSummarize:     models.NodeSummarize,
			},
			models.NodeScanFiles: {
				models.TokenExecuted:      models.NodeFinalize,
				models.TokenFieldsMissing: models.NodeFinalize,
				models.TokenNotFound:      models.NodeFinalize,
				models.TokenToolError:     models.NodeFinalize,
				models.TokenResetDone:     models.NodeFinalize,
				models.TokenSummarize:     models.NodeSummarize,
			},
			models.NodeStatistics: {
				models.TokenExecuted:  models.NodeFinalize,
				models.TokenToolError: models.NodeFinalize,
				models.TokenSummarize: models.NodeSummarize,
			},
			models.NodeConfirm: {
				// The confirmed destination is overridden per confirmation type.
				models.TokenConfirmed: models.NodeExecuteDelete,
				models.TokenDenied:    models.NodeFinalize,
				models.TokenSummarize: models.NodeSummarize,
			},
			models.NodeCancel: {
				models.TokenResetDone: models.NodeFinalize,
				models.TokenSummarize: models.NodeSummarize,
			},
			models.NodeUnknown: {
				models.TokenCapabilitiesShown: models.NodeFinalize,
				models.TokenSummarize:         models.NodeSummarize,
			},
			models.NodeSummarize: {
				models.TokenSummarized: models.NodeFinalize,
			},
			// The terminal node accepts transitions but emits none.
			models.NodeFinalize: {},
		},
		terminalTokens: map[models.Node]map[models.Token]bool{
			models.NodeFinalize: {models.TokenEnd: true},
		},
		intentEntry: map[models.Intent]models.Node{
			models.IntentCreatePatient:  models.NodeCollectCreate,
			models.IntentUpdatePatient:  models.NodeCollectUpdate,
			models.IntentDeletePatient:  models.NodeCollectDelete,
			models.IntentListPatients:   models.NodeListPatients,
			models.IntentPatientDetails: models.NodePatientDetails,
			models.IntentScanFiles:      models.NodeScanFiles,
			models.IntentStatistics:     models.NodeStatistics,
			models.IntentCancel:         models.NodeCancel,
			models.IntentUnknown:        models.NodeUnknown,
		},
		confirmTarget: map[models.ConfirmationType]models.Node{
			models.ConfirmationTypeDelete: models.NodeExecuteDelete,
		},
	}

	if err := m.selfCheck(); err != nil {
		return nil, err
	}
	return m, nil
}

// EntryNode returns the entry node for an intent per the override table.
func (m *Matrix) EntryNode(intent models.Intent) (models.Node, bool) {
	node, ok := m.intentEntry[intent]
	return node, ok
}

// ConfirmTarget returns the execute node an affirmative answer for the given
// confirmation type lands on.
func (m *Matrix) ConfirmTarget(ct models.ConfirmationType) (models.Node, bool) {
	node, ok := m.confirmTarget[ct]
	return node, ok
}

// Destination returns the table's destination for (from, token) without
// applying any context overrides.
func (m *Matrix) Destination(from models.Node, token models.Token) (models.Node, bool) {
	row, ok := m.table[from]
	if !ok {
		return "", false
	}
	dest, ok := row[token]
	return dest, ok
}

// ValidateTransition reports whether (from, to, token) is a legal transition.
// When ctx carries an intent or confirmation override, the override's target
// must match to; otherwise the table destination must match. A transition to
// "no further stage" (empty to) is valid only for tokens registered as
// terminal for the from node.
func (m *Matrix) ValidateTransition(from, to models.Node, token models.Token, ctx *Context) bool {
	row, ok := m.table[from]
	if !ok {
		return false
	}
	if to == "" {
		return m.terminalTokens[from][token]
	}
	dest, ok := row[token]
	if !ok {
		return false
	}
	if ctx != nil && ctx.HasIntent && token == models.TokenClassified {
		entry, ok := m.intentEntry[ctx.Intent]
		return ok && entry == to
	}
	if ctx != nil && ctx.Confirmation != models.ConfirmationTypeNone && token == models.TokenConfirmed {
		target, ok := m.confirmTarget[ctx.Confirmation]
		return ok && target == to
	}
	return dest == to
}

// AllowedTokens returns the tokens a node may emit, sorted. Read-only
// introspection for tests and tooling.
func (m *Matrix) AllowedTokens(node models.Node) []models.Token {
	row := m.table[node]
	tokens := make([]models.Token, 0, len(row)+len(m.terminalTokens[node]))
	for token := range row {
		tokens = append(tokens, token)
	}
	for token := range m.terminalTokens[node] {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens
}

// PossibleDestinations returns the distinct nodes reachable in one step from
// the given node, sorted. Intent and confirmation override targets for the
// node's tokens are included.
func (m *Matrix) PossibleDestinations(node models.Node) []models.Node {
	seen := make(map[models.Node]bool)
	for token, dest := range m.table[node] {
		seen[dest] = true
		if node == models.NodeClassify && token == models.TokenClassified {
			for _, entry := range m.intentEntry {
				seen[entry] = true
			}
		}
		if node == models.NodeConfirm && token == models.TokenConfirmed {
			for _, target := range m.confirmTarget {
				seen[target] = true
			}
		}
	}
	destinations := make([]models.Node, 0, len(seen))
	for dest := range seen {
		destinations = append(destinations, dest)
	}
	sort.Slice(destinations, func(i, j int) bool { return destinations[i] < destinations[j] })
	return destinations
}

// selfCheck validates the matrix once at construction: every declared node is
// keyed, every token and destination is drawn from the closed sets, every
// intent has exactly one entry node, and every node is reachable from the
// entry node by breadth-first traversal.
func (m *Matrix) selfCheck() error {
	for _, node := range models.AllNodes() {
		if _, ok := m.table[node]; !ok {
			return &ConfigurationError{Reason: fmt.Sprintf("node %s missing from routing table", node)}
		}
	}
	for node, row := range m.table {
		if !models.IsValidNode(node) {
			return &ConfigurationError{Reason: fmt.Sprintf("routing table keyed by unknown node %s", node)}
		}
		for token, dest := range row {
			if !models.IsValidToken(token) {
				return &ConfigurationError{Reason: fmt.Sprintf("node %s declares unknown token %s", node, token)}
			}
			if !models.IsValidNode(dest) {
				return &ConfigurationError{Reason: fmt.Sprintf("node %s token %s points at unknown node %s", node, token, dest)}
			}
			if _, ok := m.table[dest]; !ok {
				return &ConfigurationError{Reason: fmt.Sprintf("node %s token %s points at dangling node %s", node, token, dest)}
			}
		}
	}
	for node, tokens := range m.terminalTokens {
		for token := range tokens {
			if !models.IsValidToken(token) {
				return &ConfigurationError{Reason: fmt.Sprintf("node %s registers unknown terminal token %s", node, token)}
			}
		}
	}
	for _, intent := range models.AllIntents() {
		entry, ok := m.intentEntry[intent]
		if !ok {
			return &ConfigurationError{Reason: fmt.Sprintf("intent %s has no entry node override", intent)}
		}
		if _, ok := m.table[entry]; !ok {
			return &ConfigurationError{Reason: fmt.Sprintf("intent %s entry node %s missing from routing table", intent, entry)}
		}
	}

	// Reachability: BFS from the entry node over table edges plus the
	// override edges out of classify and confirm.
	reached := map[models.Node]bool{models.NodeIngest: true}
	queue := []models.Node{models.NodeIngest}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dest := range m.PossibleDestinations(current) {
			if !reached[dest] {
				reached[dest] = true
				queue = append(queue, dest)
			}
		}
	}
	for _, node := range models.AllNodes() {
		if !reached[node] {
			return &ConfigurationError{Reason: fmt.Sprintf("node %s unreachable from %s", node, models.NodeIngest)}
		}
	}
	return nil
}
