package zone

import (
	"time"

	"lightzone/internal/clock"

	"go.uber.org/zap"
)

// echoExpectation tracks one command we issued and the window during
// which the resulting state report should be treated as our own echo
// rather than a human action.
type echoExpectation struct {
	expected     string // "on" or "off"
	expiresAt    time.Time
	acknowledged bool
}

// lastCommand remembers the most recent command per light, independent of
// echo expectations, to suppress attribute jitter right after a command.
type lastCommand struct {
	state  string
	sentAt time.Time
}

// EchoGuard distinguishes state changes caused by our own service calls
// from changes caused by humans.
type EchoGuard struct {
	clock     clock.Clock
	logger    *zap.Logger
	window    time.Duration
	maxWindow time.Duration
	expected  map[string]*echoExpectation
	lastCmd   map[string]lastCommand
}

// NewEchoGuard creates a guard with the given echo windows
func NewEchoGuard(clk clock.Clock, window, maxWindow time.Duration, logger *zap.Logger) *EchoGuard {
	return &EchoGuard{
		clock:     clk,
		logger:    logger,
		window:    window,
		maxWindow: maxWindow,
		expected:  make(map[string]*echoExpectation),
		lastCmd:   make(map[string]lastCommand),
	}
}

// MarkExpected records that a command was just issued for these lights.
// The expectation expires at min(now+window, now+maxWindow) so a report
// that never arrives cannot starve future manual detection.
func (g *EchoGuard) MarkExpected(lights []string, state string) {
	now := g.clock.Now()
	expiry := now.Add(g.window)
	if capped := now.Add(g.maxWindow); capped.Before(expiry) {
		expiry = capped
	}

	for _, light := range lights {
		g.expected[light] = &echoExpectation{
			expected:  state,
			expiresAt: expiry,
		}
		g.lastCmd[light] = lastCommand{state: state, sentAt: now}
	}
}

// ShouldIgnore reports whether a power transition matches an unexpired
// expectation for the entity. The first suppressed match is logged once;
// later matches within the window stay silent. Expired expectations are
// evicted on sight.
func (g *EchoGuard) ShouldIgnore(entity, oldValue, newValue string) bool {
	exp, ok := g.expected[entity]
	if !ok {
		return false
	}

	if g.clock.Now().After(exp.expiresAt) {
		delete(g.expected, entity)
		return false
	}

	oldOn := oldValue == "on"
	newOn := newValue == "on"

	matches := (exp.expected == "on" && !oldOn && newOn) ||
		(exp.expected == "off" && oldOn && !newOn)
	if !matches {
		return false
	}

	if !exp.acknowledged {
		g.logger.Info("Ignoring echo from our own service call",
			zap.String("entity", entity),
			zap.String("expected", exp.expected))
		exp.acknowledged = true
	}
	return true
}

// RecentCommand reports whether a command was issued for the entity
// within the recency window. A non-positive window uses the default of
// max(echo window, 3s).
func (g *EchoGuard) RecentCommand(entity string, within time.Duration) bool {
	if within <= 0 {
		within = g.window
		if within < 3*time.Second {
			within = 3 * time.Second
		}
	}

	last, ok := g.lastCmd[entity]
	if !ok {
		return false
	}
	return g.clock.Since(last.sentAt) <= within
}

// PendingExpectation describes an unexpired expectation for the debug entity
type PendingExpectation struct {
	Expected     string    `json:"expected"`
	ExpiresAt    time.Time `json:"expires_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// Pending returns a snapshot of unexpired expectations keyed by entity
func (g *EchoGuard) Pending() map[string]PendingExpectation {
	now := g.clock.Now()
	out := make(map[string]PendingExpectation)
	for entity, exp := range g.expected {
		if now.After(exp.expiresAt) {
			delete(g.expected, entity)
			continue
		}
		out[entity] = PendingExpectation{
			Expected:     exp.expected,
			ExpiresAt:    exp.expiresAt,
			Acknowledged: exp.acknowledged,
		}
	}
	return out
}
