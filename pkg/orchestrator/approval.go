package orchestrator

import (
	"sync"
	"time"
)

// ApprovalGate tracks one pending human-approval window (§4.A "Approval
// gate. Any action of tier >= configured threshold creates an
// ApprovalGate with deadline = now + T(severity)").
type ApprovalGate struct {
	InvestigationID    string
	Severity           string
	CreatedAt          time.Time
	Deadline           time.Time
	EscalationSignaled bool
	Resolved           bool
	ThreadTS           string // Slack thread timestamp, set once a notifier has posted the request
}

func (g *ApprovalGate) halfway() time.Time {
	return g.CreatedAt.Add(g.Deadline.Sub(g.CreatedAt) / 2)
}

// ApprovalOutcome is what Tick reports for one gate that needs the
// caller to act: either fire the one-shot escalation signal, or resolve
// the gate on expiry per the severity-dependent rule in §4.A.
type ApprovalOutcome struct {
	InvestigationID string
	Signal          bool   // one-shot 50%-of-interval escalation signal due
	Expired         bool   // deadline passed
	Resolution      string // "escalated" (critical/high, stays open) or "rejected" (medium/low, closes)
}

// ApprovalGateManager is the process-wide container for in-flight
// approval gates (§9 Design Notes "Global mutable state... lives in
// explicit process-wide containers initialized at startup and mutated
// through typed methods with locking"). A caller (the orchestrator's
// driving loop or a scheduled sweep) calls Tick periodically; this type
// has no internal timer of its own so its behavior stays deterministic
// under test.
type ApprovalGateManager struct {
	mu    sync.Mutex
	gates map[string]*ApprovalGate
}

// NewApprovalGateManager constructs an empty manager.
func NewApprovalGateManager() *ApprovalGateManager {
	return &ApprovalGateManager{gates: make(map[string]*ApprovalGate)}
}

// Open creates a new gate for investigationID, replacing any existing
// one (the orchestrator only ever has one outstanding gate per
// investigation at a time).
func (m *ApprovalGateManager) Open(investigationID, severity string, deadlineWindow time.Duration, now time.Time) *ApprovalGate {
	g := &ApprovalGate{
		InvestigationID: investigationID,
		Severity:        severity,
		CreatedAt:       now,
		Deadline:        now.Add(deadlineWindow),
	}
	m.mu.Lock()
	m.gates[investigationID] = g
	m.mu.Unlock()
	return g
}

// Approve resolves a gate as granted (a human acted within the
// deadline), removing it from the manager. Reports false if no gate was
// outstanding for investigationID.
func (m *ApprovalGateManager) Approve(investigationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[investigationID]
	if !ok || g.Resolved {
		return false
	}
	delete(m.gates, investigationID)
	return true
}

// Tick evaluates every outstanding gate against now, returning one
// ApprovalOutcome per gate that needs caller action: the one-shot
// escalation signal at 50% of the interval (§4.A "At 50% of the
// interval, a one-shot escalation signal is produced (idempotent)"), or
// expiry resolution (§4.A "On expiry: for critical/high, set
// classification=escalated and keep investigation open; for medium/low,
// resolve as rejected and close"). Expired medium/low gates are removed
// from the manager; expired critical/high gates stay in it marked
// Resolved, so later Ticks skip them and Approve rejects them.
// Escalation-signaled gates are marked so the signal never fires twice.
func (m *ApprovalGateManager) Tick(now time.Time) []ApprovalOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	var outcomes []ApprovalOutcome
	for id, g := range m.gates {
		if g.Resolved {
			continue
		}
		if !now.Before(g.Deadline) {
			resolution := "rejected"
			if g.Severity == "critical" || g.Severity == "high" {
				resolution = "escalated"
			}
			outcomes = append(outcomes, ApprovalOutcome{InvestigationID: id, Expired: true, Resolution: resolution})
			if resolution == "rejected" {
				delete(m.gates, id)
			} else {
				g.Resolved = true
			}
			continue
		}
		if !g.EscalationSignaled && !now.Before(g.halfway()) {
			g.EscalationSignaled = true
			outcomes = append(outcomes, ApprovalOutcome{InvestigationID: id, Signal: true})
		}
	}
	return outcomes
}

// SetThreadTS records the Slack thread timestamp a notifier returned
// after posting the initial approval-requested message, so later
// escalation/resolution notifications thread against it instead of
// re-searching channel history.
func (m *ApprovalGateManager) SetThreadTS(investigationID, threadTS string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gates[investigationID]; ok {
		g.ThreadTS = threadTS
	}
}

// Get returns the outstanding gate for investigationID, if any.
func (m *ApprovalGateManager) Get(investigationID string) (*ApprovalGate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[investigationID]
	return g, ok
}
