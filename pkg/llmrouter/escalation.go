package llmrouter

import "time"

// EscalationBudget caps escalations to the top tier per hour (default 10,
// §4.C "Escalation budget"). Requests beyond the budget must fall back to
// the original routing decision unchanged (§8 "the 11th request within an
// hour returns the original decision unchanged") -- callers check
// Allow() before escalating and simply skip escalation on false.
type EscalationBudget struct {
	window *slidingWindow
}

// NewEscalationBudget constructs a budget with the given per-hour cap.
func NewEscalationBudget(perHour int) *EscalationBudget {
	return &EscalationBudget{window: newSlidingWindow(time.Hour, perHour)}
}

// Allow reports whether one more escalation fits in the current hour,
// consuming budget if so.
func (b *EscalationBudget) Allow() bool {
	return b.window.Allow()
}
