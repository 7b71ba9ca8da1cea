package gateway

import (
	"fmt"
	"log/slog"
	"sync"
)

// BudgetGuard enforces the monthly per-tenant spend cap (§4.B item 1).
// Crossing the soft threshold logs a one-shot alert per tenant per month;
// crossing the hard cap rejects the call with ErrSpendLimitExceeded.
// Grounded in the router's sliding-window style of explicit, lockable,
// process-wide counters (§9 "Global mutable state... lives in explicit
// process-wide containers... mutated through typed methods with
// locking").
type BudgetGuard struct {
	mu           sync.Mutex
	softCapUSD   float64
	hardCapUSD   float64
	spent        map[string]float64 // tenantID -> month-to-date spend
	softAlerted  map[string]bool
}

// NewBudgetGuard constructs a guard with the given soft/hard monthly caps
// in USD.
func NewBudgetGuard(softCapUSD, hardCapUSD float64) *BudgetGuard {
	return &BudgetGuard{
		softCapUSD:  softCapUSD,
		hardCapUSD:  hardCapUSD,
		spent:       make(map[string]float64),
		softAlerted: make(map[string]bool),
	}
}

// Check refuses the call if tenantID has already hit the hard cap this
// month (§7 "Budget exhaustion... never silently downgrade to a smaller
// model" -- refusal is the only allowed response, not a cheaper tier).
func (g *BudgetGuard) Check(tenantID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.spent[tenantID] >= g.hardCapUSD {
		return fmt.Errorf("%w: tenant %s", ErrSpendLimitExceeded, tenantID)
	}
	return nil
}

// Record adds costUSD to tenantID's month-to-date spend and emits a
// one-shot soft-alert the first time the soft threshold is crossed this
// month.
func (g *BudgetGuard) Record(tenantID string, costUSD float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spent[tenantID] += costUSD
	if g.spent[tenantID] >= g.softCapUSD && !g.softAlerted[tenantID] {
		g.softAlerted[tenantID] = true
		slog.Warn("gateway: tenant crossed monthly soft spend threshold",
			"tenant_id", tenantID, "spent_usd", g.spent[tenantID], "soft_cap_usd", g.softCapUSD)
	}
}

// ResetMonth clears counters for a new billing month. Callers invoke this
// from a scheduled job; it is not on any request path.
func (g *BudgetGuard) ResetMonth() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spent = make(map[string]float64)
	g.softAlerted = make(map[string]bool)
}

// Spent returns a tenant's month-to-date spend, for observability.
func (g *BudgetGuard) Spent(tenantID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spent[tenantID]
}
