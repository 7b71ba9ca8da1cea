package llmrouter

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ProviderHealthRegistry tracks one circuit breaker per provider (§4.C
// "Circuit breaker"). Built on github.com/sony/gobreaker's
// TwoStepCircuitBreaker, which is the natural fit for the spec's
// consecutive-failure-count model (CLOSED/OPEN/HALF_OPEN, single
// HALF_OPEN probe) -- as opposed to the rate-based breaker sketched in
// the kubernaut pack's circuit_breaker_test.go, which counts a failure
// rate over a window instead of consecutive failures and so doesn't
// match "CLOSED counts consecutive failures; at threshold -> OPEN".
type ProviderHealthRegistry struct {
	mu                  sync.Mutex
	breakers            map[string]*gobreaker.TwoStepCircuitBreaker
	consecutiveFailures uint32
	recoveryTimeout     time.Duration
}

// NewProviderHealthRegistry constructs a registry that creates a breaker
// per provider lazily, each configured with the given consecutive-failure
// threshold and recovery timeout (defaults: 5 and 30s per §4.C).
func NewProviderHealthRegistry(consecutiveFailures uint32, recoveryTimeout time.Duration) *ProviderHealthRegistry {
	return &ProviderHealthRegistry{
		breakers:            make(map[string]*gobreaker.TwoStepCircuitBreaker),
		consecutiveFailures: consecutiveFailures,
		recoveryTimeout:     recoveryTimeout,
	}
}

func (r *ProviderHealthRegistry) breakerFor(provider string) *gobreaker.TwoStepCircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[provider]; ok {
		return cb
	}
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1, // single HALF_OPEN probe
		Interval:    0, // never reset CLOSED counts on a timer; only on success
		Timeout:     r.recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.consecutiveFailures
		},
	})
	r.breakers[provider] = cb
	return cb
}

// IsAvailable is true for CLOSED and HALF_OPEN, consulting the breaker's
// live state (which self-promotes OPEN -> HALF_OPEN once the recovery
// timeout has elapsed) rather than a cached field (§4.C "must consult the
// current state (not the cached field) so that a timeout-expired OPEN is
// promoted before the decision").
func (r *ProviderHealthRegistry) IsAvailable(provider string) bool {
	state := r.breakerFor(provider).State()
	return state == gobreaker.StateClosed || state == gobreaker.StateHalfOpen
}

// State exposes the raw breaker state for observability/health endpoints.
func (r *ProviderHealthRegistry) State(provider string) gobreaker.State {
	return r.breakerFor(provider).State()
}

// StateLabel renders a breaker state the way metrics and warning messages
// want it: lowercase, underscore-separated.
func StateLabel(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half_open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// StateGaugeValue renders a breaker state as the 0/1/2 scale
// obs.Metrics.SetBreakerState publishes.
func StateGaugeValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Attempt reserves a call slot against the provider's breaker. If allowed
// is false the breaker is OPEN (or the single HALF_OPEN probe is already
// in flight) and the caller must not call the provider. Otherwise, the
// caller must invoke report exactly once with the call's outcome --
// report(true) on success resets the breaker to CLOSED; report(false)
// records a failure, which may trip the breaker back to OPEN from
// HALF_OPEN or push it over threshold from CLOSED.
func (r *ProviderHealthRegistry) Attempt(provider string) (report func(success bool), allowed bool) {
	cb := r.breakerFor(provider)
	done, err := cb.Allow()
	if err != nil {
		return nil, false
	}
	return done, true
}
