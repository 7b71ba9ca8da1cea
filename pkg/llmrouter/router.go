package llmrouter

import (
	"fmt"
	"log/slog"
)

// tierOrder gives tiers a total order for "force >= tier-X" comparisons.
var tierOrder = map[Tier]int{Tier0: 0, Tier1: 1, Tier1Plus: 2, Tier2: 3}

func maxTier(a, b Tier) Tier {
	if tierOrder[a] >= tierOrder[b] {
		return a
	}
	return b
}

// RouteRequest carries everything the override chain needs to pick a
// model (§4.C "Override chain").
type RouteRequest struct {
	Task            string
	Severity        string // "critical", "high", "medium", "low", "informational"
	TimeBudgetS     float64
	ContextTokens   int
	Confidence      float64 // use -1 when not yet known
	TenantID        string
}

// RoutingDecision is the router's output, attached to every LLM call
// (§4.C "Data", §9 "Dynamic named parameters... RoutingDecision").
type RoutingDecision struct {
	Provider         string
	ModelID          string
	Tier             Tier
	IsFallback       bool
	FallbackConfigs  []ModelInfo
	Reason           []string
	Degradation      DegradationPolicy
}

// MetricsSink is the narrow surface pkg/obs implements so pkg/llmrouter
// never imports Prometheus directly (same one-way dependency discipline
// as pkg/audit.MetricsSink).
type MetricsSink interface {
	RecordRoutingDecision(tier, provider string, isFallback bool)
	RecordFailover(fromProvider, toProvider string)
}

// Router implements the deterministic 9-step override chain (§4.C).
type Router struct {
	tasks      *TaskCapabilityRegistry
	models     *ModelRegistry
	fallbacks  *FallbackRegistry
	health     *ProviderHealthRegistry // optional; nil means "log-only, no health-aware swap"
	escalation *EscalationBudget
	metrics    MetricsSink // optional; nil is a no-op
}

// NewRouter constructs a Router. health may be nil (step 8 becomes a
// no-op, matching "log-only if no health registry is attached" from step
// 6's capability-match fallback note).
func NewRouter(tasks *TaskCapabilityRegistry, models *ModelRegistry, fallbacks *FallbackRegistry, health *ProviderHealthRegistry, escalation *EscalationBudget) *Router {
	return &Router{tasks: tasks, models: models, fallbacks: fallbacks, health: health, escalation: escalation}
}

// SetMetrics attaches the sink step 9 ("Record metrics (provider, tier,
// is_fallback)") reports through. Optional; unset is a no-op.
func (r *Router) SetMetrics(m MetricsSink) {
	r.metrics = m
}

// Route runs the full override chain and returns a RoutingDecision.
func (r *Router) Route(req RouteRequest) (*RoutingDecision, error) {
	caps, baseTier := r.tasks.Lookup(req.Task)
	tier := baseTier
	var reasons []string

	// Step 2: time budget forces tier-0.
	if req.TimeBudgetS > 0 && req.TimeBudgetS < 3 {
		tier = Tier0
		reasons = append(reasons, "time_budget_forces_tier0")
	} else {
		// Step 3: critical + reasoning-requiring forces >= tier-1.
		if req.Severity == "critical" && r.tasks.RequiresReasoning(req.Task) {
			tier = maxTier(tier, Tier1)
			reasons = append(reasons, "critical_reasoning_forces_tier1")
		}
		// Step 4: large context forces >= tier-1.
		if req.ContextTokens > 100_000 {
			tier = maxTier(tier, Tier1)
			reasons = append(reasons, "large_context_forces_tier1")
		}
		// Step 5: low confidence on critical/high forces tier-1+, subject
		// to escalation budget.
		if req.Confidence >= 0 && req.Confidence < 0.6 && (req.Severity == "critical" || req.Severity == "high") {
			if r.escalation == nil || r.escalation.Allow() {
				tier = maxTier(tier, Tier1Plus)
				reasons = append(reasons, "low_confidence_escalation")
			} else {
				reasons = append(reasons, "low_confidence_escalation_budget_exhausted")
			}
		}
	}

	candidate, ok := r.models.Get(tier)
	if !ok {
		return nil, fmt.Errorf("llmrouter: no model registered for %s", tier)
	}

	// Step 6: capability match, walking fallbacks until eligible or none
	// remain.
	fallbacks := r.fallbacks.Get(tier)
	chosen := candidate
	isFallback := false
	if !caps.Satisfies(chosen) {
		found := false
		for _, fb := range fallbacks {
			if caps.Satisfies(fb) {
				chosen = fb
				isFallback = true
				found = true
				reasons = append(reasons, fmt.Sprintf("capability_mismatch->fallback(%s)", fb.Provider))
				break
			}
		}
		if !found {
			if r.health == nil {
				slog.Warn("no model satisfies task capabilities, no health registry attached; proceeding with best-effort primary",
					"task", req.Task, "tier", tier)
				reasons = append(reasons, "capability_mismatch_no_eligible_fallback_log_only")
			} else {
				return nil, ErrNoEligibleModel
			}
		}
	}

	// Step 7: populate fallback_configs from FALLBACK_REGISTRY[tier].
	fallbackConfigs := fallbacks

	// Step 8: health-aware swap.
	degradation := DegradationPolicy{Level: LevelFullCapability, AutoCloseAllowed: true, ExtendedThinkingAvailable: true, MaxTier: Tier2}
	if r.health != nil {
		degradation = ComputeDegradationLevel(r.health, chosen.Provider, firstOtherProvider(fallbacks, chosen.Provider))
		if !r.health.IsAvailable(chosen.Provider) {
			swapped := false
			for _, fb := range fallbackConfigs {
				if fb.Provider == chosen.Provider {
					continue
				}
				if caps.Satisfies(fb) && r.health.IsAvailable(fb.Provider) {
					reasons = append(reasons, fmt.Sprintf("primary_unavailable->fallback(%s)", fb.Provider))
					if r.metrics != nil {
						r.metrics.RecordFailover(chosen.Provider, fb.Provider)
					}
					chosen = fb
					isFallback = true
					swapped = true
					break
				}
			}
			if !swapped {
				reasons = append(reasons, "primary_unavailable_no_healthy_fallback")
			}
		}
	}

	// Step 9: record metrics (provider, tier, is_fallback).
	if r.metrics != nil {
		r.metrics.RecordRoutingDecision(string(tier), chosen.Provider, isFallback)
	}

	return &RoutingDecision{
		Provider:        chosen.Provider,
		ModelID:         chosen.ModelID,
		Tier:            tier,
		IsFallback:      isFallback,
		FallbackConfigs: fallbackConfigs,
		Reason:          reasons,
		Degradation:     degradation,
	}, nil
}

func firstOtherProvider(models []ModelInfo, exclude string) string {
	for _, m := range models {
		if m.Provider != exclude {
			return m.Provider
		}
	}
	return ""
}
