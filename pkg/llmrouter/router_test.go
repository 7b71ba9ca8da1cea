package llmrouter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModels() (*ModelRegistry, *FallbackRegistry) {
	models := NewModelRegistry()
	models.Set(Tier0, ModelInfo{Provider: "anthropic", ModelID: "claude-haiku", MaxContextTokens: 16000, SupportsJSON: true})
	models.Set(Tier1, ModelInfo{Provider: "anthropic", ModelID: "claude-sonnet", MaxContextTokens: 64000, SupportsJSON: true, SupportsToolUse: true})
	models.Set(Tier1Plus, ModelInfo{Provider: "anthropic", ModelID: "claude-opus", MaxContextTokens: 128000, SupportsJSON: true, SupportsExtendedThinking: true})
	models.Set(Tier2, ModelInfo{Provider: "anthropic", ModelID: "claude-opus-thinking", MaxContextTokens: 200000, SupportsJSON: true, SupportsExtendedThinking: true})

	fallbacks := NewFallbackRegistry()
	fallbacks.Set(Tier0, []ModelInfo{{Provider: "bedrock", ModelID: "gpt-4o-mini", MaxContextTokens: 16000, SupportsJSON: true}})
	fallbacks.Set(Tier1, []ModelInfo{{Provider: "bedrock", ModelID: "gpt-4o", MaxContextTokens: 64000, SupportsJSON: true, SupportsToolUse: true}})
	return models, fallbacks
}

func TestRoute_UnknownTaskDefaultsTier1(t *testing.T) {
	models, fallbacks := testModels()
	r := NewRouter(NewTaskCapabilityRegistry(), models, fallbacks, nil, nil)

	decision, err := r.Route(RouteRequest{Task: "some_unregistered_task", Confidence: -1})
	require.NoError(t, err)
	assert.Equal(t, Tier1, decision.Tier)
}

func TestRoute_TightTimeBudgetForcesTier0(t *testing.T) {
	models, fallbacks := testModels()
	r := NewRouter(NewTaskCapabilityRegistry(), models, fallbacks, nil, nil)

	decision, err := r.Route(RouteRequest{Task: "reasoning_classification", TimeBudgetS: 2, Confidence: -1})
	require.NoError(t, err)
	assert.Equal(t, Tier0, decision.Tier)
	assert.Contains(t, decision.Reason, "time_budget_forces_tier0")
}

func TestRoute_CriticalReasoningForcesAtLeastTier1(t *testing.T) {
	models, fallbacks := testModels()
	r := NewRouter(NewTaskCapabilityRegistry(), models, fallbacks, nil, nil)

	decision, err := r.Route(RouteRequest{Task: "reasoning_classification", Severity: "critical", Confidence: -1})
	require.NoError(t, err)
	assert.Equal(t, Tier1, decision.Tier)
}

func TestRoute_LargeContextForcesAtLeastTier1(t *testing.T) {
	models, fallbacks := testModels()
	r := NewRouter(NewTaskCapabilityRegistry(), models, fallbacks, nil, nil)

	decision, err := r.Route(RouteRequest{Task: "alert_parsing", ContextTokens: 150_000, Confidence: -1})
	require.NoError(t, err)
	assert.Equal(t, Tier1, decision.Tier)
}

func TestRoute_LowConfidenceEscalatesWithinBudget(t *testing.T) {
	models, fallbacks := testModels()
	budget := NewEscalationBudget(10)
	r := NewRouter(NewTaskCapabilityRegistry(), models, fallbacks, nil, budget)

	decision, err := r.Route(RouteRequest{Task: "reasoning_classification", Severity: "high", Confidence: 0.4})
	require.NoError(t, err)
	assert.Equal(t, Tier1Plus, decision.Tier)
}

func TestRoute_EscalationBudgetExhaustedKeepsOriginalTier(t *testing.T) {
	models, fallbacks := testModels()
	budget := NewEscalationBudget(1)
	r := NewRouter(NewTaskCapabilityRegistry(), models, fallbacks, nil, budget)

	// First escalation consumes the budget.
	first, err := r.Route(RouteRequest{Task: "reasoning_classification", Severity: "high", Confidence: 0.4})
	require.NoError(t, err)
	assert.Equal(t, Tier1Plus, first.Tier)

	// Second escalation within the hour is denied; tier stays at base.
	second, err := r.Route(RouteRequest{Task: "reasoning_classification", Severity: "high", Confidence: 0.4})
	require.NoError(t, err)
	assert.Equal(t, Tier1, second.Tier)
	assert.Contains(t, second.Reason, "low_confidence_escalation_budget_exhausted")
}

func TestRoute_HealthAwareSwapToFallback(t *testing.T) {
	models, fallbacks := testModels()
	health := NewProviderHealthRegistry(5, 30*time.Second)
	r := NewRouter(NewTaskCapabilityRegistry(), models, fallbacks, health, nil)

	// Trip the anthropic breaker with 5 consecutive failures.
	for i := 0; i < 5; i++ {
		report, allowed := health.Attempt("anthropic")
		require.True(t, allowed)
		report(false)
	}
	require.False(t, health.IsAvailable("anthropic"))

	decision, err := r.Route(RouteRequest{Task: "reasoning_classification", Confidence: -1})
	require.NoError(t, err)
	assert.Equal(t, "bedrock", decision.Provider)
	assert.True(t, decision.IsFallback)
	found := false
	for _, reason := range decision.Reason {
		if reason == "primary_unavailable->fallback(bedrock)" {
			found = true
		}
	}
	assert.True(t, found, "expected primary_unavailable reason, got %v", decision.Reason)
}

func TestCapabilities_Satisfies(t *testing.T) {
	caps := TaskCapabilities{RequiresToolUse: true, MaxContextTokens: 10000}
	assert.False(t, caps.Satisfies(ModelInfo{SupportsToolUse: false, MaxContextTokens: 20000}))
	assert.True(t, caps.Satisfies(ModelInfo{SupportsToolUse: true, MaxContextTokens: 20000}))
	assert.False(t, caps.Satisfies(ModelInfo{SupportsToolUse: true, MaxContextTokens: 5000}))
}
