// Package llmrouter selects a model for a task under capability, severity,
// latency, cost, and health constraints, and manages provider fallback and
// degradation (spec.md §4.C). Grounded in the teacher's
// pkg/config/llm.go (LLMProviderRegistry: sync.RWMutex-guarded map with
// defensive-copy accessors) generalized from "configured providers" to
// "tiered model registry with fallback chains", plus
// github.com/sony/gobreaker (mined from the kubernaut pack) for the
// per-provider circuit breaker state machine §4.C specifies natively.
package llmrouter

import "sync"

// Tier is the routing tier a task is assigned to.
type Tier string

const (
	Tier0     Tier = "tier-0"
	Tier1     Tier = "tier-1"
	Tier1Plus Tier = "tier-1+"
	Tier2     Tier = "tier-2"
)

// ModelInfo describes one registered model (§4.C "Data").
type ModelInfo struct {
	Provider                  string
	ModelID                   string
	MaxContextTokens          int
	CostIn                    float64
	CostOut                   float64
	SupportsToolUse           bool
	SupportsJSON              bool
	SupportsExtendedThinking  bool
	SupportsPromptCaching     bool
	BatchEligible             bool
}

// ModelRegistry maps tier -> primary model, mirroring
// pkg/config/llm.go's LLMProviderRegistry shape (RWMutex + defensive
// copies on every accessor) but keyed by Tier instead of provider name.
type ModelRegistry struct {
	mu     sync.RWMutex
	byTier map[Tier]ModelInfo
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{byTier: make(map[Tier]ModelInfo)}
}

func (r *ModelRegistry) Set(tier Tier, model ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTier[tier] = model
}

func (r *ModelRegistry) Get(tier Tier) (ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTier[tier]
	return m, ok
}

// FallbackRegistry maps tier -> ordered fallback models. Tier-1+ and
// tier-2 are expected to be empty -- "degradation absorbs the gap"
// (§4.C).
type FallbackRegistry struct {
	mu        sync.RWMutex
	byTier    map[Tier][]ModelInfo
}

func NewFallbackRegistry() *FallbackRegistry {
	return &FallbackRegistry{byTier: make(map[Tier][]ModelInfo)}
}

func (r *FallbackRegistry) Set(tier Tier, models []ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]ModelInfo, len(models))
	copy(cp, models)
	r.byTier[tier] = cp
}

func (r *FallbackRegistry) Get(tier Tier) []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]ModelInfo, len(r.byTier[tier]))
	copy(cp, r.byTier[tier])
	return cp
}
