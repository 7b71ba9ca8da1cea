// Package gateway implements the Context Gateway (spec.md §4.B): the
// trust boundary every LLM call passes through. It never trusts upstream
// text content and always emits a fully-attributed audit context.
//
// Grounded in the teacher's pkg/agent/prompt (system+evidence assembly)
// and pkg/masking (pattern-based transform pipeline), generalized from
// "mask secrets in tool output" to the full ordered input pipeline the
// spec names: budget guard, injection classification, transform,
// PII redaction, evidence isolation, taxonomy-aware budgeting, provider
// call, deanonymization, output validation.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluskort/platform/pkg/obs"
	"github.com/aluskort/platform/pkg/redact"
)

// GatewayMetrics accompanies every GatewayResponse for audit attribution
// (§4.B "Outputs").
type GatewayMetrics struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	LatencyMS    int64
	PromptHash   string
	ResponseHash string
}

// GatewayResponse is the gateway's output for one LLM call (§4.B
// "Outputs").
type GatewayResponse struct {
	Content         string
	RawOutput       string
	QuarantinedIDs  []string
	Metrics         GatewayMetrics
	TaxonomyVersion string
	InjectionRisk   InjectionRisk
	ExtractedEntities []string
}

// CallRequest is everything a caller supplies for one gateway-mediated
// LLM call.
type CallRequest struct {
	TenantID         string
	Task             string
	Tier             string // "tier-0", "tier-1", "tier-1+", "tier-2"
	SystemPrompt     string
	SafetyPrefix     string
	UntrustedContent string // the evidence: alert text, retrieved context, etc.
	MaxTokens        int
	RequireJSON      bool
	ExtendedThinking bool
}

// Gateway wires together the ordered input pipeline and the provider
// adapter for a routing decision's chosen provider.
type Gateway struct {
	budget    *BudgetGuard
	second    SecondOpinionClassifier // may be nil
	taxonomy  *TaxonomySet
	adapters  map[string]PromptAdapter
	overheadTokens int
	metrics   *obs.Metrics // may be nil
}

// NewGateway constructs a Gateway. second may be nil to disable the
// second-opinion classifier (§4.B item 2). metrics may be nil to disable
// metrics recording (e.g. in unit tests that don't construct a registry).
func NewGateway(budget *BudgetGuard, second SecondOpinionClassifier, taxonomy *TaxonomySet, adapters []PromptAdapter, overheadTokens int, metrics *obs.Metrics) *Gateway {
	m := make(map[string]PromptAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Provider()] = a
	}
	return &Gateway{budget: budget, second: second, taxonomy: taxonomy, adapters: m, overheadTokens: overheadTokens, metrics: metrics}
}

// Call runs the full ordered pipeline (§4.B items 1-9) for one provider
// and model choice, returning a fully-attributed GatewayResponse.
func (g *Gateway) Call(ctx context.Context, req CallRequest, provider, modelID string) (*GatewayResponse, error) {
	start := time.Now()

	// Step 1: budget guard.
	if err := g.budget.Check(req.TenantID); err != nil {
		return nil, err
	}

	// Step 2: injection classification.
	risk := Classify(ctx, req.UntrustedContent, g.second, g.metrics)
	action := ActionFor(risk)

	// Step 3: transform instead of redact.
	transformed, entities := Transform(req.UntrustedContent, action)
	if action == ActionQuarantine {
		slog.Warn("gateway: untrusted content quarantined", "tenant_id", req.TenantID, "task", req.Task)
	}

	// Step 4: PII redaction (stable placeholders, reversible).
	redactionMap := redact.NewMap()
	redacted := redact.Redact(transformed, redactionMap)

	// Step 5: evidence isolation.
	wrapped := WrapEvidence(redacted)

	// Step 6: taxonomy-aware budgeting.
	budgetedEvidence, truncated := TruncateToFit(wrapped, req.Tier, g.overheadTokens)
	if truncated {
		slog.Info("gateway: retrieval context truncated to fit tier budget", "tenant_id", req.TenantID, "tier", req.Tier)
	}

	// Step 7: call the model via its provider adapter.
	adapter, ok := g.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("gateway: no adapter registered for provider %q", provider)
	}
	modelReq := ModelRequest{
		ModelID:          modelID,
		SystemPrompt:     req.SystemPrompt,
		SafetyPrefix:     req.SafetyPrefix,
		Messages:         []ModelMessage{{Role: "user", Content: budgetedEvidence}},
		MaxTokens:        req.MaxTokens,
		RequireJSON:      req.RequireJSON,
		ExtendedThinking: req.ExtendedThinking,
	}
	result, err := adapter.Call(ctx, modelReq)
	if err != nil {
		return nil, err
	}
	g.budget.Record(req.TenantID, result.CostUSD)
	if g.metrics != nil {
		g.metrics.RecordTenantCost(req.TenantID, result.CostUSD)
	}

	// Step 8: deanonymize placeholders in the response.
	deanonymized := redact.Deanonymize(result.Content, redactionMap)

	// Step 9: output validation.
	kept, quarantinedIDs := ValidateTechniqueIDs(deanonymized, g.taxonomy)
	for _, id := range quarantinedIDs {
		slog.Warn("gateway: technique ID quarantined (not in taxonomy)", "technique_id", id, "tenant_id", req.TenantID)
	}
	if g.metrics != nil {
		for range quarantinedIDs {
			g.metrics.RecordQuarantinedTechnique(req.TenantID)
		}
	}
	_ = kept // automation-driving callers re-extract via ValidateTechniqueIDs on Content; kept is informational here

	latency := time.Since(start)

	return &GatewayResponse{
		Content:           deanonymized,
		RawOutput:         result.Content,
		QuarantinedIDs:    quarantinedIDs,
		TaxonomyVersion:   g.taxonomy.Version(),
		InjectionRisk:     risk,
		ExtractedEntities: entities,
		Metrics: GatewayMetrics{
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
			CostUSD:      result.CostUSD,
			LatencyMS:    latency.Milliseconds(),
			PromptHash:   hashString(budgetedEvidence),
			ResponseHash: hashString(result.Content),
		},
	}, nil
}

// hashString computes a SHA-256 hex digest, used for prompt_hash /
// response_hash audit attribution (§4.B "Outputs... metrics{...
// prompt_hash, response_hash}").
func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
