package orchestrator

import (
	"context"

	"github.com/aluskort/platform/pkg/fpgov"
)

// EntityParser turns an alert's opaque raw_entities blob into typed
// entities by type (§4.A "parsing" state; §3 "Canonical Alert... raw
// entities (opaque string)" is deliberately product-specific and out of
// scope per §1, so this platform only names the contract a real SIEM
// adapter implements).
type EntityParser interface {
	Parse(ctx context.Context, rawEntities string) (map[string][]string, error)
}

// FPPatternSource supplies the active, non-shadow, scope-matching
// candidate patterns fp_check evaluates (§4.D "Matching. Given GraphState
// and the active, non-shadow, scope-matching patterns"). A real
// implementation is backed by the FP pattern store; tests and the
// orchestrator's own in-process default use an in-memory slice.
type FPPatternSource interface {
	ActivePatterns(ctx context.Context, scope fpgov.Scope) ([]*fpgov.Pattern, error)
}

// ActionRiskClassifier maps a recommended action to the risk tier the
// auto-allowed-tier check in §4.A compares against ("If the candidate
// actions include any whose tier exceeds auto-allowed tiers ... route to
// awaiting_human"). Unregistered actions are treated as the highest risk
// tier so an unknown action never silently auto-executes.
type ActionRiskClassifier interface {
	RiskTier(action string) int
}

// ShadowDecisionRecorder persists a paired shadow decision so agreement
// rate can later be computed against the analyst's own action (§4.A
// "Shadow mode... A separate analyst decision log is paired with the
// shadow decision by investigation_id").
type ShadowDecisionRecorder interface {
	RecordShadowDecision(ctx context.Context, d fpgov.ShadowDecision) error
}

// ApprovalNotifier delivers human-visible notifications about an
// approval gate's lifecycle (request, 50%-of-interval escalation
// reminder, terminal resolution). A nil notifier is a valid no-op
// collaborator, matching pkg/slackapprove.Service's own nil-safety.
type ApprovalNotifier interface {
	NotifyRequested(ctx context.Context, investigationID, severity, action, deadlineUTC string) string
	NotifyEscalation(ctx context.Context, investigationID, severity, action, threadTS string)
	NotifyResolved(ctx context.Context, investigationID, resolution, threadTS string)
}

// ActionExecutor performs a response action once every Executor
// constraint has cleared (§4.A "Executor constraints"). Concrete
// playbook execution (host isolation, account disable, ticket creation)
// is a named external collaborator, same as SIEM/CTEM adapters (§1).
type ActionExecutor interface {
	Execute(ctx context.Context, tenantID, investigationID, playbookID string, params map[string]any) error
}
