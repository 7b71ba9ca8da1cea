// Package orchestrator drives one investigation through the state graph
// named in spec.md §4.A: received -> parsing -> fp_check -> {closed |
// enriching} -> reasoning -> {responding | awaiting_human | closed} ->
// closed | failed. It owns the GraphState exclusively until the
// investigation reaches a terminal state, calling out to the Context
// Gateway and LLM Router for every model call and to the bus for every
// audit emission -- it never writes to audit storage directly.
//
// Grounded in the teacher's pkg/agent/orchestrator.SubAgentRunner (fan-out
// with push-based result delivery) and pkg/agent/base_agent.go (the
// top-level per-session driving loop that advances a run through stages,
// persisting state and emitting timeline events at every step),
// generalized from "agentic tool-call loop over one LLM session" to
// "deterministic security-investigation state machine with a fixed set
// of transitions".
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aluskort/platform/pkg/alert"
	"github.com/aluskort/platform/pkg/audit"
	"github.com/aluskort/platform/pkg/bus"
	"github.com/aluskort/platform/pkg/config"
	"github.com/aluskort/platform/pkg/enrichment"
	"github.com/aluskort/platform/pkg/fpgov"
	"github.com/aluskort/platform/pkg/gateway"
	"github.com/aluskort/platform/pkg/investigation"
	"github.com/aluskort/platform/pkg/llmrouter"
	"github.com/aluskort/platform/pkg/policy"
)

// reasoningDecision is the shape the gateway's reasoning call is expected
// to return as JSON content (§9 "AgentNode capability set"). An
// unparsable response fails the investigation rather than guessing.
type reasoningDecision struct {
	Classification        string   `json:"classification"`
	Confidence             float64  `json:"confidence"`
	RecommendedActions     []string `json:"recommended_actions"`
	PlaybookID             string   `json:"playbook_id"`
}

// Orchestrator wires every collaborator an investigation needs: the FP
// matcher and kill switches, the fixed enricher set, the gateway and
// router for trust-boundary-mediated LLM calls, the Executor's policy
// engine, and the named external collaborators (SIEM parsing, FP pattern
// storage, risk classification, shadow pairing, action execution).
type Orchestrator struct {
	defaults   *config.Defaults
	matcher    *fpgov.Matcher
	killSwitches *fpgov.KillSwitchManager
	enrichers  []enrichment.Enricher
	gateway    *gateway.Gateway
	router     *llmrouter.Router
	policy     *policy.Engine
	approvals  *ApprovalGateManager

	entityParser   EntityParser
	patternSource  FPPatternSource
	riskClassifier ActionRiskClassifier
	shadowRecorder ShadowDecisionRecorder
	executor       ActionExecutor

	publisher bus.Producer
	notifier  ApprovalNotifier

	taxonomyVersion string

	// autoAllowedTier is the highest ActionRiskClassifier tier the
	// Executor may act on without a human in the loop (§4.A "If the
	// candidate actions include any whose tier exceeds auto-allowed
	// tiers ... route to awaiting_human").
	autoAllowedTier int
}

// New constructs an Orchestrator. Every collaborator is required except
// shadowRecorder, which may be nil when no tenant in this process is in
// shadow mode.
func New(
	defaults *config.Defaults,
	matcher *fpgov.Matcher,
	killSwitches *fpgov.KillSwitchManager,
	enrichers []enrichment.Enricher,
	gw *gateway.Gateway,
	router *llmrouter.Router,
	eng *policy.Engine,
	approvals *ApprovalGateManager,
	entityParser EntityParser,
	patternSource FPPatternSource,
	riskClassifier ActionRiskClassifier,
	shadowRecorder ShadowDecisionRecorder,
	executor ActionExecutor,
	publisher bus.Producer,
	taxonomyVersion string,
	autoAllowedTier int,
) *Orchestrator {
	return &Orchestrator{
		defaults:        defaults,
		matcher:         matcher,
		killSwitches:    killSwitches,
		enrichers:       enrichers,
		gateway:         gw,
		router:          router,
		policy:          eng,
		approvals:       approvals,
		entityParser:    entityParser,
		patternSource:   patternSource,
		riskClassifier:  riskClassifier,
		shadowRecorder:  shadowRecorder,
		executor:        executor,
		publisher:       publisher,
		taxonomyVersion: taxonomyVersion,
		autoAllowedTier: autoAllowedTier,
	}
}

// SetNotifier attaches the ApprovalNotifier every approval gate this
// Orchestrator opens or resolves will notify through. A nil notifier
// (the default) is a no-op, matching pkg/slackapprove.Service's own
// nil-safety.
func (o *Orchestrator) SetNotifier(n ApprovalNotifier) {
	o.notifier = n
}

// Investigate drives a fresh GraphState for in through every state until
// it reaches closed, awaiting_human, or failed, and returns it. The error
// is non-nil only when the alert fails validation; a step that fails
// leaves the GraphState in failed and it is returned with a nil error,
// as are expected outcomes like fp_check closing the case early.
func (o *Orchestrator) Investigate(ctx context.Context, in *alert.Alert, shadowMode bool) (*investigation.GraphState, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: invalid alert: %w", err)
	}

	gs := investigation.New(newAuditID(), in.AlertID, in.TenantID, shadowMode)
	gs.Decisions.Severity = string(in.Severity)

	if err := o.transition(ctx, gs, investigation.StateParsing, "orchestrator", nil); err != nil {
		gs.ForceFail(err.Error(), o.taxonomyVersion)
		return gs, nil
	}
	if err := o.parse(ctx, gs, in); err != nil {
		gs.ForceFail(err.Error(), o.taxonomyVersion)
		o.auditFailure(ctx, gs, err)
		return gs, nil
	}

	if err := o.transition(ctx, gs, investigation.StateFPCheck, "orchestrator", nil); err != nil {
		gs.ForceFail(err.Error(), o.taxonomyVersion)
		return gs, nil
	}
	closedByFP, err := o.fpCheck(ctx, gs, in)
	if err != nil {
		gs.ForceFail(err.Error(), o.taxonomyVersion)
		o.auditFailure(ctx, gs, err)
		return gs, nil
	}
	if closedByFP {
		return gs, nil
	}

	if err := o.transition(ctx, gs, investigation.StateEnriching, "orchestrator", nil); err != nil {
		gs.ForceFail(err.Error(), o.taxonomyVersion)
		return gs, nil
	}
	enrichment.Run(ctx, gs, o.enrichers, o.taxonomyVersion)

	if err := o.transition(ctx, gs, investigation.StateReasoning, "orchestrator", nil); err != nil {
		gs.ForceFail(err.Error(), o.taxonomyVersion)
		return gs, nil
	}
	if err := o.reason(ctx, gs, in); err != nil {
		gs.ForceFail(err.Error(), o.taxonomyVersion)
		o.auditFailure(ctx, gs, err)
		return gs, nil
	}

	if err := o.route(ctx, gs, in); err != nil {
		gs.ForceFail(err.Error(), o.taxonomyVersion)
		o.auditFailure(ctx, gs, err)
		return gs, nil
	}

	return gs, nil
}

// transition moves gs to `to`, appending a DecisionEntry and publishing
// an audit event for the edge (§4.A "emitting audit events at every
// transition").
func (o *Orchestrator) transition(ctx context.Context, gs *investigation.GraphState, to investigation.State, agent string, details map[string]any) error {
	from := gs.State
	if err := gs.Transition(to); err != nil {
		return err
	}
	gs.AppendDecision(investigation.DecisionEntry{
		Agent:             agent,
		FromState:         from,
		ToState:           to,
		TaxonomyVersion:   o.taxonomyVersion,
		AttestationStatus: "n/a",
		Details:           details,
	})
	emitAudit(ctx, o.publisher, gs, audit.EventDecisionStateTransition, gs.Decisions.Severity,
		map[string]any{"from_state": string(from), "to_state": string(to)}, nil)
	return nil
}

func (o *Orchestrator) auditFailure(ctx context.Context, gs *investigation.GraphState, err error) {
	emitAudit(ctx, o.publisher, gs, audit.EventActionBlocked, gs.Decisions.Severity,
		nil, map[string]any{"reason": err.Error()})
}

// parse runs the "parsing" state: turn the alert's raw entity blob into
// typed entities and merge them into CaseFacts (§4.A, §3 "parsing").
func (o *Orchestrator) parse(ctx context.Context, gs *investigation.GraphState, in *alert.Alert) error {
	if o.entityParser == nil {
		return nil
	}
	entities, err := o.entityParser.Parse(ctx, in.RawEntities)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	gs.MergeContext(func(c *investigation.AccumulatedContext) {
		c.ParsedEntitiesByType = entities
	})
	gs.CaseFacts.Entities = entities
	return nil
}

// fpCheck runs the "fp_check" state (§4.D "Matching"). Returns true if
// the investigation was closed here.
func (o *Orchestrator) fpCheck(ctx context.Context, gs *investigation.GraphState, in *alert.Alert) (bool, error) {
	var patterns []*fpgov.Pattern
	if o.patternSource != nil {
		var err error
		patterns, err = o.patternSource.ActivePatterns(ctx, fpgov.Scope{TenantID: in.TenantID})
		if err != nil {
			return false, fmt.Errorf("fp_check: %w", err)
		}
	}

	flatEntities := flattenEntities(gs.CaseFacts.Entities)
	techniqueID := ""
	if len(in.Techniques) > 0 {
		techniqueID = in.Techniques[0]
	}
	match, matched := o.matcher.Match(patterns, fpgov.MatchInput{
		AlertName: in.Title,
		Entities:  flatEntities,
		Scope:     fpgov.Scope{TenantID: in.TenantID},
	}, techniqueID, in.Source)

	if !matched {
		return false, nil
	}

	gs.Decisions.FPMatched = true
	gs.AppendDecision(investigation.DecisionEntry{
		Agent:             "fp_governance",
		FromState:         investigation.StateFPCheck,
		ToState:           investigation.StateFPCheck,
		TaxonomyVersion:   o.taxonomyVersion,
		AttestationStatus: "n/a",
		Details:           map[string]any{"pattern_id": match.Pattern.PatternID, "confidence": match.Confidence},
	})

	if gs.ShadowMode {
		o.recordShadow(ctx, gs, "closed_fp_match")
		return false, nil
	}

	// The FP short-circuit is itself an auto-close, so it passes the same
	// Executor constraint gate every other action does (§4.A "verify
	// auto-close requires BOTH confidence >= threshold AND fp_matched").
	// A blocked close is not an error: the investigation simply continues
	// through enrichment and reasoning like any non-matching alert.
	if o.policy != nil {
		result, err := o.policy.Check(ctx, policy.CheckInput{
			Action:     policy.ActionAutoClose,
			Role:       "fp_governance",
			Confidence: match.Confidence,
			FPMatched:  true,
		})
		if err != nil {
			return false, fmt.Errorf("fp_check: policy check: %w", err)
		}
		if !result.Allowed {
			o.auditConstraintBlocked(ctx, gs, policy.ActionAutoClose, result)
			gs.AppendDecision(investigation.DecisionEntry{
				Agent:             "fp_governance",
				FromState:         investigation.StateFPCheck,
				ToState:           investigation.StateFPCheck,
				TaxonomyVersion:   o.taxonomyVersion,
				AttestationStatus: "n/a",
				Details:           map[string]any{"constraint_blocked_type": string(result.BlockedType), "reason": result.Reason},
			})
			return false, nil
		}
	}

	gs.Decisions.Confidence = match.Confidence
	if err := o.transition(ctx, gs, investigation.StateClosed, "fp_governance", map[string]any{"reason": "fp_pattern_match"}); err != nil {
		return false, err
	}
	emitAudit(ctx, o.publisher, gs, audit.EventActionAutoClosed, gs.Decisions.Severity,
		map[string]any{"pattern_id": match.Pattern.PatternID}, map[string]any{"confidence": match.Confidence})
	return true, nil
}

// auditConstraintBlocked publishes the security.constraint_blocked event
// every Executor gate denial carries (§4.A "All blocks are logged with
// constraint_blocked_type and emit audit").
func (o *Orchestrator) auditConstraintBlocked(ctx context.Context, gs *investigation.GraphState, action policy.Action, result *policy.Result) {
	emitAudit(ctx, o.publisher, gs, audit.EventSecurityConstraintBlocked, gs.Decisions.Severity,
		map[string]any{"action": string(action), "constraint_blocked_type": string(result.BlockedType)},
		map[string]any{"reason": result.Reason})
}

func flattenEntities(byType map[string][]string) []string {
	var out []string
	for _, vs := range byType {
		out = append(out, vs...)
	}
	return out
}

// reason runs the "reasoning" state, including the confidence-driven
// escalation re-run (§4.A "Reasoning & escalation").
func (o *Orchestrator) reason(ctx context.Context, gs *investigation.GraphState, in *alert.Alert) error {
	decision, err := o.callReasoning(ctx, gs, in, "reasoning_classification", false)
	if err != nil {
		return err
	}

	if decision.Confidence < 0.6 && (gs.Decisions.Severity == "critical" || gs.Decisions.Severity == "high") {
		escalated, escErr := o.callReasoning(ctx, gs, in, "reasoning_escalated", true)
		if escErr == nil && escalated.Confidence > decision.Confidence {
			decision = escalated
		}
	}

	gs.Decisions.Classification = decision.Classification
	gs.Decisions.Confidence = decision.Confidence
	gs.Decisions.RecommendedActions = decision.RecommendedActions
	return nil
}

func (o *Orchestrator) callReasoning(ctx context.Context, gs *investigation.GraphState, in *alert.Alert, task string, extendedThinking bool) (*reasoningDecision, error) {
	routeReq := llmrouter.RouteRequest{
		Task:          task,
		Severity:      gs.Decisions.Severity,
		ContextTokens: estimateContextTokens(gs),
		Confidence:    gs.Decisions.Confidence,
		TenantID:      gs.TenantID,
	}
	if gs.Decisions.Confidence == 0 {
		routeReq.Confidence = -1
	}
	decision, err := o.router.Route(routeReq)
	if err != nil {
		return nil, fmt.Errorf("reasoning: routing: %w", err)
	}
	gs.Decisions.RiskState = investigation.RiskStateNormal
	if decision.Degradation.Level != llmrouter.LevelFullCapability {
		gs.Decisions.RiskState = investigation.RiskStateElevated
	}

	resp, err := o.gateway.Call(ctx, gateway.CallRequest{
		TenantID:         gs.TenantID,
		Task:             task,
		Tier:             string(decision.Tier),
		SystemPrompt:     "classify this investigation and recommend actions",
		UntrustedContent: evidenceSummary(gs, in),
		MaxTokens:        4096,
		RequireJSON:      true,
		ExtendedThinking: extendedThinking,
	}, decision.Provider, decision.ModelID)
	if err != nil {
		return nil, fmt.Errorf("reasoning: gateway call: %w", err)
	}
	gs.Budget.LLMCalls++
	gs.Budget.TotalCostUSD += resp.Metrics.CostUSD

	// Safety violations never raise upward (§7): quarantines already
	// happened silently inside the gateway, so all that's left here is
	// the corresponding audit emission.
	if resp.InjectionRisk == gateway.RiskMalicious {
		emitAudit(ctx, o.publisher, gs, audit.EventSecurityInjectionQuarantined, gs.Decisions.Severity,
			map[string]any{"task": task}, map[string]any{"risk": string(resp.InjectionRisk)})
	}
	for _, id := range resp.QuarantinedIDs {
		emitAudit(ctx, o.publisher, gs, audit.EventSecurityTechniqueQuarantined, gs.Decisions.Severity,
			map[string]any{"technique_id": id, "taxonomy_version": resp.TaxonomyVersion}, nil)
	}

	var out reasoningDecision
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableReasoningOutput, err)
	}

	gs.AppendDecision(investigation.DecisionEntry{
		Agent:             task,
		FromState:         investigation.StateReasoning,
		ToState:           investigation.StateReasoning,
		TaxonomyVersion:   resp.TaxonomyVersion,
		AttestationStatus: "attested",
		Details:           map[string]any{"confidence": out.Confidence, "provider": decision.Provider, "tier": string(decision.Tier)},
	})
	return &out, nil
}

func evidenceSummary(gs *investigation.GraphState, in *alert.Alert) string {
	return fmt.Sprintf("title=%s description=%s techniques=%v ioc_hits=%v ueba=%v ctem=%v",
		in.Title, in.Description, in.Techniques, gs.Context.IOCHits, gs.Context.UEBARiskContext, gs.Context.CTEMExposures)
}

func estimateContextTokens(gs *investigation.GraphState) int {
	return len(gs.Context.IOCHits)*64 + len(gs.Context.CTEMExposures)*64 + len(gs.Context.ATLASTechniqueMatches)*32
}

// route applies the trust constraint, shadow mode, and the approval gate
// / executor constraints to pick the final state after reasoning (§4.A
// "Trust constraint", "Shadow mode", "Approval gate", "Executor
// constraints").
func (o *Orchestrator) route(ctx context.Context, gs *investigation.GraphState, in *alert.Alert) error {
	if gs.Context.AllUntrusted() {
		return o.toAwaitingHuman(ctx, gs, "untrusted_telemetry_only")
	}

	if gs.ShadowMode {
		o.recordShadow(ctx, gs, shadowActionFor(gs))
		return o.toAwaitingHuman(ctx, gs, "shadow_mode")
	}

	highestTier := 0
	for _, action := range gs.Decisions.RecommendedActions {
		tier := o.actionRiskTier(action)
		if tier > highestTier {
			highestTier = tier
		}
	}
	if highestTier > o.autoAllowedTier {
		return o.toAwaitingHuman(ctx, gs, "action_tier_exceeds_auto_allowed")
	}
	if gs.Decisions.Confidence < o.defaults.FPBaseThreshold {
		return o.toAwaitingHuman(ctx, gs, "confidence_below_auto_close_bar")
	}

	return o.execute(ctx, gs, in)
}

func (o *Orchestrator) actionRiskTier(action string) int {
	if o.riskClassifier == nil {
		return o.autoAllowedTier + 1
	}
	return o.riskClassifier.RiskTier(action)
}

func shadowActionFor(gs *investigation.GraphState) string {
	if len(gs.Decisions.RecommendedActions) == 0 {
		return "no_action"
	}
	return gs.Decisions.RecommendedActions[0]
}

func (o *Orchestrator) recordShadow(ctx context.Context, gs *investigation.GraphState, pipelineAction string) {
	if o.shadowRecorder == nil {
		return
	}
	if err := o.shadowRecorder.RecordShadowDecision(ctx, fpgov.ShadowDecision{
		InvestigationID: gs.InvestigationID,
		PipelineAction:  pipelineAction,
	}); err != nil {
		slog.Warn("orchestrator: failed to record shadow decision", "investigation_id", gs.InvestigationID, "error", err)
	}
}

func (o *Orchestrator) toAwaitingHuman(ctx context.Context, gs *investigation.GraphState, reason string) error {
	if err := o.transition(ctx, gs, investigation.StateAwaitingHuman, "orchestrator", map[string]any{"reason": reason}); err != nil {
		return err
	}
	gs.Decisions.RequiresHumanApproval = true
	if o.approvals != nil {
		gate := o.approvals.Open(gs.InvestigationID, gs.Decisions.Severity, o.defaults.ApprovalDeadline(gs.Decisions.Severity), gs.LastInteractionAt)
		if o.notifier != nil {
			action := shadowActionFor(gs)
			ts := o.notifier.NotifyRequested(ctx, gs.InvestigationID, gs.Decisions.Severity, action, gate.Deadline.UTC().Format("2006-01-02T15:04:05Z"))
			if ts != "" {
				o.approvals.SetThreadTS(gs.InvestigationID, ts)
			}
		}
	}
	emitAudit(ctx, o.publisher, gs, audit.EventApprovalRequested, gs.Decisions.Severity,
		map[string]any{"reason": reason}, nil)
	return nil
}

// HandleApprovalOutcome applies one ApprovalGateManager.Tick outcome to
// a reloaded GraphState: the one-shot 50%-of-interval escalation
// reminder, or the deadline-expiry resolution (§4.A "On expiry: for
// critical/high, set classification=escalated and keep investigation
// open; for medium/low, resolve as rejected and close"). Callers are
// expected to persist gs after this returns.
func (o *Orchestrator) HandleApprovalOutcome(ctx context.Context, gs *investigation.GraphState, outcome ApprovalOutcome) error {
	gate, _ := o.approvals.Get(gs.InvestigationID)
	threadTS := ""
	if gate != nil {
		threadTS = gate.ThreadTS
	}

	if outcome.Signal {
		if o.notifier != nil {
			o.notifier.NotifyEscalation(ctx, gs.InvestigationID, gs.Decisions.Severity, shadowActionFor(gs), threadTS)
		}
		emitAudit(ctx, o.publisher, gs, audit.EventApprovalEscalationSignal, gs.Decisions.Severity, nil, nil)
		return nil
	}

	if !outcome.Expired {
		return nil
	}

	if outcome.Resolution == "escalated" {
		gs.Decisions.Classification = "escalated"
		gs.AppendDecision(investigation.DecisionEntry{
			Agent:             "orchestrator",
			FromState:         gs.State,
			ToState:           gs.State,
			TaxonomyVersion:   o.taxonomyVersion,
			AttestationStatus: "n/a",
			Details:           map[string]any{"reason": "approval_deadline_expired"},
		})
		emitAudit(ctx, o.publisher, gs, audit.EventApprovalExpired, gs.Decisions.Severity,
			map[string]any{"resolution": "escalated"}, nil)
	} else {
		if err := o.transition(ctx, gs, investigation.StateClosed, "orchestrator", map[string]any{"reason": "approval_deadline_expired"}); err != nil {
			return err
		}
		emitAudit(ctx, o.publisher, gs, audit.EventApprovalRejected, gs.Decisions.Severity, nil, nil)
	}

	if o.notifier != nil {
		o.notifier.NotifyResolved(ctx, gs.InvestigationID, outcome.Resolution, threadTS)
	}
	return nil
}

// ResumeAfterApproval drives a reloaded awaiting_human GraphState to
// execute once a human has granted approval out of band (Slack button,
// the audit service's approvals endpoint, or any other approval
// surface). It closes the gate first so a concurrent Tick can no longer
// expire it out from under the human's decision.
func (o *Orchestrator) ResumeAfterApproval(ctx context.Context, gs *investigation.GraphState) error {
	threadTS := ""
	if gate, ok := o.approvals.Get(gs.InvestigationID); ok {
		threadTS = gate.ThreadTS
	}
	if !o.approvals.Approve(gs.InvestigationID) {
		return ErrApprovalGateNotFound
	}

	if err := o.execute(ctx, gs, nil); err != nil {
		gs.ForceFail(err.Error(), o.taxonomyVersion)
		o.auditFailure(ctx, gs, err)
		if o.notifier != nil {
			o.notifier.NotifyResolved(ctx, gs.InvestigationID, "approved_then_failed", threadTS)
		}
		return err
	}
	if o.notifier != nil {
		o.notifier.NotifyResolved(ctx, gs.InvestigationID, "approved", threadTS)
	}
	return nil
}

// execute runs the Executor's four-point constraint gate and, if it
// clears, calls the ActionExecutor and closes the investigation (§4.A
// "Executor constraints").
func (o *Orchestrator) execute(ctx context.Context, gs *investigation.GraphState, in *alert.Alert) error {
	if err := o.transition(ctx, gs, investigation.StateResponding, "orchestrator", nil); err != nil {
		return err
	}

	playbookID := ""
	if len(gs.Decisions.RecommendedActions) > 0 {
		playbookID = gs.Decisions.RecommendedActions[0]
	}
	if playbookID == "" {
		return ErrNoActivePlaybook
	}

	// Playbook execution after reasoning is gated on the allowlist, the
	// role matrix, and the guardrail refusals; the fp_matched AND-gate
	// belongs to the auto_close action fpCheck runs, not here, so a
	// reasoning-path execution is judged on what it actually is.
	if o.policy != nil {
		result, err := o.policy.Check(ctx, policy.CheckInput{
			Action:     policy.ActionExecutePlaybook,
			Role:       "orchestrator",
			PlaybookID: playbookID,
			Confidence: gs.Decisions.Confidence,
			FPMatched:  gs.Decisions.FPMatched,
		})
		if err != nil {
			return fmt.Errorf("execute: policy check: %w", err)
		}
		if !result.Allowed {
			o.auditConstraintBlocked(ctx, gs, policy.ActionExecutePlaybook, result)
			return o.toAwaitingHuman(ctx, gs, "executor_constraint_"+string(result.BlockedType))
		}
	}

	if o.executor != nil {
		if err := o.executor.Execute(ctx, gs.TenantID, gs.InvestigationID, playbookID, map[string]any{
			"classification": gs.Decisions.Classification,
			"confidence":     gs.Decisions.Confidence,
		}); err != nil {
			return fmt.Errorf("execute: %w", err)
		}
	}

	if err := o.transition(ctx, gs, investigation.StateClosed, "orchestrator", map[string]any{"playbook_id": playbookID}); err != nil {
		return err
	}
	emitAudit(ctx, o.publisher, gs, audit.EventActionExecuted, gs.Decisions.Severity,
		map[string]any{"playbook_id": playbookID}, map[string]any{"classification": gs.Decisions.Classification})
	return nil
}
