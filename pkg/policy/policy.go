// Package policy implements the Executor constraints gate (spec.md §4.A
// "Executor constraints"): before any action executes, verify the
// playbook is allowlisted, the auto-close confidence+fp_match AND-gate
// holds, the acting agent role has permission via a role matrix, and
// that routing policy and guardrails can never be touched by an agent.
//
// Grounded in krukkeniels-ai-box's cmd/aibox/internal/policy.Engine: a
// prepared OPA query evaluated per decision, with a hybrid shape where
// some checks run as direct Go comparisons against an effective policy
// and only the open-ended one (role permission) falls through to Rego.
// The allowlist/confidence/guardrail checks here play the role that
// engine.go's evaluateToolRules/evaluateNetworkRules play there: fast,
// auditable, no Rego round-trip needed. Role-permission evaluation is
// the one check that benefits from a declarative matrix, so it alone
// goes through rego.PreparedEvalQuery.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Action is one of the acting surfaces the Executor constraint gate
// checks (§4.A items 1-4).
type Action string

const (
	ActionExecutePlaybook     Action = "execute_playbook"
	ActionAutoClose           Action = "auto_close"
	ActionModifyRoutingPolicy Action = "modify_routing_policy"
	ActionDisableGuardrail    Action = "disable_guardrail"
)

// BlockedType is written into decision_chain and the audit record as
// constraint_blocked_type whenever Check denies an action.
type BlockedType string

const (
	BlockedPlaybookNotAllowlisted BlockedType = "playbook_not_allowlisted"
	BlockedAutoCloseGate          BlockedType = "auto_close_gate"
	BlockedRolePermission         BlockedType = "role_permission"
	BlockedGuardrailProtection    BlockedType = "guardrail_protection"
)

// ExecutorConstraints is the strict config replacing the dynamic
// named-parameter responses the original system used (§9 "Dynamic named
// parameters in responses are replaced with strict configs").
type ExecutorConstraints struct {
	AllowlistedPlaybooks        []string `json:"allowlisted_playbooks" yaml:"allowlisted_playbooks"`
	MinConfidenceForAutoClose   float64  `json:"min_confidence_for_auto_close" yaml:"min_confidence_for_auto_close"`
	RequireFPMatchForAutoClose  bool     `json:"require_fp_match_for_auto_close" yaml:"require_fp_match_for_auto_close"`
	CanModifyRoutingPolicy      bool     `json:"can_modify_routing_policy" yaml:"can_modify_routing_policy"`
	CanDisableGuardrails        bool     `json:"can_disable_guardrails" yaml:"can_disable_guardrails"`
}

// CheckInput is one proposed action awaiting the Executor constraint gate.
type CheckInput struct {
	Action     Action  `json:"action"`
	Role       string  `json:"role"`
	PlaybookID string  `json:"playbook_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	FPMatched  bool    `json:"fp_matched,omitempty"`
}

// Result is the gate's verdict. A denied action always carries a
// BlockedType so the caller can emit audit.EventSecurityConstraintBlocked
// with constraint_blocked_type set.
type Result struct {
	Allowed     bool
	BlockedType BlockedType
	Reason      string
}

func allow(reason string) *Result { return &Result{Allowed: true, Reason: reason} }

func deny(bt BlockedType, reason string) *Result {
	return &Result{Allowed: false, BlockedType: bt, Reason: reason}
}

// Engine evaluates the Executor constraint gate. The zero value is not
// usable; construct with NewEngine.
type Engine struct {
	mu          sync.RWMutex
	constraints ExecutorConstraints
	query       rego.PreparedEvalQuery
}

// NewEngine builds an Engine from the strict ExecutorConstraints config
// and an optional directory of .rego files defining the role matrix
// (package aluskort.policy, rule "allow"). regoDir may be empty, in
// which case the built-in default role matrix module is used.
func NewEngine(constraints ExecutorConstraints, regoDir string) (*Engine, error) {
	e := &Engine{constraints: constraints}
	if err := e.loadRoleMatrix(regoDir); err != nil {
		return nil, fmt.Errorf("policy: loading role matrix: %w", err)
	}
	return e, nil
}

// SetConstraints atomically swaps the effective ExecutorConstraints,
// used when a tenant's config is reloaded.
func (e *Engine) SetConstraints(c ExecutorConstraints) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.constraints = c
}

// Check runs the full four-point Executor constraint gate: the
// routing-policy/guardrail refusal first, then playbook allowlist,
// auto-close AND-gate, and role permission.
func (e *Engine) Check(ctx context.Context, in CheckInput) (*Result, error) {
	e.mu.RLock()
	constraints := e.constraints
	query := e.query
	e.mu.RUnlock()

	switch in.Action {
	case ActionModifyRoutingPolicy:
		if !constraints.CanModifyRoutingPolicy {
			return deny(BlockedGuardrailProtection, "routing policy modification is never permitted for an agent"), nil
		}
	case ActionDisableGuardrail:
		if !constraints.CanDisableGuardrails {
			return deny(BlockedGuardrailProtection, "guardrails cannot be disabled by an agent"), nil
		}
	}

	if in.Action == ActionExecutePlaybook || in.Action == ActionAutoClose {
		if in.PlaybookID != "" && !playbookAllowlisted(constraints.AllowlistedPlaybooks, in.PlaybookID) {
			return deny(BlockedPlaybookNotAllowlisted, fmt.Sprintf("playbook %q is not allowlisted", in.PlaybookID)), nil
		}
	}

	if in.Action == ActionAutoClose {
		if in.Confidence < constraints.MinConfidenceForAutoClose {
			return deny(BlockedAutoCloseGate, fmt.Sprintf("confidence %.3f below auto-close threshold %.3f", in.Confidence, constraints.MinConfidenceForAutoClose)), nil
		}
		if constraints.RequireFPMatchForAutoClose && !in.FPMatched {
			return deny(BlockedAutoCloseGate, "auto-close requires a matched FP pattern and none matched"), nil
		}
	}

	permitted, err := e.roleAllows(ctx, query, in)
	if err != nil {
		return nil, fmt.Errorf("policy: role permission evaluation: %w", err)
	}
	if !permitted {
		return deny(BlockedRolePermission, fmt.Sprintf("role %q is not permitted to perform %q", in.Role, in.Action)), nil
	}

	return allow("all executor constraints satisfied"), nil
}

func playbookAllowlisted(allowlist []string, playbookID string) bool {
	for _, p := range allowlist {
		if p == playbookID {
			return true
		}
	}
	return false
}

// roleAllows evaluates the role matrix in Rego. input is {action, role}.
func (e *Engine) roleAllows(ctx context.Context, query rego.PreparedEvalQuery, in CheckInput) (bool, error) {
	inputMap := map[string]any{
		"action": string(in.Action),
		"role":   in.Role,
	}
	rs, err := query.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	resultMap, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return false, nil
	}
	allowed, _ := resultMap["allow"].(bool)
	return allowed, nil
}

// loadRoleMatrix compiles the .rego files in dir (or the built-in
// default role matrix if dir is empty or contains none) into a prepared
// query over data.aluskort.policy.
func (e *Engine) loadRoleMatrix(dir string) error {
	modules := map[string]string{}
	if dir != "" {
		files, err := findRegoFiles(dir)
		if err != nil {
			return err
		}
		modules = files
	}
	if len(modules) == 0 {
		modules["default_role_matrix.rego"] = defaultRoleMatrix
	}

	opts := []func(*rego.Rego){rego.Query("data.aluskort.policy")}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}
	r := rego.New(opts...)
	pq, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("preparing role matrix query: %w", err)
	}

	e.mu.Lock()
	e.query = pq
	e.mu.Unlock()
	return nil
}

func findRegoFiles(dir string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("reading %s: %w", path, readErr)
		}
		relPath, _ := filepath.Rel(dir, path)
		files[relPath] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// defaultRoleMatrix is the in-code fallback role matrix (§9 "Deep
// inheritance in agents collapses to an AgentNode capability set ...
// behind a role matrix in code"). Production deployments normally
// override this via NewEngine's regoDir with a reviewed policy bundle;
// this default only grants the orchestrator's own built-in agent kinds
// the actions they need to make forward progress.
const defaultRoleMatrix = `package aluskort.policy

default allow = false

allow if {
	input.role == "orchestrator"
	input.action == "auto_close"
}

allow if {
	input.role == "orchestrator"
	input.action == "execute_playbook"
}

allow if {
	input.role == "fp_governance"
	input.action == "auto_close"
}

allow if {
	input.role == "admin"
	input.action == "modify_routing_policy"
}

allow if {
	input.role == "admin"
	input.action == "disable_guardrail"
}
`

// Constraints returns the effective ExecutorConstraints, used by callers
// that need to log them without reaching into the unexported mutex.
func (e *Engine) Constraints() ExecutorConstraints {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.constraints
}
