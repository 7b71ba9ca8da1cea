package llmrouter

// TaskCapabilities describes what a task requires of a model (§4.C).
type TaskCapabilities struct {
	RequiresToolUse          bool
	RequiresJSONReliability  bool
	MaxContextTokens         int
	LatencySLOSeconds        float64
	RequiresExtendedThinking bool
}

// Satisfies reports whether a model meets a task's requirements (§4.C
// override-chain step 6, "capability match").
func (tc TaskCapabilities) Satisfies(m ModelInfo) bool {
	if tc.RequiresToolUse && !m.SupportsToolUse {
		return false
	}
	if tc.RequiresJSONReliability && !m.SupportsJSON {
		return false
	}
	if tc.RequiresExtendedThinking && !m.SupportsExtendedThinking {
		return false
	}
	if tc.MaxContextTokens > 0 && m.MaxContextTokens < tc.MaxContextTokens {
		return false
	}
	return true
}

// TaskCapabilityRegistry is the closed set of ~18 tasks named in §4.C,
// each mapped to its capability requirements and base tier.
type TaskCapabilityRegistry struct {
	tasks map[string]taskEntry
}

type taskEntry struct {
	capabilities      TaskCapabilities
	baseTier          Tier
	reasoningRequired bool
}

// NewTaskCapabilityRegistry seeds the registry with the SOC-investigation
// task set this platform's orchestrator, gateway, and FP governance
// components issue calls for.
func NewTaskCapabilityRegistry() *TaskCapabilityRegistry {
	r := &TaskCapabilityRegistry{tasks: make(map[string]taskEntry)}
	defaults := []struct {
		name      string
		caps      TaskCapabilities
		tier      Tier
		reasoning bool
	}{
		{"alert_parsing", TaskCapabilities{RequiresJSONReliability: true, MaxContextTokens: 8000, LatencySLOSeconds: 5}, Tier0, false},
		{"injection_classification", TaskCapabilities{RequiresJSONReliability: true, MaxContextTokens: 4000, LatencySLOSeconds: 2}, Tier0, false},
		{"ueba_context_summarize", TaskCapabilities{MaxContextTokens: 16000, LatencySLOSeconds: 10}, Tier1, false},
		{"ctem_correlation", TaskCapabilities{MaxContextTokens: 16000, LatencySLOSeconds: 10}, Tier1, false},
		{"atlas_technique_mapping", TaskCapabilities{RequiresJSONReliability: true, MaxContextTokens: 16000, LatencySLOSeconds: 10}, Tier1, false},
		{"reasoning_classification", TaskCapabilities{RequiresJSONReliability: true, MaxContextTokens: 32000, LatencySLOSeconds: 20}, Tier1, true},
		{"reasoning_escalated", TaskCapabilities{RequiresJSONReliability: true, RequiresExtendedThinking: true, MaxContextTokens: 64000, LatencySLOSeconds: 45}, Tier1Plus, true},
		{"action_recommendation", TaskCapabilities{RequiresJSONReliability: true, MaxContextTokens: 16000, LatencySLOSeconds: 15}, Tier1, true},
		{"evidence_summarize", TaskCapabilities{MaxContextTokens: 32000, LatencySLOSeconds: 15}, Tier1, false},
		{"playbook_ranking", TaskCapabilities{RequiresJSONReliability: true, MaxContextTokens: 16000, LatencySLOSeconds: 10}, Tier1, false},
		{"output_validation_second_opinion", TaskCapabilities{RequiresJSONReliability: true, MaxContextTokens: 4000, LatencySLOSeconds: 3}, Tier0, false},
		{"tool_call_planning", TaskCapabilities{RequiresToolUse: true, MaxContextTokens: 16000, LatencySLOSeconds: 15}, Tier1, false},
		{"fp_pattern_suggestion", TaskCapabilities{RequiresJSONReliability: true, MaxContextTokens: 8000, LatencySLOSeconds: 10}, Tier1, false},
		{"compliance_report_summarize", TaskCapabilities{MaxContextTokens: 32000, LatencySLOSeconds: 30}, Tier1, false},
		{"drift_explanation", TaskCapabilities{MaxContextTokens: 8000, LatencySLOSeconds: 10}, Tier1, false},
		{"incident_memory_similarity", TaskCapabilities{MaxContextTokens: 16000, LatencySLOSeconds: 10}, Tier1, false},
		{"shadow_agreement_review", TaskCapabilities{RequiresJSONReliability: true, MaxContextTokens: 16000, LatencySLOSeconds: 15}, Tier1, true},
		{"deep_forensic_reasoning", TaskCapabilities{RequiresExtendedThinking: true, RequiresJSONReliability: true, MaxContextTokens: 128000, LatencySLOSeconds: 60}, Tier2, true},
	}
	for _, d := range defaults {
		r.tasks[d.name] = taskEntry{capabilities: d.caps, baseTier: d.tier, reasoningRequired: d.reasoning}
	}
	return r
}

// RequiresReasoning reports whether task is one of the reasoning-requiring
// tasks the override chain's step 3 checks for (§4.C "Critical severity
// AND reasoning-requiring task forces >= tier-1").
func (r *TaskCapabilityRegistry) RequiresReasoning(task string) bool {
	return r.tasks[task].reasoningRequired
}

// Lookup returns a task's capabilities and base tier. An unknown task maps
// to tier-1 with no special capability requirements (§4.C override-chain
// step 1, "unknown task -> tier-1").
func (r *TaskCapabilityRegistry) Lookup(task string) (TaskCapabilities, Tier) {
	if e, ok := r.tasks[task]; ok {
		return e.capabilities, e.baseTier
	}
	return TaskCapabilities{}, Tier1
}
