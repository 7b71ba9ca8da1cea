package llmrouter

// DegradationLevel is the system-wide capability state (§4.C, §9 Design
// Notes "Dynamic named parameters... DegradationPolicy").
type DegradationLevel string

const (
	LevelFullCapability   DegradationLevel = "full_capability"
	LevelSecondaryActive  DegradationLevel = "secondary_active"
	LevelDeterministicOnly DegradationLevel = "deterministic_only"
	LevelPassthrough      DegradationLevel = "passthrough"
)

// DegradationPolicy is attached to every RoutingDecision but is advisory
// only -- enforcement lives in the orchestrator (§4.C).
type DegradationPolicy struct {
	Level                       DegradationLevel
	ConfidenceThresholdOverride float64 // 0 means "no override"
	AutoCloseAllowed            bool
	ExtendedThinkingAvailable   bool
	MaxTier                     Tier
}

// ComputeDegradationLevel derives the system-wide level from provider
// health: FULL_CAPABILITY when every known provider is healthy,
// SECONDARY_ACTIVE when the primary is down but a secondary is up,
// DETERMINISTIC_ONLY when every LLM provider is down, PASSTHROUGH when
// there are no providers registered at all (infrastructure-wide outage).
func ComputeDegradationLevel(health *ProviderHealthRegistry, primary, secondary string) DegradationPolicy {
	if primary == "" {
		return DegradationPolicy{Level: LevelPassthrough, AutoCloseAllowed: false, ExtendedThinkingAvailable: false, MaxTier: Tier0}
	}

	primaryUp := health.IsAvailable(primary)
	secondaryUp := secondary != "" && health.IsAvailable(secondary)

	switch {
	case primaryUp:
		return DegradationPolicy{
			Level:                     LevelFullCapability,
			AutoCloseAllowed:          true,
			ExtendedThinkingAvailable: true,
			MaxTier:                   Tier2,
		}
	case secondaryUp:
		return DegradationPolicy{
			Level:                       LevelSecondaryActive,
			ConfidenceThresholdOverride: 0.95,
			AutoCloseAllowed:            true,
			ExtendedThinkingAvailable:   false,
			MaxTier:                     Tier1,
		}
	default:
		return DegradationPolicy{
			Level:                     LevelDeterministicOnly,
			AutoCloseAllowed:          false,
			ExtendedThinkingAvailable: false,
			MaxTier:                   Tier0,
		}
	}
}
