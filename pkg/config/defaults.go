package config

import "time"

// Defaults holds the system-wide tunables named throughout the spec. They are
// seeded here and may be overridden per-tenant by higher-level services; this
// package only owns the process-wide starting point.
type Defaults struct {
	// FP governance (§4.D)
	FPBaseThreshold     float64 `validate:"gt=0,lte=1"`
	FPElevatedThreshold float64 `validate:"gt=0,lte=1"`
	CanaryPromotionN    int     `validate:"min=1"`
	CanaryMaxDisagree   float64 `validate:"gte=0,lte=1"`

	// Drift detection (§4.G) - an exported field so tests can retune it, per the
	// open question: "parameterized in code (0.3 in reference)".
	JSDDriftThreshold float64 `validate:"gt=0,lte=1"`

	// Escalation budget (§4.C)
	EscalationBudgetPerHour int `validate:"min=1"`

	// Approval deadlines by severity (§4.A)
	ApprovalDeadlineCritical time.Duration
	ApprovalDeadlineHigh     time.Duration
	ApprovalDeadlineMedium   time.Duration
	ApprovalDeadlineLow      time.Duration

	// Circuit breaker (§4.C)
	BreakerConsecutiveFailures int           `validate:"min=1"`
	BreakerRecoveryTimeout     time.Duration `validate:"min=1"`

	// Router concurrency & quotas (§4.C, §5)
	ConcurrencySlotsCritical int `validate:"min=1"`
	ConcurrencySlotsHigh     int `validate:"min=1"`
	ConcurrencySlotsNormal   int `validate:"min=1"`
	ConcurrencySlotsLow      int `validate:"min=1"`

	RPMCritical int `validate:"min=1"`
	RPMHigh     int `validate:"min=1"`
	RPMNormal   int `validate:"min=1"`
	RPMLow      int `validate:"min=1"`

	TenantQuotaPremium  int `validate:"min=1"`
	TenantQuotaStandard int `validate:"min=1"`
	TenantQuotaTrial    int `validate:"min=1"`

	// Gateway token budgets (§4.B)
	TierZeroTokenBudget  int `validate:"min=1"`
	TierOneTokenBudget   int `validate:"min=1"`
	TierOnePlusBudget    int `validate:"min=1"`
	PromptAssemblyTokens int `validate:"min=0"` // reserved overhead, open question default: 512

	// Audit service (§4.E)
	AuditBatchSize           int           `validate:"min=1,max=100"`
	AuditContinuousInterval  time.Duration `validate:"min=1"`
	AuditLagAlertThreshold   int64         `validate:"min=1"`
	EvidencePackageSLO       time.Duration `validate:"min=1"`
	RetentionWarmBufferMonth int           `validate:"min=0"`

	// Retry policy (§7)
	RetryAttempts int           `validate:"min=1"`
	RetryBaseWait time.Duration `validate:"min=1"`

	// Shadow mode (§4.D)
	ShadowModeDefaultForNewTenants bool

	// Orphan detection (§5 "Shared resources", SPEC_FULL.md §D.1): how long
	// a claimed investigation may go without a heartbeat before a reaper
	// frees it for another replica to pick back up.
	OrphanStaleAfter time.Duration `validate:"min=1"`
}

// DefaultDefaults returns the reference values named explicitly in the spec
// or chosen to resolve its open questions. Mirrors the teacher's
// pkg/config/defaults.go role: values applied when a more specific layer
// doesn't override them.
func DefaultDefaults() *Defaults {
	return &Defaults{
		FPBaseThreshold:     0.90,
		FPElevatedThreshold: 0.95,
		CanaryPromotionN:    50,
		CanaryMaxDisagree:   0.05,

		JSDDriftThreshold: 0.3,

		EscalationBudgetPerHour: 10,

		ApprovalDeadlineCritical: 1 * time.Hour,
		ApprovalDeadlineHigh:     2 * time.Hour,
		ApprovalDeadlineMedium:   4 * time.Hour,
		ApprovalDeadlineLow:      8 * time.Hour,

		BreakerConsecutiveFailures: 5,
		BreakerRecoveryTimeout:     30 * time.Second,

		ConcurrencySlotsCritical: 8,
		ConcurrencySlotsHigh:     6,
		ConcurrencySlotsNormal:   4,
		ConcurrencySlotsLow:      2,

		RPMCritical: 200,
		RPMHigh:     100,
		RPMNormal:   50,
		RPMLow:      20,

		TenantQuotaPremium:  500,
		TenantQuotaStandard: 100,
		TenantQuotaTrial:    20,

		TierZeroTokenBudget:  4096,
		TierOneTokenBudget:   8192,
		TierOnePlusBudget:    16384,
		PromptAssemblyTokens: 512,

		AuditBatchSize:           100,
		AuditContinuousInterval:  5 * time.Minute,
		AuditLagAlertThreshold:   1000,
		EvidencePackageSLO:       60 * time.Second,
		RetentionWarmBufferMonth: 1,

		RetryAttempts: 3,
		RetryBaseWait: 1 * time.Second,

		ShadowModeDefaultForNewTenants: true,

		OrphanStaleAfter: 10 * time.Minute,
	}
}

// ApprovalDeadline returns the configured approval window for a severity.
// Unknown severities fall back to the "low" deadline (most conservative
// caller-visible SLA, never the tightest).
func (d *Defaults) ApprovalDeadline(severity string) time.Duration {
	switch severity {
	case "critical":
		return d.ApprovalDeadlineCritical
	case "high":
		return d.ApprovalDeadlineHigh
	case "medium":
		return d.ApprovalDeadlineMedium
	default:
		return d.ApprovalDeadlineLow
	}
}
