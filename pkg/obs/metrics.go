// Package obs is the Observability & Degradation Glue component (§4.G):
// Prometheus metrics for routing, audit verification, FP precision/
// recall, shadow agreement, drift, and per-tenant cost, plus the drift
// detector that feeds fpgov's ThresholdAdjuster.
//
// Grounded on Generativebots-ocx-backend-go-svc's
// internal/escrow/metrics.go: a single struct of *prometheus.CounterVec/
// GaugeVec/HistogramVec fields built with promauto at construction time,
// with Record*/Observe* methods hiding label-value plumbing from
// callers.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector ALUSKORT exports. One
// instance is constructed per process at startup (§9 "Global mutable
// state... metric registries... initialized at startup").
type Metrics struct {
	// Routing (§4.C)
	RoutingDecisions  *prometheus.CounterVec
	RoutingFallbacks  *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	DegradationLevel  *prometheus.GaugeVec
	EscalationBudgetUsed *prometheus.GaugeVec

	// Audit (§4.E)
	AuditChainValid             *prometheus.GaugeVec
	AuditBusLag                 *prometheus.GaugeVec
	AuditVerificationDuration   *prometheus.HistogramVec
	AuditEvidencePackageDuration prometheus.Histogram

	// FP governance (§4.D, §4.G)
	FPPrecision    *prometheus.GaugeVec
	FPRecall       *prometheus.GaugeVec
	FPFalseNegRate *prometheus.GaugeVec
	ShadowAgreement *prometheus.GaugeVec

	// Drift (§4.G)
	DriftScore    *prometheus.GaugeVec
	DriftElevated *prometheus.GaugeVec

	// Cost (§4.B, §4.G)
	TenantCostUSD *prometheus.CounterVec

	// Gateway (§4.B)
	InjectionVerdicts *prometheus.CounterVec
	QuarantinedTechniques *prometheus.CounterVec
}

// NewMetrics builds and registers every collector against the given
// registerer. Pass prometheus.DefaultRegisterer in production, or a
// fresh prometheus.NewRegistry() in tests to avoid cross-test collisions
// (mirrors the teacher's preference for constructor-injected
// dependencies over package-level globals).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RoutingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aluskort_routing_decisions_total",
			Help: "Total routing decisions by tier, provider, and fallback status.",
		}, []string{"tier", "provider", "is_fallback"}),
		RoutingFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aluskort_routing_provider_failover_total",
			Help: "Total provider failovers due to an open circuit breaker.",
		}, []string{"from_provider", "to_provider"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aluskort_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half_open, 2=open).",
		}, []string{"provider"}),
		DegradationLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aluskort_degradation_level",
			Help: "Current system-wide degradation level (one gauge set to 1 per process).",
		}, []string{"level"}),
		EscalationBudgetUsed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aluskort_escalation_budget_used",
			Help: "Top-tier escalations used in the current sliding hour window.",
		}, []string{"tenant"}),

		AuditChainValid: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audit_chain_valid",
			Help: "1 if the most recent verification of a tenant's chain passed, else 0.",
		}, []string{"tenant", "check_type"}),
		AuditBusLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audit_kafka_lag",
			Help: "Bus offset minus max persisted sequence_number, per tenant.",
		}, []string{"tenant"}),
		AuditVerificationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_verification_duration_seconds",
			Help:    "Duration of a chain verification run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"check_type"}),
		AuditEvidencePackageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audit_evidence_package_duration_seconds",
			Help:    "Duration of evidence package assembly (SLO <= 60s for warm tier).",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		}),

		FPPrecision: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aluskort_fp_precision",
			Help: "Rolling FP auto-close precision by rule family.",
		}, []string{"rule_family"}),
		FPRecall: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aluskort_fp_recall",
			Help: "Rolling FP auto-close recall by rule family.",
		}, []string{"rule_family"}),
		FPFalseNegRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aluskort_fp_false_negative_rate",
			Help: "Rolling false negative rate by rule family.",
		}, []string{"rule_family"}),
		ShadowAgreement: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aluskort_shadow_agreement_rate",
			Help: "Shadow-decision agreement rate with analyst action, by tenant and rule family.",
		}, []string{"tenant", "rule_family"}),

		DriftScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aluskort_drift_score",
			Help: "Jensen-Shannon drift score per distribution dimension.",
		}, []string{"dimension"}),
		DriftElevated: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aluskort_drift_elevated",
			Help: "1 if the weighted overall drift score is above threshold.",
		}, []string{}),

		TenantCostUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aluskort_tenant_cost_usd_total",
			Help: "Cumulative LLM spend per tenant in USD.",
		}, []string{"tenant"}),

		InjectionVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aluskort_injection_verdicts_total",
			Help: "Injection classifier verdicts by risk level and source (regex vs llm).",
		}, []string{"risk", "source"}),
		QuarantinedTechniques: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aluskort_quarantined_techniques_total",
			Help: "Technique IDs stripped from automation-driving fields by output validation.",
		}, []string{"tenant"}),
	}
}

// RecordRoutingDecision records one router decision (§4.C step 9
// "Record metrics (provider, tier, is_fallback)").
func (m *Metrics) RecordRoutingDecision(tier, provider string, isFallback bool) {
	m.RoutingDecisions.WithLabelValues(tier, provider, boolLabel(isFallback)).Inc()
}

// RecordFailover records a provider-health-driven swap (scenario 3:
// "routing.provider_failover audit event published").
func (m *Metrics) RecordFailover(fromProvider, toProvider string) {
	m.RoutingFallbacks.WithLabelValues(fromProvider, toProvider).Inc()
}

// SetBreakerState publishes a provider's breaker state as a gauge: 0
// closed, 1 half-open, 2 open.
func (m *Metrics) SetBreakerState(provider string, state int) {
	m.BreakerState.WithLabelValues(provider).Set(float64(state))
}

// SetDegradationLevel zeroes every known level gauge then sets the
// current one to 1, so a dashboard query for "= 1" always names exactly
// the active level.
func (m *Metrics) SetDegradationLevel(levels []string, current string) {
	for _, l := range levels {
		v := 0.0
		if l == current {
			v = 1.0
		}
		m.DegradationLevel.WithLabelValues(l).Set(v)
	}
}

// RecordAuditVerification records one verification run's pass/fail and
// duration (§4.E "Every run writes a row to audit_verification_log.
// Metrics: audit_chain_valid{tenant,check_type}...").
func (m *Metrics) RecordAuditVerification(tenant, checkType string, valid bool, seconds float64) {
	v := 0.0
	if valid {
		v = 1.0
	}
	m.AuditChainValid.WithLabelValues(tenant, checkType).Set(v)
	m.AuditVerificationDuration.WithLabelValues(checkType).Observe(seconds)
}

// SetBusLag publishes the hourly lag check (§4.E "Hourly lag: bus_offset
// - max(sequence_number) per tenant; alert if > 1000 for > 5 min").
func (m *Metrics) SetBusLag(tenant string, lag int64) {
	m.AuditBusLag.WithLabelValues(tenant).Set(float64(lag))
}

// RecordTenantCost accumulates a tenant's LLM spend.
func (m *Metrics) RecordTenantCost(tenant string, usd float64) {
	m.TenantCostUSD.WithLabelValues(tenant).Add(usd)
}

// RecordInjectionVerdict records one classifier verdict, tagging
// whether it came from the regex pass or the second-opinion LLM pass
// (§4.B step 2).
func (m *Metrics) RecordInjectionVerdict(risk, source string) {
	m.InjectionVerdicts.WithLabelValues(risk, source).Inc()
}

// RecordQuarantinedTechnique records a technique ID stripped by output
// validation (§4.B step 9, "emits technique.quarantined audit").
func (m *Metrics) RecordQuarantinedTechnique(tenant string) {
	m.QuarantinedTechniques.WithLabelValues(tenant).Inc()
}

// SetFPPrecision, SetFPRecall, SetFPFalseNegRate publish the rolling
// per-rule-family FP quality metrics the AutonomyGuard (§4.D) reacts to.
func (m *Metrics) SetFPPrecision(ruleFamily string, v float64)    { m.FPPrecision.WithLabelValues(ruleFamily).Set(v) }
func (m *Metrics) SetFPRecall(ruleFamily string, v float64)       { m.FPRecall.WithLabelValues(ruleFamily).Set(v) }
func (m *Metrics) SetFPFalseNegRate(ruleFamily string, v float64) { m.FPFalseNegRate.WithLabelValues(ruleFamily).Set(v) }

// SetShadowAgreement publishes the agreement rate between shadow
// decisions and paired analyst actions (§4.A "Shadow mode").
func (m *Metrics) SetShadowAgreement(tenant, ruleFamily string, rate float64) {
	m.ShadowAgreement.WithLabelValues(tenant, ruleFamily).Set(rate)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
