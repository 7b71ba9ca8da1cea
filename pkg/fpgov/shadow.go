package fpgov

import "time"

// goLiveAgreementWindow is the lookback window the agreement-rate
// criterion is measured over (§4.D "agreement >= 95% over 14 days").
const goLiveAgreementWindow = 14 * 24 * time.Hour

const (
	goLiveMinAgreement = 0.95
	goLiveMinPrecision = 0.98
)

// GoLiveCriteria is the evidence a tenant must present to disable shadow
// mode (§4.D "go_live_signed_off=true and the go-live criteria are met:
// agreement >= 95% over 14 days, FP precision >= 0.98, zero missed
// critical TPs, cost within projection").
type GoLiveCriteria struct {
	AgreementRate          float64
	AgreementWindowSatisfied bool // true once 14 days of shadow history exist
	FPPrecision            float64
	MissedCriticalTPs      int
	CostWithinProjection   bool
	SignedOff              bool
}

// meetsBar reports whether every go-live criterion is satisfied.
func (c GoLiveCriteria) meetsBar() bool {
	return c.SignedOff &&
		c.AgreementWindowSatisfied &&
		c.AgreementRate >= goLiveMinAgreement &&
		c.FPPrecision >= goLiveMinPrecision &&
		c.MissedCriticalTPs == 0 &&
		c.CostWithinProjection
}

// ShadowState is a tenant's (or rule family's) shadow-mode toggle (§4.D
// "Shadow mode (tenant-level). Default ON for new tenants").
type ShadowState struct {
	TenantID string
	Active   bool
}

// NewTenantShadowState returns shadow mode defaulted on, per
// config.Defaults.ShadowModeDefaultForNewTenants.
func NewTenantShadowState(tenantID string, defaultOn bool) *ShadowState {
	return &ShadowState{TenantID: tenantID, Active: defaultOn}
}

// Disable attempts to take the tenant out of shadow mode. It refuses
// unless every go-live criterion is met, returning ErrGoLiveCriteriaNotMet
// otherwise; the caller (governance API) is responsible for auditing
// both the attempt and the outcome.
func (s *ShadowState) Disable(criteria GoLiveCriteria) error {
	if !criteria.meetsBar() {
		return ErrGoLiveCriteriaNotMet
	}
	s.Active = false
	return nil
}

// Enable re-engages shadow mode; unlike Disable this has no criteria
// since re-entering the conservative state is always safe.
func (s *ShadowState) Enable() {
	s.Active = true
}

// ShadowDecision pairs an orchestrator's would-have-been decision with
// the eventual analyst decision so agreement rate can be computed (§4.A
// "A separate analyst decision log is paired with the shadow decision by
// investigation_id to compute agreement rate").
type ShadowDecision struct {
	InvestigationID string
	RecordedAt      time.Time
	PipelineAction  string
	AnalystAction   string
}

// Agrees reports whether the pipeline's shadow decision matched what the
// analyst actually did.
func (d ShadowDecision) Agrees() bool {
	return d.PipelineAction == d.AnalystAction
}

// AgreementRate computes the fraction of paired decisions within
// goLiveAgreementWindow of now that agree, and whether the 14-day window
// has enough history to be evaluated at all (at least one decision at or
// before the window boundary).
func AgreementRate(decisions []ShadowDecision, now time.Time) (rate float64, windowSatisfied bool) {
	cutoff := now.Add(-goLiveAgreementWindow)
	var total, agree int
	var oldestSeen time.Time
	for _, d := range decisions {
		if oldestSeen.IsZero() || d.RecordedAt.Before(oldestSeen) {
			oldestSeen = d.RecordedAt
		}
		if d.RecordedAt.Before(cutoff) {
			continue
		}
		total++
		if d.Agrees() {
			agree++
		}
	}
	if total == 0 {
		return 0, false
	}
	windowSatisfied = !oldestSeen.IsZero() && now.Sub(oldestSeen) >= goLiveAgreementWindow
	return float64(agree) / float64(total), windowSatisfied
}
