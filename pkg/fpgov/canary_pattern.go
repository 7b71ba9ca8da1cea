package fpgov

// CanaryPromoter evaluates a shadow-status pattern's accumulated decision
// counters against the configured promotion criteria (§4.D "Canary
// (pattern promotion). A shadow pattern promotes to active once
// total_decisions >= N and disagreement_rate <= max, else it remains
// shadow").
type CanaryPromoter struct {
	promotionN  int
	maxDisagree float64
}

// NewCanaryPromoter constructs a promoter from the configured thresholds
// (config.Defaults.CanaryPromotionN / CanaryMaxDisagree).
func NewCanaryPromoter(promotionN int, maxDisagree float64) *CanaryPromoter {
	return &CanaryPromoter{promotionN: promotionN, maxDisagree: maxDisagree}
}

// Record folds one analyst decision outcome into the pattern's canary
// counters. agree is true when the analyst's closure decision matched
// what the pattern predicted.
func (c *CanaryPromoter) Record(p *Pattern, agree bool) {
	p.Counters.TotalDecisions++
	if agree {
		p.Counters.AgreeCount++
	} else {
		p.Counters.DisagreeCount++
	}
}

// Evaluate promotes p from shadow to active when it has accumulated
// enough decisions at a low enough disagreement rate. Returns whether a
// promotion occurred; a pattern that isn't in shadow status is left
// untouched and returns false.
func (c *CanaryPromoter) Evaluate(p *Pattern) bool {
	if p.Status != StatusShadow {
		return false
	}
	if p.Counters.TotalDecisions < c.promotionN {
		return false
	}
	if p.Counters.DisagreementRate() > c.maxDisagree {
		return false
	}
	p.Status = StatusActive
	return true
}
