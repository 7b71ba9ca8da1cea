package fpgov

import (
	"sort"
	"time"
)

// minStratumSample is the minimum weekly review sample per stratum
// (§4.D "A stratified sampler picks >= 30 closures per stratum
// {rule_family x severity x asset_criticality} weekly").
const minStratumSample = 30

// novelPatternWindow is how long a pattern is considered novel enough to
// require full review instead of sampling (§4.D "novel patterns (< 30
// days) get 100% review").
const novelPatternWindow = 30 * 24 * time.Hour

// Stratum is one rule_family x severity x asset_criticality bucket the
// weekly sampler draws from.
type Stratum struct {
	RuleFamily      string
	Severity        string
	AssetCriticality string
}

// Closure is one auto-closed alert under review by the FP evaluation
// loop.
type Closure struct {
	InvestigationID string
	Stratum         Stratum
	PatternCreated  time.Time
	ClosedAt        time.Time
}

// isNovel reports whether the pattern that closed this alert is still
// within its novelty window as of now.
func (c Closure) isNovel(now time.Time) bool {
	return now.Sub(c.PatternCreated) < novelPatternWindow
}

// SampleForReview groups closures by stratum and selects which ones a
// human reviewer should see this week: every closure from a novel
// pattern, plus at least minStratumSample per stratum drawn from the
// rest, ordered by closure time so the sample favors the most recent
// activity within each stratum.
func SampleForReview(closures []Closure, now time.Time) []Closure {
	byStratum := map[Stratum][]Closure{}
	var selected []Closure

	for _, c := range closures {
		if c.isNovel(now) {
			selected = append(selected, c)
			continue
		}
		byStratum[c.Stratum] = append(byStratum[c.Stratum], c)
	}

	for _, bucket := range byStratum {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].ClosedAt.After(bucket[j].ClosedAt) })
		n := minStratumSample
		if n > len(bucket) {
			n = len(bucket)
		}
		selected = append(selected, bucket[:n]...)
	}
	return selected
}

// EscalationRecord is a later signal (from another detection source)
// about an alert that had already been auto-closed, used by the daily
// cross-check to surface possible false negatives (§4.D "A daily
// cross-check flags auto-closed alerts that were later escalated by
// another source as potential false negatives").
type EscalationRecord struct {
	InvestigationID string
	EscalatedAt     time.Time
	Source          string
}

// CrossCheckMissedTP names an auto-closed alert later escalated
// elsewhere, flagged as a potential false negative.
type CrossCheckMissedTP struct {
	InvestigationID string
	EscalatedAt     time.Time
	Source          string
}

// DailyCrossCheck joins yesterday's auto-closures against today's
// escalation feed and flags any overlap as a potential missed true
// positive.
func DailyCrossCheck(closures []Closure, escalations []EscalationRecord) []CrossCheckMissedTP {
	closedIDs := make(map[string]bool, len(closures))
	for _, c := range closures {
		closedIDs[c.InvestigationID] = true
	}

	var flagged []CrossCheckMissedTP
	for _, e := range escalations {
		if closedIDs[e.InvestigationID] {
			flagged = append(flagged, CrossCheckMissedTP{
				InvestigationID: e.InvestigationID,
				EscalatedAt:     e.EscalatedAt,
				Source:          e.Source,
			})
		}
	}
	return flagged
}

// AutonomyMetrics is the rolling precision/recall picture an
// AutonomyGuard evaluates (§4.D "An AutonomyGuard raises thresholds if
// precision < 0.98 or FNR > 0.005").
type AutonomyMetrics struct {
	Precision float64
	FNR       float64 // false negative rate
}

const (
	autonomyMinPrecision = 0.98
	autonomyMaxFNR       = 0.005
)

// AutonomyGuard watches rolling precision/FNR and raises the FP match
// threshold when either degrades, tightening auto-closure without
// requiring a human to intervene first.
type AutonomyGuard struct {
	adjuster *ThresholdAdjuster
}

// NewAutonomyGuard constructs a guard that drives the given adjuster's
// degradation override.
func NewAutonomyGuard(adjuster *ThresholdAdjuster) *AutonomyGuard {
	return &AutonomyGuard{adjuster: adjuster}
}

// Evaluate raises the adjuster's degradation override to the elevated
// threshold when metrics breach either bar, and clears it otherwise.
func (g *AutonomyGuard) Evaluate(m AutonomyMetrics, elevatedThreshold float64) {
	if m.Precision < autonomyMinPrecision || m.FNR > autonomyMaxFNR {
		g.adjuster.SetDegradationOverride(elevatedThreshold)
		return
	}
	g.adjuster.SetDegradationOverride(0)
}
