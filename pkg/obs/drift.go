package obs

import "math"

// Distribution is a discrete frequency distribution over category names,
// as counted from a rolling window or a baseline period (§4.G "three
// distributions (alert source mix, technique frequency, entity
// patterns)").
type Distribution map[string]float64

// normalize returns a copy of d scaled to sum to 1. A nil or all-zero
// distribution normalizes to the empty distribution, which jsDivergence
// scores 0.5 against any non-empty distribution (half the maximum of 1)
// and 0 against another empty one.
func (d Distribution) normalize() Distribution {
	var total float64
	for _, v := range d {
		total += v
	}
	out := make(Distribution, len(d))
	if total <= 0 {
		return out
	}
	for k, v := range d {
		out[k] = v / total
	}
	return out
}

// jsDivergence computes the Jensen-Shannon divergence between two
// discrete distributions, base-2 log so the result is bounded to [0,1].
// Categories present in only one distribution are treated as zero-mass
// in the other.
func jsDivergence(p, q Distribution) float64 {
	pn, qn := p.normalize(), q.normalize()
	keys := make(map[string]struct{}, len(pn)+len(qn))
	for k := range pn {
		keys[k] = struct{}{}
	}
	for k := range qn {
		keys[k] = struct{}{}
	}
	if len(keys) == 0 {
		return 0
	}

	var klPM, klQM float64
	for k := range keys {
		pv, qv := pn[k], qn[k]
		mv := (pv + qv) / 2
		if mv == 0 {
			continue
		}
		if pv > 0 {
			klPM += pv * log2(pv/mv)
		}
		if qv > 0 {
			klQM += qv * log2(qv/mv)
		}
	}
	return (klPM + klQM) / 2
}

func log2(x float64) float64 {
	return math.Log(x) / math.Ln2
}

// DriftDimension names one of the three rolling distributions the
// detector watches.
type DriftDimension string

const (
	DimensionAlertSourceMix     DriftDimension = "alert_source_mix"
	DimensionTechniqueFrequency DriftDimension = "technique_frequency"
	DimensionEntityPatterns     DriftDimension = "entity_patterns"
)

// dimensionWeights implements the §4.G "weighted overall score
// (0.4/0.35/0.25)" in dimension declaration order.
var dimensionWeights = map[DriftDimension]float64{
	DimensionAlertSourceMix:     0.4,
	DimensionTechniqueFrequency: 0.35,
	DimensionEntityPatterns:     0.25,
}

// DriftReport is one detector run's per-dimension scores plus the
// weighted overall score and the elevated/normal verdict.
type DriftReport struct {
	Scores   map[DriftDimension]float64
	Overall  float64
	Elevated bool
}

// DriftDetector computes Jensen-Shannon divergence between a rolling
// window and a baseline for each of the three tracked distributions,
// combines them into a weighted overall score, and exposes the
// elevated/normal verdict fpgov.ThresholdAdjuster and the FP sampling
// multiplier consume (§4.G, open question "JSD drift threshold: 0.3").
//
// Grounded on fpgov's ThresholdAdjuster/AutonomyGuard shape: a small
// stateful evaluator over named inputs that flips a shared state flag,
// generalized here from a single confidence-threshold toggle to a
// three-dimension weighted score.
type DriftDetector struct {
	threshold float64
	metrics   *Metrics
}

// NewDriftDetector constructs a detector against the given threshold
// (the open question's reference value is 0.3) and an optional metrics
// sink (nil is fine in tests).
func NewDriftDetector(threshold float64, metrics *Metrics) *DriftDetector {
	return &DriftDetector{threshold: threshold, metrics: metrics}
}

// Evaluate computes the JS divergence per dimension between baseline and
// window, combines them with the fixed weights, publishes metrics when a
// sink is attached, and reports whether the overall score breaches the
// detector's threshold.
func (d *DriftDetector) Evaluate(baseline, window map[DriftDimension]Distribution) DriftReport {
	scores := make(map[DriftDimension]float64, len(dimensionWeights))
	var overall float64
	for dim, weight := range dimensionWeights {
		score := jsDivergence(baseline[dim], window[dim])
		scores[dim] = score
		overall += weight * score
		if d.metrics != nil {
			d.metrics.DriftScore.WithLabelValues(string(dim)).Set(score)
		}
	}

	elevated := overall > d.threshold
	if d.metrics != nil {
		v := 0.0
		if elevated {
			v = 1.0
		}
		d.metrics.DriftElevated.WithLabelValues().Set(v)
	}

	return DriftReport{Scores: scores, Overall: overall, Elevated: elevated}
}
