package obs

import "sync"

// AlertMixTracker accumulates the three rolling distributions
// DriftDetector compares against a baseline (§4.G: "alert source mix,
// technique frequency, entity patterns"). The baseline is frozen from the
// tracker's first observation window; every later window is compared
// against that one fixed reference -- the same freeze-then-compare shape
// fpgov's canary rollout uses for its pattern baselines, applied here to a
// system-wide mix instead of a single pattern's match rate.
type AlertMixTracker struct {
	mu       sync.Mutex
	window   map[DriftDimension]map[string]float64
	baseline map[DriftDimension]map[string]float64
}

// NewAlertMixTracker constructs a tracker with an empty current window and
// no baseline yet.
func NewAlertMixTracker() *AlertMixTracker {
	return &AlertMixTracker{window: newDimensionCounters()}
}

func newDimensionCounters() map[DriftDimension]map[string]float64 {
	return map[DriftDimension]map[string]float64{
		DimensionAlertSourceMix:     {},
		DimensionTechniqueFrequency: {},
		DimensionEntityPatterns:     {},
	}
}

// Observe records one admitted alert's contribution to each tracked
// dimension: its source product, the ATT&CK techniques it named, and the
// entity types enrichment resolved for it.
func (t *AlertMixTracker) Observe(source string, techniques []string, entityTypes []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if source != "" {
		t.window[DimensionAlertSourceMix][source]++
	}
	for _, tech := range techniques {
		t.window[DimensionTechniqueFrequency][tech]++
	}
	for _, et := range entityTypes {
		t.window[DimensionEntityPatterns][et]++
	}
}

// Snapshot returns the frozen baseline and the just-closed window as
// Distributions ready for DriftDetector.Evaluate, then resets the window
// for the next evaluation period. The first call has nothing to compare
// against: it freezes the collected window as the baseline and reports
// ready=false so the caller skips evaluation for that period.
func (t *AlertMixTracker) Snapshot() (baseline, window map[DriftDimension]Distribution, ready bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := toDistributions(t.window)
	t.window = newDimensionCounters()

	if t.baseline == nil {
		t.baseline = cloneAsCounters(snap)
		return nil, nil, false
	}
	return toDistributions(t.baseline), snap, true
}

func toDistributions(counters map[DriftDimension]map[string]float64) map[DriftDimension]Distribution {
	out := make(map[DriftDimension]Distribution, len(counters))
	for dim, counts := range counters {
		d := make(Distribution, len(counts))
		for k, v := range counts {
			d[k] = v
		}
		out[dim] = d
	}
	return out
}

func cloneAsCounters(dists map[DriftDimension]Distribution) map[DriftDimension]map[string]float64 {
	out := newDimensionCounters()
	for dim, d := range dists {
		for k, v := range d {
			out[dim][k] = v
		}
	}
	return out
}
