package fpgov

import "sync"

// DriftState is the adjuster's own view of drift elevation, fed by the
// observability package's drift detector (§4.G) without fpgov importing
// obs directly -- the orchestrator wires the two together.
type DriftState string

const (
	DriftNormal   DriftState = "normal"
	DriftElevated DriftState = "elevated"
)

// ThresholdAdjuster computes the effective FP-match confidence threshold
// (§4.D "Effective threshold. Base is 0.90. A ThresholdAdjuster raises it
// to 0.95 while drift is in the elevated state"). The degradation policy
// from §4.C may also raise it further via SetDegradationOverride.
type ThresholdAdjuster struct {
	mu                  sync.RWMutex
	base                float64
	elevated            float64
	drift               DriftState
	degradationOverride float64 // 0 means "no override"
}

// NewThresholdAdjuster constructs an adjuster with the reference base
// (0.90) and elevated (0.95) thresholds.
func NewThresholdAdjuster(base, elevated float64) *ThresholdAdjuster {
	return &ThresholdAdjuster{base: base, elevated: elevated, drift: DriftNormal}
}

// SetDrift updates the drift state the adjuster reacts to.
func (a *ThresholdAdjuster) SetDrift(d DriftState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drift = d
}

// SetDegradationOverride lets the router's degradation policy raise the
// threshold further (§4.C DegradationPolicy.ConfidenceThresholdOverride);
// 0 clears any override.
func (a *ThresholdAdjuster) SetDegradationOverride(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.degradationOverride = v
}

// Effective returns the threshold FP matching must clear right now: the
// maximum of the drift-aware threshold and any degradation override.
func (a *ThresholdAdjuster) Effective() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t := a.base
	if a.drift == DriftElevated {
		t = a.elevated
	}
	if a.degradationOverride > t {
		t = a.degradationOverride
	}
	return t
}
