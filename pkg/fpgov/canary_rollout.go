package fpgov

import "time"

// canaryRolloutWindow is how long a slice must run in canary status
// before it is eligible for promotion (§4.D "Canary rollout (system-
// level)... Promotion criteria: 7 days, precision >= 0.98, zero missed
// TPs").
const canaryRolloutWindow = 7 * 24 * time.Hour

const (
	canaryPromotePrecision = 0.98
	canaryRollbackPrecision = 0.95
)

// SliceDimension is the axis a system-level canary rollout slices along
// (§4.D "slices (by tenant, severity band, rule family, or data
// source)").
type SliceDimension string

const (
	SliceTenant      SliceDimension = "tenant"
	SliceSeverity    SliceDimension = "severity_band"
	SliceRuleFamily  SliceDimension = "rule_family"
	SliceDataSource  SliceDimension = "data_source"
)

// SliceStatus tracks a rollout slice's autonomy level.
type SliceStatus string

const (
	SliceShadow SliceStatus = "shadow"
	SliceCanary SliceStatus = "canary"
	SliceActive SliceStatus = "active"
)

// RolloutSlice is one system-level canary slice under evaluation (§4.D
// "Canary rollout (system-level). Separate from per-pattern canary").
type RolloutSlice struct {
	Dimension       SliceDimension
	Value           string
	Status          SliceStatus
	CanaryStartedAt time.Time
	Precision       float64
	MissedTPs       int
}

// RolloutEvent is emitted on every promotion and rollback (§4.D "Every
// promotion and rollback is audited").
type RolloutEvent struct {
	Dimension SliceDimension
	Value     string
	Kind      string // "promotion" or "rollback"
	At        time.Time
}

// RolloutManager drives system-level canary promotion and rollback,
// reusing the same KillSwitchManager the per-alert matcher consults so a
// rollback immediately suppresses auto-closure for the slice (§4.D
// "revert the slice to shadow AND activate a kill switch for the
// slice").
type RolloutManager struct {
	killSwitches *KillSwitchManager
	onEvent      func(RolloutEvent)
	nowFn        func() time.Time
}

// NewRolloutManager constructs a RolloutManager. onEvent, if non-nil, is
// invoked synchronously for every promotion/rollback for audit wiring.
func NewRolloutManager(killSwitches *KillSwitchManager, onEvent func(RolloutEvent)) *RolloutManager {
	return &RolloutManager{killSwitches: killSwitches, onEvent: onEvent, nowFn: time.Now}
}

// EnterCanary moves a shadow slice into canary status and starts its
// promotion clock.
func (r *RolloutManager) EnterCanary(s *RolloutSlice) {
	s.Status = SliceCanary
	s.CanaryStartedAt = r.nowFn()
}

// Evaluate checks a canary slice against the promotion and rollback
// criteria. Rollback takes precedence over promotion when both
// thresholds would otherwise somehow be satisfied simultaneously, since
// a missed true positive is a safety signal the precision figure alone
// might not reflect.
func (r *RolloutManager) Evaluate(s *RolloutSlice) {
	if s.Status != SliceCanary {
		return
	}

	if s.Precision < canaryRollbackPrecision || s.MissedTPs > 0 {
		s.Status = SliceShadow
		if r.killSwitches != nil {
			r.killSwitches.Activate(sliceKillSwitchDimension(s.Dimension), s.Value, "fpgov.canary_rollout", "precision/missed-TP rollback")
		}
		r.emit(RolloutEvent{Dimension: s.Dimension, Value: s.Value, Kind: "rollback", At: r.nowFn()})
		return
	}

	if r.nowFn().Sub(s.CanaryStartedAt) >= canaryRolloutWindow && s.Precision >= canaryPromotePrecision {
		s.Status = SliceActive
		r.emit(RolloutEvent{Dimension: s.Dimension, Value: s.Value, Kind: "promotion", At: r.nowFn()})
	}
}

func (r *RolloutManager) emit(ev RolloutEvent) {
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

// sliceKillSwitchDimension maps a rollout slice dimension onto the
// closest matching KillSwitchDimension so a rollback's kill switch
// actually suppresses matching for that slice; severity_band and
// rule_family have no dedicated kill-switch dimension in §4.D's
// four-dimension table, so they fall back to the pattern dimension,
// which is already consulted per-pattern during matching.
func sliceKillSwitchDimension(d SliceDimension) KillSwitchDimension {
	switch d {
	case SliceTenant:
		return DimensionTenant
	case SliceDataSource:
		return DimensionDataSource
	default:
		return DimensionPattern
	}
}
