package orchestrator

import (
	"github.com/aluskort/platform/pkg/fpgov"
	"github.com/aluskort/platform/pkg/obs"
)

// ApplyDrift translates an obs.DriftDetector run into the fpgov
// ThresholdAdjuster's drift state, keeping pkg/fpgov and pkg/obs
// decoupled from each other (per fpgov.DriftState's doc comment, "the
// orchestrator wires the two together"). A scheduled caller runs the
// detector and passes its report here once per evaluation window.
func ApplyDrift(adjuster *fpgov.ThresholdAdjuster, report obs.DriftReport) {
	if report.Elevated {
		adjuster.SetDrift(fpgov.DriftElevated)
		return
	}
	adjuster.SetDrift(fpgov.DriftNormal)
}
