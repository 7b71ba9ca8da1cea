package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aluskort/platform/pkg/fpgov"
	"github.com/aluskort/platform/pkg/obs"
)

func TestApplyDrift_ElevatedReportSetsAdjusterDrift(t *testing.T) {
	adjuster := fpgov.NewThresholdAdjuster(0.90, 0.95)
	ApplyDrift(adjuster, obs.DriftReport{Overall: 0.4, Elevated: true})
	assert.Equal(t, 0.95, adjuster.Effective())
}

func TestApplyDrift_NormalReportClearsAdjusterDrift(t *testing.T) {
	adjuster := fpgov.NewThresholdAdjuster(0.90, 0.95)
	ApplyDrift(adjuster, obs.DriftReport{Overall: 0.4, Elevated: true})
	ApplyDrift(adjuster, obs.DriftReport{Overall: 0.1, Elevated: false})
	assert.Equal(t, 0.90, adjuster.Effective())
}
