package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertMixTracker_FirstSnapshotFreezesBaseline(t *testing.T) {
	tracker := NewAlertMixTracker()
	tracker.Observe("crowdstrike", []string{"T1059"}, []string{"host"})

	baseline, window, ready := tracker.Snapshot()
	assert.False(t, ready)
	assert.Nil(t, baseline)
	assert.Nil(t, window)
}

func TestAlertMixTracker_SecondSnapshotComparesAgainstFrozenBaseline(t *testing.T) {
	tracker := NewAlertMixTracker()
	tracker.Observe("crowdstrike", []string{"T1059"}, []string{"host"})
	_, _, ready := tracker.Snapshot()
	require.False(t, ready)

	tracker.Observe("crowdstrike", []string{"T1059"}, []string{"host"})
	baseline, window, ready := tracker.Snapshot()
	require.True(t, ready)

	detector := NewDriftDetector(0.3, NewMetrics(prometheus.NewRegistry()))
	report := detector.Evaluate(baseline, window)
	assert.False(t, report.Elevated, "identical baseline and window should not be elevated")
}

func TestAlertMixTracker_DivergentWindowIsElevated(t *testing.T) {
	tracker := NewAlertMixTracker()
	tracker.Observe("crowdstrike", []string{"T1059"}, []string{"host"})
	_, _, ready := tracker.Snapshot()
	require.False(t, ready)

	// A window dominated by a source/technique/entity mix the baseline
	// never saw should diverge sharply.
	for i := 0; i < 10; i++ {
		tracker.Observe("unknown_vendor", []string{"T1190", "T1210"}, []string{"cloud_resource"})
	}
	baseline, window, ready := tracker.Snapshot()
	require.True(t, ready)

	detector := NewDriftDetector(0.3, NewMetrics(prometheus.NewRegistry()))
	report := detector.Evaluate(baseline, window)
	assert.True(t, report.Elevated)
}
