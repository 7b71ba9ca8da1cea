package llmrouter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuotaController_AllowsUpToTierLimit(t *testing.T) {
	q := NewQuotaController(map[TenantTier]int{
		TenantTierPremium:  2,
		TenantTierStandard: 1,
		TenantTierTrial:    1,
	})
	q.SetTenantTier("acme", TenantTierPremium)

	assert.True(t, q.Allow("acme"))
	assert.True(t, q.Allow("acme"))
	assert.False(t, q.Allow("acme"))
}

func TestQuotaController_DefaultsToTrialTierUntilSet(t *testing.T) {
	q := NewQuotaController(map[TenantTier]int{
		TenantTierPremium: 10,
		TenantTierTrial:   1,
	})

	assert.True(t, q.Allow("unconfigured"))
	assert.False(t, q.Allow("unconfigured"))
}

func TestSlidingWindow_CountReflectsUnprunedEvents(t *testing.T) {
	now := time.Unix(0, 0)
	w := newSlidingWindow(time.Minute, 10)
	w.nowFn = func() time.Time { return now }

	assert.Equal(t, 0, w.Count())
	w.Allow()
	w.Allow()
	assert.Equal(t, 2, w.Count())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, w.Count(), "expected events older than the window to be pruned")
}
