package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecency_AgeZeroIsExactlyOne(t *testing.T) {
	assert.InDelta(t, 1.0, Recency(0, false), 1e-9)
}

func TestRecency_ThirtyDays(t *testing.T) {
	// Short-term exp(-0.023*30) ~ 0.5016 weighted 0.7, combined ~ 0.632.
	assert.InDelta(t, 0.632, Recency(30, false), 0.005)
}

func TestRecency_OneYear(t *testing.T) {
	// 0.7*exp(-0.023*365) + 0.3*(1/(1+ln(2))) ~ 0.177.
	assert.InDelta(t, 0.177, Recency(365, false), 0.005)
}

func TestRecency_MonotonicallyDecreasing(t *testing.T) {
	prev := Recency(0, false)
	for _, age := range []float64{1, 7, 30, 90, 180, 365, 730, 3650} {
		cur := Recency(age, false)
		assert.Less(t, cur, prev, "recency must decrease with age (age=%v)", age)
		prev = cur
	}
}

func TestRecency_RareImportantFloorAtAnyAge(t *testing.T) {
	for _, age := range []float64{365, 1000, 10000} {
		assert.GreaterOrEqual(t, Recency(age, true), 0.1, "age=%v", age)
	}
	// The floor only lifts scores below it; fresh incidents are unaffected.
	assert.InDelta(t, 1.0, Recency(0, true), 1e-9)
}

func TestRecency_NegativeAgeClampsToZero(t *testing.T) {
	assert.Equal(t, Recency(0, false), Recency(-5, false))
}

func TestRecencyAt_UsesClockDelta(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	closed := now.AddDate(0, 0, -30)
	assert.InDelta(t, Recency(30, false), RecencyAt(closed, now, false), 1e-9)
}
