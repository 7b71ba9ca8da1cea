package llmrouter

import (
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestProviderHealthRegistry_TripsOpenAfterConsecutiveFailures(t *testing.T) {
	reg := NewProviderHealthRegistry(3, time.Minute)

	for i := 0; i < 3; i++ {
		report, allowed := reg.Attempt("anthropic")
		assert.True(t, allowed)
		report(false)
	}

	assert.False(t, reg.IsAvailable("anthropic"))
	assert.Equal(t, gobreaker.StateOpen, reg.State("anthropic"))
}

func TestProviderHealthRegistry_UnknownProviderStartsClosed(t *testing.T) {
	reg := NewProviderHealthRegistry(5, time.Minute)
	assert.True(t, reg.IsAvailable("anthropic"))
	assert.Equal(t, gobreaker.StateClosed, reg.State("anthropic"))
}

func TestStateLabel(t *testing.T) {
	assert.Equal(t, "closed", StateLabel(gobreaker.StateClosed))
	assert.Equal(t, "half_open", StateLabel(gobreaker.StateHalfOpen))
	assert.Equal(t, "open", StateLabel(gobreaker.StateOpen))
}

func TestStateGaugeValue(t *testing.T) {
	assert.Equal(t, 0, StateGaugeValue(gobreaker.StateClosed))
	assert.Equal(t, 1, StateGaugeValue(gobreaker.StateHalfOpen))
	assert.Equal(t, 2, StateGaugeValue(gobreaker.StateOpen))
}
