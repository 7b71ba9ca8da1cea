package investigation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphState_HappyPathTransitions(t *testing.T) {
	g := New("inv-1", "a1", "t1", false)
	require.NoError(t, g.Transition(StateParsing))
	require.NoError(t, g.Transition(StateFPCheck))
	require.NoError(t, g.Transition(StateEnriching))
	require.NoError(t, g.Transition(StateReasoning))
	require.NoError(t, g.Transition(StateResponding))
	require.NoError(t, g.Transition(StateClosed))
	assert.True(t, g.State.Terminal())
}

func TestGraphState_FPShortCircuit(t *testing.T) {
	g := New("inv-1", "a1", "t1", false)
	require.NoError(t, g.Transition(StateParsing))
	require.NoError(t, g.Transition(StateFPCheck))
	require.NoError(t, g.Transition(StateClosed))
}

func TestGraphState_RejectsInvalidEdge(t *testing.T) {
	g := New("inv-1", "a1", "t1", false)
	err := g.Transition(StateReasoning)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGraphState_RejectsTransitionOutOfTerminal(t *testing.T) {
	g := New("inv-1", "a1", "t1", false)
	g.ForceFail("unrecoverable", "v1")
	assert.True(t, g.State.Terminal())
	err := g.Transition(StateClosed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGraphState_ForceFail_FromAnyNonTerminalState(t *testing.T) {
	g := New("inv-1", "a1", "t1", false)
	require.NoError(t, g.Transition(StateParsing))
	require.NoError(t, g.Transition(StateFPCheck))
	require.NoError(t, g.Transition(StateEnriching))

	g.ForceFail("store write failed", "v1")
	assert.Equal(t, StateFailed, g.State)
	chain := g.DecisionChain()
	require.Len(t, chain, 1)
	assert.Equal(t, StateEnriching, chain[0].FromState)
	assert.Equal(t, StateFailed, chain[0].ToState)
}

func TestGraphState_DecisionChain_OrderedUnderConcurrentAppends(t *testing.T) {
	g := New("inv-1", "a1", "t1", false)
	var wg sync.WaitGroup
	n := 20
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			g.AppendDecision(DecisionEntry{
				Agent:     "enricher",
				FromState: StateEnriching,
				ToState:   StateEnriching,
				Timestamp: time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()
	assert.Len(t, g.DecisionChain(), n)
}

func TestAccumulatedContext_AllUntrusted(t *testing.T) {
	c := &AccumulatedContext{}
	assert.False(t, c.AllUntrusted(), "empty evidence is not 'all untrusted'")

	c.ATLASTechniqueMatches = []ATLASMatch{
		{TechniqueID: "AML.T0051", TelemetryTrustLevel: "untrusted"},
		{TechniqueID: "AML.T0043", TelemetryTrustLevel: "untrusted"},
	}
	assert.True(t, c.AllUntrusted())

	c.ATLASTechniqueMatches = append(c.ATLASTechniqueMatches, ATLASMatch{TechniqueID: "AML.T0020", TelemetryTrustLevel: "trusted"})
	assert.False(t, c.AllUntrusted())
}
