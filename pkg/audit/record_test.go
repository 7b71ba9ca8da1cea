package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_ComputeHash_DeterministicForIdenticalRecords(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	mk := func() Record {
		return Record{
			AuditID:        "a1",
			TenantID:       "acme",
			SequenceNumber: 3,
			PreviousHash:   genesisHash,
			Timestamp:      ts,
			IngestedAt:     ts,
			EventType:      "investigation.closed",
			EventCategory:  CategoryDecision,
			Severity:       "info",
			Actor:          Actor{Type: "agent", ID: "investigator-1"},
			Decision:       map[string]any{"b": 2, "a": 1},
			RecordVersion:  1,
		}
	}

	h1, err := mk().ComputeHash()
	require.NoError(t, err)
	h2, err := mk().ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestRecord_ComputeHash_ChangesWithPayload(t *testing.T) {
	ts := time.Now()
	base := Record{AuditID: "a1", TenantID: "acme", SequenceNumber: 0, PreviousHash: genesisHash, Timestamp: ts, IngestedAt: ts, RecordVersion: 1}
	h1, err := base.ComputeHash()
	require.NoError(t, err)

	mutated := base
	mutated.Severity = "critical"
	h2, err := mutated.ComputeHash()
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestRecord_CanonicalJSON_SortsDecisionAndOutcomeKeys(t *testing.T) {
	r := Record{
		Decision: map[string]any{"zebra": 1, "alpha": 2, "mike": 3},
	}
	b, err := r.CanonicalJSON()
	require.NoError(t, err)

	alpha := indexOf(t, string(b), `"alpha"`)
	mike := indexOf(t, string(b), `"mike"`)
	zebra := indexOf(t, string(b), `"zebra"`)
	assert.True(t, alpha < mike && mike < zebra, "expected decision keys in sorted order, got %s", b)
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	t.Fatalf("%q not found in %q", needle, haystack)
	return -1
}

func TestNewGenesis_ChainsFromZeroHash(t *testing.T) {
	r, err := NewGenesis("acme", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.SequenceNumber)
	assert.Equal(t, genesisHash, r.PreviousHash)
	assert.NotEmpty(t, r.RecordHash)

	wantHash, err := r.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, wantHash, r.RecordHash)
}
