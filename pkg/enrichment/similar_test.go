package enrichment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluskort/platform/pkg/investigation"
)

type fakeIncidentSource struct {
	incidents []SimilarIncident
	err       error
	gotQuery  string
}

func (f *fakeIncidentSource) SimilarIncidents(_ context.Context, _ string, query string) ([]SimilarIncident, error) {
	f.gotQuery = query
	return f.incidents, f.err
}

func TestSimilarIncidentsEnricher_MergesIncidentsAndPlaybooks(t *testing.T) {
	src := &fakeIncidentSource{incidents: []SimilarIncident{
		{IncidentID: "inc-1", Title: "Brute force on VPN", PlaybookIDs: []string{"pb-lockout", "pb-notify"}},
		{IncidentID: "inc-2", Title: "Credential stuffing", PlaybookIDs: []string{"pb-lockout"}},
	}}
	e := &SimilarIncidentsEnricher{Source: src}

	res := e.Enrich(context.Background(), []string{"1.2.3.4", "svc-account"}, "t1")
	require.NoError(t, res.Err)
	assert.Equal(t, "1.2.3.4 svc-account", src.gotQuery)

	var ctx investigation.AccumulatedContext
	ctx.CandidatePlaybooks = []string{"pb-notify"}
	res.Merge(&ctx)

	assert.Equal(t, []string{"inc-1: Brute force on VPN", "inc-2: Credential stuffing"}, ctx.SimilarPriorIncidents)
	// pb-notify was already a candidate; pb-lockout joins exactly once.
	assert.Equal(t, []string{"pb-notify", "pb-lockout"}, ctx.CandidatePlaybooks)
}

func TestSimilarIncidentsEnricher_ErrorIsIsolated(t *testing.T) {
	e := &SimilarIncidentsEnricher{Source: &fakeIncidentSource{err: errors.New("vector store down")}}
	res := e.Enrich(context.Background(), []string{"x"}, "t1")
	assert.Error(t, res.Err)
	assert.Equal(t, KindSimilarIncidents, res.Kind)
}

func TestSimilarIncidentsEnricher_NilSourceIsNoOp(t *testing.T) {
	e := &SimilarIncidentsEnricher{}
	res := e.Enrich(context.Background(), nil, "t1")
	require.NoError(t, res.Err)
	var ctx investigation.AccumulatedContext
	res.Merge(&ctx)
	assert.Empty(t, ctx.SimilarPriorIncidents)
}
