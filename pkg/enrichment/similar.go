package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/aluskort/platform/pkg/investigation"
)

// SimilarIncident is one retrieved prior incident as enrichment consumes
// it: identity, a human-readable title, the playbooks that resolved it,
// and the combined similarity-times-recency score it ranked with.
type SimilarIncident struct {
	IncidentID  string
	Title       string
	PlaybookIDs []string
	Score       float64
}

// IncidentSource retrieves similar prior incidents for a tenant; the
// shipped implementation is pkg/incident's Searcher, adapted in the
// binary wiring the same way the other collaborator interfaces here are.
type IncidentSource interface {
	SimilarIncidents(ctx context.Context, tenantID, query string) ([]SimilarIncident, error)
}

// SimilarIncidentsEnricher retrieves prior incidents resembling the
// current alert and surfaces both the incidents themselves and the
// playbooks that resolved them as candidates (§3 "similar prior
// incidents", "candidate playbooks").
type SimilarIncidentsEnricher struct {
	Source IncidentSource
}

func (e *SimilarIncidentsEnricher) Kind() Kind { return KindSimilarIncidents }

func (e *SimilarIncidentsEnricher) Enrich(ctx context.Context, entities []string, tenantID string) Result {
	if e.Source == nil {
		return Result{Kind: e.Kind(), Merge: func(*investigation.AccumulatedContext) {}}
	}
	matches, err := e.Source.SimilarIncidents(ctx, tenantID, strings.Join(entities, " "))
	if err != nil {
		return Result{Kind: e.Kind(), Err: err, QueriesRun: 1}
	}
	return Result{
		Kind:       e.Kind(),
		QueriesRun: 1,
		Merge: func(c *investigation.AccumulatedContext) {
			seen := make(map[string]bool, len(c.CandidatePlaybooks))
			for _, p := range c.CandidatePlaybooks {
				seen[p] = true
			}
			for _, m := range matches {
				c.SimilarPriorIncidents = append(c.SimilarPriorIncidents,
					fmt.Sprintf("%s: %s", m.IncidentID, m.Title))
				for _, p := range m.PlaybookIDs {
					if !seen[p] {
						seen[p] = true
						c.CandidatePlaybooks = append(c.CandidatePlaybooks, p)
					}
				}
			}
		},
	}
}
