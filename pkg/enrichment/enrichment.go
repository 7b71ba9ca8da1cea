// Package enrichment implements the orchestrator's parallel enrichment
// contract (spec.md §4.A "Parallel enrichment contract"): Context/UEBA,
// CTEM correlation, and ATLAS technique mapping run concurrently with
// per-enricher isolation, merging into GraphState as each completes.
//
// Grounded in the teacher's pkg/agent/orchestrator.SubAgentRunner
// (push-based result delivery over a buffered channel, one goroutine per
// dispatched unit of work, WaitAll-style drain on shutdown), generalized
// from "dispatch a sub-agent on demand" to "fan out a fixed, known set of
// enrichers every time enriching is entered".
package enrichment

import (
	"context"
	"sync"
	"time"

	"github.com/aluskort/platform/pkg/investigation"
)

// Kind names one of the independent enrichers fan-out dispatches:
// the three §4.A calls out by name plus prior-incident retrieval.
type Kind string

const (
	KindContextUEBA      Kind = "context_ueba"
	KindCTEM             Kind = "ctem_correlation"
	KindATLAS            Kind = "atlas_technique_mapping"
	KindSimilarIncidents Kind = "similar_incidents"
)

// Result is what one enricher contributes: either a merge function
// applied to GraphState.Context under the investigation mutex, or an
// error recorded to decision_chain without blocking the others (§4.A "a
// failure in one enricher is recorded to decision_chain and does not
// prevent others").
type Result struct {
	Kind      Kind
	Err       error
	Merge     func(*investigation.AccumulatedContext)
	QueriesRun int
}

// Enricher is one independent context source. Implementations must
// respect ctx cancellation/deadline and must not mutate shared state
// directly -- they report a merge closure instead, applied by the
// runner under the investigation's own lock.
type Enricher interface {
	Kind() Kind
	Enrich(ctx context.Context, alertEntities []string, tenantID string) Result
}

// Run dispatches every registered enricher concurrently, waits for all
// of them (bounded fan-out, no unbounded goroutine growth since the set
// is fixed per investigation), and appends one DecisionEntry per
// enricher to gs.decision_chain in completion order (§4.A "Ordering
// within decision_chain is stable and reflects completion"). It never
// returns an error itself: individual enricher failures are recorded,
// not propagated, matching "their results merge into GraphState"
// regardless of partial failure.
func Run(ctx context.Context, gs *investigation.GraphState, enrichers []Enricher, taxonomyVersion string) {
	var wg sync.WaitGroup
	resultsCh := make(chan Result, len(enrichers))

	for _, e := range enrichers {
		wg.Add(1)
		go func(e Enricher) {
			defer wg.Done()
			resultsCh <- e.Enrich(ctx, gs.CaseFacts.IOCs, gs.TenantID)
		}(e)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	for res := range resultsCh {
		attestation := "n/a"
		details := map[string]any{"enricher": string(res.Kind)}
		if res.Err != nil {
			details["error"] = res.Err.Error()
			attestation = "degraded"
		} else if res.Merge != nil {
			gs.MergeContext(res.Merge)
		}
		// Safe to mutate Budget directly: this consumer loop runs on the
		// single goroutine draining resultsCh, never concurrently with
		// itself, even though the enrichers producing into it do run
		// concurrently.
		gs.Budget.QueriesExecuted += res.QueriesRun

		gs.AppendDecision(investigation.DecisionEntry{
			Agent:             string(res.Kind),
			FromState:         investigation.StateEnriching,
			ToState:           investigation.StateEnriching,
			Timestamp:         time.Now().UTC(),
			TaxonomyVersion:   taxonomyVersion,
			AttestationStatus: attestation,
			Details:           details,
		})
	}
}
