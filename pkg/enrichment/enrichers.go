package enrichment

import (
	"context"
	"fmt"

	"github.com/aluskort/platform/pkg/investigation"
	"github.com/aluskort/platform/pkg/store"
)

// UEBASource is the named external-collaborator interface for
// user/entity behavior analytics risk scoring (§1 "raw SIEM adapters...
// treated as external collaborators with named interfaces"). A real
// deployment's UEBA product sits behind this.
type UEBASource interface {
	RiskContext(ctx context.Context, tenantID string, entities []string) (map[string]any, error)
}

// ContextUEBAEnricher resolves IOC reputation (via the shared IOC cache)
// and UEBA risk context for the alert's entities (§4.A "Context/UEBA").
type ContextUEBAEnricher struct {
	Cache *store.Cache
	UEBA  UEBASource
}

func (e *ContextUEBAEnricher) Kind() Kind { return KindContextUEBA }

func (e *ContextUEBAEnricher) Enrich(ctx context.Context, entities []string, tenantID string) Result {
	var hits []string
	queries := 0
	for _, entity := range entities {
		queries++
		if val, ok := e.Cache.GetIOC(ctx, tenantID, "auto", entity); ok {
			hits = append(hits, fmt.Sprintf("%s:%s", entity, string(val)))
		}
	}

	var risk map[string]any
	if e.UEBA != nil {
		queries++
		r, err := e.UEBA.RiskContext(ctx, tenantID, entities)
		if err != nil {
			return Result{Kind: e.Kind(), Err: err, QueriesRun: queries}
		}
		risk = r
	}

	return Result{
		Kind:       e.Kind(),
		QueriesRun: queries,
		Merge: func(c *investigation.AccumulatedContext) {
			c.IOCHits = append(c.IOCHits, hits...)
			if risk != nil {
				if c.UEBARiskContext == nil {
					c.UEBARiskContext = map[string]any{}
				}
				for k, v := range risk {
					c.UEBARiskContext[k] = v
				}
			}
		},
	}
}

// CTEMSource is the named external-collaborator interface for
// normalized continuous-threat-exposure-management findings (§1 "CTEM
// vendor normalizers" are out of scope; this is the contract this
// platform consumes from ctem.normalized).
type CTEMSource interface {
	ExposuresForEntities(ctx context.Context, tenantID string, entities []string) ([]string, error)
}

// CTEMEnricher correlates alert entities against known exposures.
type CTEMEnricher struct {
	Source CTEMSource
}

func (e *CTEMEnricher) Kind() Kind { return KindCTEM }

func (e *CTEMEnricher) Enrich(ctx context.Context, entities []string, tenantID string) Result {
	if e.Source == nil {
		return Result{Kind: e.Kind(), Merge: func(*investigation.AccumulatedContext) {}}
	}
	exposures, err := e.Source.ExposuresForEntities(ctx, tenantID, entities)
	if err != nil {
		return Result{Kind: e.Kind(), Err: err, QueriesRun: 1}
	}
	return Result{
		Kind:       e.Kind(),
		QueriesRun: 1,
		Merge: func(c *investigation.AccumulatedContext) {
			c.CTEMExposures = append(c.CTEMExposures, exposures...)
		},
	}
}

// TechniqueMapper is the narrow interface the ATLAS enricher uses to map
// alert signals onto technique IDs; a real implementation is typically
// gateway-backed (an LLM call via pkg/gateway) or a rules engine, both
// external to this contract.
type TechniqueMapper interface {
	MapTechniques(ctx context.Context, tenantID string, entities []string) ([]investigation.ATLASMatch, error)
}

// ATLASEnricher maps entities to ATLAS technique IDs along with each
// match's telemetry trust level, the signal the orchestrator's trust
// constraint consumes (§4.A "Trust constraint (edge telemetry)").
type ATLASEnricher struct {
	Mapper TechniqueMapper
}

func (e *ATLASEnricher) Kind() Kind { return KindATLAS }

func (e *ATLASEnricher) Enrich(ctx context.Context, entities []string, tenantID string) Result {
	if e.Mapper == nil {
		return Result{Kind: e.Kind(), Merge: func(*investigation.AccumulatedContext) {}}
	}
	matches, err := e.Mapper.MapTechniques(ctx, tenantID, entities)
	if err != nil {
		return Result{Kind: e.Kind(), Err: err, QueriesRun: 1}
	}
	return Result{
		Kind:       e.Kind(),
		QueriesRun: 1,
		Merge: func(c *investigation.AccumulatedContext) {
			c.ATLASTechniqueMatches = append(c.ATLASTechniqueMatches, matches...)
		},
	}
}
