package main

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/aluskort/platform/pkg/alert"
	"github.com/aluskort/platform/pkg/config"
	"github.com/aluskort/platform/pkg/enrichment"
	"github.com/aluskort/platform/pkg/gateway"
	"github.com/aluskort/platform/pkg/incident"
	"github.com/aluskort/platform/pkg/investigation"
	"github.com/aluskort/platform/pkg/store"
)

// incidentMemory bundles the incident-memory collaborators: the
// relational repository, the similarity searcher enrichment reads from,
// and the vector/embedder pair closed investigations are written through.
// It implements enrichment.IncidentSource.
type incidentMemory struct {
	repo         *incident.Repository
	searcher     *incident.Searcher
	vector       *store.Vector // nil when the vector store is unreachable
	embed        incident.Embedder
	embedModelID string
	log          *slog.Logger
}

// SimilarIncidents adapts incident.Searcher to the enrichment contract.
func (m *incidentMemory) SimilarIncidents(ctx context.Context, tenantID, query string) ([]enrichment.SimilarIncident, error) {
	matches, err := m.searcher.Similar(ctx, tenantID, query)
	if err != nil {
		return nil, err
	}
	out := make([]enrichment.SimilarIncident, 0, len(matches))
	for _, match := range matches {
		out = append(out, enrichment.SimilarIncident{
			IncidentID:  match.Incident.IncidentID,
			Title:       match.Incident.Title,
			PlaybookIDs: match.Incident.PlaybookIDs,
			Score:       match.Score,
		})
	}
	return out, nil
}

// remember persists a closed investigation into incident memory so
// future investigations can retrieve it as a similar prior incident.
// Fail-open throughout: remembering is never worth failing the
// investigation that just closed.
func (m *incidentMemory) remember(ctx context.Context, in *alert.Alert, gs *investigation.GraphState) {
	severity := gs.Decisions.Severity
	if severity == "" {
		severity = string(in.Severity)
	}
	inc := &incident.Incident{
		IncidentID:     gs.InvestigationID,
		TenantID:       gs.TenantID,
		Title:          in.Title,
		Summary:        strings.Join(gs.CaseFacts.Timeline, " "),
		RuleFamily:     in.Product,
		Severity:       severity,
		Classification: gs.Decisions.Classification,
		Techniques:     gs.CaseFacts.Techniques,
		PlaybookIDs:    gs.Decisions.RecommendedActions,
		ClosedAt:       time.Now().UTC(),
	}
	if err := m.repo.Save(ctx, inc); err != nil {
		m.log.Error("failed to remember incident", "investigation_id", gs.InvestigationID, "error", err)
		return
	}
	if m.vector == nil || m.embed == nil {
		return
	}
	vec, err := m.embed.Embed(ctx, incident.EmbedText(inc))
	if err != nil {
		m.log.Warn("failed to embed incident, stored without a vector", "incident_id", inc.IncidentID, "error", err)
		return
	}
	err = m.vector.Upsert(ctx, m.searcher.Collection, []store.VectorPoint{{
		DocID:               inc.IncidentID,
		TenantID:            inc.TenantID,
		Vector:              vec,
		EmbeddingModelID:    m.embedModelID,
		EmbeddingDimensions: incident.EmbeddingDimensions,
		EmbeddingVersion:    incident.EmbeddingVersion,
		Extra: map[string]any{
			"title":       inc.Title,
			"rule_family": inc.RuleFamily,
			"severity":    inc.Severity,
		},
	}})
	if err != nil {
		m.log.Warn("failed to index incident embedding", "incident_id", inc.IncidentID, "error", err)
	}
}

// buildVectorStore connects to the configured qdrant endpoint and
// ensures the incidents collection exists. Connection failure degrades
// to nil rather than failing startup: similar-incident retrieval then
// runs recency-only, the same fail-open posture as the IOC cache.
func buildVectorStore(ctx context.Context, cfg *config.Config, log *slog.Logger) *store.Vector {
	host, portStr, err := net.SplitHostPort(cfg.Vector.Endpoint)
	if err != nil {
		log.Error("invalid vector endpoint, similar-incident retrieval degrades to recency-only", "endpoint", cfg.Vector.Endpoint, "error", err)
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Error("invalid vector endpoint port, similar-incident retrieval degrades to recency-only", "endpoint", cfg.Vector.Endpoint, "error", err)
		return nil
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		log.Error("failed to connect to vector store, similar-incident retrieval degrades to recency-only", "error", err)
		return nil
	}
	v := store.NewVector(client)
	if err := v.EnsureCollection(ctx, store.CollectionIncidents, incident.EmbeddingDimensions); err != nil {
		log.Error("failed to ensure incidents collection, similar-incident retrieval degrades to recency-only", "error", err)
		return nil
	}
	log.Info("vector store connected", "collection", store.CollectionIncidents)
	return v
}

// runTaxonomyRefresh periodically reloads the technique vocabulary from
// the taxonomy_ids table into the gateway's in-memory set (§4.B item 9
// "the set is refreshed periodically from the store"), with one eager
// refresh at startup so output validation never runs against an empty
// vocabulary longer than the first query takes.
func runTaxonomyRefresh(ctx context.Context, log *slog.Logger, repo *store.TaxonomyRepo, set *gateway.TaxonomySet, interval time.Duration) {
	refresh := func() {
		ids, version, err := repo.ListTechniqueIDs(ctx)
		if err != nil {
			log.Warn("taxonomy refresh failed, keeping previous vocabulary", "error", err)
			return
		}
		set.Refresh(ids, version)
		log.Debug("taxonomy refreshed", "techniques", len(ids), "version", version)
	}
	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
