package incident

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluskort/platform/pkg/store"
)

// vectorUpserter is the write-side slice of store.Vector the migration
// needs.
type vectorUpserter interface {
	EnsureCollection(ctx context.Context, collection string, dimensions int) error
	Upsert(ctx context.Context, collection string, points []store.VectorPoint) error
}

// Migration re-embeds the whole incident memory into a target
// collection/version. Completed points are tracked in
// store.EmbeddingMigrationState (seeded from the persisted table), so
// re-running over the same points is a no-op after first completion.
type Migration struct {
	Repo   *Repository
	Vector vectorUpserter
	Embed  Embedder
	State  *store.EmbeddingMigrationState
	Marks  *store.EmbeddingMigrationRepo // nil when persistence is not wired

	EmbeddingModelID string
	Dimensions       int
	BatchSize        int
}

// Run walks every remembered incident and migrates the ones not yet in
// targetVersion, returning how many points were actually re-embedded vs
// skipped as already done.
func (m *Migration) Run(ctx context.Context, targetCollection, targetVersion string) (migrated, skipped int, err error) {
	if m.Vector == nil || m.Embed == nil {
		return 0, 0, fmt.Errorf("incident: migration requires a vector store and an embedder")
	}
	batch := m.BatchSize
	if batch <= 0 {
		batch = 100
	}
	if err := m.Vector.EnsureCollection(ctx, targetCollection, m.Dimensions); err != nil {
		return 0, 0, err
	}

	afterID := ""
	for {
		incidents, err := m.Repo.ListAll(ctx, afterID, batch)
		if err != nil {
			return migrated, skipped, err
		}
		if len(incidents) == 0 {
			return migrated, skipped, nil
		}
		for _, in := range incidents {
			afterID = in.IncidentID
			did, err := m.State.MigratePoint(in.IncidentID, targetVersion, func() error {
				return m.migrateOne(ctx, in, targetCollection, targetVersion)
			})
			if err != nil {
				return migrated, skipped, fmt.Errorf("incident: migrate %s: %w", in.IncidentID, err)
			}
			if !did {
				skipped++
				continue
			}
			migrated++
			if m.Marks != nil {
				// Fail-open: a lost mark costs one redundant re-embed on
				// the next run, never correctness.
				if err := m.Marks.Mark(ctx, in.IncidentID, targetVersion); err != nil {
					slog.Warn("incident: failed to persist migration mark", "incident_id", in.IncidentID, "error", err)
				}
			}
		}
	}
}

func (m *Migration) migrateOne(ctx context.Context, in *Incident, targetCollection, targetVersion string) error {
	vec, err := m.Embed.Embed(ctx, EmbedText(in))
	if err != nil {
		return err
	}
	return m.Vector.Upsert(ctx, targetCollection, []store.VectorPoint{{
		DocID:               in.IncidentID,
		TenantID:            in.TenantID,
		Vector:              vec,
		EmbeddingModelID:    m.EmbeddingModelID,
		EmbeddingDimensions: m.Dimensions,
		EmbeddingVersion:    targetVersion,
		Extra: map[string]any{
			"title":       in.Title,
			"rule_family": in.RuleFamily,
			"severity":    in.Severity,
		},
	}})
}

// EmbedText is the canonical text an incident embeds under, shared by
// the intake-time upsert and the migration so both produce comparable
// vectors.
func EmbedText(in *Incident) string {
	parts := []string{in.Title}
	if in.Summary != "" {
		parts = append(parts, in.Summary)
	}
	if len(in.Techniques) > 0 {
		parts = append(parts, strings.Join(in.Techniques, " "))
	}
	return strings.Join(parts, ". ")
}
