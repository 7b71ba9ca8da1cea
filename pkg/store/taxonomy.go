package store

import (
	"context"
	"fmt"
)

// TaxonomyRepo reads the closed technique vocabulary from the
// taxonomy_ids table (§6 persisted state). The gateway's output
// validation refreshes its in-memory TaxonomySet from here periodically
// (§4.B item 9 "the set is refreshed periodically from the store") --
// this repo is the read side only; taxonomy rows are loaded by an
// out-of-band import of the published ATT&CK/ATLAS releases.
type TaxonomyRepo struct {
	rel *Relational
}

// NewTaxonomyRepo wraps a Relational for taxonomy reads.
func NewTaxonomyRepo(rel *Relational) *TaxonomyRepo {
	return &TaxonomyRepo{rel: rel}
}

// ListTechniqueIDs returns every known technique ID plus the highest
// version string present, the pair TaxonomySet.Refresh consumes.
func (r *TaxonomyRepo) ListTechniqueIDs(ctx context.Context) (ids []string, version string, err error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	rows := []struct {
		TechniqueID string `db:"technique_id"`
		Version     string `db:"version"`
	}{}
	if err := r.rel.DB().SelectContext(queryCtx, &rows,
		`SELECT technique_id, version FROM taxonomy_ids ORDER BY technique_id`); err != nil {
		return nil, "", fmt.Errorf("store: list taxonomy ids: %w", err)
	}
	ids = make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.TechniqueID)
		if row.Version > version {
			version = row.Version
		}
	}
	return ids, version, nil
}
