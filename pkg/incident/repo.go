package incident

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aluskort/platform/pkg/store"
)

// Repository is the relational binding for the incident_memory table
// (§6 "incident memory (with rare_important flag)"), following the same
// dbRecord-shape convention pkg/investigation and pkg/audit use over
// store.Relational.
type Repository struct {
	rel *store.Relational
}

// NewRepository wraps a store.Relational for incident memory persistence.
func NewRepository(rel *store.Relational) *Repository {
	return &Repository{rel: rel}
}

type dbIncident struct {
	IncidentID     string    `db:"incident_id"`
	TenantID       string    `db:"tenant_id"`
	Title          string    `db:"title"`
	Summary        string    `db:"summary"`
	RuleFamily     string    `db:"rule_family"`
	Severity       string    `db:"severity"`
	Classification string    `db:"classification"`
	Techniques     []byte    `db:"techniques"`
	PlaybookIDs    []byte    `db:"playbook_ids"`
	RareImportant  bool      `db:"rare_important"`
	ClosedAt       time.Time `db:"closed_at"`
}

func toDBIncident(in *Incident) (dbIncident, error) {
	techniques, err := json.Marshal(in.Techniques)
	if err != nil {
		return dbIncident{}, err
	}
	playbooks, err := json.Marshal(in.PlaybookIDs)
	if err != nil {
		return dbIncident{}, err
	}
	return dbIncident{
		IncidentID:     in.IncidentID,
		TenantID:       in.TenantID,
		Title:          in.Title,
		Summary:        in.Summary,
		RuleFamily:     in.RuleFamily,
		Severity:       in.Severity,
		Classification: in.Classification,
		Techniques:     techniques,
		PlaybookIDs:    playbooks,
		RareImportant:  in.RareImportant,
		ClosedAt:       in.ClosedAt,
	}, nil
}

func (d dbIncident) toIncident() (*Incident, error) {
	out := &Incident{
		IncidentID:     d.IncidentID,
		TenantID:       d.TenantID,
		Title:          d.Title,
		Summary:        d.Summary,
		RuleFamily:     d.RuleFamily,
		Severity:       d.Severity,
		Classification: d.Classification,
		RareImportant:  d.RareImportant,
		ClosedAt:       d.ClosedAt,
	}
	if err := json.Unmarshal(d.Techniques, &out.Techniques); err != nil {
		return nil, fmt.Errorf("incident: decode techniques: %w", err)
	}
	if err := json.Unmarshal(d.PlaybookIDs, &out.PlaybookIDs); err != nil {
		return nil, fmt.Errorf("incident: decode playbook_ids: %w", err)
	}
	return out, nil
}

const incidentColumns = `incident_id, tenant_id, title, summary, rule_family, severity,
	classification, techniques, playbook_ids, rare_important, closed_at`

// Save upserts one incident. The upsert only refreshes the mutable
// fields; identity and closed_at never change once remembered.
func (r *Repository) Save(ctx context.Context, in *Incident) error {
	row, err := toDBIncident(in)
	if err != nil {
		return fmt.Errorf("incident: marshal: %w", err)
	}
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	_, err = r.rel.DB().NamedExecContext(queryCtx, `
		INSERT INTO incident_memory (
			incident_id, tenant_id, title, summary, rule_family, severity,
			classification, techniques, playbook_ids, rare_important, closed_at
		) VALUES (
			:incident_id, :tenant_id, :title, :summary, :rule_family, :severity,
			:classification, :techniques, :playbook_ids, :rare_important, :closed_at
		)
		ON CONFLICT (incident_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			classification = EXCLUDED.classification,
			techniques = EXCLUDED.techniques,
			playbook_ids = EXCLUDED.playbook_ids,
			rare_important = EXCLUDED.rare_important`, row)
	if err != nil {
		return fmt.Errorf("incident: save: %w", err)
	}
	return nil
}

// Get loads one incident by ID, scoped to tenantID.
func (r *Repository) Get(ctx context.Context, tenantID, incidentID string) (*Incident, bool, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	var row dbIncident
	err := r.rel.DB().GetContext(queryCtx, &row, `
		SELECT `+incidentColumns+`
		FROM incident_memory WHERE tenant_id = $1 AND incident_id = $2`, tenantID, incidentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("incident: get: %w", err)
	}
	in, err := row.toIncident()
	if err != nil {
		return nil, false, err
	}
	return in, true, nil
}

// ListByIDs loads the named incidents for tenantID, preserving the
// requested order (the searcher's similarity ranking), silently skipping
// IDs the store no longer has.
func (r *Repository) ListByIDs(ctx context.Context, tenantID string, ids []string) ([]*Incident, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT `+incidentColumns+`
		FROM incident_memory WHERE tenant_id = ? AND incident_id IN (?)`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("incident: list query: %w", err)
	}
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	var rows []dbIncident
	if err := r.rel.DB().SelectContext(queryCtx, &rows, r.rel.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("incident: list: %w", err)
	}

	byID := make(map[string]*Incident, len(rows))
	for _, row := range rows {
		in, err := row.toIncident()
		if err != nil {
			return nil, err
		}
		byID[in.IncidentID] = in
	}
	out := make([]*Incident, 0, len(ids))
	for _, id := range ids {
		if in, ok := byID[id]; ok {
			out = append(out, in)
		}
	}
	return out, nil
}

// ListRecent returns up to limit incidents for tenantID, most recently
// closed first -- the searcher's fallback ranking pool when no vector
// store or embedder is wired.
func (r *Repository) ListRecent(ctx context.Context, tenantID string, limit int) ([]*Incident, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	var rows []dbIncident
	err := r.rel.DB().SelectContext(queryCtx, &rows, `
		SELECT `+incidentColumns+`
		FROM incident_memory WHERE tenant_id = $1
		ORDER BY closed_at DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("incident: list recent: %w", err)
	}
	out := make([]*Incident, 0, len(rows))
	for _, row := range rows {
		in, err := row.toIncident()
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// ListAll pages through every remembered incident regardless of tenant,
// ordered by incident_id for a stable migration walk. Used only by the
// embedding migration, which re-embeds the whole memory into a target
// collection; per-tenant scoping happens at read time via the vector
// store's mandatory tenant filter, not here.
func (r *Repository) ListAll(ctx context.Context, afterID string, limit int) ([]*Incident, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	var rows []dbIncident
	err := r.rel.DB().SelectContext(queryCtx, &rows, `
		SELECT `+incidentColumns+`
		FROM incident_memory WHERE incident_id > $1
		ORDER BY incident_id ASC
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("incident: list all: %w", err)
	}
	out := make([]*Incident, 0, len(rows))
	for _, row := range rows {
		in, err := row.toIncident()
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// SetRareImportant flips the rare_important flag on one incident, the
// analyst action that pins a low-frequency but high-signal incident into
// retrieval regardless of age.
func (r *Repository) SetRareImportant(ctx context.Context, tenantID, incidentID string, rare bool) error {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	res, err := r.rel.DB().ExecContext(queryCtx, `
		UPDATE incident_memory SET rare_important = $1
		WHERE tenant_id = $2 AND incident_id = $3`, rare, tenantID, incidentID)
	if err != nil {
		return fmt.Errorf("incident: set rare_important: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("incident: %s not found for tenant %s", incidentID, tenantID)
	}
	return nil
}
