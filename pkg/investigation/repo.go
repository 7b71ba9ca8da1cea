package investigation

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

// Repository is the relational binding for the investigations table
// (§4.F "a pooled relational client"), grounded on the teacher's
// queue/worker.go claim-next-session flow: SELECT ... FOR UPDATE SKIP
// LOCKED lets multiple orchestrator replicas share one pending-investigation
// queue without a distributed lock service (SPEC_FULL.md §D.2).
type Repository struct {
	rel *store.Relational
}

// NewRepository wraps a store.Relational for investigation persistence.
func NewRepository(rel *store.Relational) *Repository {
	return &Repository{rel: rel}
}

type dbInvestigation struct {
	InvestigationID   string     `db:"investigation_id"`
	AlertID           string     `db:"alert_id"`
	TenantID          string     `db:"tenant_id"`
	State             string     `db:"state"`
	Context           []byte     `db:"context"`
	Decisions         []byte     `db:"decisions"`
	Budget            []byte     `db:"budget"`
	CaseFacts         []byte     `db:"case_facts"`
	ShadowMode        bool       `db:"shadow_mode"`
	LastInteractionAt time.Time  `db:"last_interaction_at"`
	ClaimedBy         *string    `db:"claimed_by"`
	ClaimedAt         *time.Time `db:"claimed_at"`
	CreatedAt         time.Time  `db:"created_at"`
}

func toDBInvestigation(g *GraphState) (dbInvestigation, error) {
	ctxJSON, err := json.Marshal(g.Context)
	if err != nil {
		return dbInvestigation{}, err
	}
	decisionsJSON, err := json.Marshal(g.Decisions)
	if err != nil {
		return dbInvestigation{}, err
	}
	budgetJSON, err := json.Marshal(g.Budget)
	if err != nil {
		return dbInvestigation{}, err
	}
	caseFactsJSON, err := json.Marshal(g.CaseFacts)
	if err != nil {
		return dbInvestigation{}, err
	}
	return dbInvestigation{
		InvestigationID:   g.InvestigationID,
		AlertID:           g.AlertID,
		TenantID:          g.TenantID,
		State:             string(g.State),
		Context:           ctxJSON,
		Decisions:         decisionsJSON,
		Budget:            budgetJSON,
		CaseFacts:         caseFactsJSON,
		ShadowMode:        g.ShadowMode,
		LastInteractionAt: g.LastInteractionAt,
	}, nil
}

func (d dbInvestigation) toGraphState() (*GraphState, error) {
	g := New(d.InvestigationID, d.AlertID, d.TenantID, d.ShadowMode)
	g.State = State(d.State)
	g.LastInteractionAt = d.LastInteractionAt
	if err := json.Unmarshal(d.Context, &g.Context); err != nil {
		return nil, fmt.Errorf("investigation: decode context: %w", err)
	}
	if err := json.Unmarshal(d.Decisions, &g.Decisions); err != nil {
		return nil, fmt.Errorf("investigation: decode decisions: %w", err)
	}
	if err := json.Unmarshal(d.Budget, &g.Budget); err != nil {
		return nil, fmt.Errorf("investigation: decode budget: %w", err)
	}
	if err := json.Unmarshal(d.CaseFacts, &g.CaseFacts); err != nil {
		return nil, fmt.Errorf("investigation: decode case_facts: %w", err)
	}
	return g, nil
}

// Save upserts the investigation's current snapshot. Callers persist
// decision_chain entries separately via ReplaceDecisionChain so the
// append-only ordering guarantee (§5) survives a crash mid-investigation.
func (r *Repository) Save(ctx context.Context, g *GraphState) error {
	row, err := toDBInvestigation(g)
	if err != nil {
		return fmt.Errorf("investigation: marshal: %w", err)
	}
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	_, err = r.rel.DB().NamedExecContext(queryCtx, `
		INSERT INTO investigations (
			investigation_id, alert_id, tenant_id, state, context, decisions,
			budget, case_facts, shadow_mode, last_interaction_at
		) VALUES (
			:investigation_id, :alert_id, :tenant_id, :state, :context, :decisions,
			:budget, :case_facts, :shadow_mode, :last_interaction_at
		)
		ON CONFLICT (investigation_id) DO UPDATE SET
			state = EXCLUDED.state,
			context = EXCLUDED.context,
			decisions = EXCLUDED.decisions,
			budget = EXCLUDED.budget,
			case_facts = EXCLUDED.case_facts,
			last_interaction_at = EXCLUDED.last_interaction_at`, row)
	if err != nil {
		return fmt.Errorf("investigation: save: %w", err)
	}
	return nil
}

// ReplaceDecisionChain overwrites the persisted decision_chain_entries
// for an investigation with the current in-memory chain. Called after
// each orchestrator step rather than incrementally, since GraphState's
// decision_chain is only exposed as a full defensive copy
// (DecisionChain()), not as a stream of newly appended entries.
func (r *Repository) ReplaceDecisionChain(ctx context.Context, investigationID string, entries []DecisionEntry) error {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	return r.rel.WithTx(queryCtx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM decision_chain_entries WHERE investigation_id = $1`, investigationID); err != nil {
			return fmt.Errorf("investigation: clear decision chain: %w", err)
		}
		for _, e := range entries {
			details, err := json.Marshal(e.Details)
			if err != nil {
				return fmt.Errorf("investigation: marshal decision entry: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO decision_chain_entries
					(investigation_id, agent, from_state, to_state, timestamp, taxonomy_version, attestation_status, details)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				investigationID, e.Agent, string(e.FromState), string(e.ToState), e.Timestamp,
				e.TaxonomyVersion, e.AttestationStatus, details); err != nil {
				return fmt.Errorf("investigation: insert decision entry: %w", err)
			}
		}
		return nil
	})
}

// ClaimPending atomically claims the oldest unclaimed, non-terminal
// investigation using SELECT ... FOR UPDATE SKIP LOCKED, so concurrent
// orchestrator replicas never double-process the same investigation
// (grounded on queue/worker.go's claimNextSession). Returns (nil, nil)
// when no investigation is available to claim.
func (r *Repository) ClaimPending(ctx context.Context, workerID string) (*GraphState, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()

	var result *GraphState
	err := r.rel.WithTx(queryCtx, func(tx *sqlx.Tx) error {
		var row dbInvestigation
		err := tx.GetContext(ctx, &row, `
			SELECT investigation_id, alert_id, tenant_id, state, context, decisions,
				budget, case_facts, shadow_mode, last_interaction_at, claimed_by, claimed_at, created_at
			FROM investigations
			WHERE state NOT IN ('closed', 'failed') AND claimed_by IS NULL
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED`)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("investigation: claim query: %w", err)
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE investigations SET claimed_by = $1, claimed_at = $2, last_interaction_at = $2
			WHERE investigation_id = $3`, workerID, now, row.InvestigationID); err != nil {
			return fmt.Errorf("investigation: claim update: %w", err)
		}

		gs, err := row.toGraphState()
		if err != nil {
			return err
		}
		gs.LastInteractionAt = now
		result = gs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Release clears the claim on an investigation, either because it
// reached a terminal state or because the owning worker is shutting
// down cleanly and wants another replica free to pick it up.
func (r *Repository) Release(ctx context.Context, investigationID string) error {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	_, err := r.rel.DB().ExecContext(queryCtx,
		`UPDATE investigations SET claimed_by = NULL, claimed_at = NULL WHERE investigation_id = $1`,
		investigationID)
	if err != nil {
		return fmt.Errorf("investigation: release: %w", err)
	}
	return nil
}

// ReapOrphans clears claims on investigations whose last_interaction_at
// is older than staleAfter, returning the freed investigation IDs. This
// is the orphan-detection half of SPEC_FULL.md §D.1: a replica that died
// mid-transition stops heartbeating, and the claim eventually expires so
// another replica can pick the investigation back up.
func (r *Repository) ReapOrphans(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	var ids []string
	err := r.rel.DB().SelectContext(queryCtx, &ids, `
		UPDATE investigations SET claimed_by = NULL, claimed_at = NULL
		WHERE claimed_by IS NOT NULL
			AND state NOT IN ('closed', 'failed')
			AND last_interaction_at < $1
		RETURNING investigation_id`, time.Now().UTC().Add(-staleAfter))
	if err != nil {
		return nil, fmt.Errorf("investigation: reap orphans: %w", err)
	}
	return ids, nil
}

// Get loads one investigation by ID, scoped to tenantID.
func (r *Repository) Get(ctx context.Context, tenantID, investigationID string) (*GraphState, bool, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	var row dbInvestigation
	err := r.rel.DB().GetContext(queryCtx, &row, `
		SELECT investigation_id, alert_id, tenant_id, state, context, decisions,
			budget, case_facts, shadow_mode, last_interaction_at, claimed_by, claimed_at, created_at
		FROM investigations WHERE tenant_id = $1 AND investigation_id = $2`, tenantID, investigationID)
	if err != nil {
		return nil, false, nil
	}
	gs, err := row.toGraphState()
	if err != nil {
		return nil, false, err
	}
	return gs, true, nil
}
