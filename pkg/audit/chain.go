package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ChainHead is the per-tenant cursor the ingest path advances on every
// record (§4.E "fetch/ensure chain head for the tenant").
type ChainHead struct {
	TenantID     string    `db:"tenant_id"`
	LastSequence int64     `db:"last_sequence"`
	LastHash     string    `db:"last_hash"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// getHead fetches the current chain head for a tenant inside tx, or
// (ChainHead{}, false, nil) if the tenant has never ingested an event.
func getHead(ctx context.Context, tx *sqlx.Tx, tenantID string) (ChainHead, bool, error) {
	var head ChainHead
	err := tx.GetContext(ctx, &head,
		`SELECT tenant_id, last_sequence, last_hash, updated_at FROM audit_chain_heads WHERE tenant_id = $1 FOR UPDATE`,
		tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return ChainHead{}, false, nil
	}
	if err != nil {
		return ChainHead{}, false, fmt.Errorf("audit: get chain head: %w", err)
	}
	return head, true, nil
}

// upsertHead advances the chain head to the given sequence/hash.
func upsertHead(ctx context.Context, tx *sqlx.Tx, tenantID string, sequence int64, hash string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_chain_heads (tenant_id, last_sequence, last_hash, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id) DO UPDATE
		SET last_sequence = EXCLUDED.last_sequence,
		    last_hash = EXCLUDED.last_hash,
		    updated_at = EXCLUDED.updated_at`,
		tenantID, sequence, hash)
	if err != nil {
		return fmt.Errorf("audit: upsert chain head: %w", err)
	}
	return nil
}
