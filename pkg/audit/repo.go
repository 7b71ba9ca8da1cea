package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aluskort/platform/pkg/store"
)

// Repository is the relational binding for audit_records (§4.F "a pooled
// relational client"). It never exposes raw SQL to callers outside this
// package, matching the teacher's repository-per-table convention.
type Repository struct {
	rel *store.Relational
}

// NewRepository wraps a store.Relational for audit record persistence.
func NewRepository(rel *store.Relational) *Repository {
	return &Repository{rel: rel}
}

// dbRecord is the wire shape audit_records actually stores: JSONB
// columns are plain []byte here so sqlx's reflection-based scan never
// has to know about Actor/Context/map[string]any/[]EvidenceRef.
type dbRecord struct {
	AuditID         string    `db:"audit_id"`
	TenantID        string    `db:"tenant_id"`
	SequenceNumber  int64     `db:"sequence_number"`
	PreviousHash    string    `db:"previous_hash"`
	RecordHash      string    `db:"record_hash"`
	Timestamp       time.Time `db:"timestamp"`
	IngestedAt      time.Time `db:"ingested_at"`
	EventType       string    `db:"event_type"`
	EventCategory   string    `db:"event_category"`
	Severity        string    `db:"severity"`
	Actor           []byte    `db:"actor"`
	InvestigationID *string   `db:"investigation_id"`
	AlertID         *string   `db:"alert_id"`
	EntityIDs       []byte    `db:"entity_ids"`
	Context         []byte    `db:"context"`
	Decision        []byte    `db:"decision"`
	Outcome         []byte    `db:"outcome"`
	EvidenceRefs    []byte    `db:"evidence_refs"`
	RecordVersion   int       `db:"record_version"`
}

func toDBRecord(r Record) (dbRecord, error) {
	actor, err := json.Marshal(r.Actor)
	if err != nil {
		return dbRecord{}, err
	}
	entityIDs, err := json.Marshal(r.EntityIDs)
	if err != nil {
		return dbRecord{}, err
	}
	ctx, err := json.Marshal(r.Context)
	if err != nil {
		return dbRecord{}, err
	}
	decision, err := json.Marshal(r.Decision)
	if err != nil {
		return dbRecord{}, err
	}
	outcome, err := json.Marshal(r.Outcome)
	if err != nil {
		return dbRecord{}, err
	}
	evidenceRefs, err := json.Marshal(r.EvidenceRefs)
	if err != nil {
		return dbRecord{}, err
	}

	var investigationID, alertID *string
	if r.InvestigationID != "" {
		investigationID = &r.InvestigationID
	}
	if r.AlertID != "" {
		alertID = &r.AlertID
	}

	return dbRecord{
		AuditID:         r.AuditID,
		TenantID:        r.TenantID,
		SequenceNumber:  r.SequenceNumber,
		PreviousHash:    r.PreviousHash,
		RecordHash:      r.RecordHash,
		Timestamp:       r.Timestamp,
		IngestedAt:      r.IngestedAt,
		EventType:       r.EventType,
		EventCategory:   string(r.EventCategory),
		Severity:        r.Severity,
		Actor:           actor,
		InvestigationID: investigationID,
		AlertID:         alertID,
		EntityIDs:       entityIDs,
		Context:         ctx,
		Decision:        decision,
		Outcome:         outcome,
		EvidenceRefs:    evidenceRefs,
		RecordVersion:   r.RecordVersion,
	}, nil
}

func (d dbRecord) toRecord() (Record, error) {
	var actor Actor
	if err := json.Unmarshal(d.Actor, &actor); err != nil {
		return Record{}, err
	}
	var entityIDs []string
	if err := json.Unmarshal(d.EntityIDs, &entityIDs); err != nil {
		return Record{}, err
	}
	var ctx Context
	if err := json.Unmarshal(d.Context, &ctx); err != nil {
		return Record{}, err
	}
	var decision map[string]any
	if err := json.Unmarshal(d.Decision, &decision); err != nil {
		return Record{}, err
	}
	var outcome map[string]any
	if err := json.Unmarshal(d.Outcome, &outcome); err != nil {
		return Record{}, err
	}
	var refs []EvidenceRef
	if err := json.Unmarshal(d.EvidenceRefs, &refs); err != nil {
		return Record{}, err
	}

	r := Record{
		AuditID:        d.AuditID,
		TenantID:       d.TenantID,
		SequenceNumber: d.SequenceNumber,
		PreviousHash:   d.PreviousHash,
		RecordHash:     d.RecordHash,
		Timestamp:      d.Timestamp,
		IngestedAt:     d.IngestedAt,
		EventType:      d.EventType,
		EventCategory:  EventCategory(d.EventCategory),
		Severity:       d.Severity,
		Actor:          actor,
		EntityIDs:      entityIDs,
		Context:        ctx,
		Decision:       decision,
		Outcome:        outcome,
		EvidenceRefs:   refs,
		RecordVersion:  d.RecordVersion,
	}
	if d.InvestigationID != nil {
		r.InvestigationID = *d.InvestigationID
	}
	if d.AlertID != nil {
		r.AlertID = *d.AlertID
	}
	return r, nil
}

// insertRecord inserts r inside tx. UNIQUE(tenant_id, sequence_number)
// provides at-least-once duplicate suppression (§4.E).
func insertRecord(ctx context.Context, tx *sqlx.Tx, r Record) error {
	db, err := toDBRecord(r)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO audit_records (
			audit_id, tenant_id, sequence_number, previous_hash, record_hash,
			timestamp, ingested_at, event_type, event_category, severity,
			actor, investigation_id, alert_id, entity_ids, context,
			decision, outcome, evidence_refs, record_version
		) VALUES (
			:audit_id, :tenant_id, :sequence_number, :previous_hash, :record_hash,
			:timestamp, :ingested_at, :event_type, :event_category, :severity,
			:actor, :investigation_id, :alert_id, :entity_ids, :context,
			:decision, :outcome, :evidence_refs, :record_version
		)
		ON CONFLICT (tenant_id, sequence_number) DO NOTHING`, db)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}

// Filter narrows a record listing (§6 "GET /v1/audit/events").
type Filter struct {
	TenantID        string
	InvestigationID string
	EventType       string
	From            time.Time
	To              time.Time
	Limit           int
}

// ListRecords returns records matching filter, ordered by sequence
// number ascending, always scoped by TenantID (§6 "All endpoints enforce
// tenant isolation from credential context").
func (r *Repository) ListRecords(ctx context.Context, f Filter) ([]Record, error) {
	if f.TenantID == "" {
		return nil, fmt.Errorf("audit: ListRecords requires TenantID")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT audit_id, tenant_id, sequence_number, previous_hash, record_hash,
		timestamp, ingested_at, event_type, event_category, severity,
		actor, investigation_id, alert_id, entity_ids, context,
		decision, outcome, evidence_refs, record_version
		FROM audit_records WHERE tenant_id = $1`
	args := []any{f.TenantID}

	if f.InvestigationID != "" {
		args = append(args, f.InvestigationID)
		query += fmt.Sprintf(" AND investigation_id = $%d", len(args))
	}
	if f.EventType != "" {
		args = append(args, f.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY sequence_number ASC LIMIT $%d", len(args))

	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()

	var rows []dbRecord
	if err := r.rel.DB().SelectContext(queryCtx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("audit: list records: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("audit: decode record %s: %w", row.AuditID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetByID returns one record by audit_id, scoped to tenantID.
func (r *Repository) GetByID(ctx context.Context, tenantID, auditID string) (Record, bool, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()

	var row dbRecord
	err := r.rel.DB().GetContext(queryCtx, &row, `SELECT audit_id, tenant_id, sequence_number, previous_hash, record_hash,
		timestamp, ingested_at, event_type, event_category, severity,
		actor, investigation_id, alert_id, entity_ids, context,
		decision, outcome, evidence_refs, record_version
		FROM audit_records WHERE tenant_id = $1 AND audit_id = $2`, tenantID, auditID)
	if err != nil {
		return Record{}, false, nil
	}
	rec, err := row.toRecord()
	if err != nil {
		return Record{}, false, fmt.Errorf("audit: decode record %s: %w", auditID, err)
	}
	return rec, true, nil
}

// SequenceRange returns every record for tenantID with sequence_number
// in [from, to], ascending, used by chain verification.
func (r *Repository) SequenceRange(ctx context.Context, tenantID string, from, to int64) ([]Record, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()

	var rows []dbRecord
	err := r.rel.DB().SelectContext(queryCtx, &rows, `SELECT audit_id, tenant_id, sequence_number, previous_hash, record_hash,
		timestamp, ingested_at, event_type, event_category, severity,
		actor, investigation_id, alert_id, entity_ids, context,
		decision, outcome, evidence_refs, record_version
		FROM audit_records WHERE tenant_id = $1 AND sequence_number BETWEEN $2 AND $3
		ORDER BY sequence_number ASC`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("audit: sequence range: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("audit: decode record %s: %w", row.AuditID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// MaxSequence returns the highest sequence_number ingested for tenantID,
// used by the hourly lag check against the bus offset (§4.E).
func (r *Repository) MaxSequence(ctx context.Context, tenantID string) (int64, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()

	var max int64
	err := r.rel.DB().GetContext(queryCtx, &max,
		`SELECT COALESCE(MAX(sequence_number), -1) FROM audit_records WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("audit: max sequence: %w", err)
	}
	return max, nil
}

// WriteVerificationLog records one verification run's outcome (§4.E
// "Every run writes a row to audit_verification_log").
func (r *Repository) WriteVerificationLog(ctx context.Context, tenantID, checkType string, valid bool, errs []string, duration time.Duration) error {
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	_, err = r.rel.DB().ExecContext(queryCtx, `
		INSERT INTO audit_verification_log (tenant_id, check_type, valid, errors, checked_at, duration_ms)
		VALUES ($1, $2, $3, $4, now(), $5)`,
		tenantID, checkType, valid, errsJSON, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("audit: write verification log: %w", err)
	}
	return nil
}

// ListTenants returns every tenant_id with a chain head, used to fan the
// periodic verification jobs out across tenants.
func (r *Repository) ListTenants(ctx context.Context) ([]string, error) {
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	var tenants []string
	if err := r.rel.DB().SelectContext(queryCtx, &tenants, `SELECT tenant_id FROM audit_chain_heads ORDER BY tenant_id`); err != nil {
		return nil, fmt.Errorf("audit: list tenants: %w", err)
	}
	return tenants, nil
}

// monthPartitionName builds the month partition's table name
// (audit_records_YYYY_MM). The name is assembled from validated integer
// parts only, never from caller strings, so interpolating it into DDL
// below is safe.
func monthPartitionName(monthStart time.Time) string {
	return fmt.Sprintf("audit_records_%04d_%02d", monthStart.Year(), int(monthStart.Month()))
}

// EnsureMonthPartition creates the range partition covering
// [monthStart, monthStart+1month) if it does not already exist. The
// retention sweep calls this ahead of need (current and next month) so
// rows land in a droppable monthly partition instead of the catch-all
// default; creating a partition for a month whose rows already sit in
// the default partition fails, which is why ahead-of-need is the only
// supported creation time.
func (r *Repository) EnsureMonthPartition(ctx context.Context, monthStart time.Time) error {
	start := time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()
	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF audit_records FOR VALUES FROM ('%s') TO ('%s')`,
		monthPartitionName(start), start.Format(time.RFC3339), end.Format(time.RFC3339))
	if _, err := r.rel.DB().ExecContext(queryCtx, ddl); err != nil {
		return fmt.Errorf("audit: ensure month partition %s: %w", monthPartitionName(start), err)
	}
	return nil
}

// DropMonthPartition detaches and drops the month partition covering
// monthStart, the last step of the retention cycle, run only after
// RetentionManager has confirmed the month's export and cleared every
// drop gate for every tenant with rows in it. This is metadata-only DDL:
// no DELETE ever runs against audit_records, so the append-only trigger
// (which forbids row UPDATE/DELETE) is never in play. Returns false
// without error when no partition exists for that month -- rows ingested
// before the partition was created live in the default partition and are
// deliberately left in place rather than deleted through the trigger.
func (r *Repository) DropMonthPartition(ctx context.Context, monthStart time.Time) (bool, error) {
	name := monthPartitionName(monthStart)
	queryCtx, cancel := r.rel.WithTimeout(ctx)
	defer cancel()

	var exists bool
	if err := r.rel.DB().GetContext(queryCtx, &exists,
		`SELECT to_regclass($1) IS NOT NULL`, name); err != nil {
		return false, fmt.Errorf("audit: check partition %s: %w", name, err)
	}
	if !exists {
		return false, nil
	}

	err := r.rel.WithTx(queryCtx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE audit_records DETACH PARTITION %s`, name)); err != nil {
			return fmt.Errorf("audit: detach partition %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, name)); err != nil {
			return fmt.Errorf("audit: drop partition %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
