package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"
)

// LegalHoldChecker answers whether a tenant is currently under legal
// hold, blocking partition drops for its data (§4.E "dropping a
// partition checks ... no legal-hold tenant has data in it").
type LegalHoldChecker interface {
	UnderLegalHold(ctx context.Context, tenantID string) (bool, error)
}

// parquetRecord is the flattened row shape exported to cold storage
// (§6 "cold/{tenant}/{YYYY-MM}/audit_records.parquet"). Nested JSON
// blocks are kept as their raw encoded form rather than exploded into
// columns, mirroring the JSONB-at-rest shape of audit_records itself.
type parquetRecord struct {
	AuditID        string `parquet:"audit_id"`
	TenantID       string `parquet:"tenant_id"`
	SequenceNumber int64  `parquet:"sequence_number"`
	PreviousHash   string `parquet:"previous_hash"`
	RecordHash     string `parquet:"record_hash"`
	Timestamp      string `parquet:"timestamp"`
	IngestedAt     string `parquet:"ingested_at"`
	EventType      string `parquet:"event_type"`
	EventCategory  string `parquet:"event_category"`
	Severity       string `parquet:"severity"`
	ActorJSON      string `parquet:"actor_json"`
	InvestigationID string `parquet:"investigation_id"`
	AlertID         string `parquet:"alert_id"`
	ContextJSON     string `parquet:"context_json"`
	DecisionJSON    string `parquet:"decision_json"`
	OutcomeJSON     string `parquet:"outcome_json"`
	EvidenceRefsJSON string `parquet:"evidence_refs_json"`
	RecordVersion   int    `parquet:"record_version"`
}

func toParquetRecord(r Record) (parquetRecord, error) {
	actor, err := r.marshalField(r.Actor)
	if err != nil {
		return parquetRecord{}, err
	}
	ctxJSON, err := r.marshalField(r.Context)
	if err != nil {
		return parquetRecord{}, err
	}
	decision, err := r.marshalField(r.Decision)
	if err != nil {
		return parquetRecord{}, err
	}
	outcome, err := r.marshalField(r.Outcome)
	if err != nil {
		return parquetRecord{}, err
	}
	refs, err := r.marshalField(r.EvidenceRefs)
	if err != nil {
		return parquetRecord{}, err
	}
	return parquetRecord{
		AuditID:          r.AuditID,
		TenantID:         r.TenantID,
		SequenceNumber:   r.SequenceNumber,
		PreviousHash:     r.PreviousHash,
		RecordHash:       r.RecordHash,
		Timestamp:        r.Timestamp.UTC().Format(time.RFC3339Nano),
		IngestedAt:       r.IngestedAt.UTC().Format(time.RFC3339Nano),
		EventType:        r.EventType,
		EventCategory:    string(r.EventCategory),
		Severity:         r.Severity,
		ActorJSON:        actor,
		InvestigationID:  r.InvestigationID,
		AlertID:          r.AlertID,
		ContextJSON:      ctxJSON,
		DecisionJSON:     decision,
		OutcomeJSON:      outcome,
		EvidenceRefsJSON: refs,
		RecordVersion:    r.RecordVersion,
	}, nil
}

// marshalField is a tiny helper so toParquetRecord doesn't repeat the
// json.Marshal/error-wrap boilerplate five times.
func (r Record) marshalField(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("audit: marshal parquet field for %s: %w", r.AuditID, err)
	}
	return string(b), nil
}

// RetentionManager runs the monthly Parquet export and partition-drop
// cycle (§4.E "Retention. Monthly: export the month-old partition to
// Parquet ... upload with a SHA-256 sidecar, verify, then drop the
// Postgres partition").
type RetentionManager struct {
	repo       *Repository
	objects    ObjectStore
	legalHold  LegalHoldChecker
	warmBuffer int
	log        *slog.Logger
}

// NewRetentionManager constructs a RetentionManager. legalHold may be
// nil, in which case legal hold is treated as never blocking (callers
// embedding this in a deployment without a hold subsystem should not do
// this in production; tests may).
func NewRetentionManager(repo *Repository, objects ObjectStore, legalHold LegalHoldChecker, warmBufferMonths int, log *slog.Logger) *RetentionManager {
	if log == nil {
		log = slog.Default()
	}
	return &RetentionManager{repo: repo, objects: objects, legalHold: legalHold, warmBuffer: warmBufferMonths, log: log}
}

// ExportPartition exports every record for tenantID whose timestamp
// falls in [monthStart, monthStart+1month) to a Parquet object with a
// SHA-256 sidecar, and returns the object's URI and content hash.
func (m *RetentionManager) ExportPartition(ctx context.Context, tenantID string, monthStart time.Time) (string, string, error) {
	monthEnd := monthStart.AddDate(0, 1, 0)
	records, err := m.repo.ListRecords(ctx, Filter{TenantID: tenantID, From: monthStart, To: monthEnd.Add(-time.Nanosecond), Limit: 1_000_000})
	if err != nil {
		return "", "", fmt.Errorf("audit: export partition: %w", err)
	}
	if len(records) == 0 {
		return "", "", nil
	}

	rows := make([]parquetRecord, 0, len(records))
	for _, r := range records {
		pr, err := toParquetRecord(r)
		if err != nil {
			return "", "", err
		}
		rows = append(rows, pr)
	}

	buf := new(bytes.Buffer)
	pw := parquet.NewGenericWriter[parquetRecord](buf)
	if _, err := pw.Write(rows); err != nil {
		return "", "", fmt.Errorf("audit: write parquet: %w", err)
	}
	if err := pw.Close(); err != nil {
		return "", "", fmt.Errorf("audit: close parquet writer: %w", err)
	}

	key := fmt.Sprintf("cold/%s/%04d-%02d/audit_records.parquet", tenantID, monthStart.Year(), monthStart.Month())
	uri, hash, err := m.objects.Put(ctx, key, buf.Bytes())
	if err != nil {
		return "", "", fmt.Errorf("audit: upload partition export: %w", err)
	}
	return uri, hash, nil
}

// VerifyExport re-downloads the uploaded export and checks its SHA-256
// against hash, the verification step between upload and partition drop.
func (m *RetentionManager) VerifyExport(ctx context.Context, uri, wantHash string) (bool, error) {
	body, err := m.objects.Get(ctx, objectKeyFromURI(uri))
	if err != nil {
		return false, fmt.Errorf("audit: verify export: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]) == wantHash, nil
}

// DropDecision is the gate evaluated before a Postgres partition is
// physically dropped (§4.E "drop only if verification passed AND no
// legal-hold tenant has data in the partition AND at least one month of
// warm buffer remains").
type DropDecision struct {
	ExportVerified  bool
	UnderLegalHold  bool
	WarmBufferOK    bool
}

// MayDrop reports whether d clears every gate.
func (d DropDecision) MayDrop() bool {
	return d.ExportVerified && !d.UnderLegalHold && d.WarmBufferOK
}

// EvaluateDrop decides whether the partition for tenantID covering
// monthStart may be dropped, given that its export already verified.
func (m *RetentionManager) EvaluateDrop(ctx context.Context, tenantID string, monthStart time.Time, now time.Time, exportVerified bool) (DropDecision, error) {
	underHold := false
	if m.legalHold != nil {
		var err error
		underHold, err = m.legalHold.UnderLegalHold(ctx, tenantID)
		if err != nil {
			return DropDecision{}, fmt.Errorf("audit: legal hold check: %w", err)
		}
	}

	// bufferCutoff is pinned to the first of now's month so it lines up
	// exactly with the target month Run computes (now's month minus
	// warmBuffer): using now's raw day-of-month here would make every
	// partition permanently one month short of clearing this gate.
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	bufferCutoff := firstOfThisMonth.AddDate(0, -(m.warmBuffer - 1), 0)
	partitionEnd := monthStart.AddDate(0, 1, 0)
	warmBufferOK := !partitionEnd.After(bufferCutoff)

	d := DropDecision{ExportVerified: exportVerified, UnderLegalHold: underHold, WarmBufferOK: warmBufferOK}
	if !d.MayDrop() {
		m.log.Info("audit: partition drop withheld", "tenant_id", tenantID, "month", monthStart.Format("2006-01"),
			"export_verified", d.ExportVerified, "under_legal_hold", d.UnderLegalHold, "warm_buffer_ok", d.WarmBufferOK)
	}
	return d, nil
}

// Run executes one monthly retention cycle: export every tenant's slice
// of the partition due for retention (now minus warmBuffer months),
// verify each upload, and drop the whole month partition only if every
// tenant with rows in it cleared every gate (§4.E "drop only if
// verification passed AND no record in the partition belongs to a
// legal-hold tenant AND a one-month buffer remains"). The partition is
// shared across tenants, so a single tenant's failed export or legal
// hold withholds the drop for everyone. A later Run in the same calendar
// month targets the same partition again; a Run in a later month targets
// a later partition and does not revisit a withheld one. A tenant with
// no records in the target month cannot block it.
func (m *RetentionManager) Run(ctx context.Context, now time.Time, tenantIDs []string) error {
	target := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -m.warmBuffer, 0)

	exportedAny := false
	allClear := true
	for _, tenantID := range tenantIDs {
		uri, hash, err := m.ExportPartition(ctx, tenantID, target)
		if err != nil {
			m.log.Error("audit: retention export failed", "tenant_id", tenantID, "month", target.Format("2006-01"), "error", err)
			allClear = false
			continue
		}
		if uri == "" {
			continue // no rows for this tenant this month
		}
		exportedAny = true

		verified, err := m.VerifyExport(ctx, uri, hash)
		if err != nil {
			m.log.Error("audit: retention export verify failed", "tenant_id", tenantID, "uri", uri, "error", err)
			allClear = false
			continue
		}

		decision, err := m.EvaluateDrop(ctx, tenantID, target, now, verified)
		if err != nil {
			m.log.Error("audit: retention drop evaluation failed", "tenant_id", tenantID, "error", err)
			allClear = false
			continue
		}
		if !decision.MayDrop() {
			allClear = false
		}
	}

	if !exportedAny || !allClear {
		if exportedAny {
			m.log.Info("audit: retention partition drop withheld", "month", target.Format("2006-01"))
		}
		return nil
	}

	dropped, err := m.repo.DropMonthPartition(ctx, target)
	if err != nil {
		m.log.Error("audit: retention partition drop failed", "month", target.Format("2006-01"), "error", err)
		return nil
	}
	if !dropped {
		m.log.Warn("audit: no month partition to drop, rows remain in the default partition", "month", target.Format("2006-01"))
		return nil
	}
	m.log.Info("audit: retention partition dropped", "month", target.Format("2006-01"))
	return nil
}

// ColdTier classifies an object's storage class by age in days, the
// lifecycle transitions named in §6 ("365d -> infrequent access, 730d ->
// glacier/archive, 2555d (7y) -> expire per tenant retention contract").
type ColdTier string

const (
	TierStandard ColdTier = "standard"
	TierInfrequentAccess ColdTier = "infrequent_access"
	TierArchive ColdTier = "archive"
	TierExpired ColdTier = "expired"
)

// ColdTierForAge returns the storage class an object of the given age
// (in days) should be in.
func ColdTierForAge(ageDays int) ColdTier {
	switch {
	case ageDays >= 2555:
		return TierExpired
	case ageDays >= 730:
		return TierArchive
	case ageDays >= 365:
		return TierInfrequentAccess
	default:
		return TierStandard
	}
}
