package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aluskort/platform/pkg/bus"
)

// IngestPayload is the audit.events wire contract: the audit record
// minus the four fields this service assigns (§6 "audit.events payload:
// audit record minus sequence_number, previous_hash, record_hash,
// ingested_at ... includes source_service, audit_id (UUIDv7 preferred),
// timestamp (UTC ISO 8601 with Z)").
type IngestPayload struct {
	SourceService   string         `json:"source_service"`
	AuditID         string         `json:"audit_id"`
	TenantID        string         `json:"tenant_id"`
	Timestamp       time.Time      `json:"timestamp"`
	EventType       string         `json:"event_type"`
	Severity        string         `json:"severity"`
	Actor           Actor          `json:"actor"`
	InvestigationID string         `json:"investigation_id,omitempty"`
	AlertID         string         `json:"alert_id,omitempty"`
	EntityIDs       []string       `json:"entity_ids,omitempty"`
	Context         Context        `json:"context"`
	Decision        map[string]any `json:"decision,omitempty"`
	Outcome         map[string]any `json:"outcome,omitempty"`
	EvidenceRefs    []EvidenceRef  `json:"evidence_refs,omitempty"`
}

// Ingester is the single-writer consumer of audit.events (§4.E
// "Ingest. Single-writer consumer of the audit event bus, ordered per
// tenant"). One Ingester per deployment: the teacher's own worker pool
// (pkg/queue/worker.go) runs multiple replicas behind SKIP LOCKED, but
// audit ingest explicitly cannot -- ordering per tenant requires exactly
// one writer, so this type is deployed as a single replica (§5).
type Ingester struct {
	repo    *Repository
	metrics MetricsSink
	log     *slog.Logger
}

// MetricsSink is the narrow surface pkg/obs implements so pkg/audit
// doesn't import Prometheus directly (keeps the dependency pointed one
// way: obs depends on audit's types, not vice versa).
type MetricsSink interface {
	ObserveIngest(tenantID string, ok bool)
	ObserveLag(tenantID string, lag int64)
	ObserveVerification(tenantID, checkType string, valid bool, duration time.Duration)
}

// noopMetrics discards everything; used when the caller doesn't wire a
// real sink (e.g. in tests).
type noopMetrics struct{}

func (noopMetrics) ObserveIngest(string, bool)                           {}
func (noopMetrics) ObserveLag(string, int64)                             {}
func (noopMetrics) ObserveVerification(string, string, bool, time.Duration) {}

// NewIngester constructs an Ingester. metrics may be nil.
func NewIngester(repo *Repository, metrics MetricsSink, log *slog.Logger) *Ingester {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{repo: repo, metrics: metrics, log: log}
}

// Run subscribes to audit.events and processes messages until ctx is
// cancelled. DLQ'd messages (schema failure, unknown event_type, missing
// tenant) are published to a caller-supplied dlq producer rather than
// blocking the pipeline (§7 "fail-fast at the emitter or deserializer;
// DLQ the raw message with an error envelope; do not block the
// pipeline").
func (ing *Ingester) Run(ctx context.Context, b bus.Bus, dlq bus.Producer) error {
	return b.Subscribe(ctx, bus.TopicAuditEvents, "audit-service", func(ctx context.Context, msg bus.Message) error {
		if err := ing.handle(ctx, msg); err != nil {
			ing.log.Warn("audit: DLQ message", "error", err, "key", msg.Key)
			ing.metrics.ObserveIngest(msg.Key, false)
			if dlq != nil {
				envelope, _ := json.Marshal(map[string]any{"error": err.Error(), "original": json.RawMessage(msg.Value)})
				_ = dlq.Publish(ctx, bus.Message{Topic: bus.TopicAlertsRawDLQ, Key: msg.Key, Value: envelope})
			}
			return nil
		}
		ing.metrics.ObserveIngest(msg.Key, true)
		return nil
	})
}

func (ing *Ingester) handle(ctx context.Context, msg bus.Message) error {
	var payload IngestPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", ErrUnknownEventType, err)
	}
	if payload.TenantID == "" {
		return fmt.Errorf("audit: payload missing tenant_id")
	}
	if _, ok := ValidEventType(payload.EventType); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, payload.EventType)
	}
	if payload.AuditID == "" {
		payload.AuditID = newAuditID()
	}

	return ing.repo.rel.WithTx(ctx, func(tx *sqlx.Tx) error {
		return ing.ingestOne(ctx, tx, payload)
	})
}

// ingestOne implements the six-step ingest sequence in §4.E: ensure
// chain head (creating genesis if absent), assign sequence_number and
// previous_hash, compute record_hash, INSERT, upsert the head. Offset
// commit (step 6) is the bus library's responsibility once this
// transaction returns nil.
func (ing *Ingester) ingestOne(ctx context.Context, tx *sqlx.Tx, payload IngestPayload) error {
	now := time.Now().UTC()

	head, exists, err := getHead(ctx, tx, payload.TenantID)
	if err != nil {
		return err
	}
	if !exists {
		genesis, err := NewGenesis(payload.TenantID, now)
		if err != nil {
			return err
		}
		if err := insertRecord(ctx, tx, genesis); err != nil {
			return err
		}
		if err := upsertHead(ctx, tx, payload.TenantID, genesis.SequenceNumber, genesis.RecordHash); err != nil {
			return err
		}
		head = ChainHead{TenantID: payload.TenantID, LastSequence: genesis.SequenceNumber, LastHash: genesis.RecordHash}
	}

	record := Record{
		AuditID:         payload.AuditID,
		TenantID:        payload.TenantID,
		SequenceNumber:  head.LastSequence + 1,
		PreviousHash:    head.LastHash,
		Timestamp:       payload.Timestamp,
		IngestedAt:      now,
		EventType:       payload.EventType,
		EventCategory:   CategoryOf(payload.EventType),
		Severity:        payload.Severity,
		Actor:           payload.Actor,
		InvestigationID: payload.InvestigationID,
		AlertID:         payload.AlertID,
		EntityIDs:       payload.EntityIDs,
		Context:         payload.Context,
		Decision:        payload.Decision,
		Outcome:         payload.Outcome,
		EvidenceRefs:    payload.EvidenceRefs,
		RecordVersion:   1,
	}
	hash, err := record.ComputeHash()
	if err != nil {
		return err
	}
	record.RecordHash = hash

	if err := insertRecord(ctx, tx, record); err != nil {
		return err
	}
	return upsertHead(ctx, tx, payload.TenantID, record.SequenceNumber, record.RecordHash)
}
