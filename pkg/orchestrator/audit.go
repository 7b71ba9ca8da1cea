package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aluskort/platform/pkg/audit"
	"github.com/aluskort/platform/pkg/bus"
	"github.com/aluskort/platform/pkg/investigation"
)

// newAuditID prefers UUIDv7 for time-sortability (§9 Open Questions:
// "Time-sortable UUID selection (UUIDv7) vs. UUIDv4 is at the
// implementer's discretion; only uniqueness is required"), falling back
// to v4 if the v7 generator ever returns an error (clock read failure).
func newAuditID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// emitAudit builds an audit.IngestPayload and publishes it to
// bus.TopicAuditEvents keyed by tenant_id, the only channel any
// ALUSKORT subsystem uses to reach the audit store -- the audit service
// alone writes to audit storage (§3 "Lifecycle & ownership... The audit
// service is the sole writer to audit storage").
func emitAudit(ctx context.Context, pub bus.Producer, gs *investigation.GraphState, eventType, severity string, decision, outcome map[string]any) {
	if pub == nil {
		return
	}
	payload := audit.IngestPayload{
		SourceService:   "investigator",
		AuditID:         newAuditID(),
		TenantID:        gs.TenantID,
		Timestamp:       time.Now().UTC(),
		EventType:       eventType,
		Severity:        severity,
		Actor:           audit.Actor{Type: "service", ID: "orchestrator"},
		InvestigationID: gs.InvestigationID,
		AlertID:         gs.AlertID,
		Context:         audit.Context{Environment: "production"},
		Decision:        decision,
		Outcome:         outcome,
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return
	}
	// Audit emission is best-effort from the orchestrator's perspective:
	// a publish failure here must never block investigation progress
	// (§7 "Transient infrastructure... local retry... if retries
	// exhausted, surface upward" applies to the bus client itself, not
	// to this fire-and-forget emission point). The bus implementation
	// owns its own retry/backoff.
	_ = pub.Publish(ctx, bus.Message{Topic: bus.TopicAuditEvents, Key: gs.TenantID, Value: value})
}
