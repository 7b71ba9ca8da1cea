// Package alert defines the canonical security alert contract shared by
// every ALUSKORT component: the wire shape ingested from alerts.raw /
// alerts.normalized and the invariants that make it safe to treat as
// immutable evidence once parsed.
package alert

import (
	"fmt"
	"time"
)

// Severity is a closed enumeration; no other string is a valid severity
// anywhere in the system (§3 "severity is closed-enum").
type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityHigh          Severity = "high"
	SeverityMedium        Severity = "medium"
	SeverityLow           Severity = "low"
	SeverityInformational Severity = "informational"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInformational:
		return true
	default:
		return false
	}
}

// Alert is the canonical, immutable-after-ingest representation of a
// security event (§3 "Canonical Alert"). Fields are grouped as identity,
// semantic content, raw entities, and the original payload exactly as
// spec'd; nothing here is mutated post-ingest -- the Investigation
// (pkg/investigation.GraphState) is the mutable side of the pipeline.
type Alert struct {
	// Identity
	AlertID   string    `json:"alert_id" validate:"required"`
	TenantID  string    `json:"tenant_id" validate:"required"`
	Source    string    `json:"source" validate:"required"`
	Product   string    `json:"product" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`

	// Semantic content
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity" validate:"required"`
	Tactics     []string `json:"tactics,omitempty"`
	Techniques  []string `json:"techniques,omitempty"`

	// Raw entities: product-specific, deliberately opaque. Parsing into
	// typed entities happens downstream in the orchestrator's "parsing"
	// state, never here -- this struct only carries the contract.
	RawEntities string `json:"raw_entities,omitempty"`

	// OriginalPayload preserves exactly what the source product sent, for
	// evidence packaging and re-processing after a schema change.
	OriginalPayload []byte `json:"original_payload,omitempty"`
}

// Validate enforces the invariants spec.md §3 calls out explicitly:
// severity is a closed enum, tenant_id is always present, and the
// timestamp round-trips as RFC 3339. Struct tag validation (via
// go-playground/validator, wired at the ingest boundary) covers
// required-ness; this catches the parts a tag can't express.
func (a *Alert) Validate() error {
	if a.TenantID == "" {
		return fmt.Errorf("%w: tenant_id", ErrMissingField)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("%w: severity %q", ErrInvalidSeverity, a.Severity)
	}
	if a.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	return nil
}
