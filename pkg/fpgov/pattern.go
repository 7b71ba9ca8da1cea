// Package fpgov implements FP Governance & Safety (spec.md §4.D): pattern
// matching, kill switches, two-person governance, canary promotion
// (per-pattern and system-level), tenant shadow mode, and the FP
// evaluation loop that keeps auto-closure measured and revocable.
//
// Grounded in the teacher's pkg/runbook (versioned, cached, externally
// sourced knowledge artifacts) generalized from "runbook lookup" to
// "governed pattern lifecycle", and in the kubechat audit-service
// reference file's LegalHold-style two-actor workflow shape (distinct
// approvers, terminal states) mined from other_examples.
package fpgov

import "time"

// PatternStatus is a closed enum (§3 "FP Pattern... status ∈ {shadow,
// active, expired, revoked, approved}"). This implementation treats
// "pending" (pre-first-approval) as a distinct internal status the
// governance workflow uses before a pattern reaches "active"; "approved"
// is modeled as reaching "active" with both approvals recorded, matching
// spec.md's lifecycle description in §4.D ("On second approval, set
// status=active").
type PatternStatus string

const (
	StatusPending PatternStatus = "pending"
	StatusShadow  PatternStatus = "shadow"
	StatusActive  PatternStatus = "active"
	StatusExpired PatternStatus = "expired"
	StatusRevoked PatternStatus = "revoked"
)

// Terminal reports whether a status cannot transition further within this
// version (§9 Open Questions: "exiting REVOKED or EXPIRED... not
// specified -- treat as terminal within a version").
func (s PatternStatus) Terminal() bool {
	return s == StatusExpired || s == StatusRevoked
}

// EntityCondition is one entity-match rule: either a regex or a CIDR,
// never both (§3 "entity regex/CIDR").
type EntityCondition struct {
	Regex string
	CIDR  string
}

// MatchConditions is the match surface a pattern is compared against
// (§3 "match conditions (alert name set, entity regex/CIDR)").
type MatchConditions struct {
	AlertNames []string
	Entities   []EntityCondition
}

// Scope narrows which alerts a pattern is even considered for (§3
// "scope (rule_family, tenant_id, asset_class)"); empty fields match any
// value (§4.D "Matching... active... scope-matching patterns (empty
// scope matches any)").
type Scope struct {
	RuleFamily  string
	TenantID    string
	AssetClass  string
}

// Matches reports whether candidate scope satisfies this (possibly
// partially empty) scope.
func (s Scope) Matches(candidate Scope) bool {
	if s.RuleFamily != "" && s.RuleFamily != candidate.RuleFamily {
		return false
	}
	if s.TenantID != "" && s.TenantID != candidate.TenantID {
		return false
	}
	if s.AssetClass != "" && s.AssetClass != candidate.AssetClass {
		return false
	}
	return true
}

// Governance carries the two-person approval and expiry/reaffirmation
// state (§3 "governance (approved_by_1, approved_by_2, expiry_date,
// reaffirmed_date, reaffirmed_by)").
type Governance struct {
	ApprovedBy1    string
	ApprovedBy2    string
	ExpiryDate     time.Time
	ReaffirmedDate time.Time
	ReaffirmedBy   string
}

// Counters tracks a pattern's canary promotion progress (§4.D "Canary
// (pattern promotion)").
type Counters struct {
	TotalDecisions int
	AgreeCount     int
	DisagreeCount  int
}

// DisagreementRate returns the fraction of recorded decisions that
// disagreed with the analyst outcome, 0 when there are no decisions yet.
func (c Counters) DisagreementRate() float64 {
	if c.TotalDecisions == 0 {
		return 0
	}
	return float64(c.DisagreeCount) / float64(c.TotalDecisions)
}

// Pattern is the full FP pattern record (§3 "FP Pattern").
type Pattern struct {
	PatternID           string
	RuleFamily          string
	Scope               Scope
	Conditions          MatchConditions
	ConfidenceThreshold float64
	Status              PatternStatus
	Governance          Governance
	Counters            Counters
	CreatedAt           time.Time
}
