// Package audit implements the Audit Service (spec.md §4.E): the sole
// writer of ALUSKORT's tamper-evident audit store. It owns ingest
// (hash-chained, ordered per tenant), the evidence store for large
// artifacts, continuous/periodic chain verification, evidence package
// assembly, and retention/archival.
//
// Grounded in the teacher's pkg/database repository style for the
// relational bindings, and in the kubechat other_examples audit-service
// reference file for the shape of a dedicated append-only audit domain
// (hash-chain verification, legal holds, compliance reporting, retention)
// generalized here from a single-tenant admin log to ALUSKORT's
// multi-tenant, bus-fed, hash-chained ledger.
package audit

import "errors"

var (
	// ErrChainBroken is returned by verification when a record's
	// previous_hash doesn't match its predecessor's record_hash (§8
	// invariant: "∃ prior r' with r.previous_hash == r'.record_hash").
	ErrChainBroken = errors.New("audit: chain link broken")

	// ErrHashMismatch is returned when a stored record_hash doesn't match
	// the hash recomputed from its canonical JSON (§8 "Recomputing
	// record_hash from canonical JSON ... equals the stored value").
	ErrHashMismatch = errors.New("audit: record hash mismatch")

	// ErrSequenceGap is returned when a tenant's sequence numbers are not
	// contiguous from 0 (§8 "sequence_number values form a contiguous
	// non-negative sequence starting at 0").
	ErrSequenceGap = errors.New("audit: sequence number gap")

	// ErrAppendOnlyViolation signals an attempted mutation of an existing
	// record was rejected by the store (§7 "Fatal: append-only violation
	// attempted").
	ErrAppendOnlyViolation = errors.New("audit: append-only violation")

	// ErrUnknownEventType is returned when an ingest payload's event_type
	// isn't a member of the closed vocabulary (§8 "For every audit event
	// on the bus, event_type is a member of the closed vocabulary").
	ErrUnknownEventType = errors.New("audit: unknown event_type")

	// ErrLegalHold blocks a retention drop for a tenant under legal hold.
	ErrLegalHold = errors.New("audit: tenant is under legal hold")

	// ErrWarmBufferRequired blocks a retention drop that would leave fewer
	// than the configured warm-buffer months in Postgres.
	ErrWarmBufferRequired = errors.New("audit: retention would violate warm buffer")
)
