package audit

import "github.com/google/uuid"

// newAuditID mints a time-sortable UUIDv7 for audit_id, falling back to
// a random UUIDv4 only if V7 generation errors (SPEC_FULL.md §E "Audit/
// investigation IDs use google/uuid's NewV7() ... falling back to
// NewRandom() only if V7 generation errors").
func newAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
