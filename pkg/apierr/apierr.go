// Package apierr defines the typed error kinds spec.md §7 names so
// callers can errors.As/errors.Is instead of string-matching, plus an
// HTTP status mapping (HTTPStatus) for HTTP handlers; no handler in this
// module calls HTTPStatus. Grounded in the teacher's
// pkg/config.ValidationError (field-plus-wrapped-err shape) generalized
// across all six kinds in §7, and in pkg/api/errors.go's
// error-to-HTTP-status mapping (there keyed on sentinel errors via
// errors.Is, here keyed on the typed kinds via errors.As).
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError is a schema failure or contract violation (§7
// "Validation / contract violations ... fail-fast at the emitter or
// deserializer").
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %v", e.Field, e.Err)
}
func (e *ValidationError) Unwrap() error { return e.Err }

// TransientError wraps an infrastructure failure that was retried and
// exhausted its budget (§7 "Transient infrastructure ... if retries
// exhausted, surface upward as a typed transient error").
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}
func (e *TransientError) Unwrap() error { return e.Err }

// BudgetExceededError covers monthly spend caps, tenant quotas, and
// escalation budgets (§7 "Budget exhaustion ... never silently downgrade
// to a smaller model").
type BudgetExceededError struct {
	Kind     string // "monthly_spend", "tenant_quota", "escalation_budget"
	TenantID string
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s (tenant=%s)", e.Kind, e.TenantID)
}

// SafetyViolation never propagates as a caller-visible failure; it is
// recorded and the offending output stripped from automation-driving
// fields (§7 "Safety violations ... never raise upward"). The type exists
// so subsystems that choose to log it structurally can still
// errors.As/errors.Is it before swallowing it, rather than stringifying.
type SafetyViolation struct {
	Kind   string // "injection_quarantine", "unknown_technique_id", "constraint_blocked"
	Detail string
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("safety violation: %s: %s", e.Kind, e.Detail)
}

// StoreIntegrityError signals a chain verification failure or hash
// mismatch (§7 "Store integrity ... alert via metrics ... do NOT rewrite
// records; investigate out-of-band").
type StoreIntegrityError struct {
	TenantID string
	Detail   string
	Err      error
}

func (e *StoreIntegrityError) Error() string {
	return fmt.Sprintf("store integrity: tenant=%s: %s: %v", e.TenantID, e.Detail, e.Err)
}
func (e *StoreIntegrityError) Unwrap() error { return e.Err }

// FatalError is unrecoverable: append-only violation attempted, corrupted
// head row, unrecoverable orchestrator state (§7 "transition the
// investigation to failed, audit, and stop; no automatic recovery").
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
}
func (e *FatalError) Unwrap() error { return e.Err }

// HTTPStatus maps a typed error to the status code an HTTP handler
// should return, falling back to 500 for anything unrecognized --
// mirrors the teacher's mapServiceError but dispatches on the §7 kinds
// instead of service-layer sentinels.
func HTTPStatus(err error) int {
	var (
		validationErr *ValidationError
		budgetErr     *BudgetExceededError
		storeErr      *StoreIntegrityError
		fatalErr      *FatalError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &budgetErr):
		return http.StatusTooManyRequests
	case errors.As(err, &storeErr):
		return http.StatusConflict
	case errors.As(err, &fatalErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
