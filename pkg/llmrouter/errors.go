package llmrouter

import "errors"

var (
	// ErrQuotaExceeded indicates a tenant's hourly quota was exceeded
	// (§4.C "Exceeding the tenant quota raises QuotaExceeded").
	ErrQuotaExceeded = errors.New("llmrouter: tenant hourly quota exceeded")

	// ErrNoEligibleModel indicates every candidate (primary + fallbacks)
	// failed the task's capability match.
	ErrNoEligibleModel = errors.New("llmrouter: no model satisfies task capabilities")
)
