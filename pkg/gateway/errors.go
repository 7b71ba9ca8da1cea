package gateway

import "errors"

var (
	// ErrSpendLimitExceeded indicates the tenant's monthly hard cap has
	// been reached (§4.B item 1, §7 "Budget exhaustion").
	ErrSpendLimitExceeded = errors.New("gateway: monthly spend limit exceeded")

	// ErrModelCallFailed wraps a provider adapter failure that the router's
	// own policy (not the gateway) decides how to handle (§4.B "Model call
	// fails per provider policy -> return router error upward").
	ErrModelCallFailed = errors.New("gateway: model call failed")
)
