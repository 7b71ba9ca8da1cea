package fpgov

import "errors"

var (
	// ErrSameApprover is returned when the same approver attempts both
	// governance approvals on a pattern (§4.D "same approver twice is
	// rejected").
	ErrSameApprover = errors.New("fpgov: pattern requires two distinct approvers")

	// ErrPatternNotPending is returned when approve is called on a
	// pattern that isn't awaiting approval.
	ErrPatternNotPending = errors.New("fpgov: pattern is not pending approval")

	// ErrPatternTerminal is returned when attempting to transition a
	// pattern out of a terminal status (expired/revoked are terminal
	// within a version, §9 Open Questions).
	ErrPatternTerminal = errors.New("fpgov: pattern status is terminal for this version")

	// ErrGoLiveCriteriaNotMet is returned when disabling shadow mode is
	// attempted before the go-live criteria are satisfied (§4.D).
	ErrGoLiveCriteriaNotMet = errors.New("fpgov: go-live criteria not met")
)
