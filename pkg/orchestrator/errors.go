package orchestrator

import "errors"

var (
	// ErrNoActivePlaybook is returned when reasoning recommends an
	// action but no playbook ID can be resolved for it.
	ErrNoActivePlaybook = errors.New("orchestrator: no playbook resolved for recommended action")

	// ErrUnparsableReasoningOutput indicates the gateway's response for a
	// reasoning call didn't decode into the expected decision shape; the
	// investigation fails rather than guessing at a classification.
	ErrUnparsableReasoningOutput = errors.New("orchestrator: reasoning output did not match the expected decision schema")

	// ErrApprovalGateNotFound is returned by ResumeAfterApproval when no
	// outstanding gate exists for the investigation, either because it
	// was never opened or because it already resolved (approval, expiry,
	// or a duplicate human action).
	ErrApprovalGateNotFound = errors.New("orchestrator: no outstanding approval gate for investigation")
)
