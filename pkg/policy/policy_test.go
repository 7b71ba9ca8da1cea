package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConstraints() ExecutorConstraints {
	return ExecutorConstraints{
		AllowlistedPlaybooks:       []string{"isolate_host", "disable_account"},
		MinConfidenceForAutoClose: 0.9,
		RequireFPMatchForAutoClose: true,
		CanModifyRoutingPolicy:    false,
		CanDisableGuardrails:      false,
	}
}

func TestCheck_PlaybookNotAllowlisted(t *testing.T) {
	e, err := NewEngine(testConstraints(), "")
	require.NoError(t, err)

	res, err := e.Check(context.Background(), CheckInput{
		Action:     ActionExecutePlaybook,
		Role:       "orchestrator",
		PlaybookID: "wipe_disk",
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, BlockedPlaybookNotAllowlisted, res.BlockedType)
}

func TestCheck_AutoCloseRequiresConfidenceAndFPMatch(t *testing.T) {
	e, err := NewEngine(testConstraints(), "")
	require.NoError(t, err)

	// Confidence below threshold.
	res, err := e.Check(context.Background(), CheckInput{
		Action:     ActionAutoClose,
		Role:       "fp_governance",
		Confidence: 0.5,
		FPMatched:  true,
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, BlockedAutoCloseGate, res.BlockedType)

	// Confidence high enough but no FP match.
	res, err = e.Check(context.Background(), CheckInput{
		Action:     ActionAutoClose,
		Role:       "fp_governance",
		Confidence: 0.95,
		FPMatched:  false,
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, BlockedAutoCloseGate, res.BlockedType)

	// Both satisfied, default role matrix grants fp_governance + auto_close.
	res, err = e.Check(context.Background(), CheckInput{
		Action:     ActionAutoClose,
		Role:       "fp_governance",
		Confidence: 0.95,
		FPMatched:  true,
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheck_RolePermissionDenied(t *testing.T) {
	e, err := NewEngine(testConstraints(), "")
	require.NoError(t, err)

	res, err := e.Check(context.Background(), CheckInput{
		Action:     ActionAutoClose,
		Role:       "context_ueba",
		Confidence: 0.99,
		FPMatched:  true,
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, BlockedRolePermission, res.BlockedType)
}

func TestCheck_RoutingPolicyAndGuardrailsAlwaysRefused(t *testing.T) {
	e, err := NewEngine(testConstraints(), "")
	require.NoError(t, err)

	res, err := e.Check(context.Background(), CheckInput{Action: ActionModifyRoutingPolicy, Role: "orchestrator"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, BlockedGuardrailProtection, res.BlockedType)

	res, err = e.Check(context.Background(), CheckInput{Action: ActionDisableGuardrail, Role: "orchestrator"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, BlockedGuardrailProtection, res.BlockedType)
}

func TestCheck_ExecutePlaybookAllowlisted(t *testing.T) {
	e, err := NewEngine(testConstraints(), "")
	require.NoError(t, err)

	res, err := e.Check(context.Background(), CheckInput{
		Action:     ActionExecutePlaybook,
		Role:       "orchestrator",
		PlaybookID: "isolate_host",
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSetConstraints(t *testing.T) {
	e, err := NewEngine(testConstraints(), "")
	require.NoError(t, err)

	e.SetConstraints(ExecutorConstraints{CanModifyRoutingPolicy: true})
	res, err := e.Check(context.Background(), CheckInput{Action: ActionModifyRoutingPolicy, Role: "admin"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
