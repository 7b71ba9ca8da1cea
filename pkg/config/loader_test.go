package config

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	env := map[string]string{
		"ALUSKORT_BUS_BROKERS":           "broker-1:9092,broker-2:9092",
		"ALUSKORT_STORE_DSN":             "postgres://u:p@localhost:5432/aluskort",
		"ALUSKORT_CACHE_URL":             "redis://localhost:6379/0",
		"ALUSKORT_VECTOR_ENDPOINT":       "http://localhost:6333",
		"ALUSKORT_OBJECT_STORE_ENDPOINT": "http://localhost:9000",
		"ALUSKORT_OBJECT_STORE_BUCKET":   "aluskort-evidence",
		"ALUSKORT_KMS_KEY_ID":            "alias/aluskort-evidence",
		"ALUSKORT_PII_REDACTION_KEY":     key,
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoad_Succeeds_WithAllRequiredEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Bus.Brokers)
	assert.Equal(t, "aluskort-evidence", cfg.ObjectStore.Bucket)
	assert.Len(t, cfg.Redaction.Key, 32)
	assert.True(t, cfg.ShadowMode.DefaultForNewTenants, "shadow mode must default to on for new tenants")
}

func TestLoad_FailsWithoutRequiredField(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALUSKORT_STORE_DSN", "")

	_, err := Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestLoad_RejectsMalformedRedactionKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALUSKORT_PII_REDACTION_KEY", "not-base64!!!")

	_, err := Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestLoad_RejectsShortRedactionKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALUSKORT_PII_REDACTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 8)))

	_, err := Load(context.Background())
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestOverrideDefaults_NonZeroFieldsWin(t *testing.T) {
	base := DefaultDefaults()
	override := &Defaults{FPBaseThreshold: 0.80}

	merged, err := OverrideDefaults(base, override)
	require.NoError(t, err)
	assert.Equal(t, 0.80, merged.FPBaseThreshold)
	assert.Equal(t, base.FPElevatedThreshold, merged.FPElevatedThreshold, "unset override fields keep the base value")
}

func TestApprovalDeadline_UnknownSeverityFallsBackToLow(t *testing.T) {
	d := DefaultDefaults()
	assert.Equal(t, d.ApprovalDeadlineLow, d.ApprovalDeadline("unknown"))
	assert.Equal(t, d.ApprovalDeadlineCritical, d.ApprovalDeadline("critical"))
}
