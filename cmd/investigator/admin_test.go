package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluskort/platform/pkg/fpgov"
	"github.com/aluskort/platform/pkg/incident"
	"github.com/aluskort/platform/pkg/policy"
	"github.com/aluskort/platform/pkg/store"
)

func newAdminTestRouter(t *testing.T) (*gin.Engine, adminDeps) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng, err := policy.NewEngine(policy.ExecutorConstraints{
		MinConfidenceForAutoClose:  0.9,
		RequireFPMatchForAutoClose: true,
	}, "")
	require.NoError(t, err)

	deps := adminDeps{
		patternSource: &inMemoryPatternSource{},
		governance:    fpgov.NewGovernanceService(),
		killSwitches:  fpgov.NewKillSwitchManager(nil),
		shadows:       newShadowRegistry(true),
		policyEngine:  eng,
		// No vector store or embedder: the migrate route must refuse
		// rather than panic, same degraded posture main.go wires when
		// neither is configured.
		incidents:      &incidentMemory{searcher: &incident.Searcher{}},
		migrationState: store.NewEmbeddingMigrationState(),
	}
	r := gin.New()
	registerAdminRoutes(r, deps)
	return r, deps
}

func TestAdminRoutes_GetPolicyConstraints_ReturnsEffectiveConstraints(t *testing.T) {
	r, _ := newAdminTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/policy/constraints", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got policy.ExecutorConstraints
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 0.9, got.MinConfidenceForAutoClose)
	assert.True(t, got.RequireFPMatchForAutoClose)
}

func TestAdminRoutes_PutPolicyConstraints_UpdatesEffectiveConstraints(t *testing.T) {
	r, deps := newAdminTestRouter(t)

	body, err := json.Marshal(policy.ExecutorConstraints{MinConfidenceForAutoClose: 0.5, CanModifyRoutingPolicy: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/v1/admin/policy/constraints", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.5, deps.policyEngine.Constraints().MinConfidenceForAutoClose)
	assert.True(t, deps.policyEngine.Constraints().CanModifyRoutingPolicy)
}

func TestAdminRoutes_ShadowGoLiveThenRollback(t *testing.T) {
	r, deps := newAdminTestRouter(t)

	criteria := fpgov.GoLiveCriteria{
		SignedOff: true, AgreementWindowSatisfied: true, AgreementRate: 0.96,
		FPPrecision: 0.99, CostWithinProjection: true,
	}
	body, err := json.Marshal(criteria)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants/acme/shadow/go-live", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, deps.shadows.forTenant("acme").Active)

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/tenants/acme/shadow/rollback", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, deps.shadows.forTenant("acme").Active)
}

func TestAdminRoutes_EmbeddingsMigrate_RefusesWithoutVectorBackend(t *testing.T) {
	r, _ := newAdminTestRouter(t)

	body := []byte(`{"target_collection":"incidents_v2","target_version":"titan-v2"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/embeddings/migrate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminRoutes_RareImportant_RequiresTenantID(t *testing.T) {
	r, _ := newAdminTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/incidents/inc-1/rare-important", bytes.NewReader([]byte(`{"rare":true}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
