package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aluskort/platform/pkg/fpgov"
	"github.com/aluskort/platform/pkg/incident"
	"github.com/aluskort/platform/pkg/obs"
	"github.com/aluskort/platform/pkg/policy"
	"github.com/aluskort/platform/pkg/store"
)

// rolloutSliceRegistry holds the system-level canary slices under
// evaluation. Like investigationRegistry and inMemoryPatternSource, it
// stands in for a persisted store until one is wired in.
type rolloutSliceRegistry struct {
	mu   sync.Mutex
	byID map[string]*fpgov.RolloutSlice
}

func newRolloutSliceRegistry() *rolloutSliceRegistry {
	return &rolloutSliceRegistry{byID: make(map[string]*fpgov.RolloutSlice)}
}

func sliceKey(dimension fpgov.SliceDimension, value string) string {
	return string(dimension) + ":" + value
}

func (r *rolloutSliceRegistry) getOrCreate(dimension fpgov.SliceDimension, value string) *fpgov.RolloutSlice {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sliceKey(dimension, value)
	s, ok := r.byID[key]
	if !ok {
		s = &fpgov.RolloutSlice{Dimension: dimension, Value: value, Status: fpgov.SliceShadow}
		r.byID[key] = s
	}
	return s
}

// adminDeps bundles the FP governance collaborators the admin surface
// operates on. None of these sit on the hot investigation path except
// killSwitches (already consulted by the matcher); the rest exist only
// to let an operator drive pattern approval, canary rollout, and the
// autonomy guard from outside the process.
type adminDeps struct {
	log            *slog.Logger
	patternSource  *inMemoryPatternSource
	governance     *fpgov.GovernanceService
	killSwitches   *fpgov.KillSwitchManager
	rollout        *fpgov.RolloutManager
	slices         *rolloutSliceRegistry
	canaryPromoter *fpgov.CanaryPromoter
	autonomyGuard  *fpgov.AutonomyGuard
	metrics        *obs.Metrics
	shadows        *shadowRegistry
	policyEngine   *policy.Engine
	incidents      *incidentMemory
	migrationState *store.EmbeddingMigrationState
	migrationRepo  *store.EmbeddingMigrationRepo
}

// registerAdminRoutes wires the operator-facing governance API: pattern
// lifecycle, kill switches, system-level canary rollout, and the
// autonomy guard's precision/FNR evaluation. It's deliberately
// unauthenticated here; a real deployment fronts these routes with the
// same operator auth the dashboard uses.
func registerAdminRoutes(r *gin.Engine, deps adminDeps) {
	admin := r.Group("/v1/admin")

	admin.POST("/patterns", func(c *gin.Context) {
		var p fpgov.Pattern
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if p.PatternID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pattern_id is required"})
			return
		}
		p.CreatedAt = time.Now().UTC()
		deps.governance.Propose(&p)
		if err := deps.patternSource.add(&p); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, p)
	})

	admin.GET("/patterns", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.patternSource.all())
	})

	admin.POST("/patterns/:pattern_id/approve", func(c *gin.Context) {
		p, ok := deps.patternSource.get(c.Param("pattern_id"))
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		var body struct {
			Approver string `json:"approver"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Approver == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "approver is required"})
			return
		}
		if err := deps.governance.Approve(p, body.Approver); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, p)
	})

	admin.POST("/patterns/:pattern_id/reaffirm", func(c *gin.Context) {
		p, ok := deps.patternSource.get(c.Param("pattern_id"))
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		var body struct {
			Approver string `json:"approver"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Approver == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "approver is required"})
			return
		}
		if err := deps.governance.Reaffirm(p, body.Approver); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, p)
	})

	admin.POST("/patterns/:pattern_id/revoke", func(c *gin.Context) {
		p, ok := deps.patternSource.get(c.Param("pattern_id"))
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		if err := deps.governance.Revoke(p); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, p)
	})

	admin.POST("/patterns/:pattern_id/canary-decision", func(c *gin.Context) {
		p, ok := deps.patternSource.get(c.Param("pattern_id"))
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		var body struct {
			Agree bool `json:"agree"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		deps.canaryPromoter.Record(p, body.Agree)
		promoted := deps.canaryPromoter.Evaluate(p)
		c.JSON(http.StatusOK, gin.H{"pattern": p, "promoted": promoted})
	})

	admin.POST("/kill-switches/:dimension/:value", func(c *gin.Context) {
		dimension := fpgov.KillSwitchDimension(c.Param("dimension"))
		value := c.Param("value")
		var body struct {
			Active  bool   `json:"active"`
			ActorID string `json:"actor_id"`
			Reason  string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if body.Active {
			deps.killSwitches.Activate(dimension, value, body.ActorID, body.Reason)
		} else {
			deps.killSwitches.Deactivate(dimension, value, body.ActorID, body.Reason)
		}
		c.JSON(http.StatusOK, gin.H{"dimension": dimension, "value": value, "active": deps.killSwitches.IsActive(dimension, value)})
	})

	admin.POST("/rollout/:dimension/:value/enter-canary", func(c *gin.Context) {
		dimension := fpgov.SliceDimension(c.Param("dimension"))
		value := c.Param("value")
		slice := deps.slices.getOrCreate(dimension, value)
		deps.rollout.EnterCanary(slice)
		c.JSON(http.StatusOK, slice)
	})

	admin.POST("/rollout/:dimension/:value/evaluate", func(c *gin.Context) {
		dimension := fpgov.SliceDimension(c.Param("dimension"))
		value := c.Param("value")
		var body struct {
			Precision float64 `json:"precision"`
			MissedTPs int     `json:"missed_tps"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slice := deps.slices.getOrCreate(dimension, value)
		slice.Precision = body.Precision
		slice.MissedTPs = body.MissedTPs
		deps.rollout.Evaluate(slice)
		c.JSON(http.StatusOK, slice)
	})

	admin.POST("/autonomy/evaluate", func(c *gin.Context) {
		var body struct {
			RuleFamily        string  `json:"rule_family"`
			Precision         float64 `json:"precision"`
			FNR               float64 `json:"fnr"`
			ElevatedThreshold float64 `json:"elevated_threshold"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if body.ElevatedThreshold <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("elevated_threshold must be positive, got %v", body.ElevatedThreshold)})
			return
		}
		deps.autonomyGuard.Evaluate(fpgov.AutonomyMetrics{Precision: body.Precision, FNR: body.FNR}, body.ElevatedThreshold)
		if deps.metrics != nil {
			ruleFamily := body.RuleFamily
			if ruleFamily == "" {
				ruleFamily = "default"
			}
			deps.metrics.SetFPPrecision(ruleFamily, body.Precision)
			deps.metrics.SetFPFalseNegRate(ruleFamily, body.FNR)
			deps.metrics.SetFPRecall(ruleFamily, 1-body.FNR)
		}
		c.Status(http.StatusOK)
	})

	admin.GET("/tenants/:tenant_id/shadow", func(c *gin.Context) {
		state := deps.shadows.forTenant(c.Param("tenant_id"))
		c.JSON(http.StatusOK, state)
	})

	admin.POST("/tenants/:tenant_id/shadow/go-live", func(c *gin.Context) {
		var body fpgov.GoLiveCriteria
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		state := deps.shadows.forTenant(c.Param("tenant_id"))
		if err := state.Disable(body); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, state)
	})

	admin.POST("/tenants/:tenant_id/shadow/rollback", func(c *gin.Context) {
		state := deps.shadows.forTenant(c.Param("tenant_id"))
		state.Enable()
		c.JSON(http.StatusOK, state)
	})

	admin.POST("/incidents/:incident_id/rare-important", func(c *gin.Context) {
		var body struct {
			TenantID string `json:"tenant_id"`
			Rare     bool   `json:"rare"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.TenantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
			return
		}
		if err := deps.incidents.repo.SetRareImportant(c.Request.Context(), body.TenantID, c.Param("incident_id"), body.Rare); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	})

	admin.POST("/embeddings/migrate", func(c *gin.Context) {
		var body struct {
			TargetCollection string `json:"target_collection"`
			TargetVersion    string `json:"target_version"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.TargetCollection == "" || body.TargetVersion == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_collection and target_version are required"})
			return
		}
		if deps.incidents.vector == nil || deps.incidents.embed == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "embedding migration requires a vector store and an embedding provider"})
			return
		}
		// Enable dual-read before the first point moves so retrieval
		// covers both collections for the whole in-flight window.
		deps.incidents.searcher.SetTargetCollection(body.TargetCollection)
		m := &incident.Migration{
			Repo:             deps.incidents.repo,
			Vector:           deps.incidents.vector,
			Embed:            deps.incidents.embed,
			State:            deps.migrationState,
			Marks:            deps.migrationRepo,
			EmbeddingModelID: deps.incidents.embedModelID,
			Dimensions:       incident.EmbeddingDimensions,
		}
		migrated, skipped, err := m.Run(c.Request.Context(), body.TargetCollection, body.TargetVersion)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "migrated": migrated, "skipped": skipped})
			return
		}
		c.JSON(http.StatusOK, gin.H{"migrated": migrated, "skipped": skipped})
	})

	admin.GET("/policy/constraints", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.policyEngine.Constraints())
	})

	admin.PUT("/policy/constraints", func(c *gin.Context) {
		var constraints policy.ExecutorConstraints
		if err := c.ShouldBindJSON(&constraints); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		deps.policyEngine.SetConstraints(constraints)
		c.JSON(http.StatusOK, constraints)
	})
}
