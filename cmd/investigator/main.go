// The investigator binary runs the alert-intake loop, the full
// investigation state machine (parsing through response/approval), and
// the FP governance and routing infrastructure those investigations
// depend on. It is deployed as a worker-pool service: unlike
// audit-service, many replicas may run at once since each investigation
// is independent once admitted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aluskort/platform/pkg/alert"
	"github.com/aluskort/platform/pkg/audit"
	"github.com/aluskort/platform/pkg/bus"
	"github.com/aluskort/platform/pkg/config"
	"github.com/aluskort/platform/pkg/enrichment"
	"github.com/aluskort/platform/pkg/fpgov"
	"github.com/aluskort/platform/pkg/gateway"
	"github.com/aluskort/platform/pkg/incident"
	"github.com/aluskort/platform/pkg/investigation"
	"github.com/aluskort/platform/pkg/llmrouter"
	"github.com/aluskort/platform/pkg/obs"
	"github.com/aluskort/platform/pkg/orchestrator"
	"github.com/aluskort/platform/pkg/policy"
	"github.com/aluskort/platform/pkg/slackapprove"
	"github.com/aluskort/platform/pkg/store"
	"github.com/aluskort/platform/pkg/version"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	log := slog.With("component", "investigator")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", "version", version.ServiceString("investigator"))

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	defaults := cfg.Defaults

	rdb := redis.NewClient(mustRedisOptions(cfg.Cache.URL, log))
	cache := store.NewCache(rdb)

	// store.Graph has no wired consumer in this process: nothing in
	// pkg/enrichment's default wiring does zone->consequence lookups yet.
	// It's left for a named CTEM collaborator implementation to adopt (§1).

	rel, err := store.NewRelational(ctx, store.RelationalConfig{
		DSN:              cfg.Store.DSN,
		MaxOpenConns:     cfg.Store.MaxOpenConns,
		MaxIdleConns:     cfg.Store.MaxIdleConns,
		ConnMaxLifetime:  30 * time.Minute,
		StatementTimeout: time.Duration(cfg.Store.StatementTimeMS) * time.Millisecond,
	})
	if err != nil {
		log.Error("failed to connect to relational store", "error", err)
		os.Exit(1)
	}
	log.Info("connected to relational store")
	investigationRepo := investigation.NewRepository(rel)

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	busClient := bus.NewInMemoryBus()

	taxonomy := gateway.NewTaxonomySet()
	bedrockClient, err := buildBedrockClient(ctx, cfg)
	if err != nil {
		log.Error("failed to build bedrock client", "error", err)
		os.Exit(1)
	}
	gw, err := buildGateway(cfg, log, metrics, taxonomy, bedrockClient)
	if err != nil {
		log.Error("failed to build context gateway", "error", err)
		os.Exit(1)
	}

	incidentRepo := incident.NewRepository(rel)
	vectorStore := buildVectorStore(ctx, cfg, log)
	var embedder incident.Embedder
	embedModelID := ""
	if bedrockClient != nil {
		be := incident.NewBedrockEmbedder(bedrockClient, "")
		embedder = be
		embedModelID = be.ModelID()
	}
	searcher := incident.NewSearcher(incidentRepo, vectorStore, embedder)
	incidents := &incidentMemory{
		repo:         incidentRepo,
		searcher:     searcher,
		vector:       vectorStore,
		embed:        embedder,
		embedModelID: embedModelID,
		log:          log,
	}

	migrationState := store.NewEmbeddingMigrationState()
	migrationRepo := store.NewEmbeddingMigrationRepo(rel)
	if points, err := migrationRepo.LoadCompleted(ctx); err != nil {
		log.Warn("failed to load embedding migration state, a rerun may re-embed completed points", "error", err)
	} else {
		migrationState.Seed(points)
	}

	router, providerHealth, primaryProvider, secondaryProvider := buildRouter(cfg, defaults, metrics)

	killSwitches := fpgov.NewKillSwitchManager(func(ev fpgov.KillSwitchEvent) {
		eventType := audit.EventSecurityKillSwitchDeactivated
		if ev.Active {
			eventType = audit.EventSecurityKillSwitchActivated
		}
		publishSystemEvent(ctx, busClient, log, eventType, "medium", tenantIDForKillSwitch(ev), map[string]any{
			"dimension": string(ev.Dimension),
			"value":     ev.Value,
			"actor_id":  ev.ActorID,
			"reason":    ev.Reason,
		})
	})
	adjuster := fpgov.NewThresholdAdjuster(defaults.FPBaseThreshold, defaults.FPElevatedThreshold)
	matcher := fpgov.NewMatcher(adjuster, killSwitches)

	// Two-person pattern governance, system-level canary rollout,
	// precision/FNR-driven threshold tightening, and per-pattern canary
	// promotion are all reachable through the /v1/admin routes registered
	// below (admin.go); nothing on the alert-intake hot path calls them
	// directly except killSwitches, which the matcher already consults.
	rollout := fpgov.NewRolloutManager(killSwitches, func(ev fpgov.RolloutEvent) {
		tenantID := "platform"
		if ev.Dimension == fpgov.SliceTenant {
			tenantID = ev.Value
		}
		publishSystemEvent(ctx, busClient, log, audit.EventSystemCanaryRollout, "informational", tenantID, map[string]any{
			"dimension": string(ev.Dimension),
			"value":     ev.Value,
			"kind":      ev.Kind,
		})
	})
	governance := fpgov.NewGovernanceService()
	autonomyGuard := fpgov.NewAutonomyGuard(adjuster)
	canaryPromoter := fpgov.NewCanaryPromoter(defaults.CanaryPromotionN, defaults.CanaryMaxDisagree)
	slices := newRolloutSliceRegistry()

	shadowStates := newShadowRegistry(defaults.ShadowModeDefaultForNewTenants)

	// The allowlist seeds the playbooks whose risk tiers this binary
	// ships opinions for (staticRiskClassifier) at or below the
	// auto-allowed tier; operators extend it via PUT
	// /v1/admin/policy/constraints. RequireFPMatchForAutoClose gates the
	// FP short-circuit's auto_close action only -- reasoning-path
	// execution runs as execute_playbook, so a high-confidence allowlisted
	// action remains executable without an FP match.
	eng, err := policy.NewEngine(policy.ExecutorConstraints{
		AllowlistedPlaybooks:       []string{"notify_only", "enrich_ticket", "quarantine_host"},
		MinConfidenceForAutoClose:  defaults.FPBaseThreshold,
		RequireFPMatchForAutoClose: true,
		CanModifyRoutingPolicy:     false,
		CanDisableGuardrails:       false,
	}, "")
	if err != nil {
		log.Error("failed to build policy engine", "error", err)
		os.Exit(1)
	}

	approvals := orchestrator.NewApprovalGateManager()

	enrichers := []enrichment.Enricher{
		&enrichment.ContextUEBAEnricher{Cache: cache},
		&enrichment.CTEMEnricher{},
		&enrichment.ATLASEnricher{},
		&enrichment.SimilarIncidentsEnricher{Source: incidents},
	}

	patternSource := &inMemoryPatternSource{}

	orch := orchestrator.New(
		defaults,
		matcher,
		killSwitches,
		enrichers,
		gw,
		router,
		eng,
		approvals,
		jsonEntityParser{},
		patternSource,
		staticRiskClassifier{},
		loggingShadowRecorder{log: log},
		loggingActionExecutor{log: log},
		busClient,
		"v1",
		1, // auto-allowed tier: only tier-0/tier-1 actions may auto-execute
	)

	if svc := slackapprove.NewService(slackapprove.ServiceConfig{
		Token:        os.Getenv("SLACK_BOT_TOKEN"),
		Channel:      os.Getenv("SLACK_APPROVAL_CHANNEL"),
		DashboardURL: os.Getenv("INVESTIGATOR_DASHBOARD_URL"),
	}); svc != nil {
		orch.SetNotifier(svc)
		log.Info("slack approval notifications enabled")
	}

	registry := newInvestigationRegistry()

	concurrency := llmrouter.NewConcurrencyController(
		map[llmrouter.Priority]int{
			llmrouter.PriorityCritical: defaults.ConcurrencySlotsCritical,
			llmrouter.PriorityHigh:     defaults.ConcurrencySlotsHigh,
			llmrouter.PriorityNormal:   defaults.ConcurrencySlotsNormal,
			llmrouter.PriorityLow:      defaults.ConcurrencySlotsLow,
		},
		map[llmrouter.Priority]int{
			llmrouter.PriorityCritical: defaults.RPMCritical,
			llmrouter.PriorityHigh:     defaults.RPMHigh,
			llmrouter.PriorityNormal:   defaults.RPMNormal,
			llmrouter.PriorityLow:      defaults.RPMLow,
		},
	)
	quota := llmrouter.NewQuotaController(map[llmrouter.TenantTier]int{
		llmrouter.TenantTierPremium:  defaults.TenantQuotaPremium,
		llmrouter.TenantTierStandard: defaults.TenantQuotaStandard,
		llmrouter.TenantTierTrial:    defaults.TenantQuotaTrial,
	})

	warnings := obs.NewWarningsService()
	mixTracker := obs.NewAlertMixTracker()
	driftDetector := obs.NewDriftDetector(defaults.JSDDriftThreshold, metrics)

	go runIntakeLoop(ctx, log, busClient, concurrency, quota, orch, shadowStates, registry, investigationRepo, mixTracker, incidents)
	go runApprovalSweep(ctx, log, approvals, orch, registry, investigationRepo)
	go runOrphanReaper(ctx, log, investigationRepo, defaults.OrphanStaleAfter)
	go runTaxonomyRefresh(ctx, log, store.NewTaxonomyRepo(rel), taxonomy, 15*time.Minute)
	go runSystemHealthPoll(ctx, log, systemHealthDeps{
		health:     providerHealth,
		primary:    primaryProvider,
		secondary:  secondaryProvider,
		metrics:    metrics,
		warnings:   warnings,
		shadow:     shadowStates,
		mixTracker: mixTracker,
		drift:      driftDetector,
		adjuster:   adjuster,
	})

	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	ginRouter.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	ginRouter.GET("/v1/system/warnings", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"warnings": warnings.GetWarnings()})
	})
	ginRouter.POST("/v1/approvals/:investigation_id/approve", func(c *gin.Context) {
		id := c.Param("investigation_id")
		gs, ok := registry.get(id)
		if !ok {
			// The in-memory registry only survives this replica's own
			// lifetime; fall back to the persisted snapshot for an
			// approval arriving after a restart or against another
			// replica's investigation.
			tenantID := c.Query("tenant_id")
			if tenantID == "" {
				c.Status(http.StatusNotFound)
				return
			}
			reloaded, found, err := investigationRepo.Get(c.Request.Context(), tenantID, id)
			if err != nil || !found {
				c.Status(http.StatusNotFound)
				return
			}
			gs = reloaded
		}
		if err := orch.ResumeAfterApproval(c.Request.Context(), gs); err != nil {
			log.Error("approval resumption failed", "investigation_id", id, "error", err)
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		persistInvestigation(c.Request.Context(), log, investigationRepo, gs)
		if gs.State.Terminal() {
			if err := investigationRepo.Release(c.Request.Context(), gs.InvestigationID); err != nil {
				log.Error("failed to release investigation claim", "investigation_id", gs.InvestigationID, "error", err)
			}
		}
		registry.remove(id)
		c.Status(http.StatusOK)
	})
	registerAdminRoutes(ginRouter, adminDeps{
		log:            log,
		patternSource:  patternSource,
		governance:     governance,
		killSwitches:   killSwitches,
		rollout:        rollout,
		slices:         slices,
		canaryPromoter: canaryPromoter,
		autonomyGuard:  autonomyGuard,
		metrics:        metrics,
		shadows:        shadowStates,
		policyEngine:   eng,
		incidents:      incidents,
		migrationState: migrationState,
		migrationRepo:  migrationRepo,
	})

	httpPort := envString("INVESTIGATOR_HTTP_PORT", "8030")
	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: ginRouter,
	}
	go func() {
		log.Info("investigator HTTP listening", "port", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("investigator HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
	if err := busClient.Close(); err != nil {
		log.Error("bus close error", "error", err)
	}
	if err := rel.Close(); err != nil {
		log.Error("relational store close error", "error", err)
	}
	log.Info("investigator stopped")
}

// buildBedrockClient constructs the shared bedrockruntime client when
// the bedrock provider is configured, nil otherwise. Both the gateway's
// fallback adapter and the incident-memory embedder reuse this one
// client rather than each resolving AWS credentials separately.
func buildBedrockClient(ctx context.Context, cfg *config.Config) (*bedrockruntime.Client, error) {
	if _, ok := cfg.Provider("bedrock"); !ok {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config for bedrock: %w", err)
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

// buildGateway wires the Context Gateway's budget guard, the shared
// taxonomy set (refreshed from the store by runTaxonomyRefresh), and
// every provider adapter whose credentials are configured. At least
// one provider must be configured or every investigation's reasoning
// call fails closed.
func buildGateway(cfg *config.Config, log *slog.Logger, metrics *obs.Metrics, taxonomy *gateway.TaxonomySet, bedrockClient *bedrockruntime.Client) (*gateway.Gateway, error) {
	budget := gateway.NewBudgetGuard(cfg.Spend.MonthlySoftCapUSD, cfg.Spend.MonthlyHardCapUSD)

	var adapters []gateway.PromptAdapter

	if p, ok := cfg.Provider("anthropic"); ok {
		pricing := map[string]gateway.AnthropicPricing{
			"claude-haiku":         {CostInPerMTok: 0.80, CostOutPerMTok: 4.00},
			"claude-sonnet":        {CostInPerMTok: 3.00, CostOutPerMTok: 15.00},
			"claude-opus":          {CostInPerMTok: 15.00, CostOutPerMTok: 75.00},
			"claude-opus-thinking": {CostInPerMTok: 15.00, CostOutPerMTok: 75.00},
		}
		adapters = append(adapters, gateway.NewAnthropicAdapter(p.APIKey, pricing))
		log.Info("anthropic provider adapter configured")
	}

	if bedrockClient != nil {
		pricing := map[string]gateway.BedrockPricing{
			"claude-haiku":  {CostInPerMTok: 0.80, CostOutPerMTok: 4.00},
			"claude-sonnet": {CostInPerMTok: 3.00, CostOutPerMTok: 15.00},
		}
		adapters = append(adapters, gateway.NewBedrockAdapter(bedrockClient, pricing))
		log.Info("bedrock provider adapter configured")
	}

	if len(adapters) == 0 {
		log.Warn("no LLM provider configured; gateway calls will fail until one is")
	}

	return gateway.NewGateway(budget, nil, taxonomy, adapters, cfg.Defaults.PromptAssemblyTokens, metrics), nil
}

// buildRouter seeds the task capability registry (self-seeding), the
// per-tier model and fallback registries, the provider health registry,
// and the escalation budget, then attaches metrics. *obs.Metrics already
// implements llmrouter.MetricsSink directly, so no adapter is needed
// here the way pkg/audit's sink needs one. It also returns the health
// registry and the primary/secondary provider names so a caller can drive
// the degradation monitor off the same breaker state the router itself
// consults.
func buildRouter(cfg *config.Config, defaults *config.Defaults, metrics *obs.Metrics) (router *llmrouter.Router, health *llmrouter.ProviderHealthRegistry, primary, secondary string) {
	tasks := llmrouter.NewTaskCapabilityRegistry()

	models := llmrouter.NewModelRegistry()
	fallbacks := llmrouter.NewFallbackRegistry()

	models.Set(llmrouter.Tier0, llmrouter.ModelInfo{Provider: "anthropic", ModelID: "claude-haiku", MaxContextTokens: 16000, SupportsJSON: true})
	models.Set(llmrouter.Tier1, llmrouter.ModelInfo{Provider: "anthropic", ModelID: "claude-sonnet", MaxContextTokens: 64000, SupportsJSON: true, SupportsToolUse: true})
	models.Set(llmrouter.Tier1Plus, llmrouter.ModelInfo{Provider: "anthropic", ModelID: "claude-opus", MaxContextTokens: 128000, SupportsJSON: true, SupportsExtendedThinking: true})
	models.Set(llmrouter.Tier2, llmrouter.ModelInfo{Provider: "anthropic", ModelID: "claude-opus-thinking", MaxContextTokens: 200000, SupportsJSON: true, SupportsExtendedThinking: true})

	primary = "anthropic"
	if _, ok := cfg.Provider("bedrock"); ok {
		secondary = "bedrock"
		fallbacks.Set(llmrouter.Tier0, []llmrouter.ModelInfo{
			{Provider: "bedrock", ModelID: "claude-haiku", MaxContextTokens: 16000, SupportsJSON: true},
		})
		fallbacks.Set(llmrouter.Tier1, []llmrouter.ModelInfo{
			{Provider: "bedrock", ModelID: "claude-sonnet", MaxContextTokens: 64000, SupportsJSON: true, SupportsToolUse: true},
		})
	}

	health = llmrouter.NewProviderHealthRegistry(uint32(defaults.BreakerConsecutiveFailures), defaults.BreakerRecoveryTimeout)
	escalation := llmrouter.NewEscalationBudget(defaults.EscalationBudgetPerHour)

	router = llmrouter.NewRouter(tasks, models, fallbacks, health, escalation)
	router.SetMetrics(metrics)
	return router, health, primary, secondary
}

// runIntakeLoop subscribes to alerts.normalized and drives each admitted
// alert through Orchestrator.Investigate, gated by the concurrency and
// quota controllers so a burst of low-priority alerts can never starve
// critical ones (§4.C, §5 "Backpressure").
func runIntakeLoop(ctx context.Context, log *slog.Logger, b bus.Bus, concurrency *llmrouter.ConcurrencyController, quota *llmrouter.QuotaController, orch *orchestrator.Orchestrator, shadowStates *shadowRegistry, registry *investigationRegistry, repo *investigation.Repository, mixTracker *obs.AlertMixTracker, incidents *incidentMemory) {
	err := b.Subscribe(ctx, bus.TopicAlertsNormalized, "investigator", func(msgCtx context.Context, msg bus.Message) error {
		var in alert.Alert
		if err := json.Unmarshal(msg.Value, &in); err != nil {
			log.Error("failed to decode alert", "error", err)
			return nil
		}

		if !quota.Allow(in.TenantID) {
			log.Warn("tenant quota exhausted, dropping alert", "tenant_id", in.TenantID, "alert_id", in.AlertID)
			return nil
		}

		priority := priorityFor(in.Severity)
		release, err := concurrency.Acquire(msgCtx, priority)
		if err != nil {
			return err
		}
		defer release()

		shadow := shadowStates.forTenant(in.TenantID).Active
		gs, err := orch.Investigate(msgCtx, &in, shadow)
		if err != nil {
			log.Error("investigation failed", "alert_id", in.AlertID, "error", err)
			return nil
		}
		if gs != nil {
			persistInvestigation(msgCtx, log, repo, gs)
			entityTypes := make([]string, 0, len(gs.Context.ParsedEntitiesByType))
			for et := range gs.Context.ParsedEntitiesByType {
				entityTypes = append(entityTypes, et)
			}
			mixTracker.Observe(in.Source, gs.CaseFacts.Techniques, entityTypes)
			if gs.State == investigation.StateClosed {
				incidents.remember(msgCtx, &in, gs)
			}
			if gs.State == investigation.StateAwaitingHuman {
				registry.put(gs)
			}
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Error("alert intake subscription ended", "error", err)
	}
}

// runApprovalSweep periodically ticks the approval gate manager and
// routes every outcome through the orchestrator. The in-memory registry
// remains the lookup GraphState objects in awaiting_human are reached
// through (it owns the live mutex-guarded object, not a deserialized
// copy); investigationRepo only mirrors the resulting snapshot for
// durability and orphan detection.
func runApprovalSweep(ctx context.Context, log *slog.Logger, approvals *orchestrator.ApprovalGateManager, orch *orchestrator.Orchestrator, registry *investigationRegistry, repo *investigation.Repository) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, outcome := range approvals.Tick(now) {
				gs, ok := registry.get(outcome.InvestigationID)
				if !ok {
					continue
				}
				if err := orch.HandleApprovalOutcome(ctx, gs, outcome); err != nil {
					log.Error("approval outcome handling failed", "investigation_id", outcome.InvestigationID, "error", err)
					continue
				}
				persistInvestigation(ctx, log, repo, gs)
				if gs.State.Terminal() {
					if err := repo.Release(ctx, gs.InvestigationID); err != nil {
						log.Error("failed to release investigation claim", "investigation_id", gs.InvestigationID, "error", err)
					}
				}
				if outcome.Expired && outcome.Resolution == "rejected" {
					registry.remove(outcome.InvestigationID)
				}
			}
		}
	}
}

// persistInvestigation mirrors a GraphState snapshot to the relational
// store, fail-open: a write failure is logged but never blocks the
// pipeline, the same fail-open discipline store.Cache applies to IOC/FP
// reads and writes (§4.F).
func persistInvestigation(ctx context.Context, log *slog.Logger, repo *investigation.Repository, gs *investigation.GraphState) {
	if err := repo.Save(ctx, gs); err != nil {
		log.Error("failed to persist investigation", "investigation_id", gs.InvestigationID, "error", err)
		return
	}
	if err := repo.ReplaceDecisionChain(ctx, gs.InvestigationID, gs.DecisionChain()); err != nil {
		log.Error("failed to persist decision chain", "investigation_id", gs.InvestigationID, "error", err)
	}
}

// runOrphanReaper periodically frees claims on investigations that have
// gone stale without a heartbeat, the orphan-detection half of
// SPEC_FULL.md §D.1: a replica that died mid-transition stops updating
// last_interaction_at, and this sweep makes the investigation claimable
// again rather than leaving it stuck forever behind a dead owner.
func runOrphanReaper(ctx context.Context, log *slog.Logger, repo *investigation.Repository, staleAfter time.Duration) {
	ticker := time.NewTicker(staleAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := repo.ReapOrphans(ctx, staleAfter)
			if err != nil {
				log.Error("orphan reap failed", "error", err)
				continue
			}
			for _, id := range ids {
				log.Warn("reclaimed orphaned investigation", "investigation_id", id)
			}
		}
	}
}

// systemHealthDeps bundles what runSystemHealthPoll needs to compute the
// three independently-tracked degraded states (§4.C circuit breakers,
// §4.D shadow mode, §4.G drift) and publish them as both Prometheus
// gauges and human-readable system warnings.
type systemHealthDeps struct {
	health     *llmrouter.ProviderHealthRegistry
	primary    string
	secondary  string
	metrics    *obs.Metrics
	warnings   *obs.WarningsService
	shadow     *shadowRegistry
	mixTracker *obs.AlertMixTracker
	drift      *obs.DriftDetector
	adjuster   *fpgov.ThresholdAdjuster
}

// runSystemHealthPoll is the degradation monitor: a ticker-driven
// background loop in the shape of the teacher's mcp/health.go
// HealthMonitor, generalized from probing MCP server reachability to
// sampling three already-computed health signals and publishing them
// through obs.WarningsService and obs.Metrics instead of returning
// results to a caller (SPEC_FULL.md §D.3, "System warnings surface").
func runSystemHealthPoll(ctx context.Context, log *slog.Logger, deps systemHealthDeps) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollBreakers(deps)
			pollShadowMode(deps)
			pollDrift(log, deps)
		}
	}
}

func pollBreakers(deps systemHealthDeps) {
	providers := []string{deps.primary}
	if deps.secondary != "" {
		providers = append(providers, deps.secondary)
	}
	for _, provider := range providers {
		state := deps.health.State(provider)
		deps.metrics.SetBreakerState(provider, llmrouter.StateGaugeValue(state))
		if deps.health.IsAvailable(provider) {
			deps.warnings.ClearBySubject(obs.WarningCategoryCircuitBreaker, provider)
			continue
		}
		deps.warnings.AddWarning(obs.WarningCategoryCircuitBreaker,
			fmt.Sprintf("provider %s circuit breaker is open", provider),
			"breaker state: "+llmrouter.StateLabel(state), provider)
	}

	policy := llmrouter.ComputeDegradationLevel(deps.health, deps.primary, deps.secondary)
	deps.metrics.SetDegradationLevel([]string{
		string(llmrouter.LevelFullCapability), string(llmrouter.LevelSecondaryActive),
		string(llmrouter.LevelDeterministicOnly), string(llmrouter.LevelPassthrough),
	}, string(policy.Level))
}

func pollShadowMode(deps systemHealthDeps) {
	for _, tenantID := range deps.shadow.ActiveTenants() {
		deps.warnings.AddWarning(obs.WarningCategoryShadowMode,
			fmt.Sprintf("tenant %s is running in shadow mode", tenantID), "", tenantID)
	}
}

func pollDrift(log *slog.Logger, deps systemHealthDeps) {
	baseline, window, ready := deps.mixTracker.Snapshot()
	if !ready {
		return
	}
	report := deps.drift.Evaluate(baseline, window)
	orchestrator.ApplyDrift(deps.adjuster, report)

	if report.Elevated {
		deps.warnings.AddWarning(obs.WarningCategoryDrift,
			"alert mix drift is elevated above threshold",
			fmt.Sprintf("overall score %.3f", report.Overall), "overall")
		log.Warn("drift elevated", "overall_score", report.Overall)
		return
	}
	deps.warnings.ClearBySubject(obs.WarningCategoryDrift, "overall")
}

func priorityFor(sev alert.Severity) llmrouter.Priority {
	switch sev {
	case alert.SeverityCritical:
		return llmrouter.PriorityCritical
	case alert.SeverityHigh:
		return llmrouter.PriorityHigh
	case alert.SeverityLow, alert.SeverityInformational:
		return llmrouter.PriorityLow
	default:
		return llmrouter.PriorityNormal
	}
}

// investigationRegistry holds every GraphState this replica currently has
// in awaiting_human so the approval sweep and the approval-resolution
// HTTP handler can reach it by ID. The approval handler falls back to the
// persisted investigation repository for an ID this registry does not
// hold; the approval sweep sees only the GraphStates held here.
type investigationRegistry struct {
	mu   sync.Mutex
	byID map[string]*investigation.GraphState
}

func newInvestigationRegistry() *investigationRegistry {
	return &investigationRegistry{byID: make(map[string]*investigation.GraphState)}
}

func (r *investigationRegistry) put(gs *investigation.GraphState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[gs.InvestigationID] = gs
}

func (r *investigationRegistry) get(id string) (*investigation.GraphState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gs, ok := r.byID[id]
	return gs, ok
}

func (r *investigationRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// shadowRegistry tracks each tenant's fpgov.ShadowState, seeding a fresh
// one with the configured default the first time a tenant is seen.
type shadowRegistry struct {
	mu        sync.Mutex
	byTenant  map[string]*fpgov.ShadowState
	defaultOn bool
}

func newShadowRegistry(defaultOn bool) *shadowRegistry {
	return &shadowRegistry{byTenant: make(map[string]*fpgov.ShadowState), defaultOn: defaultOn}
}

func (r *shadowRegistry) forTenant(tenantID string) *fpgov.ShadowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byTenant[tenantID]
	if !ok {
		s = fpgov.NewTenantShadowState(tenantID, r.defaultOn)
		r.byTenant[tenantID] = s
	}
	return s
}

// ActiveTenants returns the IDs of every tenant currently seen with shadow
// mode active, for the system warnings surface.
func (r *shadowRegistry) ActiveTenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.byTenant {
		if s.Active {
			ids = append(ids, id)
		}
	}
	return ids
}

// jsonEntityParser is the default EntityParser: raw_entities is expected
// to already be a JSON object of type -> values, the shape a SIEM
// adapter that has already done its own field mapping would emit. A
// vendor-specific adapter is a named external collaborator (§1); this
// implementation only owns the generic JSON case.
type jsonEntityParser struct{}

func (jsonEntityParser) Parse(_ context.Context, rawEntities string) (map[string][]string, error) {
	if rawEntities == "" {
		return map[string][]string{}, nil
	}
	var out map[string][]string
	if err := json.Unmarshal([]byte(rawEntities), &out); err != nil {
		return nil, fmt.Errorf("jsonEntityParser: raw_entities is not a type->values JSON object: %w", err)
	}
	return out, nil
}

// inMemoryPatternSource is the default FPPatternSource: an empty,
// thread-safe candidate set until a real pattern store is wired in. It
// matches the orchestrator package's own documented fallback ("tests and
// the orchestrator's own in-process default use an in-memory slice").
type inMemoryPatternSource struct {
	mu       sync.RWMutex
	patterns []*fpgov.Pattern
}

func (s *inMemoryPatternSource) ActivePatterns(_ context.Context, scope fpgov.Scope) ([]*fpgov.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*fpgov.Pattern
	for _, p := range s.patterns {
		if p.Status.Terminal() || p.Status == fpgov.StatusShadow {
			continue
		}
		if !p.Scope.Matches(scope) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// add registers a newly proposed pattern, rejecting a duplicate ID.
func (s *inMemoryPatternSource) add(p *fpgov.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.patterns {
		if existing.PatternID == p.PatternID {
			return fmt.Errorf("pattern %s already exists", p.PatternID)
		}
	}
	s.patterns = append(s.patterns, p)
	return nil
}

// get returns the pattern with the given ID, for the governance admin
// endpoints that mutate a pattern by reference.
func (s *inMemoryPatternSource) get(patternID string) (*fpgov.Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patterns {
		if p.PatternID == patternID {
			return p, true
		}
	}
	return nil, false
}

// all returns every known pattern, shadow and terminal included, for the
// admin listing endpoint.
func (s *inMemoryPatternSource) all() []*fpgov.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*fpgov.Pattern, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// staticRiskClassifier tiers the handful of response actions this
// platform ships opinions about; anything unrecognized is tier 3, the
// highest, so an unknown action never silently qualifies for
// auto-execution.
type staticRiskClassifier struct{}

var riskTiers = map[string]int{
	"notify_only":          0,
	"enrich_ticket":        0,
	"quarantine_host":      1,
	"disable_account":      2,
	"isolate_network_zone": 2,
	"revoke_credentials":   2,
	"delete_resource":      3,
	"shutdown_production":  3,
}

func (staticRiskClassifier) RiskTier(action string) int {
	if tier, ok := riskTiers[action]; ok {
		return tier
	}
	return 3
}

// loggingShadowRecorder logs paired shadow decisions until a persisted
// shadow-decision log exists; the agreement-rate computation canary
// promotion depends on (§4.D) reads from whatever that store ends up
// being.
type loggingShadowRecorder struct {
	log *slog.Logger
}

func (r loggingShadowRecorder) RecordShadowDecision(_ context.Context, d fpgov.ShadowDecision) error {
	r.log.Info("shadow decision recorded",
		"investigation_id", d.InvestigationID, "pipeline_action", d.PipelineAction, "analyst_action", d.AnalystAction)
	return nil
}

// loggingActionExecutor logs the action it would have taken. Concrete
// playbook execution (host isolation, account disable, ticket creation)
// is a named external collaborator this platform does not implement
// (§1 "orchestration/execution engines for response actions").
type loggingActionExecutor struct {
	log *slog.Logger
}

func (e loggingActionExecutor) Execute(_ context.Context, tenantID, investigationID, playbookID string, params map[string]any) error {
	e.log.Info("action execution requested (no executor collaborator wired)",
		"tenant_id", tenantID, "investigation_id", investigationID, "playbook_id", playbookID, "params", params)
	return nil
}

// publishSystemEvent is the audit-publish helper the kill switch and
// canary rollout callbacks use; those events carry no investigation_id
// or alert_id, the two fields pkg/orchestrator's own emitAudit always
// sets, so it builds a narrower audit.IngestPayload directly rather than
// sharing that unexported helper.
func publishSystemEvent(ctx context.Context, pub bus.Producer, log *slog.Logger, eventType, severity, tenantID string, decision map[string]any) {
	payload := audit.IngestPayload{
		SourceService: "investigator",
		AuditID:       uuid.NewString(),
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		Severity:      severity,
		Actor:         audit.Actor{Type: "service", ID: "fpgov"},
		Context:       audit.Context{Environment: "production"},
		Decision:      decision,
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := pub.Publish(ctx, bus.Message{Topic: bus.TopicAuditEvents, Key: tenantID, Value: value}); err != nil {
		log.Warn("system event publish failed", "event_type", eventType, "error", err)
	}
}

// tenantIDForKillSwitch picks the audit tenant_id for a kill switch
// event: the switch's own value when it's scoped to a tenant, or the
// "platform" sentinel when it's scoped to a pattern, technique, or data
// source instead (audit.events requires a non-empty tenant_id, and
// those three dimensions don't carry one).
func tenantIDForKillSwitch(ev fpgov.KillSwitchEvent) string {
	if ev.Dimension == fpgov.DimensionTenant {
		return ev.Value
	}
	return "platform"
}

// mustRedisOptions parses the cache URL into redis.Options, falling back
// to a default localhost target with a logged warning rather than
// failing startup outright -- the cache is fail-open everywhere it's
// consulted (pkg/store/cache.go), so a misconfigured URL should degrade
// the same way a down Redis does.
func mustRedisOptions(url string, log *slog.Logger) *redis.Options {
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Error("invalid cache URL, falling back to localhost", "error", err)
		return &redis.Options{Addr: "localhost:6379"}
	}
	return opts
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
