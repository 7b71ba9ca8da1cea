// The audit-service binary runs the single-writer audit.events consumer,
// the periodic verification sweeps, and the HTTP API on port 8040 (§4.E,
// §6). It is deployed as exactly one replica: audit ordering per tenant
// requires a single writer, unlike the worker-pool services in this
// platform that scale out behind SKIP LOCKED.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluskort/platform/pkg/audit"
	"github.com/aluskort/platform/pkg/bus"
	"github.com/aluskort/platform/pkg/config"
	"github.com/aluskort/platform/pkg/obs"
	"github.com/aluskort/platform/pkg/store"
	"github.com/aluskort/platform/pkg/version"
)

// staticLagProvider reports zero lag for every tenant until a real bus
// client is wired in; the in-memory bus this binary runs against has no
// committed-offset concept of its own.
type staticLagProvider struct{}

func (staticLagProvider) CommittedOffset(context.Context, string) (int64, error) { return 0, nil }

// neverUnderLegalHold is the default LegalHoldChecker until a compliance
// system is wired in as the named external collaborator (§1).
type neverUnderLegalHold struct{}

func (neverUnderLegalHold) UnderLegalHold(context.Context, string) (bool, error) { return false, nil }

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	log := slog.With("component", "audit-service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", "version", version.ServiceString("audit-service"))

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

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

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ObjectStore.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ObjectStore.Endpoint)
			o.UsePathStyle = true
		}
	})
	objects := audit.NewS3ObjectStore(s3Client, cfg.ObjectStore.Bucket, cfg.ObjectStore.KMSKeyID)

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)
	sink := obs.NewAuditMetricsSink(metrics)

	repo := audit.NewRepository(rel)
	ingester := audit.NewIngester(repo, sink, log)
	assembler := audit.NewPackageAssembler(repo, objects, sink)
	verifier := audit.NewVerifier(repo, objects, staticLagProvider{}, sink, log)
	retention := audit.NewRetentionManager(repo, objects, neverUnderLegalHold{}, cfg.Defaults.RetentionWarmBufferMonth, log)

	// TopicAuditEvents is ordered per tenant (§4.E); a real deployment
	// wires a durable partitioned bus client here in place of the
	// in-memory fake, which only exists to let this service run and be
	// tested without a live broker (pkg/bus Non-goal, §1).
	busClient := bus.NewInMemoryBus()
	go func() {
		if err := ingester.Run(ctx, busClient, busClient); err != nil && ctx.Err() == nil {
			log.Error("audit ingest subscription ended", "error", err)
		}
	}()

	runScheduled(ctx, log, "continuous verification", cfg.Defaults.AuditContinuousInterval, verifier.RunContinuous)
	runScheduled(ctx, log, "hourly lag check", time.Hour, verifier.RunHourlyLag)
	runScheduled(ctx, log, "daily full verification", 24*time.Hour, verifier.RunDailyFull)
	runScheduled(ctx, log, "weekly cold spot-check", 7*24*time.Hour, func(ctx context.Context) error {
		return verifier.RunWeeklyColdSpotCheck(ctx, 25)
	})
	runScheduled(ctx, log, "monthly retention sweep", 24*time.Hour, func(ctx context.Context) error {
		// Month partitions are created ahead of need: the current and
		// next month always have a real range partition, so by the time
		// a month comes due for retention it can be dropped as
		// metadata-only DDL instead of row deletes the append-only
		// trigger would (correctly) refuse.
		now := time.Now().UTC()
		thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		for _, monthStart := range []time.Time{thisMonth, thisMonth.AddDate(0, 1, 0)} {
			if err := repo.EnsureMonthPartition(ctx, monthStart); err != nil {
				log.Warn("failed to ensure month partition", "month", monthStart.Format("2006-01"), "error", err)
			}
		}

		tenants, err := repo.ListTenants(ctx)
		if err != nil {
			return fmt.Errorf("list tenants for retention sweep: %w", err)
		}
		return retention.Run(ctx, now, tenants)
	})

	srv := audit.NewServer(repo, assembler, verifier, retention)
	router := audit.NewRouter(srv)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	httpPort := envString("AUDIT_HTTP_PORT", "8040")
	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: router,
	}

	go func() {
		log.Info("audit-service HTTP listening", "port", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("audit-service HTTP server error", "error", err)
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
	log.Info("audit-service stopped")
}

// runScheduled runs fn immediately and then every interval until ctx is
// cancelled, logging (not panicking on) every error -- one failed sweep
// must never take the process down (§7 "degrade gracefully").
func runScheduled(ctx context.Context, log *slog.Logger, name string, interval time.Duration, fn func(context.Context) error) {
	go func() {
		run := func() {
			if err := fn(ctx); err != nil {
				log.Error("scheduled check failed", "check", name, "error", err)
			}
		}
		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
