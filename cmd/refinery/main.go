package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/mediarefinery/internal/api"
	"github.com/user/mediarefinery/internal/cms"
	"github.com/user/mediarefinery/internal/config"
	"github.com/user/mediarefinery/internal/encoding"
	"github.com/user/mediarefinery/internal/inventory"
	"github.com/user/mediarefinery/internal/monitoring"
	"github.com/user/mediarefinery/internal/pipeline"
	"github.com/user/mediarefinery/internal/repository"
	"github.com/user/mediarefinery/internal/rewrite"
	"github.com/user/mediarefinery/internal/storage"
	"github.com/user/mediarefinery/internal/verify"
	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration; invalid values abort startup
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize Storage Layer
	pgStore, err := storage.NewPostgresStore(cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()
	if err := pgStore.InitSchema(context.Background()); err != nil {
		logger.Fatal("failed to initialize database schema", zap.Error(err))
	}
	queue := storage.NewRedisQueue(cfg.RedisAddr)
	defer queue.Close()

	metrics := monitoring.NewMetrics()

	// CMS client and asset resolver
	client := cms.NewClient(cfg.CMSBaseURL, time.Duration(cfg.HTTPTimeoutSec)*time.Second,
		cms.WithAuth(cfg.CMSAppUser, cfg.CMSAppPassword))
	resolver := cms.NewResolver(client, logger, 50, cfg.ResolverMaxPage)

	// Encoding policy: config defaults, overlaid with operator settings
	// persisted from a previous run.
	policy := encoding.Policy{
		MaxWidth:       cfg.MaxWidth,
		QualityPhoto:   cfg.QualityPhoto,
		QualityGraphic: cfg.QualityGraphic,
		PreserveICC:    cfg.PreserveICC,
		WebPEnabled:    cfg.WebPEnabled,
	}
	policy = overlaySettings(pgStore.Snapshots(), policy, logger)
	engine := encoding.NewEngine(policy, logger)

	// Pipeline components
	scaler := pipeline.NewAdaptiveScaler(cfg.ScalerWindow, cfg.ConcurrencyMin, cfg.ConcurrencyMax, cfg.ConcurrencyStep)
	window, err := pipeline.ParseScheduleWindow(cfg.ScheduleStart, cfg.ScheduleEnd)
	if err != nil {
		logger.Fatal("invalid schedule window", zap.Error(err))
	}

	orchestrator := pipeline.NewOrchestrator(engine, resolver, client, client,
		pgStore.Inventory(), pgStore.Variants(), scaler, window, cfg.ConcurrencyBase, metrics, logger)
	discoverer := inventory.NewDiscoverer(client, resolver, pgStore.Inventory(), pgStore.Snapshots(), engine, logger)
	rewriter := rewrite.NewManager(client, pgStore.Audit(), metrics, logger)
	checker := verify.NewChecker(&http.Client{}, logger)

	runner := pipeline.NewRunner(queue, discoverer, orchestrator, rewriter, checker, client,
		pgStore.Inventory(), pgStore.Variants(), pgStore.Snapshots(),
		pipeline.VerifyOptions{
			Percent:     cfg.VerifyPercent,
			Cap:         cfg.VerifyCap,
			Retries:     cfg.VerifyRetries,
			Timeout:     time.Duration(cfg.VerifyTimeoutMS) * time.Millisecond,
			Concurrency: cfg.VerifyConcurrent,
		}, logger)

	runnerCtx, stopRunner := context.WithCancel(context.Background())
	runner.Start(runnerCtx)

	// Initialize API Server
	server := api.NewServer(cfg, pgStore, queue, engine, metrics, logger)

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopRunner()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}

// overlaySettings applies the persisted operator settings snapshot on top of
// the config-derived policy. A missing snapshot is not an error.
func overlaySettings(snaps repository.SnapshotRepository, policy encoding.Policy, logger *zap.Logger) encoding.Policy {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var st api.Settings
	err := snaps.Get(ctx, api.SnapshotKeySettings, &st)
	if errors.Is(err, repository.ErrNotFound) {
		return policy
	}
	if err != nil {
		logger.Warn("could not load settings snapshot, using config defaults", zap.Error(err))
		return policy
	}
	logger.Info("applying persisted policy settings")
	return encoding.Policy{
		MaxWidth:       st.MaxWidth,
		QualityPhoto:   st.QualityPhoto,
		QualityGraphic: st.QualityGraphic,
		PreserveICC:    st.PreserveICC,
		WebPEnabled:    st.WebPEnabled,
	}
}
