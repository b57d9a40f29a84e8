package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"batchcall-platform/internal/audit"
	"batchcall-platform/internal/auth"
	"batchcall-platform/internal/campaign"
	"batchcall-platform/internal/config"
	"batchcall-platform/internal/dispatch"
	"batchcall-platform/internal/executor"
	"batchcall-platform/internal/httpapi"
	"batchcall-platform/internal/reporting"
	"batchcall-platform/pkg/logger"
	"batchcall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	repo := campaign.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewMemoryRepo())
	execClient := executor.NewHTTPClient(cfg.Executor.BaseURL, cfg.Executor.Token, cfg.Executor.Timeout)

	batches := campaign.NewService(repo, execClient, campaign.Machine{}, auditSvc, cfg.Location())
	reports := reporting.NewService(repo)

	// Background dispatcher: promotes due batches and hands recipients to
	// the executor within window and concurrency limits.
	slots := dispatch.NewRedisSlots(rdb, cfg.Batch.DialSlotTTL)
	batches.SetDialSlots(slots)
	processor := dispatch.NewProcessor(repo, execClient, slots, batches, log, cfg.Location())
	go processor.Run(rootCtx, cfg.Batch.DispatchInterval)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		AuthMW: auth.RequireAccessToken(authManager),
		Handlers: httpapi.Handlers{
			Auth:    authManager,
			Batches: batches,
			Reports: reports,
		},
		Webhook: executor.WebhookHandler{Updater: batches},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
