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

	"ledger-engine/internal/audit"
	"ledger-engine/internal/auth"
	"ledger-engine/internal/config"
	"ledger-engine/internal/engine"
	"ledger-engine/internal/packet"
	"ledger-engine/internal/policy"
	"ledger-engine/internal/signing"
	"ledger-engine/internal/store"
	"ledger-engine/internal/stream"
	"ledger-engine/pkg/logger"
	"ledger-engine/pkg/utils"

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

	signer, err := signing.NewSigner(cfg.Ledger.SigningSecret, cfg.Ledger.SigningKeyID)
	if err != nil {
		log.Error("signer init failed", "err", err)
		os.Exit(1)
	}

	auditSvc := audit.NewService(audit.NewPostgresRepo(db), signer)
	eventStore := store.NewRedisStore(rdb)
	bus := stream.NewRedisBus(rdb, log)

	policyEngine := policy.NewEngine(policy.DefaultConfig())
	packetWorkflow := packet.NewWorkflow(cfg.Ledger.DualApprovalThreshold)

	engineSvc := engine.NewService(eventStore, policyEngine, packetWorkflow, auditSvc, bus, log)
	gateway := stream.NewGateway(bus, engineSvc.Snapshot, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:         cfg,
		authManager: authManager,
		engine:      engineSvc,
		audit:       auditSvc,
		gateway:     gateway,
		db:          db,
		rdb:         rdb,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: the stream endpoint holds connections open
		// indefinitely; per-request limits are enforced at the handlers.
		IdleTimeout: 60 * time.Second,
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
