package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/inkwell-labs/muse-engine/internal/cache"
	"github.com/inkwell-labs/muse-engine/internal/config"
	"github.com/inkwell-labs/muse-engine/internal/events"
	"github.com/inkwell-labs/muse-engine/internal/history"
	"github.com/inkwell-labs/muse-engine/internal/httpapi"
	"github.com/inkwell-labs/muse-engine/internal/netquality"
	"github.com/inkwell-labs/muse-engine/internal/orchestrator"
	"github.com/inkwell-labs/muse-engine/internal/policy"
	"github.com/inkwell-labs/muse-engine/internal/provider"
	"github.com/inkwell-labs/muse-engine/internal/ratelimit"
	"github.com/inkwell-labs/muse-engine/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Warn("failed to load configuration, running on defaults", "error", err)
		loader.UseDefaults()
	} else if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// Optional Postgres usage log.
	var dbPool *pgxpool.Pool
	if cfg.Database.Enabled {
		pool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			logger.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable, usage log disabled", "error", err)
		} else {
			dbPool = pool
			logger.Info("database connected")
		}
	}

	// Optional Redis tier for cache, rate limits, and token budgets.
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, shared cache disabled", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	gate := policy.NewGate(cfg.Policy, logger)
	if gate.Enabled() {
		if err := gate.Load(); err != nil {
			logger.Error("failed to load admission policies", "error", err)
			os.Exit(1)
		}
	}

	bus := events.NewBus(256)
	go func() {
		// Drain progress events into the log; a GUI would subscribe here.
		for ev := range bus.Events() {
			if ev.Type == events.ChunkReceived {
				continue
			}
			logger.Debug("engine event", "type", string(ev.Type),
				"request_id", ev.RequestID, "provider", ev.Provider, "error", ev.Err)
		}
	}()

	svc := orchestrator.New(orchestrator.Deps{
		Config:    cfg.Orchestrator,
		Providers: loader.Providers,
		Manager:   provider.NewManager(logger),
		Health: provider.NewHealthTracker(
			cfg.Orchestrator.CircuitBreaker.FailureThreshold,
			cfg.Orchestrator.CircuitBreaker.RecoveryProbeInterval),
		Network: netquality.NewMonitor(cfg.Network, logger),
		Cache:   cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries, rdb, logger),
		Limiter: ratelimit.NewLimiter(rdb),
		Budget:  ratelimit.NewBudgetTracker(rdb),
		Gate:    gate,
		Bus:     bus,
		History: history.NewMemory(cfg.Orchestrator.HistoryLimit),
		Store:   history.NewStore(dbPool),
		Metrics: telemetry.NewMetrics(),
		Logger:  logger,
	})
	defer svc.Shutdown()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	svc.StartHealthLoop(rootCtx)

	handler := httpapi.NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", healthHandler(svc))
	r.Method(http.MethodGet, cfg.Telemetry.MetricsPath, promhttp.Handler())
	r.Group(handler.Routes)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("engine stopped")
}

func healthHandler(svc *orchestrator.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "healthy",
			"version":   version,
			"providers": svc.SupportedProviders(),
		})
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
