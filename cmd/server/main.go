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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/config"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/store"
	"github.com/atmx/vault-engine/internal/vault"
	"github.com/atmx/vault-engine/internal/venue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed", "err", err)
		os.Exit(1)
	}

	params := config.DefaultParams()
	if cfg.ParamsFile != "" {
		params, err = config.LoadParams(cfg.ParamsFile)
		if err != nil {
			slog.Error("parameter file failed", "err", err)
			os.Exit(1)
		}
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Venues ---
	// The simulated venues back every whitelisted strategy reference until
	// real venue adapters land; the hedge provider is wrapped in a circuit
	// breaker so a flapping venue fails fast instead of hanging operations.
	registry, err := venue.NewRegistry(params.WhitelistedStrategies)
	if err != nil {
		slog.Error("strategy whitelist invalid", "err", err)
		os.Exit(1)
	}
	var devYield *venue.SimYieldStrategy
	for i, ref := range params.WhitelistedStrategies {
		sim := venue.NewSimYieldStrategy()
		if i == 0 {
			devYield = sim
		}
		if err := registry.Register(ref, venue.NewBreakerStrategy(ref, sim)); err != nil {
			slog.Error("strategy registration failed", "ref", ref, "err", err)
			os.Exit(1)
		}
	}
	hedger := venue.NewBreakerHedge("hedge", venue.NewSimHedgeProvider())
	oracle := venue.NewSimOracle(decimal.NewFromInt(1))
	feeSink := venue.NewSimFeeSink()

	// Dev-mode ticker: the sims never earn on their own, so drip a small
	// fixed yield into the active strategy to keep the share price moving
	// during local development.
	go func() {
		tick := time.NewTicker(time.Minute)
		defer tick.Stop()
		for range tick.C {
			devYield.AccrueYield(decimal.NewFromFloat(0.1))
		}
	}()

	// --- WebSocket hub ---
	wsHub := vault.NewWSHub()
	go wsHub.Run()

	// --- Vault service ---
	svc, err := vault.New(context.Background(), params, vault.Deps{
		Store:     st,
		Hub:       wsHub,
		Registry:  registry,
		ActiveRef: params.WhitelistedStrategies[0],
		Hedge:     hedger,
		Oracle:    oracle,
		FeeSink:   feeSink,
	})
	if err != nil {
		slog.Error("vault initialization failed", "err", err)
		os.Exit(1)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"vault-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time vault state updates.
		r.Get("/ws", wsHub.HandleWS)

		// User surface.
		r.Post("/deposit", svc.HandleDeposit)
		r.Post("/redeem", svc.HandleRedeem)
		r.Get("/vault", svc.HandleVault)
		r.Get("/accounts/{accountID}", svc.HandleAccount)
		r.Get("/events", svc.HandleEvents)

		// Owner surface.
		r.Route("/admin", func(r chi.Router) {
			r.Use(vault.OwnerOnly(cfg.OwnerToken))
			r.Post("/pause", svc.HandlePause)
			r.Post("/unpause", svc.HandleUnpause)
			r.Post("/harvest", svc.HandleHarvest)
			r.Post("/rebalance", svc.HandleRebalance)
			r.Post("/cap", svc.HandleSetCap)
			r.Post("/cooldown", svc.HandleSetCooldown)
			r.Post("/fee", svc.HandleSetFee)
			r.Post("/ratio", svc.HandleSetRatio)
			r.Post("/reserve/fund", svc.HandleFundReserve)
			r.Post("/strategy/propose", svc.HandleProposeStrategy)
			r.Post("/strategy/execute", svc.HandleExecuteStrategy)
			r.Post("/strategy/cancel", svc.HandleCancelStrategy)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("vault-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down vault-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("vault-engine stopped")
}
