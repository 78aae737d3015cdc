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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/recircle/rewards/internal/auth"
	"github.com/recircle/rewards/internal/cache"
	"github.com/recircle/rewards/internal/config"
	"github.com/recircle/rewards/internal/engine"
	"github.com/recircle/rewards/internal/gateway"
	"github.com/recircle/rewards/internal/ledger"
	"github.com/recircle/rewards/internal/metrics"
	"github.com/recircle/rewards/internal/middleware"
	"github.com/recircle/rewards/internal/storage/sqlite"
	"github.com/recircle/rewards/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Audit log
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to initialize audit log", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Audit log initialized", "database", cfg.Database.Path)

	// Ledger backend
	var chain ledger.Client
	if cfg.Ledger.URL == "solo" {
		slog.Warn("Using in-memory solo ledger; transactions are not durable")
		chain = ledger.NewSolo()
	} else {
		chain = ledger.NewHTTPClient(cfg.Ledger.URL, cfg.Ledger.RequestTimeout)
		slog.Info("Ledger client initialized", "url", cfg.Ledger.URL)
	}

	// Distributor wallet
	signer, err := ledger.NewSigner(cfg.Distributor.PrivateKey)
	if err != nil {
		slog.Error("Failed to initialize distributor wallet", "error", err)
		os.Exit(1)
	}
	slog.Info("Distributor wallet ready", "address", signer.Address())

	// Metrics
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Settlement engine
	eng := engine.New(store, chain, signer, cfg.Rewards.Split, cfg.Rewards.FundAddresses,
		engine.Config{
			MaxSubmitAttempts: cfg.Ledger.MaxSubmitAttempts,
			RetryBackoff:      cfg.Ledger.RetryBackoff,
			PollInterval:      cfg.Ledger.PollInterval,
			ConfirmTimeout:    cfg.Ledger.ConfirmTimeout,
		}, m)

	// Optional result cache
	var results cache.ResultCache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			slog.Error("Failed to connect result cache", "error", err)
			os.Exit(1)
		}
		results = redisCache
		slog.Info("Result cache connected", "addr", cfg.Redis.Addr)
	}

	gw := gateway.New(eng, results, cfg.Rewards.TokenDecimals, cfg.Rewards.FundAddresses, signer.Address())
	handler := gateway.NewHandler(gw, store)
	jwtManager := auth.NewJWTManager(cfg.Server.AuthSecret, cfg.Server.TokenTTL)

	router := chi.NewRouter()
	router.Use(middleware.Logging)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	router.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtManager))
		r.Post("/approvals", handler.Approve)
		r.Get("/settlements/{receiptID}", handler.GetSettlement)
		r.Get("/reconciliation", handler.Reconciliation)
	})

	// h2c allows HTTP/2 without TLS behind the reverse proxy.
	h2cHandler := h2c.NewHandler(router, &http2.Server{})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Settlement server starting", "address", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
	}

	// In-flight settlements keep writing the audit log during the drain; a
	// settlement cut off mid-leg resumes safely on the next approve call.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", "error", err)
		os.Exit(1)
	}
}
