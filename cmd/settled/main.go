package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"settlenet/audit"
	"settlenet/config"
	"settlenet/core/events"
	"settlenet/crypto"
	"settlenet/gateway/middleware"
	"settlenet/gateway/routes"
	"settlenet/native/auth"
	"settlenet/native/broker"
	"settlenet/native/broker/venues"
	"settlenet/native/ledger"
	"settlenet/native/swap"
	"settlenet/observability/logging"
	"settlenet/state"
)

func main() {
	configFile := flag.String("config", "./settled.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SETTLED_ENV"))
	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("settled", env, logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	operator, err := crypto.DecodeAddress(cfg.Operator)
	if err != nil {
		logger.Error("Invalid operator account", slog.Any("error", err))
		os.Exit(1)
	}
	owner, err := crypto.DecodeAddress(cfg.Owner)
	if err != nil {
		logger.Error("Invalid owner account", slog.Any("error", err))
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Failed to create data dir", slog.Any("error", err))
		os.Exit(1)
	}
	db, err := state.OpenDatabase(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("Failed to open state database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	kv := state.NewMemoryKV()
	if err := db.Load(kv); err != nil {
		logger.Error("Failed to load state", slog.Any("error", err))
		os.Exit(1)
	}
	store := state.NewStoreWithKV(kv)

	queue := events.NewQueue()
	nonces := ledger.NewNonceRegistry()
	nonces.SetState(store)
	verifier := auth.NewVerifier()
	verifier.SetNonces(nonces)

	book := ledger.New()
	book.SetState(store)
	book.SetVerifier(verifier)
	book.SetOperator(operator.Bytes20())
	book.SetEmitter(queue)

	brokerEngine := broker.New()
	brokerEngine.SetState(store)
	brokerEngine.SetLedger(book)
	brokerEngine.SetVerifier(verifier)
	brokerEngine.SetOperator(operator.Bytes20())
	brokerEngine.SetOwner(owner.Bytes20())
	brokerEngine.SetCancelDelay(cfg.CancelDelaySeconds)
	brokerEngine.SetEmitter(queue)
	for name, vc := range cfg.Venues {
		brokerEngine.RegisterVenue(name, venues.NewHTTP(name, vc.URL, logger))
		logger.Info("Registered venue", slog.String("venue", name), slog.String("url", vc.URL))
	}

	swapEngine := swap.New()
	swapEngine.SetState(store)
	swapEngine.SetLedger(book)
	swapEngine.SetVerifier(verifier)
	swapEngine.SetOperator(operator.Bytes20())
	swapEngine.SetCancelDelay(cfg.SwapCancelDelaySeconds)
	swapEngine.SetEmitter(queue)

	recorder, err := audit.Open(cfg.AuditDB, logger)
	if err != nil {
		logger.Error("Failed to open audit database", slog.Any("error", err))
		os.Exit(1)
	}
	defer recorder.Close()

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for key, rl := range cfg.RateLimits {
		limits[key] = middleware.RateLimit{RequestsPerMinute: rl.RequestsPerMinute, Burst: rl.Burst}
	}

	server := routes.NewServer(logger, store, book, brokerEngine, swapEngine, queue, events.Fanout{recorder})
	handler := routes.New(routes.Config{
		Server:        server,
		RateLimiter:   middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{Enabled: true, LogRequests: cfg.LogRequests}, logger),
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flushTicker := time.NewTicker(30 * time.Second)
	defer flushTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-flushTicker.C:
				// Transaction serialises the flush against in-flight writes.
				if err := store.Transaction(func() error { return db.Flush(store.KV()) }); err != nil {
					logger.Error("State flush failed", slog.Any("error", err))
				}
			}
		}
	}()

	go func() {
		logger.Info("Gateway listening", slog.String("address", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", slog.Any("error", err))
	}
	if err := store.Transaction(func() error { return db.Flush(store.KV()) }); err != nil {
		logger.Error("Final state flush failed", slog.Any("error", err))
	}
}
