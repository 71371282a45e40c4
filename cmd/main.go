package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Numb2r3/Discord-TfT-Ladder/internal"
)

func setupRoutes(mux *http.ServeMux, store internal.Storage, cache *internal.CacheManager, metrics *internal.MetricsCollector, logger *internal.Logger) {
	mux.HandleFunc("/healthz", internal.NewHealthzHandler())
	mux.HandleFunc("/metrics", internal.NewMetricsHandler(metrics, logger))
	mux.HandleFunc("/leaderboard", internal.NewLeaderboardHandler(store, cache, logger))
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Could not load .env: %v", err)
	}

	cfg := internal.LoadConfig()
	logger := internal.NewLogger(cfg)
	metrics := internal.NewMetricsCollector(logger)

	limiter := internal.NewRateLimiter(internal.ParseRateLimits(cfg.RiotAPILimits), logger, metrics)
	cacheManager := internal.NewCacheManager(cfg, metrics)

	dbManager, err := internal.NewDatabaseManager(cfg, logger)
	if err != nil {
		log.Fatalf("Error connecting to Postgres: %v", err)
	}
	defer dbManager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schemaCtx, schemaCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := dbManager.EnsureSchema(schemaCtx); err != nil {
		schemaCancel()
		log.Fatalf("Error applying schema: %v", err)
	}
	schemaCancel()

	store := internal.NewStore(dbManager, logger)
	keys := internal.NewKeyProvider(cfg, logger)
	riotClient := internal.NewRiotAPIClient(limiter, keys, cacheManager, metrics, logger)

	var natsClient *internal.NATSClient
	var events internal.EventPublisher
	if cfg.NATSUrl != "" {
		natsClient, err = internal.NewNATSClient(cfg, logger)
		if err != nil {
			log.Fatalf("Error connecting to NATS: %v", err)
		}
		defer natsClient.Close()
		events = natsClient
	}

	syncService := internal.NewSyncService(riotClient, store, events, logger, metrics, cfg.RiotQueueType)

	if natsClient != nil {
		if _, err := natsClient.StartSyncRequestWorker(syncService); err != nil {
			log.Fatalf("Error starting sync request worker: %v", err)
		}
	}

	bot, err := internal.NewDiscordBot(cfg, syncService, store, natsClient, logger)
	if err != nil {
		log.Fatalf("Error creating Discord bot: %v", err)
	}
	if err := bot.Start(); err != nil {
		log.Fatalf("Error starting Discord bot: %v", err)
	}

	runner := internal.NewRankSyncRunner(store, syncService, logger, cfg.SyncInterval, cfg.SyncPacing, bot.Ready())
	runner.Start(ctx)

	mux := http.NewServeMux()
	setupRoutes(mux, store, cacheManager, metrics, logger)
	middleware := internal.NewLoggingMiddleware(logger, metrics)

	server := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: middleware.Handler(mux.ServeHTTP),
	}

	go func() {
		logger.Info("server_started").
			Component("http").
			Operation("listen").
			Meta("port", cfg.AppPort).
			Log()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown_started").Component("main").Operation("shutdown").Log()
	cancel()

	runner.Stop()

	if err := bot.Stop(); err != nil {
		log.Printf("Error stopping Discord bot: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
}
