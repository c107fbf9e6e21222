package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pretenderdb/application/services"
	"pretenderdb/domain/schema"
	"pretenderdb/infrastructure/config"
	"pretenderdb/infrastructure/persistence/postgres"
	"pretenderdb/interfaces/http/rest"
	"pretenderdb/pkg/clock"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Explicit constructor wiring: database, stores, engine, router.
	db, err := postgres.Connect(ctx, cfg.EffectiveDatabaseURL(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	catalog := postgres.NewCatalog(db, logger)
	itemStore := postgres.NewItemStore(db, logger)
	streamStore := postgres.NewStreamStore(db, logger)

	engine := services.NewEngine(catalog, itemStore, streamStore, clock.Wall{}, logger, services.Options{
		TTLSweepInterval:      cfg.TTLSweepInterval,
		TTLBatchSize:          cfg.TTLBatchSize,
		StreamRetention:       cfg.StreamRetention,
		StreamPruneInterval:   cfg.StreamPruneInterval,
		DefaultStreamViewType: schema.StreamViewType(cfg.DefaultStreamViewType),
		IteratorSigningKey:    []byte(cfg.IteratorSigningKey),
		TTLPrincipalType:      cfg.TTLPrincipalType,
		TTLPrincipalID:        cfg.TTLPrincipalID,
	})
	engine.Start()
	defer engine.Close()

	srv := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      rest.NewRouter(engine, logger, rest.Options{EnableCORS: cfg.EnableCORS}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ListenAddress),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	_ = logger.Sync()
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		zcfg := zap.NewDevelopmentConfig()
		if err := zcfg.Level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			return zcfg.Build()
		}
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return zap.NewProduction()
	}
	return zcfg.Build()
}
