package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/MoMannn/wanchain-example/api"
	"github.com/MoMannn/wanchain-example/internal/asset"
	"github.com/MoMannn/wanchain-example/internal/cache"
	"github.com/MoMannn/wanchain-example/internal/chain"
	"github.com/MoMannn/wanchain-example/internal/infrastructure/config"
	"github.com/MoMannn/wanchain-example/internal/infrastructure/database"
	"github.com/MoMannn/wanchain-example/internal/infrastructure/server"
	"github.com/MoMannn/wanchain-example/internal/infrastructure/telemetry"
	"github.com/MoMannn/wanchain-example/internal/ledger"
	"github.com/MoMannn/wanchain-example/internal/mutation"
	"github.com/MoMannn/wanchain-example/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: search ./config.yaml, ./configs, /etc/assetgw)")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	var paths []string
	if *configPath != "" {
		paths = append(paths, *configPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("Gateway stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			zapLogger.Warn("Failed to flush telemetry", zap.Error(err))
		}
	}()

	// Node provider
	provider, err := chain.Dial(ctx, cfg.Chain, zapLogger)
	if err != nil {
		return err
	}
	defer provider.Close()
	if !provider.CanSign() {
		zapLogger.Warn("No signing key configured, mutating routes will be unavailable")
	}

	bytecode, err := ledger.LoadBytecode(cfg.Ledger.BytecodeFile)
	if err != nil {
		zapLogger.Warn("Asset ledger bytecode not loaded, /deploy is disabled", zap.Error(err))
	}

	// Mutation journal
	db, err := database.Open(cfg.Database, zapLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			zapLogger.Warn("Failed to close journal database", zap.Error(err))
		}
	}()
	store, err := mutation.NewStore(db)
	if err != nil {
		return err
	}

	// Mutation events
	var publisher mutation.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = mutation.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zapLogger)
	} else {
		publisher = mutation.NewLogPublisher(zapLogger)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zapLogger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}()

	health := server.NewHealthChecker(zapLogger, 5*time.Second)
	health.Register("node", provider)
	health.Register("journal", store)

	// Read cache
	var ledgerCache *cache.LedgerCache
	if cfg.Redis.Address != "" {
		client := cache.NewClient(cfg.Redis)
		defer client.Close()
		ledgerCache = cache.NewLedgerCache(client, zapLogger, cfg.Redis.Prefix, cfg.Redis.TTL)
		health.Register("cache", ledgerCache)
	}

	svc, err := asset.NewService(asset.Options{
		Provider:  provider,
		Bytecode:  bytecode,
		Gateway:   cfg.Gateway,
		Mutation:  cfg.Mutation,
		Store:     store,
		Publisher: publisher,
		Cache:     ledgerCache,
		Logger:    zapLogger,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	apiServer := api.NewServer(zapLogger, svc, health, api.Options{
		AllowOrigins:  cfg.Server.AllowOrigins,
		JWTSecret:     cfg.Auth.JWTSecret,
		JWTIssuer:     cfg.Auth.Issuer,
		EnableTracing: cfg.Telemetry.Tracing,
		ServiceName:   cfg.Telemetry.ServiceName,
	})

	httpServer, err := server.NewHTTPServer(cfg.Server, apiServer.Router(), zapLogger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	zapLogger.Info("Asset gateway started",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("node", cfg.Chain.URL),
		zap.String("account", provider.Account().Hex()),
		zap.Uint64("required_confirmations", provider.RequiredConfirmations()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		zapLogger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
		return errors.New("HTTP server exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}
	return nil
}
