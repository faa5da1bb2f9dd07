package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"futures-ema-bot/internal/api"
	"futures-ema-bot/internal/binance"
	"futures-ema-bot/internal/config"
	"futures-ema-bot/internal/database"
	"futures-ema-bot/internal/logger"
	emasignal "futures-ema-bot/internal/signal"
	"futures-ema-bot/internal/telemetry"
	"futures-ema-bot/internal/trader"
	"futures-ema-bot/internal/vault"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var _ trader.Exchange = (*binance.Client)(nil)

func main() {
	// A missing .env is fine; the real environment still applies.
	_ = godotenv.Load()

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, logger.Options{
		File:       cfg.Logger.File,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
	})
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	cipher, err := vault.NewCipherFromBase64(cfg.Vault.MasterKey)
	if err != nil {
		log.Fatal("Invalid vault master key", zap.Error(err))
	}
	credentials := vault.New(db, cipher)
	store := telemetry.NewStore(db)

	// Public endpoints need no key; this only checks the exchange is reachable.
	probe := binance.NewClient(&cfg.Binance, "", "", log)
	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 10*time.Second)
	if serverTime, err := probe.GetServerTime(checkCtx); err != nil {
		log.Warn("Binance API not reachable, bots will retry on start", zap.Error(err))
	} else {
		log.Info("Successfully connected to Binance API.",
			zap.Duration("clock_offset", time.Since(time.UnixMilli(serverTime))))
	}
	cancelCheck()

	opts := trader.Options{
		Signal: emasignal.Config{
			WindowSize: cfg.Engine.WindowSize,
			FastPeriod: cfg.Engine.FastPeriod,
			SlowPeriod: cfg.Engine.SlowPeriod,
		},
		ReconnectDelay:     cfg.Engine.ReconnectDelay,
		VerifyConnectivity: cfg.Engine.VerifyConnectivity,
		CancelOrdersOnStop: cfg.Engine.CancelOrdersOnStop,
	}
	if err := opts.Signal.Validate(); err != nil {
		log.Fatal("Invalid engine configuration", zap.Error(err))
	}

	factory := func(creds vault.Credentials) (trader.Exchange, error) {
		return binance.NewClient(&cfg.Binance, creds.APIKey, creds.APISecret, log), nil
	}
	supervisor := trader.NewSupervisor(credentials, factory, store, opts, log.Named("trader"))

	server := api.NewServer(cfg.Server.Port, supervisor, credentials, store, log)
	server.Start()

	// Wait for shutdown
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}
	supervisor.StopAll(ctx)

	log.Info("Bot service has been shut down.")
}
