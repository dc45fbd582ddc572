package main

import (
	"fmt"
	"time"

	"market-streamer/src/auth"
	"market-streamer/src/config"
	"market-streamer/src/dxlink"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/network"
	"market-streamer/src/service"
	"market-streamer/src/storage"
)

// app holds the wired components shared by every command.
type app struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      interfaces.IDatabase
	Service *service.MarketDataService
}

// -----------------------------------------------------------------------------

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.NewConfig(configPath)
}

// -----------------------------------------------------------------------------

// setupApp loads the config and wires token provider, dialer, storage and service.
func setupApp(configPath string) (*app, error) {
	conf, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	appLogger := logger.NewLogger(conf.MConfig, conf.Name)

	client, tokens := setupTokenProvider(conf)
	dialer := setupDialer(conf.MConfig)
	svc := service.NewMarketDataService(conf.MConfig, tokens, dialer, logger.NewLogger(conf.MConfig, "MarketData"))
	svc.Broker = client

	a := &app{Config: conf, Logger: appLogger, Service: svc}

	if conf.Storage.Enabled {
		db, err := setupDatabase(conf.MConfig)
		if err != nil {
			return nil, err
		}
		a.DB = db
		svc.DB = db
	}
	return a, nil
}

// -----------------------------------------------------------------------------

// setupTokenProvider builds REST client -> disk cache -> provider. The client also
// serves the snapshot and earnings lookups.
func setupTokenProvider(conf *config.Config) (*auth.TastyClient, interfaces.ITokenProvider) {
	netManager := network.NewAsyncNetworkManager(conf.MConfig, logger.NewLogger(conf.MConfig, "NetworkManager"))
	authLogger := logger.NewLogger(conf.MConfig, "Auth")

	client := auth.NewTastyClient(conf.BaseURL(), conf.API, netManager, authLogger)
	ttl := time.Duration(conf.API.TokenTTLHours) * time.Hour
	cache := auth.NewTokenCache(conf.API.TokenCachePath, ttl)
	return client, auth.NewProvider(client, cache, ttl, authLogger)
}

// -----------------------------------------------------------------------------

func setupDialer(cfg *models.MConfig) dxlink.Dialer {
	return &dxlink.WebSocketDialer{
		HandshakeTimeout: cfg.Streaming.HandshakeTimeout,
		WriteTimeout:     cfg.Streaming.WriteTimeout,
		Logger:           logger.NewLogger(cfg, "Transport"),
	}
}

// -----------------------------------------------------------------------------

func setupDatabase(cfg *models.MConfig) (interfaces.IDatabase, error) {
	name := "SQLiteDB"
	if cfg.Storage.DBType == "postgres" {
		name = "PostgresDB"
	}
	db, err := storage.NewDatabase(cfg, logger.NewLogger(cfg, name))
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	return db, nil
}

// -----------------------------------------------------------------------------

func (a *app) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warning("Closing database: %v", err)
		}
	}
	_ = a.Logger.Sync()
}
