package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"coinwatch/config"
	"coinwatch/internal/adapters/binanceclient"
	"coinwatch/internal/adapters/hitbtc"
	"coinwatch/internal/adapters/logger"
	"coinwatch/internal/adapters/sqlite"
	"coinwatch/internal/adapters/telegram"
	"coinwatch/internal/app"
	"coinwatch/internal/ports"
	"coinwatch/internal/web"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Store (Database Adapter)
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize store")
		log.Fatalf("FATAL: Failed to initialize store: %v", err) // Also log to stderr
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing store")
		}
	}()
	appLogger.Info(context.Background(), "Store initialized", map[string]interface{}{"path": cfg.DBPath})

	// 4. Initialize Exchange Clients
	clients := make([]ports.ExchangeClient, 0, len(cfg.Exchanges))
	for _, exCfg := range cfg.Exchanges {
		client, err := newExchangeClient(exCfg, cfg.BaseCurrency, appLogger)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize exchange client", map[string]interface{}{"exchange": exCfg.Name})
			log.Fatalf("FATAL: Failed to initialize exchange client %s: %v", exCfg.Name, err)
		}
		clients = append(clients, client)
		appLogger.Info(context.Background(), "Exchange client initialized", map[string]interface{}{"exchange": exCfg.Name})
	}

	// 5. Initialize Notification Sink
	var sink ports.NotificationSink
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		sink, err = telegram.New(telegram.Config{
			APIURL:   cfg.TelegramAPIURL,
			Token:    cfg.TelegramToken,
			ChatID:   cfg.TelegramChatID,
			ProxyURL: cfg.TelegramProxy,
			Logger:   appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Telegram sink")
			log.Fatalf("FATAL: Failed to initialize Telegram sink: %v", err)
		}
		appLogger.Info(context.Background(), "Telegram sink initialized")
	} else {
		sink = telegram.Disabled{}
		appLogger.Warn(context.Background(), "Telegram not configured, notifications disabled")
	}

	// 6. Initialize Application Service
	watcher, err := app.NewWatcherService(
		cfg,
		appLogger,
		clients,
		store, // Pass the concrete implementation, service expects the interface
		sink,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize watcher service")
		log.Fatalf("FATAL: Failed to initialize watcher service: %v", err)
	}
	appLogger.Info(context.Background(), "Watcher service initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7. Start the Read API (optional)
	if cfg.HTTPAddr != "" {
		server, err := web.NewServer(web.Config{Addr: cfg.HTTPAddr, Store: store, Logger: appLogger})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize read API server")
			log.Fatalf("FATAL: Failed to initialize read API server: %v", err)
		}
		go func() {
			if err := server.Start(ctx); err != nil {
				appLogger.Error(context.Background(), err, "Read API server exited with error")
			}
		}()
	}

	// 8. Start the Service
	if err := watcher.Start(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Watcher service exited with error")
		log.Fatalf("FATAL: Watcher service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// newExchangeClient builds the adapter matching the configured exchange name.
func newExchangeClient(exCfg config.ExchangeConfig, baseCurrency string, appLogger ports.Logger) (ports.ExchangeClient, error) {
	switch exCfg.Name {
	case "binance":
		return binanceclient.New(binanceclient.Config{
			Name:         exCfg.Name,
			APIKey:       exCfg.APIKey,
			SecretKey:    exCfg.APISecret,
			BaseCurrency: baseCurrency,
			Logger:       appLogger,
		})
	case "hitbtc":
		return hitbtc.New(hitbtc.Config{
			Name:      exCfg.Name,
			BaseURL:   exCfg.APIURL,
			APIKey:    exCfg.APIKey,
			APISecret: exCfg.APISecret,
			Logger:    appLogger,
		})
	default:
		return nil, fmt.Errorf("unsupported exchange %q", exCfg.Name)
	}
}
