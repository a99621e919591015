package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"coinwatch/config"
	"coinwatch/internal/adapters/logger"
	"coinwatch/internal/adapters/sqlite"
	"coinwatch/internal/utils"
)

func main() {
	exchange := flag.String("exchange", "", "Exchange whose total series to export")
	output := flag.String("out", "", "Output CSV path (defaults to data/totals_<exchange>_<date>.csv)")
	flag.Parse()

	if *exchange == "" {
		log.Fatalf("FATAL: -exchange is required")
	}

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

	// 3. Open the Store
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to open store")
		log.Fatalf("FATAL: Failed to open store: %v", err)
	}
	defer store.Close()

	snapshots, err := store.Totals(context.Background(), *exchange)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error reading total series")
		log.Fatalf("Error reading total series: %v", err)
	}
	appLogger.Info(context.Background(), "Loaded total series", map[string]interface{}{
		"exchange": *exchange, "points": len(snapshots),
	})

	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("data/totals_%s_%s.csv", *exchange, time.Now().Format("20060102"))
	}
	if err := utils.WriteTotalsToCSV(snapshots, filename); err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}
