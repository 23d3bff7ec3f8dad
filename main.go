package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"enercast/logger"
	"enercast/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "pipeline config file")
	maxRows := flag.Int("max-rows", 0, "cap rows read per event file, 0 for all")
	flag.Parse()

	// 1. Load config
	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *maxRows > 0 {
		cfg.Data.MaxRows = *maxRows
	}

	// 2. Initialize logging
	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// 3. Run the pipeline
	if err := pipeline.Run(cfg, zlog); err != nil {
		zlog.Fatal("pipeline failed", zap.Error(err))
	}
}
