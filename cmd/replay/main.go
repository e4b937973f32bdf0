package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"order-bridge/internal/config"
	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/adapter"
	aiAdapters "order-bridge/internal/infra/adapters/ai"
	"order-bridge/internal/infra/adapters/feishu"
	"order-bridge/internal/infra/db/memory"
	"order-bridge/internal/infra/logging"
	"order-bridge/internal/usecase"
)

// replay pushes one recorded batch through the pipeline, bypassing Telegram.
// The batch file is a JSON array of snippets:
//
//	[{"time":"2026-03-01T10:00:00Z","type":"text","content":"2 boxes, urgent","sender":"alice"},
//	 {"time":"2026-03-01T10:00:05Z","type":"image","content":"AgADx1.jpg","sender":"alice"}]
//
// Image contents name files under batch.image_dir.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	batchPath := flag.String("batch", "", "path to the batch JSON file")
	devMode := flag.Bool("dev", false, "use the canned extractor instead of Coze")
	flag.Parse()

	if *batchPath == "" {
		log.Fatal("-batch is required")
	}
	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	raw, err := os.ReadFile(*batchPath)
	if err != nil {
		log.Fatalf("read batch: %v", err)
	}
	var batch model.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		log.Fatalf("decode batch: %v", err)
	}

	var extractor adapter.OrderExtractor
	if cfg.Runtime.Dev {
		extractor = aiAdapters.NewNoopExtractor(logger)
	} else {
		extractor, err = aiAdapters.NewCozeAdapter(cfg.AI, logger)
		if err != nil {
			log.Fatalf("coze adapter: %v", err)
		}
	}

	tokens := feishu.NewTokenHolder(cfg.Storage, nil, logger)
	store := feishu.NewStore(
		feishu.NewAuthClient(tokens, cfg.Storage.Timeout, cfg.Storage.RateRPS, cfg.Storage.RateBurst, logger),
		cfg.Storage, logger)
	uploader := usecase.NewRecordUploader(store, cfg.Batch.ImageDir, cfg.Storage.OnUploadFailure, logger)
	pipeline := usecase.NewPipeline(extractor, uploader, memory.NewBatchRunRepo(1), nil, logger)

	budget := cfg.AI.PollInterval*time.Duration(cfg.AI.MaxPolls) + 5*time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	run := pipeline.Process(ctx, batch)
	out, _ := json.MarshalIndent(run, "", "  ")
	fmt.Println(string(out))
	if run.Status != model.BatchRunSucceeded {
		os.Exit(2)
	}
}
