package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"order-bridge/internal/config"
	"order-bridge/internal/infra/api"
	"order-bridge/internal/infra/db/postgres"
	"order-bridge/internal/infra/logging"
	"order-bridge/internal/infra/redis"
)

// e2e-setup resets local state for a manual end-to-end run: it applies the
// schema, clears the batch run log and the cached storage token, empties the
// image directory and prints an admin token for the API.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schema := flag.String("schema", "deploy/postgres/init.sql", "schema file applied before truncating")
	ttl := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed admin token")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/4] Resetting batch run log...")
	if cfg.Database.URL == "" {
		log.Println("      database.url empty, runs are in memory; skipping")
	} else {
		pool, err := postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatalf("postgres connection failed: %v", err)
		}
		defer pool.Close()

		ddl, err := os.ReadFile(*schema)
		if err != nil {
			log.Fatalf("read schema %s: %v", *schema, err)
		}
		if _, err := pool.Exec(ctx, string(ddl)); err != nil {
			log.Fatalf("apply schema: %v", err)
		}
		if _, err := pool.Exec(ctx, `TRUNCATE batch_runs`); err != nil {
			log.Fatalf("failed to truncate batch_runs: %v", err)
		}
	}

	log.Println("[2/4] Clearing cached storage token...")
	if cfg.Redis.URL == "" {
		log.Println("      redis.url empty; skipping")
	} else {
		rc, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer rc.Close()
		if err := redis.NewTokenCache(rc, cfg.Storage.AppID).Clear(ctx); err != nil {
			log.Fatalf("failed to clear token cache: %v", err)
		}
	}

	log.Println("[3/4] Emptying image directory...")
	if err := resetDir(cfg.Batch.ImageDir); err != nil {
		log.Fatalf("reset %s: %v", cfg.Batch.ImageDir, err)
	}

	log.Println("[4/4] Minting admin token...")
	if cfg.Admin.JWTSecret == "" {
		log.Println("      admin.jwt_secret empty, API is unguarded; no token needed")
	} else {
		nop := logging.New(config.LogConfig{Level: "disabled"}, false)
		tok, err := api.NewAuthGuard(cfg.Admin.JWTSecret, nop).Mint("e2e", *ttl)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		fmt.Println(tok)
	}

	log.Println("--- E2E Environment Setup Complete ---")
}

func resetDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
