// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"order-bridge/internal/config"
	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/adapter"
	"order-bridge/internal/domain/ports/repository"
	aiAdapters "order-bridge/internal/infra/adapters/ai"
	"order-bridge/internal/infra/adapters/alert"
	"order-bridge/internal/infra/adapters/feishu"
	tele "order-bridge/internal/infra/adapters/telegram"
	"order-bridge/internal/infra/api"
	"order-bridge/internal/infra/db/memory"
	pg "order-bridge/internal/infra/db/postgres"
	"order-bridge/internal/infra/logging"
	"order-bridge/internal/infra/metrics"
	red "order-bridge/internal/infra/redis"
	"order-bridge/internal/infra/sched"
	"order-bridge/internal/infra/security"
	"order-bridge/internal/infra/worker"
	"order-bridge/internal/usecase"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

const listenerRestartDelay = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: canned AI extractor, console logs")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("order-bridge exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting order-bridge")

	// ---- Redis (optional) ----
	var (
		tokenCache repository.TokenCache
		limiter    *red.RateLimiter
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		tc := red.NewTokenCache(rc, cfg.Storage.AppID)
		if cfg.Redis.TokenKey != "" {
			sl, err := security.NewSealer(cfg.Redis.TokenKey)
			if err != nil {
				return fmt.Errorf("token sealer: %w", err)
			}
			tc.WithSealer(sl)
		}
		tokenCache = tc
		limiter = red.NewRateLimiter(rc)
		logger.Info().Msg("redis connected: token cache and alert throttling enabled")
	}

	// ---- Batch run log ----
	var runs repository.BatchRunRepository
	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)
		runs = pg.NewBatchRunRepo(pool)
		logger.Info().Msg("batch runs stored in postgres")
	} else {
		runs = memory.NewBatchRunRepo(200)
		logger.Info().Msg("batch runs kept in memory")
	}

	// ---- Telegram ----
	bot, err := tele.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = cfg.Runtime.Dev

	// ---- Alerts ----
	alerter := buildAlerter(cfg, bot, limiter, logger)

	// ---- AI extractor ----
	var extractor adapter.OrderExtractor
	if cfg.Runtime.Dev && cfg.AI.APIKey == "" {
		extractor = aiAdapters.NewNoopExtractor(logger)
		logger.Warn().Msg("[DEV MODE] using canned extractor, no AI calls are made")
	} else {
		coze, err := aiAdapters.NewCozeAdapter(cfg.AI, logger)
		if err != nil {
			return fmt.Errorf("coze adapter: %w", err)
		}
		extractor = coze
		logger.Info().
			Str("base", cfg.AI.BaseURL).
			Str("api_key", logging.Redact(cfg.AI.APIKey, cfg.Runtime.Dev)).
			Msg("AI adapter: coze")
	}
	extractor = aiAdapters.NewLimitedExtractor(extractor, cfg.AI.ConcurrentLimit)

	// ---- Storage ----
	tokens := feishu.NewTokenHolder(cfg.Storage, tokenCache, logger)
	authClient := feishu.NewAuthClient(tokens, cfg.Storage.Timeout, cfg.Storage.RateRPS, cfg.Storage.RateBurst, logger)
	store := feishu.NewStore(authClient, cfg.Storage, logger)

	// ---- Use cases ----
	uploader := usecase.NewRecordUploader(store, cfg.Batch.ImageDir, cfg.Storage.OnUploadFailure, logger)
	pipeline := usecase.NewPipeline(extractor, uploader, runs, alerter, logger)

	// Work outlives the signal context so queued batches can finish on shutdown.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	workers := worker.NewPool(cfg.Batch.Workers, logger)
	workers.Start(workCtx)

	// Runs on the accumulator's timer goroutine, so it must not block.
	acc := usecase.NewAccumulator(cfg.Batch.IdleTimeout, func(batch model.Batch) {
		workers.Offer(workCtx, func(ctx context.Context) error {
			pipeline.Process(ctx, batch)
			return nil
		}, func(err error) {
			logger.Error().Err(err).Int("snippets", len(batch)).Msg("batch could not be queued")
			alert.Async(alerter, logger, fmt.Sprintf("order-bridge: batch of %d snippets dropped: %v", len(batch), err))
		})
	}, logger)

	// ---- Admin API ----
	guard := api.NewAuthGuard(cfg.Admin.JWTSecret, logger)
	addr := fmt.Sprintf(":%d", cfg.Admin.Port)
	if !guard.Enabled() {
		// Only reachable in dev mode; config rejects an empty secret otherwise.
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.Admin.Port)
		logger.Warn().Str("addr", addr).Msg("admin api unguarded, bound to loopback")
	}
	srv := api.NewServer(runs, acc, guard, logger)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("admin api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("admin api stopped")
		}
	}()

	// ---- Image janitor ----
	janitor := sched.NewImageJanitor(cfg.Batch.ImageDir, cfg.Batch.ImageRetention, time.Hour, logger)
	go func() { _ = janitor.Run(ctx) }()

	// ---- Listener ----
	listener := tele.NewListener(bot, cfg.Telegram, cfg.Batch.ImageDir, acc, logger)
	alert.Async(alerter, logger, fmt.Sprintf("order-bridge %s started, watching chat %d", version, cfg.Telegram.WatchChatID))
	listenErr := listen(ctx, listener, alerter, logger)

	// ---- Graceful shutdown ----
	logger.Info().Msg("shutdown requested")
	if n := acc.Flush(); n > 0 {
		logger.Info().Int("snippets", n).Msg("pending batch flushed for shutdown")
	}
	acc.Stop()
	drain(workers, cancelWork, cfg.AI.PollInterval*time.Duration(cfg.AI.MaxPolls)+time.Minute, logger)

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutCtx); err != nil {
		logger.Warn().Err(err).Msg("admin api shutdown")
	}
	logger.Info().Msg("bye")
	return listenErr
}

// listen runs the listener until ctx ends, restarting it after the update
// stream drops. Any other error is fatal.
func listen(ctx context.Context, l *tele.Listener, alerter adapter.Alerter, logger *zerolog.Logger) error {
	for {
		err := l.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !errors.Is(err, tele.ErrPollingStopped) {
			// Delivered inline: the process is about to exit.
			actx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if aerr := alerter.Alert(actx, fmt.Sprintf("order-bridge: listener failed: %v", err)); aerr != nil {
				logger.Warn().Err(aerr).Msg("alert not delivered")
			}
			cancel()
			return fmt.Errorf("listener: %w", err)
		}
		logger.Warn().Err(err).Dur("retry_in", listenerRestartDelay).Msg("telegram polling stopped")
		alert.Async(alerter, logger, "order-bridge: telegram polling stopped, restarting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(listenerRestartDelay):
		}
	}
}

// drain waits for queued batches, cancelling in-flight work once budget is spent.
func drain(p *worker.Pool, cancel context.CancelFunc, budget time.Duration, logger *zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(budget):
		logger.Warn().Dur("budget", budget).Msg("drain budget spent, cancelling in-flight batches")
		cancel()
	}
	<-done
}

// buildAlerter assembles the configured channels. A Telegram admin chat and
// a Feishu webhook may both be set; with neither, alerts are only logged.
func buildAlerter(cfg *config.Config, bot *tgbotapi.BotAPI, limiter *red.RateLimiter, logger *zerolog.Logger) adapter.Alerter {
	var channels []alert.Named
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, feishu.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if cfg.Telegram.AdminChatID != 0 {
		channels = append(channels, tele.NewAdminAlerter(bot, cfg.Telegram.AdminChatID))
	}
	if len(channels) == 0 {
		channels = append(channels, tele.NewNoopAlerter(logger))
	}
	if limiter != nil {
		for i, ch := range channels {
			channels[i] = alert.NewThrottled(ch, limiter, cfg.Alert.Limit, cfg.Alert.Window, logger)
		}
	}
	return alert.NewFanout(logger, channels...)
}
