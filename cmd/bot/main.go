package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tryon-studio/internal/config"
	"tryon-studio/internal/gemini"
	"tryon-studio/internal/handlers"
	"tryon-studio/internal/httpclient"
	"tryon-studio/internal/mediagroup"
	"tryon-studio/internal/storage"
	"tryon-studio/internal/telegram"
	"tryon-studio/internal/tryon"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout(),
	})

	tg, err := telegram.New(telegram.Options{
		Token:            cfg.TelegramToken,
		HTTPClient:       httpClient,
		Logger:           logger,
		Debug:            cfg.Debug,
		MaxDownloadBytes: cfg.MaxUploadBytes(),
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	gem := gemini.New(gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		TextModel:  cfg.GeminiTextModel,
		ImageModel: cfg.GeminiImageModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	looks := storage.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.MaxLooksPerSession, logger)
	defer looks.Close()

	svc := tryon.New(tryon.Options{
		Provider:      gem,
		Looks:         looks,
		Logger:        logger,
		EffectTimeout: cfg.EffectTimeout(),
	})
	defer svc.Close()

	ui := handlers.NewUIStore()
	handler := handlers.New(handlers.Options{
		Messenger:  tg,
		Service:    svc,
		UI:         ui,
		Logger:     logger,
		EffectWait: cfg.EffectTimeout(),
	})
	defer handler.Close()

	go pruneIdle(ctx, cfg.SessionIdle(), func(idle time.Duration) {
		svc.Prune(idle)
		ui.Prune(idle)
	})

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onGroupFlush := func(group mediagroup.Group) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce(),
		Limit:    handlers.AlbumLimit,
		OnFlush:  onGroupFlush,
	})
	defer aggregator.Stop()
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username())

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}

// pruneIdle runs prune every minute until ctx is done. A zero idle disables
// pruning.
func pruneIdle(ctx context.Context, idle time.Duration, prune func(time.Duration)) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune(idle)
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
