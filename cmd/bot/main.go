package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"mubarakway/internal/bot"
	"mubarakway/internal/config"
	"mubarakway/internal/httpapi"
	"mubarakway/internal/notify"
	"mubarakway/internal/scheduler"
	"mubarakway/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	for _, path := range []string{cfg.DatabasePath, cfg.NotifiedPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				log.Error("create data directory", "path", dir, "error", err)
				os.Exit(1)
			}
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	notified := notify.NewStore(cfg.NotifiedPath, log)
	if err := notified.Load(); err != nil {
		log.Error("load notified prayers, starting empty", "path", cfg.NotifiedPath, "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	if cfg.TelegramBotToken != "" {
		b, err := bot.New(cfg.TelegramBotToken, store, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}

		sched := scheduler.New(store, notified, b, scheduler.Defaults{
			Method: cfg.DefaultMethod,
			Madhab: cfg.DefaultMadhab,
		}, log)
		sched.SetTickInterval(cfg.TickInterval)

		reset, err := scheduler.NewDailyReset(notified, cfg.ResetLocation(), log)
		if err != nil {
			log.Error("create daily reset", "error", err)
			os.Exit(1)
		}
		reset.Start()
		defer reset.Stop()

		wg.Add(2)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			b.Run(ctx)
		}()
		log.Info("starting bot")
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN is not set, running the HTTP API only")
	}

	srv := httpapi.New(cfg, store, notified, log)
	if err := srv.Run(ctx, cfg.HTTPAddr); err != nil {
		log.Error("http server", "error", err)
		cancel()
	}

	wg.Wait()
	if err := notified.Save(); err != nil {
		log.Error("save notified prayers", "path", cfg.NotifiedPath, "error", err)
	}
	log.Info("stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
