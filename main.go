package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"teleraid/internal/config"
	"teleraid/internal/cursor"
	"teleraid/internal/message_store"
	"teleraid/internal/models"
	"teleraid/internal/names"
	"teleraid/internal/notifier"
	"teleraid/internal/poll"
	"teleraid/internal/poll_reconciler"
	"teleraid/internal/queue"
	"teleraid/internal/raid_store"
	"teleraid/internal/repository"
	"teleraid/internal/scheduler"
	"teleraid/internal/server"
	"teleraid/internal/telegram_bot"
)

func main() {
	_ = godotenv.Load(".env")

	cfgPath := os.Getenv("TELERAID_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	// Lookup tables are read once and shared read-only.
	tables, err := names.Load(cfg.StaticDir, cfg.Locale, cfg.Stickers)
	if err != nil {
		logger.Fatal("Failed to load name tables", zap.Error(err))
	}

	bot, err := telegram_bot.NewBot(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Telegram bot", zap.Error(err))
	}

	cursorStore, err := openCursorStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open update cursor store", zap.Error(err))
	}
	defer cursorStore.Close()

	events := queue.New[models.Envelope]()
	raids := raid_store.New()
	messages := message_store.New()

	n := notifier.New(bot, tables, messages, cfg.Telegram.ChatID, cfg.Timezone, logger)
	sched := scheduler.New(events, raids, messages, n, bot, raid_store.NewFilter(cfg.Notify.Levels, cfg.Notify.Pokemon), logger)
	reconciler := poll_reconciler.New(bot, messages, poll.NewRenderer(tables), cursorStore, cfg.BaseDelay(), cfg.MaxDelay(), logger)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil {
			logger.Error("Scheduler failed", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := reconciler.Run(ctx); err != nil {
			logger.Error("Poll reconciler failed", zap.Error(err))
		}
	}()

	srv := server.NewServer(cfg, events, raids, messages, logger)
	if err := srv.Run(ctx, cfg.Server.Port); err != nil {
		logger.Error("Server failed", zap.Error(err))
		cancel()
	}

	wg.Wait()
	logger.Info("Application stopped.")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func openCursorStore(cfg *config.Config, logger *zap.Logger) (cursor.Store, error) {
	switch cfg.Updates.CursorStore {
	case config.CursorBolt:
		logger.Info("Using bbolt update cursor", zap.String("path", cfg.Updates.BoltPath))
		return cursor.OpenBolt(cfg.Updates.BoltPath)
	case config.CursorPostgres:
		db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		if err := repository.MigrateDB(db, logger); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewCursorRepository(db, logger), nil
	default:
		return cursor.NewMemory(), nil
	}
}
