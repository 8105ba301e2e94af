package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/api"
	"github.com/xaenox/finbot/internal/bot"
	"github.com/xaenox/finbot/internal/storage"
	"github.com/xaenox/finbot/internal/workspace"
	"github.com/xaenox/finbot/pkg/config"
	"github.com/xaenox/finbot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	// Initialize logger
	zl, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize session storage
	store, err := storage.Open(ctx, storage.Options{
		Driver:   cfg.Storage.Driver,
		BoltPath: cfg.Storage.BoltPath,
		Database: storage.DatabaseConfig{
			Host:     cfg.Storage.Database.Host,
			Port:     cfg.Storage.Database.Port,
			User:     cfg.Storage.Database.User,
			Password: cfg.Storage.Database.Password,
			DBName:   cfg.Storage.Database.DBName,
			SSLMode:  cfg.Storage.Database.SSLMode,
		},
		RedisURL: cfg.Storage.RedisURL,
	}, zl)
	if err != nil {
		zl.Fatal("Failed to initialize storage", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
	}
	defer store.Close()

	workspaces := workspace.NewRegistry(store, workspace.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeouts: api.Timeouts{
			Request: cfg.Backend.RequestTimeout,
			Upload:  cfg.Backend.UploadTimeout,
			Chat:    cfg.Backend.ChatTimeout,
		},
		ThreadTTL: cfg.Cache.ThreadTTL,
	}, zl)

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, workspaces, bot.Options{
		CacheDir:    cfg.Files.CacheDir,
		MaxFileSize: cfg.Files.MaxSize,
		Debug:       cfg.Telegram.Debug,
	}, zl)
	if err != nil {
		zl.Fatal("Failed to create bot", zap.Error(err))
	}

	zl.Info("Bot started", zap.String("backend", cfg.Backend.BaseURL))
	if err := b.Start(ctx); err != nil {
		zl.Fatal("Bot error", zap.Error(err))
	}
	zl.Info("Bot stopped")
}
