// Package main provides the keeper worker daemon entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/heritagewhisper/keeper/internal/catalog"
	"github.com/heritagewhisper/keeper/internal/chapters"
	"github.com/heritagewhisper/keeper/internal/config"
	gormdb "github.com/heritagewhisper/keeper/internal/db/gorm"
	"github.com/heritagewhisper/keeper/internal/generator"
	"github.com/heritagewhisper/keeper/internal/llm"
	"github.com/heritagewhisper/keeper/internal/rotation"
	"github.com/heritagewhisper/keeper/internal/routing"
	"github.com/heritagewhisper/keeper/internal/watcher"
	"github.com/heritagewhisper/keeper/internal/worker"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Parse flags
	port := flag.Int("port", 0, "HTTP listen port (overrides settings)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.heritagewhisper)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	// Ensure data directory and settings exist
	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *port != 0 {
		cfg.WorkerPort = *port
	}
	dbPath := cfg.DBPath
	if *dataDir != "" {
		dbPath = *dataDir + "/keeper.db"
	}
	if cfg.AuthSecret == "" {
		log.Fatal().Msg("HW_AUTH_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the store (migrations run automatically)
	store, err := gormdb.NewStore(gormdb.Config{
		Path:        dbPath,
		PostgresDSN: cfg.PostgresDSN,
		MaxConns:    cfg.MaxConns,
		LogLevel:    logger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer store.Close()

	promptStore := gormdb.NewPromptStore(store)
	storyStore := gormdb.NewStoryStore(store)
	chapterStore := gormdb.NewChapterStore(store)

	// Rotation ledger: Redis when configured, in-process otherwise
	var ledger rotation.Ledger
	if cfg.RedisAddr != "" {
		ledger = rotation.NewRedisLedger(cfg.RedisAddr)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis rotation ledger")
	} else {
		ledger = rotation.NewMemoryLedger()
		log.Info().Msg("Using in-memory rotation ledger")
	}

	// LLM client
	var client llm.Client
	if cfg.OpenAIKey != "" {
		client, err = llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.OpenAIKey})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize OpenAI client")
		}
	} else {
		log.Warn().Msg("No OpenAI key configured, prompt generation disabled")
		client = llm.NewMockClient(`{"prompts":[]}`)
	}

	counter, err := llm.NewTokenCounter()
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, corpus capping disabled")
		counter = nil
	}

	cat, err := catalog.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load prompt catalog")
	}

	router := routing.New(cfg.ForceCheapModel)
	gen := generator.New(client, router, promptStore, storyStore, counter)
	org := chapters.NewOrganizer(client, router, storyStore, chapterStore, counter)

	svc := worker.New(worker.Deps{
		Version:      Version,
		Config:       cfg,
		Store:        store,
		PromptStore:  promptStore,
		StoryStore:   storyStore,
		ChapterStore: chapterStore,
		Generator:    gen,
		Organizer:    org,
		Rotator:      rotation.New(ledger),
		Catalog:      cat,
	})

	// Periodic expiry sweep
	if cfg.SweepInterval > 0 {
		go generator.SweepLoop(ctx, promptStore, time.Duration(cfg.SweepInterval)*time.Minute)
	}

	// A settings change restarts the process so the new config applies
	// everywhere. The process supervisor brings it back up.
	settingsWatcher, err := watcher.New(config.SettingsPath(), func() {
		log.Info().Msg("Settings changed, shutting down for restart")
		cancel()
	})
	if err != nil {
		log.Warn().Err(err).Msg("Settings watcher unavailable")
	} else {
		if err := settingsWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start settings watcher")
		}
		defer settingsWatcher.Stop()
	}

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("Shutting down")
		case <-ctx.Done():
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := svc.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		cancel()
	}()

	log.Info().Str("version", Version).Int("port", cfg.WorkerPort).Msg("Starting keeper worker")
	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Worker failed")
	}
}
