// Package main is the Bekutoru server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/config"
	"github.com/hyperjump/bekutoru/internal/embedding"
	"github.com/hyperjump/bekutoru/internal/server"
	"github.com/hyperjump/bekutoru/internal/service"
	"github.com/hyperjump/bekutoru/internal/store"
	"github.com/hyperjump/bekutoru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bekutoru/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if neither
// exists the built-in defaults are used.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				return config.Load(fallback)
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func newEmbedder(cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	case "cohere", "":
		inner, err := embedding.NewCohereEmbedder(cfg.Model, cfg.Dimensions, cfg.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		return embedding.NewCachedEmbedder(inner, cfg.CacheSize), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: cohere, mock)", cfg.Provider)
	}
}

func newStore(cfg *config.StorageConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, sqlite)", cfg.Backend)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("bekutoru", version)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	embedder, err := newEmbedder(&cfg.Embedding)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	st, err := newStore(&cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	svc := service.New(st, embedder, logger, service.Config{
		OverfetchMultiplier: cfg.Search.OverfetchMultiplier,
		MaxExpansions:       cfg.Search.MaxExpansions,
	})
	if cfg.Storage.Backend == "sqlite" {
		if err := svc.Restore(context.Background()); err != nil {
			return fmt.Errorf("failed to restore indexes: %w", err)
		}
	}

	srv := server.NewServer(svc, cfg, logger)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
