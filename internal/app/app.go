// Package app wires a beatok service from the loaded configuration. It is
// shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"github.com/beatok/backend/internal/config"
	"github.com/beatok/backend/internal/filestore"
	"github.com/beatok/backend/internal/fingerprint"
	"github.com/beatok/backend/pkg/beatok"
	"github.com/beatok/backend/pkg/logger"
)

// LoadConfig reads .env (if present) and then the TOML config at path, and
// applies the configured log level.
func LoadConfig(path string) (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel())
	return cfg, nil
}

// NewService builds the file store and the service described by cfg.
func NewService(ctx context.Context, cfg *config.Config, opts ...beatok.Option) (beatok.Service, error) {
	files, err := filestore.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating file store: %w", err)
	}

	scheme, ok := fingerprint.Lookup(cfg.Fingerprint.Scheme)
	if !ok {
		return nil, fmt.Errorf("unknown fingerprint scheme %q", cfg.Fingerprint.Scheme)
	}

	base := []beatok.Option{
		beatok.WithDBPath(cfg.Database.Path),
		beatok.WithFileStore(files),
		beatok.WithScheme(scheme),
		beatok.WithThreshold(cfg.Fingerprint.Threshold),
		beatok.WithRescanWorkers(cfg.Fingerprint.Workers),
	}
	return beatok.NewService(append(base, opts...)...)
}
