// Package cli provides common CLI initialization utilities.
// This package consolidates the bootstrap shared by cmd/budget and
// cmd/budgetctl: environment, logging, configuration and the ledger stores.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"budget/internal/backend"
	"budget/internal/config"
	"budget/internal/ledger"
	applog "budget/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// A missing file is ignored as it is optional in production.
func LoadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the application logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, component string) (*applog.Logger, error) {
	level, err := applog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := applog.New(applog.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)
	return logger, nil
}

// Ledger bundles the opened stores with the backend they live in.
type Ledger struct {
	Backend  *backend.BackendResult
	Entries  *ledger.EntryStore
	Settings *ledger.SettingsStore
}

// Close releases the backend.
func (l *Ledger) Close() error {
	return l.Backend.Close()
}

// OpenLedger creates the configured backend and loads both stores from it.
func OpenLedger(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*Ledger, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}

	entries, err := ledger.Open(ctx, result.Backend)
	if err != nil {
		_ = result.Close()
		return nil, err
	}
	settings, err := ledger.OpenSettings(ctx, result.Backend, cfg.DefaultCurrency)
	if err != nil {
		_ = result.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "Ledger opened",
		"backend", bcfg.Type.String(),
		"entries", entries.Len(),
		applog.FieldCurrency, settings.Get().Currency)
	return &Ledger{Backend: result, Entries: entries, Settings: settings}, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
