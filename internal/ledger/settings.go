package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"budget/internal/core"
	"budget/internal/storage"
)

// SettingsStore holds the display preferences.
type SettingsStore struct {
	mu       sync.RWMutex
	kv       storage.KeyValueStore
	settings core.Settings
}

// OpenSettings loads the settings from kv. A missing key, or a stored currency
// that is no longer supported, falls back to fallback.
func OpenSettings(ctx context.Context, kv storage.KeyValueStore, fallback string) (*SettingsStore, error) {
	def, err := core.NormalizeCurrency(fallback)
	if err != nil {
		return nil, fmt.Errorf("default currency: %w", err)
	}
	s := &SettingsStore{kv: kv, settings: core.Settings{Currency: def}}

	raw, err := kv.Get(ctx, SettingsKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var stored core.Settings
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if code, err := core.NormalizeCurrency(stored.Currency); err == nil {
		s.settings.Currency = code
	} else if stored.Currency != "" {
		slog.WarnContext(ctx, "Stored currency ignored", "currency", stored.Currency, "fallback", def)
	}
	return s, nil
}

func (s *SettingsStore) Get() core.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetCurrency validates and persists a new display currency.
func (s *SettingsStore) SetCurrency(ctx context.Context, code string) (core.Settings, error) {
	code, err := core.NormalizeCurrency(code)
	if err != nil {
		return core.Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	next.Currency = code
	payload, err := json.Marshal(next)
	if err != nil {
		return core.Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.kv.Put(ctx, SettingsKey, payload); err != nil {
		return core.Settings{}, fmt.Errorf("persist settings: %w", err)
	}
	s.settings = next
	slog.InfoContext(ctx, "Currency changed", "currency", code)
	return next, nil
}
