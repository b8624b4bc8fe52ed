package records

import (
	"context"
	"fmt"
	"strings"

	"attentionguard/internal/config"
)

// Backend persists one Record per source.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// Load returns every stored record keyed by source.
	Load(ctx context.Context) (map[string]Record, error)
	// Get returns the record for source or ErrNotFound.
	Get(ctx context.Context, source string) (Record, error)
	// Put upserts a record.
	Put(ctx context.Context, rec Record) error
	// Replace atomically swaps the stored set for recs.
	Replace(ctx context.Context, recs map[string]Record) error
	Close() error
}

// SettingsStore persists Settings. LoadSettings returns ErrNotFound when
// nothing has been saved.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
}

// Durable is a backend that survives restarts and carries the settings.
type Durable interface {
	Backend
	SettingsStore
}

// OpenDurable opens the durable backend selected by the store config.
func OpenDurable(ctx context.Context, cfg *config.Config) (Durable, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.DurableBackend)) {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Address:   cfg.Store.RedisAddr,
			Password:  cfg.Store.RedisPassword,
			DB:        cfg.Store.RedisDB,
			KeyPrefix: cfg.Store.RedisKeyPrefix,
		})
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported durable backend %q", cfg.Store.DurableBackend)
	}
}
