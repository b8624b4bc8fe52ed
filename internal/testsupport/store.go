package testsupport

import (
	"context"
	"testing"

	"attentionguard/internal/config"
	"attentionguard/internal/records"
)

// MustOpenSQLite opens the SQLite record backend at cfg's path and registers
// cleanup.
func MustOpenSQLite(t testing.TB, cfg *config.Config) *records.SQLite {
	t.Helper()

	store, err := records.OpenSQLite(context.Background(), cfg.Store.SQLitePath)
	if err != nil {
		t.Fatalf("records.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenDurable opens the durable backend cfg selects and registers cleanup.
func MustOpenDurable(t testing.TB, cfg *config.Config) records.Durable {
	t.Helper()

	store, err := records.OpenDurable(context.Background(), cfg)
	if err != nil {
		t.Fatalf("records.OpenDurable: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
