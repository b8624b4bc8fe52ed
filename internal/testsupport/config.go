package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"attentionguard/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The HTTP API binds to an ephemeral port and records stay in memory unless
// an option says otherwise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = shortSocketPath(t, base)
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.DurableBackend = config.BackendMemory
	cfgVal.Store.SQLitePath = filepath.Join(base, "state", "records.db")
	cfgVal.Scheduler.DefaultDebounceMS = 20

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithSQLite selects the SQLite durable backend.
func WithSQLite() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.DurableBackend = config.BackendSQLite
	}
}

// WithDurablePersistence sets the initial persistence mode.
func WithDurablePersistence(durable bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.DurablePersistence = durable
	}
}

// WithRulesDir points classification at a directory of rule packs, created
// under the test's base directory.
func WithRulesDir(name string) ConfigOption {
	return func(b *configBuilder) {
		dir := filepath.Join(b.baseDir, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.t.Fatalf("mkdir rules dir: %v", err)
		}
		b.cfg.Classification.RulesDir = dir
	}
}

// WithoutAPI disables the HTTP API listener.
func WithoutAPI() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// shortSocketPath keeps unix socket paths under the sun_path limit, which
// deep t.TempDir paths can exceed.
func shortSocketPath(t testing.TB, base string) string {
	candidate := filepath.Join(base, "ag.sock")
	if len(candidate) < 100 {
		return candidate
	}
	dir, err := os.MkdirTemp("", "ag")
	if err != nil {
		t.Fatalf("socket temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "ag.sock")
}
