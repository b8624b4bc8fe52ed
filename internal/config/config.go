package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, socket and bind address configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket"`
	APIBind    string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token by the HTTP API.
	APIToken string `toml:"api_token"`
}

// Store selects where aggregated records are persisted.
type Store struct {
	// DurablePersistence is the initial mode when no setting has been saved.
	DurablePersistence bool   `toml:"durable_persistence"`
	DurableBackend     string `toml:"durable_backend"`
	SQLitePath         string `toml:"sqlite_path"`
	RedisAddr          string `toml:"redis_addr"`
	RedisPassword      string `toml:"redis_password"`
	RedisDB            int    `toml:"redis_db"`
	RedisKeyPrefix     string `toml:"redis_key_prefix"`
}

// Scheduler holds rescan timing fallbacks for sources that do not define
// their own.
type Scheduler struct {
	DefaultDebounceMS int `toml:"default_debounce_ms"`
	CheckDelayMS      int `toml:"check_delay_ms"`
	PeriodicSeconds   int `toml:"periodic_seconds"`
}

// Classification tunes rule loading and text matching.
type Classification struct {
	RulesDir      string `toml:"rules_dir"`
	NormalizeText bool   `toml:"normalize_text"`
}

// Events sizes the daemon's event buffer.
type Events struct {
	Buffer int `toml:"buffer"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for AttentionGuard.
type Config struct {
	Paths          Paths          `toml:"paths"`
	Store          Store          `toml:"store"`
	Scheduler      Scheduler      `toml:"scheduler"`
	Classification Classification `toml:"classification"`
	Events         Events         `toml:"events"`
	Logging        Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir, filepath.Dir(c.Paths.SocketPath)}
	if c.Store.DurableBackend == BackendSQLite {
		dirs = append(dirs, filepath.Dir(c.Store.SQLitePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "attentionguard.lock")
}

// DefaultDebounce is the rescan debounce for sources without their own.
func (c *Config) DefaultDebounce() time.Duration {
	return time.Duration(c.Scheduler.DefaultDebounceMS) * time.Millisecond
}

// CheckDelay is the check-stage delay applied to sources without their own.
// Zero disables the stage.
func (c *Config) CheckDelay() time.Duration {
	return time.Duration(c.Scheduler.CheckDelayMS) * time.Millisecond
}

// PeriodicInterval is the periodic fallback applied to sources without
// their own. Zero disables it.
func (c *Config) PeriodicInterval() time.Duration {
	return time.Duration(c.Scheduler.PeriodicSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) (string, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
