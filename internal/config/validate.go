package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable for the daemon and CLI.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if c.Events.Buffer <= 0 {
		return errors.New("events.buffer must be positive")
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		return errors.New("paths.socket must be set")
	}
	if c.Paths.APIBind != "" {
		if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
			return fmt.Errorf("paths.api_bind: %w", err)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.DurableBackend {
	case BackendSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set for the sqlite backend")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr must be set for the redis backend")
		}
		if c.Store.RedisDB < 0 {
			return errors.New("store.redis_db must be >= 0")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.durable_backend: unsupported value %q (want sqlite, redis, or memory)", c.Store.DurableBackend)
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.DefaultDebounceMS <= 0 {
		return errors.New("scheduler.default_debounce_ms must be positive")
	}
	if c.Scheduler.CheckDelayMS < 0 {
		return errors.New("scheduler.check_delay_ms must be >= 0")
	}
	if c.Scheduler.PeriodicSeconds < 0 {
		return errors.New("scheduler.periodic_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
