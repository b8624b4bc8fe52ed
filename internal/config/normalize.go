package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	if err := c.normalizeClassification(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.StateDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("ATTENTIONGUARD_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.DurableBackend = strings.ToLower(strings.TrimSpace(c.Store.DurableBackend))
	if c.Store.DurableBackend == "" {
		c.Store.DurableBackend = BackendSQLite
	}
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.StateDir, defaultSQLiteName)
	}
	var err error
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	c.Store.RedisAddr = strings.TrimSpace(c.Store.RedisAddr)
	if c.Store.RedisPassword == "" {
		if value, ok := os.LookupEnv("ATTENTIONGUARD_REDIS_PASSWORD"); ok {
			c.Store.RedisPassword = value
		}
	}
	if strings.TrimSpace(c.Store.RedisKeyPrefix) == "" {
		c.Store.RedisKeyPrefix = defaultRedisPrefix
	}
	return nil
}

func (c *Config) normalizeClassification() error {
	c.Classification.RulesDir = strings.TrimSpace(c.Classification.RulesDir)
	if c.Classification.RulesDir == "" {
		return nil
	}
	var err error
	if c.Classification.RulesDir, err = expandPath(c.Classification.RulesDir); err != nil {
		return fmt.Errorf("classification.rules_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
