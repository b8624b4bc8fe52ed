package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"attentionguard/internal/config"
	"attentionguard/internal/daemon"
	"attentionguard/internal/ipc"
	"attentionguard/internal/logging"
)

// PIDFileName is written under the state directory while the daemon runs.
const PIDFileName = "attentionguard.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Logger overrides the configured logger.
	Logger *slog.Logger
}

// Run starts the attentionguard daemon and blocks until ctx ends or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		now := time.Now()
		if _, err := logging.ArchiveLog(cfg.Paths.LogDir, now); err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to archive previous log: %v\n", err)
		}
		built, err := logging.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = built
		logging.PruneArchives(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, now)
	}

	logRuntimeSnapshot(logger, cfg)
	pidPath := filepath.Join(cfg.Paths.StateDir, PIDFileName)

	d, err := daemon.New(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return err
		}
		return fmt.Errorf("start daemon: %w", err)
	}

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("attentionguard daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.StateDir, PIDFileName))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logRuntimeSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("runtime snapshot",
		logging.String(logging.FieldEventType, "runtime_snapshot"),
		logging.String("state_dir", cfg.Paths.StateDir),
		logging.String("socket", cfg.Paths.SocketPath),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.String("durable_backend", cfg.Store.DurableBackend),
		logging.Bool("durable_default", cfg.Store.DurablePersistence),
		logging.String("rules_dir", cfg.Classification.RulesDir),
		logging.Bool("normalize_text", cfg.Classification.NormalizeText),
	)
}
