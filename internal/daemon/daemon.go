package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"attentionguard/internal/aggregate"
	"attentionguard/internal/config"
	"attentionguard/internal/logging"
	"attentionguard/internal/records"
	"attentionguard/internal/sources"
)

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another attentionguard daemon instance is already running")

// Daemon owns the aggregator and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *sources.Registry
	durable  records.Durable
	agg      *aggregate.Aggregator
	metrics  *prometheus.Registry
	runID    string

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	api       *apiServer
	startedAt time.Time
	running   atomic.Bool
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool             `json:"running"`
	PID        int              `json:"pid"`
	RunID      string           `json:"runId"`
	StartedAt  time.Time        `json:"startedAt"`
	LockPath   string           `json:"lockPath"`
	SocketPath string           `json:"socketPath"`
	APIAddress string           `json:"apiAddress,omitempty"`
	Aggregate  aggregate.Status `json:"aggregate"`
}

// New loads the source registry, opens the durable store and restores the
// aggregator.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	registry, err := sources.Load(cfg.Classification.RulesDir)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	durable, err := records.OpenDurable(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	agg, err := aggregate.New(ctx, aggregate.Options{
		Registry:       registry,
		Ephemeral:      records.NewMemory(),
		Durable:        durable,
		DurableDefault: cfg.Store.DurablePersistence,
		Hub:            aggregate.NewHub(cfg.Events.Buffer),
		Metrics:        aggregate.NewMetrics(reg),
		Logger:         logger,
	})
	if err != nil {
		_ = durable.Close()
		return nil, fmt.Errorf("restore aggregator: %w", err)
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		durable:  durable,
		agg:      agg,
		metrics:  reg,
		runID:    uuid.NewString(),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and starts the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	api, err := newAPIServer(d.cfg, d, d.logger)
	if err == nil {
		err = api.start(runCtx)
	}
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	d.api = api
	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("attentionguard daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("run_id", d.runID),
		logging.String("lock", d.lockPath),
		logging.String("store", d.durable.Name()),
		logging.Bool("durable", d.agg.Durable()),
		logging.Int("sources", len(d.registry.Sources())),
	)
	return nil
}

// Stop shuts the HTTP API down and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.api = nil
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale lock may block the next start"),
		)
	}
	d.running.Store(false)
	d.logger.Info("attentionguard daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the durable store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.durable.Close()
}

// Aggregator returns the shared aggregator.
func (d *Daemon) Aggregator() *aggregate.Aggregator { return d.agg }

// Registry returns the loaded source registry.
func (d *Daemon) Registry() *sources.Registry { return d.registry }

// Metrics returns the Prometheus registry served at /metrics.
func (d *Daemon) Metrics() *prometheus.Registry { return d.metrics }

// RunID identifies this daemon process.
func (d *Daemon) RunID() string { return d.runID }

// APIAddress returns the bound HTTP API address, or "" when disabled.
func (d *Daemon) APIAddress() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	startedAt := d.startedAt
	apiAddr := d.api.address()
	d.mu.Unlock()
	return Status{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		RunID:      d.runID,
		StartedAt:  startedAt,
		LockPath:   d.lockPath,
		SocketPath: d.cfg.Paths.SocketPath,
		APIAddress: apiAddr,
		Aggregate:  d.agg.Status(),
	}
}
