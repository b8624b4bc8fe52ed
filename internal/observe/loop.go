package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"attentionguard/internal/labels"
	"attentionguard/internal/logging"
	"attentionguard/internal/rescan"
	"attentionguard/internal/session"
	"attentionguard/internal/sources"
)

// Adapter extracts candidate units from a surface. An error is treated as
// an empty scan.
type Adapter interface {
	Extract(ctx context.Context) ([]Candidate, error)
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc func(ctx context.Context) ([]Candidate, error)

// Extract calls f.
func (f AdapterFunc) Extract(ctx context.Context) ([]Candidate, error) { return f(ctx) }

// Reporter delivers cumulative stats to the aggregator.
type Reporter interface {
	ReportStats(ctx context.Context, surfaceID, sourceID string, stats session.Stats) error
}

// Announcer is implemented by reporters that can announce a surface's
// source before the first report.
type Announcer interface {
	SourceActive(ctx context.Context, surfaceID, sourceID string) error
}

// Timing holds scheduler fallbacks for sources without their own.
type Timing struct {
	Debounce   time.Duration
	CheckDelay time.Duration
	Periodic   time.Duration
}

// Options configures a Loop.
type Options struct {
	SurfaceID string
	Source    sources.Source
	Rules     []labels.Rule
	Adapter   Adapter
	Reporter  Reporter
	// Changes delivers structural-change notifications. Nil disables
	// notification-driven rescans.
	Changes rescan.ChangeSource
	// Interesting filters added nodes. Defaults to HasContent.
	Interesting rescan.Predicate
	Normalize   bool
	Defaults    Timing
	Clock       rescan.Clock
	Logger      *slog.Logger
}

// ScanSummary describes the most recent scan.
type ScanSummary struct {
	Candidates int       `json:"candidates"`
	Added      int       `json:"added"`
	At         time.Time `json:"at"`
}

// Loop observes one surface.
type Loop struct {
	opts      Options
	evaluator Evaluator
	scheduler *rescan.Scheduler
	logger    *slog.Logger

	// reportMu orders session snapshots with their delivery, so a report
	// never overtakes a later one.
	reportMu sync.Mutex
	mu       sync.Mutex
	session  *session.Session
	last     ScanSummary
}

// New validates opts and builds an idle Loop.
func New(opts Options) (*Loop, error) {
	if opts.Source.ID == "" {
		return nil, errors.New("observe: source is required")
	}
	if opts.Adapter == nil {
		return nil, errors.New("observe: adapter is required")
	}
	if opts.Interesting == nil {
		opts.Interesting = HasContent
	}

	logger := logging.NewComponentLogger(opts.Logger, "observe").With(
		logging.String(logging.FieldSource, opts.Source.ID),
		logging.String(logging.FieldSurface, opts.SurfaceID),
	)
	l := &Loop{
		opts:      opts,
		evaluator: Evaluator{Source: opts.Source, Rules: opts.Rules, Normalize: opts.Normalize},
		logger:    logger,
		session:   session.New(),
	}
	timing := resolveTiming(opts.Source, opts.Defaults)
	l.scheduler = rescan.New(opts.Changes, opts.Interesting, l.scan, rescan.Options{
		Name:       opts.SurfaceID,
		Debounce:   timing.Debounce,
		CheckDelay: timing.CheckDelay,
		Periodic:   timing.Periodic,
		Clock:      opts.Clock,
		Logger:     opts.Logger,
	})
	return l, nil
}

func resolveTiming(src sources.Source, defaults Timing) Timing {
	t := Timing{Debounce: src.Debounce, CheckDelay: src.CheckDelay, Periodic: src.Periodic}
	if t.Debounce <= 0 {
		t.Debounce = defaults.Debounce
	}
	if t.CheckDelay <= 0 {
		t.CheckDelay = defaults.CheckDelay
	}
	if t.Periodic <= 0 {
		t.Periodic = defaults.Periodic
	}
	return t
}

// Start announces the surface and starts scanning.
func (l *Loop) Start(ctx context.Context) error {
	if a, ok := l.opts.Reporter.(Announcer); ok {
		if err := a.SourceActive(ctx, l.opts.SurfaceID, l.opts.Source.ID); err != nil {
			l.logger.Debug("source announcement not delivered",
				logging.String(logging.FieldEventType, "announce_failed"),
				logging.Error(err),
			)
		}
	}
	if err := l.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start loop: %w", err)
	}
	l.logger.Info("observation started",
		logging.String(logging.FieldEventType, "observation_started"),
		logging.Int("rules", len(l.opts.Rules)),
	)
	return nil
}

// Stop cancels pending scans. A scan in progress completes.
func (l *Loop) Stop() {
	l.scheduler.Stop()
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.scheduler.Done()
}

// Drain stops the loop and runs one final scan, so candidates the adapter
// already holds are counted and reported even if their debounce never fired.
func (l *Loop) Drain(ctx context.Context) error {
	l.Stop()
	<-l.Done()
	return l.scan(ctx)
}

// Refresh requests an immediate scan and re-report.
func (l *Loop) Refresh() bool {
	return l.scheduler.Refresh()
}

// Reset clears the session and reports the empty stats. A scan report in
// flight is delivered first.
func (l *Loop) Reset(ctx context.Context) {
	l.reportMu.Lock()
	defer l.reportMu.Unlock()

	l.mu.Lock()
	l.session.Reset()
	stats := l.session.Stats()
	l.mu.Unlock()
	l.report(ctx, stats)
	l.logger.Info("session reset",
		logging.String(logging.FieldEventType, "session_reset"),
	)
}

// Stats snapshots the session.
func (l *Loop) Stats() session.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Stats()
}

// Items returns the de-duplicated items in insertion order.
func (l *Loop) Items() []session.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Items()
}

// LastScan describes the most recent scan.
func (l *Loop) LastScan() ScanSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// SchedulerStats exposes the scheduler counters.
func (l *Loop) SchedulerStats() rescan.Stats {
	return l.scheduler.Stats()
}

func (l *Loop) scan(ctx context.Context) error {
	candidates, err := l.opts.Adapter.Extract(ctx)
	if err != nil {
		return fmt.Errorf("extract candidates: %w", err)
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = l.evaluator.Evaluate(c)
	}

	l.reportMu.Lock()
	defer l.reportMu.Unlock()

	l.mu.Lock()
	added := 0
	var flagged []Result
	for _, r := range results {
		if l.session.Add(r.ID, r.Classification, r.Labels) {
			added++
			if r.Classification.Manipulated() {
				flagged = append(flagged, r)
			}
		}
	}
	l.last = ScanSummary{Candidates: len(candidates), Added: added, At: time.Now()}
	stats := l.session.Stats()
	l.mu.Unlock()

	l.report(ctx, stats)
	for _, r := range flagged {
		l.logger.Debug("item flagged",
			logging.String(logging.FieldItemID, r.ID),
			logging.String(logging.FieldClassification, string(r.Classification)),
			logging.Int("labels", len(r.Labels)),
		)
	}
	if added > 0 {
		l.logger.Debug("scan added items",
			logging.String(logging.FieldEventType, "scan_added"),
			logging.Int("added", added),
			logging.Int("total", stats.Total),
			logging.Int("ads", stats.Ads),
			logging.Int("algorithmic", stats.Algorithmic),
			logging.Int("social", stats.Social),
			logging.Float64("rate", stats.Rate),
		)
	}
	return nil
}

// report delivers stats; failures are dropped since the next scan re-sends
// the full cumulative session.
func (l *Loop) report(ctx context.Context, stats session.Stats) {
	if l.opts.Reporter == nil {
		return
	}
	if err := l.opts.Reporter.ReportStats(ctx, l.opts.SurfaceID, l.opts.Source.ID, stats); err != nil {
		l.logger.Debug("stats report not delivered",
			logging.String(logging.FieldEventType, "report_failed"),
			logging.Error(err),
		)
	}
}
