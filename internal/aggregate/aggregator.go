package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"attentionguard/internal/logging"
	"attentionguard/internal/records"
	"attentionguard/internal/session"
	"attentionguard/internal/sources"
)

// ErrUnknownSource is returned for a source id the registry does not know.
var ErrUnknownSource = errors.New("unknown source")

// Options configures an Aggregator.
type Options struct {
	Registry *sources.Registry
	// Ephemeral holds records for the daemon's lifetime. Defaults to memory.
	Ephemeral records.Backend
	// Durable holds records across restarts and stores the settings.
	// Defaults to memory.
	Durable records.Durable
	// DurableDefault is the mode used when the durable store has no saved
	// settings.
	DurableDefault bool
	Hub            *Hub
	Metrics        *Metrics
	Logger         *slog.Logger
	Now            func() time.Time
}

type surfaceState struct {
	source  string
	address string
}

// Status summarizes the aggregator for status output.
type Status struct {
	Durable        bool   `json:"durable"`
	Backend        string `json:"backend"`
	Sources        int    `json:"sources"`
	ActiveSurfaces int    `json:"activeSurfaces"`
	LastEvent      uint64 `json:"lastEvent"`
}

// Aggregator is the single shared boundary between surfaces. All methods
// are safe for concurrent use.
type Aggregator struct {
	registry  *sources.Registry
	ephemeral records.Backend
	durable   records.Durable
	hub       *Hub
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	durableOn  bool
	held       map[string]records.Record
	surfaces   map[string]surfaceState
	indicators map[string]Indicator

	persistLog rate.Sometimes
}

// New constructs an Aggregator, restoring the saved persistence mode and the
// records of the selected backend.
func New(ctx context.Context, opts Options) (*Aggregator, error) {
	if opts.Registry == nil {
		reg, err := sources.Default()
		if err != nil {
			return nil, err
		}
		opts.Registry = reg
	}
	if opts.Ephemeral == nil {
		opts.Ephemeral = records.NewMemory()
	}
	if opts.Durable == nil {
		opts.Durable = records.NewMemory()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(DefaultHubCapacity)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &Aggregator{
		registry:   opts.Registry,
		ephemeral:  opts.Ephemeral,
		durable:    opts.Durable,
		hub:        opts.Hub,
		metrics:    opts.Metrics,
		logger:     logging.NewComponentLogger(opts.Logger, "aggregate"),
		now:        opts.Now,
		held:       make(map[string]records.Record),
		surfaces:   make(map[string]surfaceState),
		indicators: make(map[string]Indicator),
		persistLog: rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}

	a.durableOn = opts.DurableDefault
	settings, err := a.durable.LoadSettings(ctx)
	switch {
	case err == nil:
		a.durableOn = settings.DurablePersistence
	case errors.Is(err, records.ErrNotFound):
	default:
		return nil, fmt.Errorf("load settings: %w", err)
	}

	held, err := a.active().Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records from %s: %w", a.active().Name(), err)
	}
	a.held = held
	for _, rec := range held {
		a.metrics.observeRecord(rec)
	}
	a.metrics.setDurable(a.durableOn)
	a.logger.Info("aggregator ready",
		logging.String(logging.FieldEventType, "aggregator_ready"),
		logging.Bool("durable", a.durableOn),
		logging.String("backend", a.active().Name()),
		logging.Int("records", len(held)),
	)
	return a, nil
}

// Hub returns the event hub changes are published to.
func (a *Aggregator) Hub() *Hub { return a.hub }

// Registry returns the source registry used for detection.
func (a *Aggregator) Registry() *sources.Registry { return a.registry }

func (a *Aggregator) active() records.Backend {
	if a.durableOn {
		return a.durable
	}
	return a.ephemeral
}

// ReportStats overwrites the record of sourceID with the cumulative counters
// a surface reported. The later report wins in full. Persistence is
// best-effort; a failed write is logged and the held record still updates.
func (a *Aggregator) ReportStats(ctx context.Context, surfaceID, sourceID string, stats session.Stats) (records.Record, error) {
	sourceID = normalizeID(sourceID)
	if sourceID == "" {
		return records.Record{}, fmt.Errorf("report stats: %w", ErrUnknownSource)
	}
	ctx = logging.WithSource(logging.WithSurface(ctx, surfaceID), sourceID)

	a.mu.Lock()
	now := a.now()
	rec, ok := a.held[sourceID]
	if !ok {
		rec = records.Empty(sourceID, now)
	}
	rec = rec.Overwrite(stats, now)
	a.held[sourceID] = rec
	a.persistLocked(ctx, func(ctx context.Context, b records.Backend) error { return b.Put(ctx, rec) })

	affected := a.surfacesForLocked(sourceID)
	if surfaceID != "" && !slices.Contains(affected, surfaceID) {
		if _, known := a.registry.Lookup(sourceID); known {
			affected = append(affected, surfaceID)
		}
	}
	indicators := a.rederiveLocked(affected, sourceID)
	a.mu.Unlock()

	a.metrics.observeReport(sourceID)
	a.metrics.observeRecord(rec)
	snapshot := rec.Clone()
	a.hub.Publish(Event{Type: EventStatsChanged, Source: sourceID, SurfaceID: surfaceID, Stats: &snapshot})
	a.publishIndicators(indicators)

	logging.WithContext(ctx, a.logger).Debug("stats reported",
		logging.String(logging.FieldEventType, "stats_reported"),
		logging.Int("total", rec.Total),
		logging.Float64("rate", rec.Rate()),
	)
	return rec.Clone(), nil
}

// GetStats returns the record of sourceID, if any.
func (a *Aggregator) GetStats(sourceID string) (records.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.held[normalizeID(sourceID)]
	if !ok {
		return records.Record{}, false
	}
	return rec.Clone(), true
}

// Records returns every held record ordered by source.
func (a *Aggregator) Records() []records.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]records.Record, 0, len(a.held))
	for _, rec := range a.held {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(x, y records.Record) int { return strings.Compare(x.Source, y.Source) })
	return out
}

// ResetSource replaces the record of sourceID with an empty one. An empty
// sourceID resets every held record. Resetting a source with no record is a
// no-op.
func (a *Aggregator) ResetSource(ctx context.Context, sourceID string) error {
	sourceID = normalizeID(sourceID)

	a.mu.Lock()
	now := a.now()
	var targets []string
	if sourceID == "" {
		for id := range a.held {
			targets = append(targets, id)
		}
	} else if _, ok := a.held[sourceID]; ok {
		targets = []string{sourceID}
	}
	if len(targets) == 0 {
		a.mu.Unlock()
		return nil
	}
	for _, id := range targets {
		a.held[id] = records.Empty(id, now)
	}
	snapshot := cloneRecords(a.held)
	a.persistLocked(ctx, func(ctx context.Context, b records.Backend) error { return b.Replace(ctx, snapshot) })

	var affected []string
	for _, id := range targets {
		affected = append(affected, a.surfacesForLocked(id)...)
	}
	indicators := a.rederiveLocked(affected, "")
	a.mu.Unlock()

	a.metrics.observeReset()
	for _, id := range targets {
		a.metrics.observeRecord(snapshot[id])
	}
	a.hub.Publish(Event{Type: EventReset, Source: sourceID})
	a.publishIndicators(indicators)

	scope := sourceID
	if scope == "" {
		scope = "all"
	}
	logging.WithContext(ctx, a.logger).Info("records reset",
		logging.String(logging.FieldEventType, "records_reset"),
		logging.String("scope", scope),
		logging.Int("records", len(targets)),
	)
	return nil
}

// Durable reports whether records currently persist across restarts.
func (a *Aggregator) Durable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.durableOn
}

// SetPersistenceMode migrates the held records into the backend for the
// requested mode, saves the setting, then switches. On failure the previous
// mode stays in effect.
func (a *Aggregator) SetPersistenceMode(ctx context.Context, durable bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if durable == a.durableOn {
		return nil
	}
	from := a.active()
	to := records.Backend(a.ephemeral)
	if durable {
		to = a.durable
	}

	current, err := from.Load(ctx)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, a.logger), "reading previous backend failed; migrating held records only", "persistence_migration_read_failed",
			logging.String("backend", from.Name()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "records only present in the previous backend are not migrated"),
		)
		current = make(map[string]records.Record, len(a.held))
	}
	for id, rec := range a.held {
		current[id] = rec.Clone()
	}
	if err := to.Replace(ctx, current); err != nil {
		return fmt.Errorf("migrate records to %s: %w", to.Name(), err)
	}
	if err := a.durable.SaveSettings(ctx, records.Settings{DurablePersistence: durable}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	a.durableOn = durable
	a.held = current
	a.metrics.setDurable(durable)
	a.hub.Publish(Event{Type: EventPersistence, Durable: &durable})
	logging.WithContext(ctx, a.logger).Info("persistence mode changed",
		logging.String(logging.FieldEventType, "persistence_changed"),
		logging.Bool("durable", durable),
		logging.String("from", from.Name()),
		logging.String("to", to.Name()),
		logging.Int("records", len(current)),
	)
	return nil
}

// SurfaceActivated handles a surface gaining focus or finishing navigation:
// the source is detected from address and the surface map updated. A
// surface whose address matches no source has its indicator cleared.
func (a *Aggregator) SurfaceActivated(ctx context.Context, surfaceID, address string) Indicator {
	src, detected := a.registry.Detect(address)

	a.mu.Lock()
	if detected {
		a.surfaces[surfaceID] = surfaceState{source: src.ID, address: address}
	} else {
		delete(a.surfaces, surfaceID)
	}
	indicators := a.rederiveLocked([]string{surfaceID}, "")
	ind := indicators[0]
	evt := Event{Type: EventSurfaceChanged, SurfaceID: surfaceID, Address: address}
	if detected {
		evt.Source = src.ID
		if rec, ok := a.held[src.ID]; ok {
			snapshot := rec.Clone()
			evt.Stats = &snapshot
		}
	}
	a.metrics.setActiveSurfaces(len(a.surfaces))
	a.mu.Unlock()

	a.hub.Publish(evt)
	a.publishIndicators(indicators)
	if detected {
		a.hub.Publish(Event{Type: EventRefreshRequested, Source: src.ID, SurfaceID: surfaceID})
	}

	logging.WithContext(logging.WithSurface(ctx, surfaceID), a.logger).Debug("surface activated",
		logging.String(logging.FieldEventType, "surface_activated"),
		logging.String(logging.FieldSource, evt.Source),
		logging.String("address", address),
	)
	return ind
}

// SourceActive records that an observation loop for sourceID runs on
// surfaceID.
func (a *Aggregator) SourceActive(ctx context.Context, surfaceID, sourceID string) (Indicator, error) {
	src, ok := a.registry.Lookup(sourceID)
	if !ok {
		return Indicator{}, fmt.Errorf("source %q: %w", sourceID, ErrUnknownSource)
	}

	a.mu.Lock()
	prev := a.surfaces[surfaceID]
	a.surfaces[surfaceID] = surfaceState{source: src.ID, address: prev.address}
	indicators := a.rederiveLocked([]string{surfaceID}, "")
	a.metrics.setActiveSurfaces(len(a.surfaces))
	a.mu.Unlock()

	a.publishIndicators(indicators)
	logging.WithContext(logging.WithSource(logging.WithSurface(ctx, surfaceID), src.ID), a.logger).Debug("source active",
		logging.String(logging.FieldEventType, "source_active"),
	)
	return indicators[0], nil
}

// SurfaceClosed forgets the surface. Records are unaffected.
func (a *Aggregator) SurfaceClosed(surfaceID string) {
	a.mu.Lock()
	state, ok := a.surfaces[surfaceID]
	delete(a.surfaces, surfaceID)
	delete(a.indicators, surfaceID)
	a.metrics.setActiveSurfaces(len(a.surfaces))
	a.mu.Unlock()

	if ok {
		a.hub.Publish(Event{Type: EventSurfaceClosed, Source: state.source, SurfaceID: surfaceID})
	}
}

// Indicator returns the current indicator of surfaceID.
func (a *Aggregator) Indicator(surfaceID string) Indicator {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ind, ok := a.indicators[surfaceID]; ok {
		return ind
	}
	return clearedIndicator(surfaceID)
}

// ActiveSurfaces returns the surface to source map.
func (a *Aggregator) ActiveSurfaces() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.surfaces))
	for id, state := range a.surfaces {
		out[id] = state.source
	}
	return out
}

// Status summarizes the aggregator.
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		Durable:        a.durableOn,
		Backend:        a.active().Name(),
		Sources:        len(a.held),
		ActiveSurfaces: len(a.surfaces),
		LastEvent:      a.hub.Latest(),
	}
}

// persistLocked applies write to the active backend. Failures are counted
// and logged at most once per interval; they are not retried.
func (a *Aggregator) persistLocked(ctx context.Context, write func(context.Context, records.Backend) error) {
	backend := a.active()
	err := write(ctx, backend)
	if err == nil {
		return
	}
	a.metrics.observePersistFailure(backend.Name())
	a.persistLog.Do(func() {
		logging.WarnWithContext(logging.WithContext(ctx, a.logger), "record persistence failed", "persist_failed",
			logging.String("backend", backend.Name()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "records are held in memory until the next successful write"),
			logging.String(logging.FieldErrorHint, "check the store configuration and backend availability"),
		)
	})
}

func (a *Aggregator) surfacesForLocked(sourceID string) []string {
	var out []string
	for id, state := range a.surfaces {
		if state.source == sourceID {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// rederiveLocked recomputes the indicators of surfaceIDs. fallbackSource
// names the source for surfaces absent from the surface map.
func (a *Aggregator) rederiveLocked(surfaceIDs []string, fallbackSource string) []Indicator {
	out := make([]Indicator, 0, len(surfaceIDs))
	for _, surfaceID := range surfaceIDs {
		sourceID := fallbackSource
		if state, ok := a.surfaces[surfaceID]; ok {
			sourceID = state.source
		}
		ind := clearedIndicator(surfaceID)
		if src, ok := a.registry.Lookup(sourceID); ok {
			rec, held := a.held[src.ID]
			ind = deriveIndicator(surfaceID, src, rec, held)
		}
		a.indicators[surfaceID] = ind
		out = append(out, ind)
	}
	return out
}

func (a *Aggregator) publishIndicators(indicators []Indicator) {
	for i := range indicators {
		ind := indicators[i]
		a.hub.Publish(Event{Type: EventIndicator, Source: ind.Source, SurfaceID: ind.SurfaceID, Indicator: &ind})
	}
}

func cloneRecords(in map[string]records.Record) map[string]records.Record {
	out := make(map[string]records.Record, len(in))
	for id, rec := range in {
		out[id] = rec.Clone()
	}
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
