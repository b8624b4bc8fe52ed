package rescan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"attentionguard/internal/logging"
)

// State is the scheduler lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateWatching  State = "watching"
	StateScheduled State = "scheduled"
	StateScanning  State = "scanning"
	StateStopped   State = "stopped"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 800 * time.Millisecond

// MaxPendingNodes bounds the nodes buffered by the check stage. A full
// buffer is tested early and folded into a single flag.
const MaxPendingNodes = 256

// ErrNotIdle is returned by Start on a scheduler that already ran.
var ErrNotIdle = errors.New("scheduler already started")

// ScanFunc runs one classification pass over the surface.
type ScanFunc func(ctx context.Context) error

// Options tunes a Scheduler.
type Options struct {
	// Name identifies the surface in logs.
	Name string
	// Debounce is the quiet period between the last interesting change and
	// the scan.
	Debounce time.Duration
	// CheckDelay, when positive, buffers added nodes and defers the
	// predicate test behind its own debounce timer.
	CheckDelay time.Duration
	// Periodic, when positive, scans unconditionally at this interval.
	Periodic time.Duration
	Clock    Clock
	Logger   *slog.Logger
}

// Stats describes scheduler activity.
type Stats struct {
	State         State     `json:"state"`
	Scans         int       `json:"scans"`
	Notifications int       `json:"notifications"`
	Filtered      int       `json:"filtered"`
	LastScan      time.Time `json:"last_scan"`
	LastError     string    `json:"last_error,omitempty"`
}

type eventKind int

const (
	evChange eventKind = iota
	evCheckDue
	evScanDue
	evPeriodicDue
	evScanNow
	evSync
)

type event struct {
	kind    eventKind
	nodes   []any
	ack     chan struct{}
	inspect func()
}

// Scheduler triggers scans of one surface in response to change
// notifications.
type Scheduler struct {
	opts        Options
	source      ChangeSource
	interesting Predicate
	scan        ScanFunc
	clock       Clock
	logger      *slog.Logger

	events   chan event
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once

	mu          sync.Mutex
	stats       Stats
	unsubscribe func()

	// Owned by the loop goroutine.
	scanTimer        Timer
	checkTimer       Timer
	periodicTimer    Timer
	scanArmed        bool
	checkArmed       bool
	scanDeadline     time.Time
	checkDeadline    time.Time
	periodicDeadline time.Time
	pending          []any
	// pendingHit records that an early-tested batch had an interesting node.
	pendingHit bool
}

// New builds an idle scheduler. A nil source means the scheduler only scans
// on start, on Refresh and on the periodic timer; a nil predicate treats
// every added node as interesting.
func New(source ChangeSource, interesting Predicate, scan ScanFunc, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	logger := logging.NewComponentLogger(opts.Logger, "rescan")
	if opts.Name != "" {
		logger = logger.With(logging.String(logging.FieldSurface, opts.Name))
	}
	return &Scheduler{
		opts:        opts,
		source:      source,
		interesting: interesting,
		scan:        scan,
		clock:       opts.Clock,
		logger:      logger,
		events:      make(chan event),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		stats:       Stats{State: StateIdle},
	}
}

// Start moves the scheduler from Idle to Watching, subscribes to change
// notifications and requests an immediate scan.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stats.State != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.stats.State = StateWatching
	s.mu.Unlock()

	s.scanTimer = s.clock.NewTimer(func() { s.post(event{kind: evScanDue}) })
	if s.opts.CheckDelay > 0 {
		s.checkTimer = s.clock.NewTimer(func() { s.post(event{kind: evCheckDue}) })
	}
	if s.opts.Periodic > 0 {
		s.periodicTimer = s.clock.NewTimer(func() { s.post(event{kind: evPeriodicDue}) })
		s.periodicDeadline = s.clock.Now().Add(s.opts.Periodic)
		s.periodicTimer.Reset(s.opts.Periodic)
	}

	go s.run(ctx)

	if s.source != nil {
		unsubscribe := s.source.Subscribe(s.notify)
		s.mu.Lock()
		if s.stats.State == StateStopped {
			s.mu.Unlock()
			unsubscribe()
			return nil
		}
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	}

	s.logger.Debug("rescan scheduler started",
		logging.String(logging.FieldEventType, "rescan_started"),
		logging.Duration("debounce", s.opts.Debounce),
		logging.Duration("check_delay", s.opts.CheckDelay),
		logging.Duration("periodic", s.opts.Periodic),
	)
	s.post(event{kind: evScanNow})
	return nil
}

// Stop cancels the subscription and every pending timer and moves the
// scheduler to Stopped. A scan already running completes. Stop is
// idempotent and may be called from inside a scan.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.stats.State != StateIdle
		s.stats.State = StateStopped
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		s.cancelTimers()
		close(s.quit)
		if !started {
			s.doneOnce.Do(func() { close(s.done) })
		}
		s.logger.Debug("rescan scheduler stopped", logging.String(logging.FieldEventType, "rescan_stopped"))
	})
}

// Refresh requests an immediate scan. It reports false when the scheduler
// is not running.
func (s *Scheduler) Refresh() bool {
	if s.State() == StateIdle {
		return false
	}
	return s.post(event{kind: evScanNow})
}

// Done is closed once the scheduler loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.State
}

// Stats returns a snapshot of scheduler activity.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) notify(added []any) {
	s.post(event{kind: evChange, nodes: added})
}

// post hands an event to the loop. It reports false once the loop is gone.
func (s *Scheduler) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// sync blocks until every event posted before it has been handled.
func (s *Scheduler) sync() {
	ack := make(chan struct{})
	if s.post(event{kind: evSync, ack: ack}) {
		<-ack
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.doneOnce.Do(func() { close(s.done) })
	defer s.cancelTimers()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-s.quit:
			return
		case ev := <-s.events:
			if ev.kind == evSync {
				if ev.inspect != nil {
					ev.inspect()
				}
				close(ev.ack)
				continue
			}
			if s.State() == StateStopped {
				continue
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, ev event) {
	now := s.clock.Now()
	switch ev.kind {
	case evChange:
		s.mu.Lock()
		s.stats.Notifications++
		s.mu.Unlock()
		if len(ev.nodes) == 0 {
			return
		}
		if s.checkTimer != nil {
			s.buffer(ev.nodes)
			s.checkArmed = true
			s.checkDeadline = now.Add(s.opts.CheckDelay)
			s.checkTimer.Reset(s.opts.CheckDelay)
			return
		}
		s.filter(now, ev.nodes)

	case evCheckDue:
		if !s.checkArmed || now.Before(s.checkDeadline) {
			return
		}
		s.checkArmed = false
		hit := s.pendingHit || s.anyInteresting(s.pending)
		s.pending = nil
		s.pendingHit = false
		s.arm(now, hit)

	case evScanDue:
		if !s.scanArmed || now.Before(s.scanDeadline) {
			return
		}
		s.scanArmed = false
		s.runScan(ctx, "debounce")

	case evPeriodicDue:
		if s.periodicTimer == nil || now.Before(s.periodicDeadline) {
			return
		}
		s.periodicDeadline = now.Add(s.opts.Periodic)
		s.periodicTimer.Reset(s.opts.Periodic)
		s.runScan(ctx, "periodic")

	case evScanNow:
		s.runScan(ctx, "immediate")
	}
}

// buffer queues nodes for the check stage. Once an interesting node has
// been seen nothing more needs keeping; a full buffer is tested early.
func (s *Scheduler) buffer(nodes []any) {
	if s.pendingHit {
		return
	}
	if len(s.pending)+len(nodes) > MaxPendingNodes {
		if s.anyInteresting(s.pending) || s.anyInteresting(nodes) {
			s.pendingHit = true
		}
		s.pending = s.pending[:0]
		return
	}
	s.pending = append(s.pending, nodes...)
}

// PendingNodes returns how many nodes the check stage currently holds.
func (s *Scheduler) PendingNodes() int {
	ack := make(chan struct{})
	var n int
	if s.post(event{kind: evSync, ack: ack, inspect: func() { n = len(s.pending) }}) {
		<-ack
	}
	return n
}

// filter arms the scan timer when any node passes the predicate.
func (s *Scheduler) filter(now time.Time, nodes []any) {
	s.arm(now, s.anyInteresting(nodes))
}

func (s *Scheduler) arm(now time.Time, interesting bool) {
	if !interesting {
		s.mu.Lock()
		s.stats.Filtered++
		s.mu.Unlock()
		return
	}
	s.scanArmed = true
	s.scanDeadline = now.Add(s.opts.Debounce)
	s.scanTimer.Reset(s.opts.Debounce)
	s.setState(StateScheduled)
}

func (s *Scheduler) anyInteresting(nodes []any) bool {
	if len(nodes) == 0 {
		return false
	}
	if s.interesting == nil {
		return true
	}
	for _, node := range nodes {
		if s.interesting(node) {
			return true
		}
	}
	return false
}

func (s *Scheduler) runScan(ctx context.Context, trigger string) {
	s.setState(StateScanning)
	err := s.invoke(ctx)

	s.mu.Lock()
	s.stats.Scans++
	s.stats.LastScan = s.clock.Now()
	if err != nil {
		s.stats.LastError = err.Error()
	} else {
		s.stats.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("scan failed",
			logging.Error(err),
			logging.String("trigger", trigger),
			logging.String(logging.FieldEventType, "scan_failed"),
			logging.String(logging.FieldImpact, "surface stats may be stale until the next scan"),
		)
	}

	if s.scanArmed {
		s.setState(StateScheduled)
	} else {
		s.setState(StateWatching)
	}
}

func (s *Scheduler) invoke(ctx context.Context) (err error) {
	if s.scan == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panic: %v", r)
		}
	}()
	return s.scan(ctx)
}

// setState never leaves Stopped.
func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats.State == StateStopped {
		return
	}
	s.stats.State = state
}

func (s *Scheduler) cancelTimers() {
	for _, t := range []Timer{s.scanTimer, s.checkTimer, s.periodicTimer} {
		if t != nil {
			t.Cancel()
		}
	}
}
