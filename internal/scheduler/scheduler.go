package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/log"
	"github.com/doridoridoriand/connwatch/internal/ping"
	"github.com/doridoridoriand/connwatch/internal/state"
)

// ErrAlreadyRunning is returned by Run when another Run is active.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Scheduler probes one host on a fixed cadence and keeps the rolling
// history and health for it.
//
// The first probe fires one interval after the loop starts (startup, resume
// or target change). A tick that fires while a probe is still in flight is
// skipped. Pausing or changing the target cancels the in-flight probe and
// its result is discarded.
type Scheduler struct {
	// notifyMu orders notifications; it is always taken before mu.
	notifyMu sync.Mutex
	mu       sync.Mutex

	cfg      config.Monitor
	pinger   ping.Pinger
	store    *state.Store
	logger   *log.Logger
	runState RunState

	generation uint64
	seq        uint64
	runCtx     context.Context
	runCancel  context.CancelFunc
	loopCancel context.CancelFunc
	wg         sync.WaitGroup

	subs    map[int]Subscriber
	nextSub int
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for probe results.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInitialState sets the run state the scheduler starts in.
func WithInitialState(rs RunState) Option {
	return func(s *Scheduler) {
		if rs == Paused {
			s.runState = Paused
		}
	}
}

// New validates cfg and returns a scheduler in the Running state.
func New(cfg config.Monitor, pinger ping.Pinger, opts ...Option) (*Scheduler, error) {
	cfg.Target = strings.TrimSpace(cfg.Target)
	if err := config.ValidateMonitor(cfg); err != nil {
		return nil, err
	}
	if pinger == nil {
		return nil, fmt.Errorf("pinger is required")
	}
	s := &Scheduler{
		cfg:      cfg,
		pinger:   pinger,
		store:    state.NewStore(cfg.HistorySize, cfg.Thresholds.State()),
		logger:   log.Nop(),
		runState: Running,
		subs:     make(map[int]Subscriber),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run drives probing until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.runCancel = cancel
	if s.runState == Running {
		s.startLoopLocked()
	}
	s.mu.Unlock()

	<-runCtx.Done()

	s.mu.Lock()
	s.stopLoopLocked()
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()
	s.wg.Wait()
	return runCtx.Err()
}

// Stop ends a running Run call.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.runCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Pause stops scheduling probes. Pausing twice is a no-op.
func (s *Scheduler) Pause() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.runState == Paused {
		s.mu.Unlock()
		return
	}
	s.runState = Paused
	s.stopLoopLocked()
	st, subs := s.publishLocked(s.store.GetSnapshot(), ReasonPause)
	s.mu.Unlock()

	deliver(subs, st)
}

// Resume restarts probing. Resuming a running scheduler is a no-op.
func (s *Scheduler) Resume() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.runState == Running {
		s.mu.Unlock()
		return
	}
	s.runState = Running
	s.startLoopLocked()
	st, subs := s.publishLocked(s.store.GetSnapshot(), ReasonResume)
	s.mu.Unlock()

	deliver(subs, st)
}

// SetTarget switches the monitored host and clears the history. The run
// state is left unchanged.
func (s *Scheduler) SetTarget(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return config.ErrEmptyTarget
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.cfg.Target = host
	s.restartLocked()
	st, subs := s.publishLocked(s.store.Reset(), ReasonTarget)
	s.mu.Unlock()

	deliver(subs, st)
	return nil
}

// UpdateConfig applies a new monitor configuration. Invalid configurations
// are rejected and the previous one is kept. A new target or history size
// clears the history; new timing restarts the cadence; new thresholds
// reclassify the current history.
func (s *Scheduler) UpdateConfig(cfg config.Monitor) error {
	cfg.Target = strings.TrimSpace(cfg.Target)
	if err := config.ValidateMonitor(cfg); err != nil {
		return err
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	old := s.cfg
	if old == cfg {
		s.mu.Unlock()
		return nil
	}
	s.cfg = cfg

	switch {
	case old.HistorySize != cfg.HistorySize:
		s.store.Resize(cfg.HistorySize)
	case old.Target != cfg.Target:
		s.store.Reset()
	}
	snap := s.store.SetThresholds(cfg.Thresholds.State())

	if old.Target != cfg.Target || old.Interval != cfg.Interval || old.Timeout != cfg.Timeout || old.HistorySize != cfg.HistorySize {
		s.restartLocked()
	}
	st, subs := s.publishLocked(snap, ReasonConfig)
	s.mu.Unlock()

	deliver(subs, st)
	return nil
}

// State returns the current status without notifying anyone.
func (s *Scheduler) State() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(s.store.GetSnapshot(), "")
}

// Config returns the active monitor configuration.
func (s *Scheduler) Config() config.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Subscribe registers sub and returns a function that removes it.
func (s *Scheduler) Subscribe(sub Subscriber) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Scheduler) startLoopLocked() {
	if s.runCtx == nil || s.loopCancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(s.runCtx)
	s.loopCancel = cancel
	gen := s.generation
	cfg := s.cfg

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(loopCtx, gen, cfg)
	}()
}

// stopLoopLocked cancels the active loop and invalidates any result it
// has in flight.
func (s *Scheduler) stopLoopLocked() {
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
	s.generation++
}

func (s *Scheduler) restartLocked() {
	s.stopLoopLocked()
	if s.runState == Running {
		s.startLoopLocked()
	}
}

func (s *Scheduler) loop(ctx context.Context, gen uint64, cfg config.Monitor) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		result := s.probe(ctx, cfg.Target, cfg.Timeout)
		if ctx.Err() != nil {
			return
		}
		s.complete(gen, cfg.Target, result)

		select {
		case <-ticker.C:
			s.logger.Debug("tick_skipped", zap.String("target", cfg.Target))
		default:
		}
	}
}

func (s *Scheduler) probe(ctx context.Context, target string, timeout time.Duration) ping.Result {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan ping.Result, 1)
	go func() {
		done <- s.pinger.Ping(probeCtx, target, timeout)
	}()
	select {
	case result := <-done:
		return result
	case <-probeCtx.Done():
		return ping.Result{Error: fmt.Errorf("probe timeout: %w", probeCtx.Err())}
	}
}

func (s *Scheduler) complete(gen uint64, target string, result ping.Result) {
	outcome := toOutcome(result)
	s.logger.LogProbeResult(target, outcome, result.Error)

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if gen != s.generation || s.runState != Running {
		s.mu.Unlock()
		return
	}
	st, subs := s.publishLocked(s.store.Record(outcome), ReasonProbe)
	s.mu.Unlock()

	deliver(subs, st)
}

func (s *Scheduler) publishLocked(snap state.Snapshot, reason Reason) (Status, []Subscriber) {
	s.seq++
	subs := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	return s.statusLocked(snap, reason), subs
}

func (s *Scheduler) statusLocked(snap state.Snapshot, reason Reason) Status {
	return Status{
		Seq:      s.seq,
		Reason:   reason,
		Target:   s.cfg.Target,
		RunState: s.runState,
		Health:   snap.Health,
		Summary:  snap.Summary,
		History:  snap.History,
	}
}

func deliver(subs []Subscriber, st Status) {
	for _, sub := range subs {
		sub.OnStatusChanged(st)
	}
}

func toOutcome(result ping.Result) state.Outcome {
	if !result.Success {
		return state.Failed()
	}
	return state.Succeeded(int(math.Round(float64(result.RTT) / float64(time.Millisecond))))
}
