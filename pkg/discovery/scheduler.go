package discovery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/telekom/api-catalog/pkg/metrics"
)

const (
	// DefaultInitialDelay is the time the scheduler waits after Init before touching the cache or the API server.
	DefaultInitialDelay = 15 * time.Second
	// DefaultPollInterval is the time between the end of one cycle and the start of the next.
	DefaultPollInterval = 60 * time.Second
	// DefaultRefreshInterval is the minimum time between two out-of-band refreshes.
	DefaultRefreshInterval = 5 * time.Second
)

// SchedulerState is the lifecycle phase of a Scheduler.
type SchedulerState int

const (
	StateIdle SchedulerState = iota
	StateAwaitingInitialDelay
	StateBootstrapping
	StatePolling
	StateStopped
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingInitialDelay:
		return "AwaitingInitialDelay"
	case StateBootstrapping:
		return "Bootstrapping"
	case StatePolling:
		return "Polling"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// SchedulerOptions configures a Scheduler. Zero values select the defaults.
type SchedulerOptions struct {
	InitialDelay time.Duration
	PollInterval time.Duration
	// CycleTimeout bounds a single discovery cycle. Zero leaves cycles unbounded.
	CycleTimeout time.Duration
	// RefreshInterval rate limits Refresh.
	RefreshInterval time.Duration
	Clock           clock.WithDelayedExecution
}

// Scheduler drives the discovery lifecycle: an initial delay, a cache-assisted bootstrap and
// a perpetual poll loop that re-arms itself after every cycle, successful or not.
//
// The scheduler owns exactly one timer. Arming a timer always stops the previous one and
// bumps the generation, so a stale timer that already fired finds itself outdated and
// returns without running a cycle.
type Scheduler struct {
	source    CatalogSource
	cache     Cache
	publisher Publisher
	clock     clock.WithDelayedExecution

	initialDelay time.Duration
	pollInterval time.Duration
	cycleTimeout time.Duration
	refresh      rate.Sometimes

	// mu guards the timer bookkeeping and lifecycle state.
	mu         sync.Mutex
	ctx        context.Context
	timer      clock.Timer
	generation uint64
	state      SchedulerState
	stopped    bool

	// cycleMu serializes bootstrap and discovery cycles.
	cycleMu sync.Mutex
	last    *Catalog
}

// NewScheduler creates a Scheduler. A nil cache disables persistence.
func NewScheduler(source CatalogSource, cache Cache, publisher Publisher, opts SchedulerOptions) *Scheduler {
	s := &Scheduler{
		source:       source,
		cache:        cache,
		publisher:    publisher,
		clock:        opts.Clock,
		initialDelay: opts.InitialDelay,
		pollInterval: opts.PollInterval,
		cycleTimeout: opts.CycleTimeout,
		refresh:      rate.Sometimes{Interval: opts.RefreshInterval},
		state:        StateIdle,
	}
	if s.cache == nil {
		s.cache = NopCache{}
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.initialDelay <= 0 {
		s.initialDelay = DefaultInitialDelay
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.refresh.Interval <= 0 {
		s.refresh.Interval = DefaultRefreshInterval
	}
	return s
}

// Init starts the lifecycle. Calling it again restarts the initial delay;
// it never leaves more than one loop running. A cycle that is running while Init
// is called completes but does not re-arm, so the new initial delay stays in effect.
func (s *Scheduler) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}

	s.ctx = ctx
	s.state = StateAwaitingInitialDelay
	s.armLocked(s.initialDelay, s.bootstrap)
	log.FromContext(ctx).WithName("Scheduler").Info("API discovery scheduled", "initialDelay", s.initialDelay)
	return nil
}

// Stop disarms the timer and prevents any further scheduling.
// A cycle that is already running completes but does not re-arm.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.state = StateStopped
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Start implements manager.Runnable. It blocks until ctx is done and
// a cycle that is still running has finished.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	s.cycleMu.Lock()
	s.cycleMu.Unlock() //nolint:staticcheck // waits for the running cycle
	log.FromContext(ctx).WithName("Scheduler").Info("stopped API discovery")
	return nil
}

// NeedLeaderElection implements LeaderElectionRunnable. Every replica keeps its own catalog.
func (s *Scheduler) NeedLeaderElection() bool {
	return false
}

// State returns the current lifecycle phase.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh runs an out-of-band discovery cycle and restarts the poll interval afterwards.
// It returns ErrRefreshSkipped when called again within the refresh interval, before
// polling has started or while another cycle is running.
func (s *Scheduler) Refresh(ctx context.Context) error {
	s.mu.Lock()
	stopped, state := s.stopped, s.state
	s.mu.Unlock()
	if stopped {
		metrics.RefreshRequests.WithLabelValues(metrics.ResultSkipped).Inc()
		return ErrSchedulerStopped
	}
	if state != StatePolling {
		metrics.RefreshRequests.WithLabelValues(metrics.ResultSkipped).Inc()
		return ErrRefreshSkipped
	}

	ran := false
	s.refresh.Do(func() {
		if !s.cycleMu.TryLock() {
			return
		}
		defer s.cycleMu.Unlock()

		s.mu.Lock()
		generation, polling := s.generation, !s.stopped && s.state == StatePolling
		s.mu.Unlock()
		if !polling {
			return
		}
		ran = true
		s.cycle(ctx)
		s.rearm(generation, s.pollInterval, s.poll)
	})
	if !ran {
		metrics.RefreshRequests.WithLabelValues(metrics.ResultSkipped).Inc()
		return ErrRefreshSkipped
	}
	metrics.RefreshRequests.WithLabelValues(metrics.ResultTriggered).Inc()
	return nil
}

// armLocked replaces the owned timer. The caller must hold mu.
func (s *Scheduler) armLocked(d time.Duration, fn func(generation uint64)) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	generation := s.generation
	// The callback must not block: fake clocks invoke it while holding their lock.
	s.timer = s.clock.AfterFunc(d, func() { go fn(generation) })
}

// rearm arms the next timer unless the scheduler stopped or the timer was replaced
// since generation was observed.
func (s *Scheduler) rearm(generation uint64, d time.Duration, fn func(generation uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || generation != s.generation {
		return
	}
	s.armLocked(d, fn)
}

// enter claims a fired timer. It returns false if the timer was replaced or the scheduler stopped.
func (s *Scheduler) enter(generation uint64, next SchedulerState) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || generation != s.generation {
		return nil, false
	}
	s.timer = nil
	s.state = next
	return s.ctx, true
}

// bootstrap publishes the cached catalog, if any, and starts polling with an immediate cycle.
func (s *Scheduler) bootstrap(generation uint64) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	ctx, ok := s.enter(generation, StateBootstrapping)
	if !ok {
		return
	}
	logger := log.FromContext(ctx).WithName("Scheduler")

	if cached, found := s.cache.Load(ctx); found {
		logger.Info("publishing cached API catalog",
			"resourceCount", len(cached.AllResources), "discoveredAt", cached.DiscoveredAt)
		s.last = cached
		s.publisher.OnCatalogReceived(cached)
	} else {
		logger.V(1).Info("no cached API catalog available")
	}

	s.mu.Lock()
	if !s.stopped && generation == s.generation {
		s.state = StatePolling
	}
	s.mu.Unlock()

	s.cycle(ctx)
	s.rearm(generation, s.pollInterval, s.poll)
}

func (s *Scheduler) poll(generation uint64) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	ctx, ok := s.enter(generation, StatePolling)
	if !ok {
		return
	}
	s.cycle(ctx)
	s.rearm(generation, s.pollInterval, s.poll)
}

// cycle runs one discovery. The caller must hold cycleMu.
func (s *Scheduler) cycle(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("Scheduler")

	s.publisher.OnDiscoveryStarted()
	catalog, err := discoverWithTimeout(ctx, s.source, s.cycleTimeout)
	if err != nil {
		metrics.DiscoveryCycles.WithLabelValues(metrics.ResultError).Inc()
		logger.Error(err, "API discovery cycle failed, keeping the last catalog", "retryIn", s.pollInterval)
		return
	}

	result := metrics.ResultSuccess
	if s.last.Equal(catalog) {
		result = metrics.ResultUnchanged
	}
	s.last = catalog

	s.publisher.OnCatalogReceived(catalog)
	s.cache.Save(ctx, catalog)
	metrics.DiscoveryCycles.WithLabelValues(result).Inc()

	logger.V(1).Info("API discovery cycle completed",
		"result", result,
		"resourceCount", len(catalog.AllResources),
		"failedEndpointCount", len(catalog.FailedEndpoints))
}
