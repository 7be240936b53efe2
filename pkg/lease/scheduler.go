// Package lease keeps a registry lease alive by renewing it on a fixed
// interval.
//
// A Scheduler drives one Heartbeater. Ticks never overlap: when a tick
// fires while the previous heartbeat is still running, the tick is skipped
// and counted. A failed heartbeat is logged and counted and never stops the
// loop; re-registering an evicted instance is left to the caller, who can
// observe every outcome through WithTickHandler.
package lease

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/eureka/core"
	"github.com/itsneelabh/eureka/pkg/telemetry"
)

// Heartbeater renews a single lease. *registry.Client satisfies it.
type Heartbeater interface {
	Heartbeat(ctx context.Context) bool
	App() string
	InstanceID() string
}

// Scheduler invokes Heartbeat every interval until stopped
type Scheduler struct {
	hb              Heartbeater
	interval        time.Duration
	summaryInterval time.Duration
	logger          core.Logger
	telemetry       core.Telemetry
	sink            StatusSink
	sinkTTL         time.Duration
	onTick          func(ok bool)
	now             func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inFlight atomic.Bool
	beats    sync.WaitGroup

	statsMu sync.Mutex
	stats   HeartbeatStats
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithLogger sets the scheduler logger
func WithLogger(logger core.Logger) Option {
	return func(s *Scheduler) {
		s.logger = core.ComponentLogger(logger, "lease/scheduler")
	}
}

// WithTelemetry sets the telemetry used for tick spans and metrics
func WithTelemetry(t core.Telemetry) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.telemetry = t
		}
	}
}

// WithSummaryInterval sets how often a heartbeat health summary is logged.
// Zero disables periodic summaries; the final summary on stop is always logged.
func WithSummaryInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.summaryInterval = d
	}
}

// WithStatusSink publishes a LeaseStatus after every completed heartbeat.
// Entries expire after ttl.
func WithStatusSink(sink StatusSink, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.sink = sink
		s.sinkTTL = ttl
	}
}

// WithTickHandler registers fn to be called with the outcome of every
// completed heartbeat. fn runs on the heartbeat goroutine after the
// heartbeat is accounted for, so it may call Stop. It is not called once
// Stop has begun.
func WithTickHandler(fn func(ok bool)) Option {
	return func(s *Scheduler) {
		s.onTick = fn
	}
}

// NewScheduler creates a stopped scheduler for hb
func NewScheduler(hb Heartbeater, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if hb == nil {
		return nil, core.ConfigError("lease.NewScheduler", "heartbeater is required", core.ErrMissingConfiguration)
	}
	if interval <= 0 {
		return nil, core.ConfigError("lease.NewScheduler", "heartbeat interval must be positive", core.ErrInvalidConfiguration)
	}

	s := &Scheduler{
		hb:              hb,
		interval:        interval,
		summaryInterval: core.DefaultSummaryInterval,
		logger:          &core.NoOpLogger{},
		telemetry:       &core.NoOpTelemetry{},
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Interval returns the heartbeat interval
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins ticking. The first heartbeat is sent one interval after
// Start. Cancelling ctx stops the scheduler like Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return &core.ClientError{
			Op:   "lease.Start",
			Kind: core.KindState,
			ID:   s.hb.InstanceID(),
			Err:  core.ErrAlreadyStarted,
		}
	}

	now := s.now()
	s.statsMu.Lock()
	s.stats = HeartbeatStats{StartedAt: now, LastSummaryAt: now}
	s.statsMu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Lease scheduler started", map[string]interface{}{
		"app":              s.hb.App(),
		"instance_id":      s.hb.InstanceID(),
		"interval_seconds": s.interval.Seconds(),
	})

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the ticker and waits for the loop and any in-flight
// heartbeat to finish. No heartbeat starts after Stop returns. Calling Stop
// on a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the tick loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Scheduler) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Stats returns a snapshot of the heartbeat statistics
func (s *Scheduler) Stats() HeartbeatStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.beats.Wait()
			s.logSummary(true)
			s.removeStatus()
			s.logger.Info("Lease scheduler stopped", map[string]interface{}{
				"app":         s.hb.App(),
				"instance_id": s.hb.InstanceID(),
			})
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.statsMu.Lock()
		s.stats.SkippedCount++
		skipped := s.stats.SkippedCount
		s.statsMu.Unlock()

		s.logger.Warn("Heartbeat still in flight, skipping tick", map[string]interface{}{
			"app":              s.hb.App(),
			"instance_id":      s.hb.InstanceID(),
			"interval_seconds": s.interval.Seconds(),
			"skipped_total":    skipped,
		})
		s.telemetry.RecordMetric("eureka.lease.ticks.skipped", 1, map[string]string{
			"app": s.hb.App(),
		})
		return
	}

	s.beats.Add(1)
	go func() {
		ok := s.track(ctx)
		// Outside beats so the handler may call Stop.
		if s.onTick != nil && ctx.Err() == nil {
			s.onTick(ok)
		}
	}()
}

// track runs one heartbeat as the in-flight one. The heartbeat outlives
// cancellation so that Stop never aborts a renewal already on the wire.
func (s *Scheduler) track(ctx context.Context) bool {
	defer s.beats.Done()
	defer s.inFlight.Store(false)
	return s.beat(context.WithoutCancel(ctx))
}

func (s *Scheduler) beat(ctx context.Context) bool {
	ctx, _ = telemetry.WithRequestID(ctx)
	ctx, span := s.telemetry.StartSpan(ctx, "eureka.lease.tick")
	defer span.End()

	start := s.now()
	ok := s.hb.Heartbeat(ctx)
	elapsed := s.now().Sub(start)

	s.statsMu.Lock()
	s.stats.record(ok, s.now())
	stats := s.stats
	s.statsMu.Unlock()

	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	span.SetAttribute("eureka.outcome", outcome)
	span.SetAttribute("eureka.consecutive_failures", stats.ConsecutiveFailures)

	if ok {
		s.logger.Debug("Heartbeat sent", telemetry.EnrichLogFields(ctx, map[string]interface{}{
			"app":         s.hb.App(),
			"instance_id": s.hb.InstanceID(),
			"duration_ms": elapsed.Milliseconds(),
		}))
	} else {
		s.logger.Error("Heartbeat failed", telemetry.EnrichLogFields(ctx, map[string]interface{}{
			"app":                  s.hb.App(),
			"instance_id":          s.hb.InstanceID(),
			"duration_ms":          elapsed.Milliseconds(),
			"consecutive_failures": stats.ConsecutiveFailures,
			"total_failures":       stats.FailureCount,
			"will_retry_next_tick": true,
		}))
	}

	s.telemetry.RecordMetric("eureka.lease.heartbeats", 1, map[string]string{
		"app":     s.hb.App(),
		"outcome": outcome,
	})

	s.publishStatus(ctx, ok, stats)
	s.checkPeriodicSummary()
	return ok
}

func (s *Scheduler) publishStatus(ctx context.Context, ok bool, stats HeartbeatStats) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	err := s.sink.Publish(ctx, LeaseStatus{
		App:                 s.hb.App(),
		InstanceID:          s.hb.InstanceID(),
		Healthy:             ok,
		ConsecutiveFailures: stats.ConsecutiveFailures,
		LastSuccess:         stats.LastSuccess,
		UpdatedAt:           s.now(),
	}, s.sinkTTL)
	if err != nil {
		s.logger.Warn("Failed to publish lease status", map[string]interface{}{
			"app":         s.hb.App(),
			"instance_id": s.hb.InstanceID(),
			"error":       err.Error(),
		})
	}
}

func (s *Scheduler) removeStatus() {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.sink.Remove(ctx, s.hb.App(), s.hb.InstanceID()); err != nil {
		s.logger.Warn("Failed to remove lease status", map[string]interface{}{
			"app":         s.hb.App(),
			"instance_id": s.hb.InstanceID(),
			"error":       err.Error(),
		})
	}
}

func (s *Scheduler) checkPeriodicSummary() {
	if s.summaryInterval <= 0 {
		return
	}
	s.statsMu.Lock()
	due := s.now().Sub(s.stats.LastSummaryAt) >= s.summaryInterval
	s.statsMu.Unlock()

	if due {
		s.logSummary(false)
	}
}

func (s *Scheduler) logSummary(final bool) {
	now := s.now()
	s.statsMu.Lock()
	snapshot := s.stats
	s.stats.LastSummaryAt = now
	s.statsMu.Unlock()

	fields := snapshot.logFields(now)
	fields["app"] = s.hb.App()
	fields["instance_id"] = s.hb.InstanceID()

	if final {
		s.logger.Info("Heartbeat final summary (lease scheduler stopping)", fields)
	} else {
		s.logger.Info("Heartbeat health summary", fields)
	}
}
