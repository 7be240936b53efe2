package lease

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/eureka/core"
)

type fakeHeartbeater struct {
	calls   atomic.Int32
	healthy atomic.Bool
	block   chan struct{}
}

func newFakeHeartbeater(healthy bool) *fakeHeartbeater {
	f := &fakeHeartbeater{}
	f.healthy.Store(healthy)
	return f
}

func (f *fakeHeartbeater) Heartbeat(ctx context.Context) bool {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.healthy.Load()
}

func (f *fakeHeartbeater) App() string        { return "ORDERS" }
func (f *fakeHeartbeater) InstanceID() string { return "10.0.0.5:8080" }

type logEntry struct {
	level   string
	message string
	fields  map[string]interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, message: msg, fields: fields})
}

func (l *recordingLogger) Info(msg string, fields map[string]interface{})  { l.add("INFO", msg, fields) }
func (l *recordingLogger) Error(msg string, fields map[string]interface{}) { l.add("ERROR", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields map[string]interface{})  { l.add("WARN", msg, fields) }
func (l *recordingLogger) Debug(msg string, fields map[string]interface{}) { l.add("DEBUG", msg, fields) }

func (l *recordingLogger) find(message string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.message == message {
			return e, true
		}
	}
	return logEntry{}, false
}

func (l *recordingLogger) has(message string) bool {
	_, ok := l.find(message)
	return ok
}

// TestNewSchedulerValidation verifies constructor errors
func TestNewSchedulerValidation(t *testing.T) {
	_, err := NewScheduler(newFakeHeartbeater(true), 0)
	assert.True(t, core.IsConfigurationError(err))
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewScheduler(newFakeHeartbeater(true), -time.Second)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewScheduler(nil, time.Second)
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)

	s, err := NewScheduler(newFakeHeartbeater(true), 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, s.Interval())
	assert.False(t, s.Running())
}

// TestSchedulerTicks verifies heartbeats repeat on the interval
func TestSchedulerTicks(t *testing.T) {
	hb := newFakeHeartbeater(true)
	s, err := NewScheduler(hb, 20*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())

	require.Eventually(t, func() bool { return hb.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.SuccessCount, int64(3))
	assert.Zero(t, stats.FailureCount)
	assert.False(t, stats.LastSuccess.IsZero())
}

// TestSchedulerOneSecondCadence checks the cadence with a real one second interval
func TestSchedulerOneSecondCadence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping slow cadence test in short mode")
	}

	hb := newFakeHeartbeater(true)
	s, err := NewScheduler(hb, time.Second)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(3100 * time.Millisecond)
	s.Stop()

	calls := hb.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(2))
	assert.LessOrEqual(t, calls, int32(4))
}

// TestStopPreventsFurtherTicks verifies no heartbeat starts after Stop returns
func TestStopPreventsFurtherTicks(t *testing.T) {
	hb := newFakeHeartbeater(true)
	s, err := NewScheduler(hb, 50*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return hb.calls.Load() >= 2 }, 2*time.Second, time.Millisecond)
	s.Stop()

	after := hb.calls.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, after, hb.calls.Load())
	assert.False(t, s.Running())
}

// TestFailedHeartbeatsKeepTicking verifies failures are counted and never stop the loop
func TestFailedHeartbeatsKeepTicking(t *testing.T) {
	hb := newFakeHeartbeater(false)
	logger := &recordingLogger{}
	s, err := NewScheduler(hb, 10*time.Millisecond, WithLogger(logger))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Stats().FailureCount >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Running())

	hb.healthy.Store(true)
	require.Eventually(t, func() bool { return s.Stats().SuccessCount >= 1 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	stats := s.Stats()
	assert.Zero(t, stats.ConsecutiveFailures, "a success resets the streak")
	assert.False(t, stats.LastFailure.IsZero())

	entry, ok := logger.find("Heartbeat failed")
	require.True(t, ok)
	assert.Equal(t, "ERROR", entry.level)
	assert.Equal(t, "ORDERS", entry.fields["app"])
}

// TestOverlappingTicksAreSkipped verifies a slow heartbeat is not overlapped
func TestOverlappingTicksAreSkipped(t *testing.T) {
	hb := newFakeHeartbeater(true)
	hb.block = make(chan struct{})
	logger := &recordingLogger{}
	s, err := NewScheduler(hb, 10*time.Millisecond, WithLogger(logger))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Stats().SkippedCount >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), hb.calls.Load(), "only one heartbeat may be in flight")
	assert.True(t, logger.has("Heartbeat still in flight, skipping tick"))

	close(hb.block)
	s.Stop()
	assert.GreaterOrEqual(t, s.Stats().SuccessCount, int64(1), "in-flight heartbeat completes during Stop")
}

// TestStartStopStateMachine verifies double start and idempotent stop
func TestStartStopStateMachine(t *testing.T) {
	s, err := NewScheduler(newFakeHeartbeater(true), time.Hour)
	require.NoError(t, err)

	s.Stop()

	require.NoError(t, s.Start(context.Background()))
	err = s.Start(context.Background())
	assert.ErrorIs(t, err, core.ErrAlreadyStarted)
	assert.True(t, core.IsStateError(err))

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	require.NoError(t, s.Start(context.Background()), "a stopped scheduler can be restarted")
	s.Stop()
}

// TestParentContextStopsScheduler verifies cancellation ends the loop
func TestParentContextStopsScheduler(t *testing.T) {
	hb := newFakeHeartbeater(true)
	s, err := NewScheduler(hb, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

// TestTickHandler verifies every completed heartbeat is reported
func TestTickHandler(t *testing.T) {
	hb := newFakeHeartbeater(false)
	var failures atomic.Int32
	s, err := NewScheduler(hb, 10*time.Millisecond, WithTickHandler(func(ok bool) {
		if !ok {
			failures.Add(1)
		}
	}))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return failures.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

// TestStopFromTickHandler verifies the handler can stop its own scheduler
func TestStopFromTickHandler(t *testing.T) {
	hb := newFakeHeartbeater(false)
	stopped := make(chan struct{})
	var once sync.Once
	var s *Scheduler
	s, err := NewScheduler(hb, 20*time.Millisecond, WithTickHandler(func(ok bool) {
		once.Do(func() {
			s.Stop()
			close(stopped)
		})
	}))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop from tick handler did not return, calls=%d", hb.calls.Load())
	}
	assert.False(t, s.Running())
}

// TestHeartbeatSummaries verifies periodic and final summaries are logged
func TestHeartbeatSummaries(t *testing.T) {
	logger := &recordingLogger{}
	s, err := NewScheduler(newFakeHeartbeater(true), 10*time.Millisecond,
		WithLogger(logger), WithSummaryInterval(30*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return logger.has("Heartbeat health summary") }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	entry, ok := logger.find("Heartbeat final summary (lease scheduler stopping)")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5:8080", entry.fields["instance_id"])
	assert.Contains(t, entry.fields, "success_rate")
}

type failingSink struct {
	published atomic.Int32
}

func (f *failingSink) Publish(ctx context.Context, status LeaseStatus, ttl time.Duration) error {
	f.published.Add(1)
	return errors.New("sink down")
}

func (f *failingSink) Remove(ctx context.Context, app, instanceID string) error { return nil }
func (f *failingSink) Close() error                                           { return nil }

// TestSinkFailureDoesNotStopTicking verifies sink errors are only logged
func TestSinkFailureDoesNotStopTicking(t *testing.T) {
	hb := newFakeHeartbeater(true)
	sink := &failingSink{}
	logger := &recordingLogger{}
	s, err := NewScheduler(hb, 10*time.Millisecond, WithLogger(logger), WithStatusSink(sink, time.Second))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return sink.published.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, s.Stats().SuccessCount, int64(3))
	assert.True(t, logger.has("Failed to publish lease status"))
}
