package lease

import (
	"fmt"
	"time"
)

// HeartbeatStats tracks heartbeat outcomes for periodic summaries
type HeartbeatStats struct {
	SuccessCount        int64
	FailureCount        int64
	SkippedCount        int64
	ConsecutiveFailures int64
	LastSuccess         time.Time
	LastFailure         time.Time
	StartedAt           time.Time
	LastSummaryAt       time.Time
}

// Total returns the number of completed heartbeats
func (s HeartbeatStats) Total() int64 {
	return s.SuccessCount + s.FailureCount
}

// SuccessRate returns the share of successful heartbeats in percent
func (s HeartbeatStats) SuccessRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.Total()) * 100
}

func (s *HeartbeatStats) record(ok bool, at time.Time) {
	if ok {
		s.SuccessCount++
		s.ConsecutiveFailures = 0
		s.LastSuccess = at
		return
	}
	s.FailureCount++
	s.ConsecutiveFailures++
	s.LastFailure = at
}

func (s HeartbeatStats) logFields(now time.Time) map[string]interface{} {
	fields := map[string]interface{}{
		"success_count":        s.SuccessCount,
		"failure_count":        s.FailureCount,
		"skipped_count":        s.SkippedCount,
		"consecutive_failures": s.ConsecutiveFailures,
		"success_rate":         fmt.Sprintf("%.2f%%", s.SuccessRate()),
		"uptime_minutes":       int(now.Sub(s.StartedAt).Minutes()),
	}
	if !s.LastSuccess.IsZero() {
		fields["time_since_last_success_sec"] = int(now.Sub(s.LastSuccess).Seconds())
	}
	if s.FailureCount > 0 && !s.LastFailure.IsZero() {
		fields["time_since_last_failure_sec"] = int(now.Sub(s.LastFailure).Seconds())
	}
	return fields
}
