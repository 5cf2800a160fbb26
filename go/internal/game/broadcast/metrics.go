package broadcast

import (
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting delivery metrics
type MetricsCollector interface {
	RecordPublish(eventType string, success bool, duration time.Duration)
	RecordDropped(eventType string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordPublish(eventType string, success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordDropped(eventType string)                                      {}

// DeliveryStats is an in-memory MetricsCollector exposed on the stats endpoint.
type DeliveryStats struct {
	mu        sync.Mutex
	published map[string]uint64
	failed    map[string]uint64
	dropped   map[string]uint64
	totalTime time.Duration
	lastAt    time.Time
}

func NewDeliveryStats() *DeliveryStats {
	return &DeliveryStats{
		published: make(map[string]uint64),
		failed:    make(map[string]uint64),
		dropped:   make(map[string]uint64),
	}
}

func (s *DeliveryStats) RecordPublish(eventType string, success bool, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.published[eventType]++
	} else {
		s.failed[eventType]++
	}
	s.totalTime += duration
	s.lastAt = time.Now()
}

func (s *DeliveryStats) RecordDropped(eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped[eventType]++
}

// StatsSnapshot is a copy of the counters.
type StatsSnapshot struct {
	Published     map[string]uint64 `json:"published"`
	Failed        map[string]uint64 `json:"failed"`
	Dropped       map[string]uint64 `json:"dropped"`
	AvgPublishMs  float64           `json:"avg_publish_ms"`
	LastPublishAt time.Time         `json:"last_publish_at"`
}

func (s *DeliveryStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := StatsSnapshot{
		Published:     copyCounts(s.published),
		Failed:        copyCounts(s.failed),
		Dropped:       copyCounts(s.dropped),
		LastPublishAt: s.lastAt,
	}
	var total uint64
	for _, n := range s.published {
		total += n
	}
	for _, n := range s.failed {
		total += n
	}
	if total > 0 {
		out.AvgPublishMs = float64(s.totalTime.Microseconds()) / float64(total) / 1000
	}
	return out
}

func copyCounts(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
