package studio

import (
	"sync"
	"time"
)

// Metrics - server-wide counters exposed on /metrics
type Metrics struct {
	mu             sync.RWMutex
	startTime      time.Time
	totalSessions  int
	activeSessions int
	totalBatches   int
	failedBatches  int
	totalImages    int
}

// MetricsSnapshot is a consistent copy of Metrics.
type MetricsSnapshot struct {
	StartTime      time.Time `json:"startTime"`
	Uptime         string    `json:"uptime"`
	TotalSessions  int       `json:"totalSessions"`
	ActiveSessions int       `json:"activeSessions"`
	TotalBatches   int       `json:"totalBatches"`
	FailedBatches  int       `json:"failedBatches"`
	TotalImages    int       `json:"totalImages"`
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) sessionCreated() {
	m.mu.Lock()
	m.totalSessions++
	m.activeSessions++
	m.mu.Unlock()
}

func (m *Metrics) sessionsEnded(n int) {
	m.mu.Lock()
	m.activeSessions -= n
	m.mu.Unlock()
}

func (m *Metrics) batchFinished(images int, failed bool) {
	m.mu.Lock()
	m.totalBatches++
	if failed {
		m.failedBatches++
	} else {
		m.totalImages += images
	}
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		StartTime:      m.startTime,
		Uptime:         time.Since(m.startTime).Round(time.Second).String(),
		TotalSessions:  m.totalSessions,
		ActiveSessions: m.activeSessions,
		TotalBatches:   m.totalBatches,
		FailedBatches:  m.failedBatches,
		TotalImages:    m.totalImages,
	}
}
