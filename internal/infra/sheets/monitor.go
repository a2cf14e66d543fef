package sheets

import (
	"errors"
	"sync"
	"time"
)

// APIStatus represents the health state of the spreadsheet API as seen by
// this client.
type APIStatus string

const (
	APIHealthy   APIStatus = "healthy"   // Working normally
	APIDegraded  APIStatus = "degraded"  // Slow or failing often
	APIThrottled APIStatus = "throttled" // Rate limiting us
	APIBlocked   APIStatus = "blocked"   // Rejecting our credentials
)

// MonitorStats holds monitoring statistics for the API.
type MonitorStats struct {
	Status             APIStatus     `json:"status"`
	AverageLatency     time.Duration `json:"average_latency"`
	Requests           int           `json:"requests"`
	Errors             int           `json:"errors"`
	Throttled          int           `json:"throttled"`
	Forbidden          int           `json:"forbidden"`
	RequestsLastMinute int           `json:"requests_last_minute"`
}

// Monitor tracks latency, errors and throttling of API calls.
type Monitor struct {
	mu sync.RWMutex

	latencies []time.Duration
	maxWindow int

	requests  int
	errors    int
	throttled int
	forbidden int

	lastThrottle time.Time
	lastForbid   time.Time
	recent       []time.Time

	slowThreshold     time.Duration
	errorRateLimit    float64
	throttleCooldown  time.Duration
	forbiddenCooldown time.Duration

	now func() time.Time
}

// NewMonitor creates a monitor with default thresholds.
func NewMonitor() *Monitor {
	return &Monitor{
		latencies:         make([]time.Duration, 0, 100),
		maxWindow:         100,
		slowThreshold:     3 * time.Second,
		errorRateLimit:    0.3,
		throttleCooldown:  time.Minute,
		forbiddenCooldown: 10 * time.Minute,
		now:               time.Now,
	}
}

// RecordRequest records a completed request, successful or not.
func (m *Monitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.requests++

	m.latencies = append(m.latencies, latency)
	if len(m.latencies) > m.maxWindow {
		m.latencies = m.latencies[1:]
	}

	// Keep one minute of timestamps, the unit of the API quota.
	m.recent = append(m.recent, now)
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(m.recent) && !m.recent[i].After(cutoff) {
		i++
	}
	m.recent = m.recent[i:]
}

// RecordError records a failed request.
func (m *Monitor) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errors++
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return
	}
	switch {
	case apiErr.RateLimited():
		m.throttled++
		m.lastThrottle = m.now()
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		m.forbidden++
		m.lastForbid = m.now()
	}
}

// Status returns the current status of the API.
func (m *Monitor) Status() APIStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status()
}

func (m *Monitor) status() APIStatus {
	now := m.now()
	if m.forbidden > 0 && now.Sub(m.lastForbid) < m.forbiddenCooldown {
		return APIBlocked
	}
	if m.throttled > 0 && now.Sub(m.lastThrottle) < m.throttleCooldown {
		return APIThrottled
	}
	if len(m.latencies) >= 10 && m.averageLatency() > m.slowThreshold {
		return APIDegraded
	}
	if m.requests >= 10 && float64(m.errors)/float64(m.requests) > m.errorRateLimit {
		return APIDegraded
	}
	return APIHealthy
}

func (m *Monitor) averageLatency() time.Duration {
	if len(m.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range m.latencies {
		total += lat
	}
	return total / time.Duration(len(m.latencies))
}

// Stats returns current monitoring statistics.
func (m *Monitor) Stats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitorStats{
		Status:             m.status(),
		AverageLatency:     m.averageLatency(),
		Requests:           m.requests,
		Errors:             m.errors,
		Throttled:          m.throttled,
		Forbidden:          m.forbidden,
		RequestsLastMinute: len(m.recent),
	}
}
