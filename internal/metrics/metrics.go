// Package metrics tracks request counters for the lifetime of a server.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// ServeMetrics is safe for concurrent use by request goroutines.
type ServeMetrics struct {
	StartTime time.Time

	requests     atomic.Int64
	bytesWritten atomic.Int64
	ok           atomic.Int64
	notFound     atomic.Int64
	forbidden    atomic.Int64
	errors       atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests     int64
	BytesWritten int64
	OK           int64 // 1xx-3xx
	NotFound     int64
	Forbidden    int64
	Errors       int64 // every other 4xx/5xx
	Uptime       time.Duration
}

// NewServeMetrics creates a new metrics instance.
func NewServeMetrics() *ServeMetrics {
	return &ServeMetrics{
		StartTime: time.Now(),
	}
}

// Record counts one finished request.
func (m *ServeMetrics) Record(status int, bytes int64) {
	m.requests.Add(1)
	m.bytesWritten.Add(bytes)
	switch {
	case status < 400:
		m.ok.Add(1)
	case status == http.StatusNotFound:
		m.notFound.Add(1)
	case status == http.StatusForbidden:
		m.forbidden.Add(1)
	default:
		m.errors.Add(1)
	}
}

// Snapshot returns the current counters.
func (m *ServeMetrics) Snapshot() Snapshot {
	return Snapshot{
		Requests:     m.requests.Load(),
		BytesWritten: m.bytesWritten.Load(),
		OK:           m.ok.Load(),
		NotFound:     m.notFound.Load(),
		Forbidden:    m.forbidden.Load(),
		Errors:       m.errors.Load(),
		Uptime:       time.Since(m.StartTime),
	}
}

// String returns a formatted summary of the metrics (minimal single-line format).
func (m *ServeMetrics) String() string {
	s := m.Snapshot()
	return fmt.Sprintf("📊 Served %d requests (%.2f MB) in %v (ok: %d, 404: %d, 403: %d, errors: %d)\n",
		s.Requests,
		float64(s.BytesWritten)/(1024*1024),
		s.Uptime.Round(time.Second),
		s.OK,
		s.NotFound,
		s.Forbidden,
		s.Errors,
	)
}
