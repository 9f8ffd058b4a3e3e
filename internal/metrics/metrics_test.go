package metrics

import (
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewServeMetrics(t *testing.T) {
	m := NewServeMetrics()

	if m.StartTime.IsZero() {
		t.Error("StartTime should be set")
	}
	s := m.Snapshot()
	if s.Requests != 0 {
		t.Errorf("Requests should be 0, got %d", s.Requests)
	}
	if s.BytesWritten != 0 {
		t.Errorf("BytesWritten should be 0, got %d", s.BytesWritten)
	}
}

func TestRecord(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(Snapshot) bool
	}{
		{"200 counts as ok", http.StatusOK, func(s Snapshot) bool { return s.OK == 1 }},
		{"304 counts as ok", http.StatusNotModified, func(s Snapshot) bool { return s.OK == 1 }},
		{"404", http.StatusNotFound, func(s Snapshot) bool { return s.NotFound == 1 }},
		{"403", http.StatusForbidden, func(s Snapshot) bool { return s.Forbidden == 1 }},
		{"405 is an error", http.StatusMethodNotAllowed, func(s Snapshot) bool { return s.Errors == 1 }},
		{"500 is an error", http.StatusInternalServerError, func(s Snapshot) bool { return s.Errors == 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewServeMetrics()
			m.Record(tt.status, 10)
			s := m.Snapshot()
			if s.Requests != 1 {
				t.Errorf("Requests = %d, want 1", s.Requests)
			}
			if s.BytesWritten != 10 {
				t.Errorf("BytesWritten = %d, want 10", s.BytesWritten)
			}
			if !tt.check(s) {
				t.Errorf("unexpected snapshot %+v", s)
			}
		})
	}
}

func TestRecordConcurrent(t *testing.T) {
	m := NewServeMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(http.StatusOK, 100)
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.Requests != 50 || s.OK != 50 {
		t.Errorf("Requests = %d, OK = %d, want 50", s.Requests, s.OK)
	}
	if s.BytesWritten != 5000 {
		t.Errorf("BytesWritten = %d, want 5000", s.BytesWritten)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*ServeMetrics)
		contains []string
	}{
		{
			name:     "idle server",
			setup:    func(m *ServeMetrics) {},
			contains: []string{"Served 0 requests", "0.00 MB", "ok: 0", "404: 0"},
		},
		{
			name: "mixed traffic",
			setup: func(m *ServeMetrics) {
				m.Record(http.StatusOK, 1024*1024)
				m.Record(http.StatusOK, 1024*1024)
				m.Record(http.StatusNotFound, 0)
				m.Record(http.StatusForbidden, 0)
			},
			contains: []string{"Served 4 requests", "2.00 MB", "ok: 2", "404: 1", "403: 1", "errors: 0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewServeMetrics()
			tt.setup(m)
			result := m.String()
			for _, expected := range tt.contains {
				if !strings.Contains(result, expected) {
					t.Errorf("String() = %q, should contain %q", result, expected)
				}
			}
		})
	}
}

func TestSnapshotUptime(t *testing.T) {
	m := NewServeMetrics()
	m.StartTime = time.Now().Add(-5 * time.Second)

	if up := m.Snapshot().Uptime; up < 5*time.Second {
		t.Errorf("Uptime = %v, want >= 5s", up)
	}
	if !strings.HasSuffix(m.String(), ")\n") {
		t.Error("String() should end with ')\\n'")
	}
}
