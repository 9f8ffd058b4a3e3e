package server

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// readEvent returns the next non-empty SSE line.
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				errs <- err
				return
			}
			if line = strings.TrimSpace(line); line != "" {
				lines <- line
				return
			}
		}
	}()

	select {
	case line := <-lines:
		return line
	case err := <-errs:
		t.Fatalf("reading event stream: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return ""
}

func TestReloadHub_Broadcast(t *testing.T) {
	hub := NewReloadHub()
	a := hub.subscribe()
	b := hub.subscribe()

	if n := hub.Clients(); n != 2 {
		t.Fatalf("Clients() = %d, want 2", n)
	}
	if n := hub.Broadcast(); n != 2 {
		t.Errorf("Broadcast() = %d, want 2", n)
	}
	// A pending reload is not queued twice
	if n := hub.Broadcast(); n != 0 {
		t.Errorf("second Broadcast() = %d, want 0", n)
	}
	<-a
	<-b

	hub.unsubscribe(a)
	if n := hub.Broadcast(); n != 1 {
		t.Errorf("Broadcast() after unsubscribe = %d, want 1", n)
	}

	hub.Close()
	hub.Close() // idempotent
}

func TestReloadHub_EventStream(t *testing.T) {
	hub := NewReloadHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET event stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	r := bufio.NewReader(resp.Body)
	if got := readEvent(t, r); got != "data: connected" {
		t.Fatalf("first event = %q, want %q", got, "data: connected")
	}

	if n := hub.Broadcast(); n != 1 {
		t.Fatalf("Broadcast() = %d, want 1", n)
	}
	if got := readEvent(t, r); got != "data: reload" {
		t.Errorf("event = %q, want %q", got, "data: reload")
	}
}

func TestReloadHub_CloseEndsStreams(t *testing.T) {
	hub := NewReloadHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET event stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	r := bufio.NewReader(resp.Body)
	readEvent(t, r)
	hub.Close()

	done := make(chan error, 1)
	go func() {
		_, err := r.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Error("stream should end after Close()")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream still open after Close()")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := hub.Clients(); n != 0 {
		t.Errorf("Clients() = %d after Close(), want 0", n)
	}
}
