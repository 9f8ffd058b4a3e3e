package server

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
)

// EventsPath is the Server-Sent Events endpoint used for live reload.
const EventsPath = "/_wasmserve/events"

const reloadScript = `<script>new EventSource("` + EventsPath + `").onmessage=function(e){if(e.data==="reload")location.reload()}</script>`

// ReloadHub fans reload notifications out to connected browsers.
type ReloadHub struct {
	mu      sync.Mutex
	clients map[chan struct{}]struct{}
	done    chan struct{}
	closed  bool
}

func NewReloadHub() *ReloadHub {
	return &ReloadHub{
		clients: make(map[chan struct{}]struct{}),
		done:    make(chan struct{}),
	}
}

func (h *ReloadHub) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *ReloadHub) unsubscribe(ch chan struct{}) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// Clients returns the number of connected subscribers.
func (h *ReloadHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast notifies every subscriber and returns how many were notified.
// A subscriber with a reload already pending is skipped.
func (h *ReloadHub) Broadcast() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for ch := range h.clients {
		select {
		case ch <- struct{}{}:
			n++
		default:
		}
	}
	return n
}

// Close ends every open event stream so server shutdown is not held up.
func (h *ReloadHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

func (h *ReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	_, _ = fmt.Fprintf(w, "data: connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-ch:
			_, _ = fmt.Fprintf(w, "data: reload\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// injectReloadScript adds the EventSource client before </body>, or at the
// end of the page when there is no closing body tag.
func injectReloadScript(page []byte) []byte {
	out := make([]byte, 0, len(page)+len(reloadScript))
	idx := lastIndexFold(page, []byte("</body>"))
	if idx < 0 {
		out = append(out, page...)
		return append(out, reloadScript...)
	}
	out = append(out, page[:idx]...)
	out = append(out, reloadScript...)
	return append(out, page[idx:]...)
}

func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}
