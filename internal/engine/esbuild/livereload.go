package esbuild

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/tachyon/internal/metrics"
)

const (
	livereloadPath = "/__tachyon/livereload"
	clientPath     = "/__tachyon/client.js"
	metricsPath    = "/__tachyon/metrics"
)

// ReloadMessage is the payload pushed to connected pages.
type ReloadMessage struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// FullReload asks the page to reload entirely.
var FullReload = ReloadMessage{Type: "full-reload"}

// LiveReloadHub manages SSE clients for reload broadcasts.
type LiveReloadHub struct {
	mu        sync.RWMutex
	nextID    int
	clients   map[int]*lrClient
	recorder  metrics.Recorder
	logger    *slog.Logger
	closed    bool
	heartbeat time.Duration
}

type lrClient struct {
	id   int
	ch   chan []byte
	done chan struct{}
}

// NewLiveReloadHub returns a hub reporting client counts to recorder.
func NewLiveReloadHub(recorder metrics.Recorder, logger *slog.Logger) *LiveReloadHub {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveReloadHub{
		clients:   map[int]*lrClient{},
		recorder:  recorder,
		logger:    logger,
		heartbeat: 30 * time.Second,
	}
}

// ServeHTTP implements the SSE endpoint.
func (h *LiveReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &lrClient{ch: make(chan []byte, 8), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetReloadClients(count)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		h.logger.Debug("livereload write", "error", err)
		h.removeClient(client.id)
		return
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(h.heartbeat)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.removeClient(client.id)
			return
		case <-client.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			}
		case payload := <-client.ch:
			if _, err := bw.WriteString("data: " + string(payload) + "\n\n"); err != nil {
				h.logger.Debug("livereload broadcast write", "error", err)
				h.removeClient(client.id)
				return
			}
			_ = bw.Flush()
			flusher.Flush()
		}
	}
}

func (h *LiveReloadHub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.recorder.SetReloadClients(count)
	}
}

// ClientCount returns the number of connected pages.
func (h *LiveReloadHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to all clients, dropping clients whose buffers are full.
func (h *LiveReloadHub) Broadcast(msg ReloadMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("livereload encode", "error", err)
		return
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- payload:
		case <-c.done:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.recorder.IncReloadBroadcast()
	h.logger.Debug("livereload broadcast", "type", msg.Type, "clients", len(snapshot), "dropped", dropped)
}

// Shutdown closes all clients and prevents future broadcasts.
func (h *LiveReloadHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*lrClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetReloadClients(0)
}

// liveReloadScript reconnects after server restarts and reloads the page on
// a full-reload message.
const liveReloadScript = `(() => {
  if (window.__TACHYON_LR__) return;
  window.__TACHYON_LR__ = true;
  function connect() {
    const es = new EventSource("` + livereloadPath + `");
    es.onmessage = (e) => {
      try {
        const msg = JSON.parse(e.data);
        if (msg.type === "full-reload") {
          console.log("[tachyon] reloading");
          location.reload();
        }
      } catch (_) {}
    };
    es.onerror = () => {
      es.close();
      setTimeout(connect, 1000);
    };
  }
  connect();
})();
`

const liveReloadTag = `<script src="` + clientPath + `"></script>` + "\n"

func serveClientScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(liveReloadScript))
}
