// Package present serves the pipeline's pull accessors over HTTP: the
// newest frame as JPEG, caption updates over a websocket, and the counters
// as JSON. It polls the supervisor on a timer; the pipeline never pushes.
package present

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/caption"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/config"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/imgconv"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/pipeline"
)

// Source is the slice of the supervisor the server consumes.
type Source interface {
	LatestFrame() (*camera.Frame, bool)
	LatestCaption() (caption.Result, bool)
	Stats() pipeline.Stats
}

// captionUpdate is the websocket payload for a new caption.
type captionUpdate struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Seq        uint64    `json:"seq"`
	At         time.Time `json:"at"`
}

const (
	writeWait      = 5 * time.Second
	subscriberSlop = 8
)

// Server polls a Source on a fixed interval and fans caption updates out to
// websocket subscribers. The newest frame is re-encoded once per poll and
// served from memory.
type Server struct {
	cfg      config.PresentConfig
	source   Source
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handler  http.Handler

	mu      sync.Mutex
	httpSrv *http.Server // rebuilt on every Start; Shutdown is final per instance
	addr    string
	subs    map[chan []byte]struct{}
	jpeg    []byte // latest encoded frame
	last    captionUpdate
	seen    bool
	stop    chan struct{}
	done    chan struct{}
	alive   bool
}

// NewServer builds a presentation server around the supervisor's accessors.
func NewServer(cfg config.PresentConfig, source Source) *Server {
	s := &Server{
		cfg:    cfg,
		source: source,
		logger: zap.L().Named("present"),
		subs:   make(map[chan []byte]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/frame.jpg", s.handleFrame)
	mux.HandleFunc("/caption", s.handleCaption)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWS)
	s.handler = mux
	return s
}

// Start binds the listener and launches the poll loop. Idempotent, and a
// stopped server can be started again.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("presentation listen on %s: %w", s.cfg.Addr, err)
	}

	s.alive = true
	s.addr = ln.Addr().String()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket writes manage their own deadlines
	}
	s.httpSrv = srv

	go s.poll(s.stop, s.done)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("presentation server failed", zap.Error(err))
		}
	}()

	s.logger.Info("presentation server started", zap.String("addr", s.addr))
	return nil
}

// Stop shuts the listener down and halts the poll loop. Idempotent.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return nil
	}
	s.alive = false
	close(s.stop)
	done := s.done
	srv := s.httpSrv
	s.mu.Unlock()

	<-done
	return srv.Shutdown(ctx)
}

// Addr returns the bound listen address, which differs from the configured
// one when it requested an ephemeral port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// poll drains the supervisor's accessors once per interval, caching the
// newest frame and broadcasting caption updates.
func (s *Server) poll(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if frame, ok := s.source.LatestFrame(); ok {
			if data, err := imgconv.EncodeJPEG(frame); err != nil {
				s.logger.Warn("frame encode failed", zap.Uint64("seq", frame.Seq), zap.Error(err))
			} else {
				s.mu.Lock()
				s.jpeg = data
				s.mu.Unlock()
			}
		}

		if result, ok := s.source.LatestCaption(); ok {
			update := captionUpdate{
				Text:       result.Text,
				Confidence: result.Confidence,
				Seq:        result.Seq,
				At:         result.At,
			}
			s.broadcast(update)
		}
	}
}

func (s *Server) broadcast(update captionUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		s.logger.Warn("caption encode failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.last = update
	s.seen = true
	for ch := range s.subs {
		select {
		case ch <- payload:
		default:
			// Slow subscriber: drop this update rather than stall the poll
			// loop. Same policy as the pipeline's slots.
		}
	}
	s.mu.Unlock()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	data := s.jpeg
	s.mu.Unlock()

	if len(data) == 0 {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) handleCaption(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	last, seen := s.last, s.seen
	s.mu.Unlock()

	if !seen {
		http.Error(w, "no caption yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(last)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.source.Stats())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ch := make(chan []byte, subscriberSlop)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	// Replay the most recent caption so a new subscriber is not blank until
	// the next update.
	if s.seen {
		if payload, err := json.Marshal(s.last); err == nil {
			ch <- payload
		}
	}
	stop := s.stop
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	// Reader goroutine only to detect the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-closed:
			return
		case <-stop:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"))
			return
		}
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>captioncam</title></head>
<body>
<img id="frame" src="/frame.jpg" width="640">
<p id="caption">waiting for caption...</p>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  const c = JSON.parse(ev.data);
  document.getElementById("caption").textContent =
    c.text + " (" + c.confidence.toFixed(2) + ")";
};
setInterval(() => {
  document.getElementById("frame").src = "/frame.jpg?t=" + Date.now();
}, 250);
</script>
</body>
</html>
`
