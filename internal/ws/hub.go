package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sigmaqc/sigmaqc/internal/api"
	"github.com/sigmaqc/sigmaqc/internal/store"
)

// Timing parameters for client connections.
const (
	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second

	// pongWait is how long a silent client stays connected. Pings go out at
	// pingEvery, so a healthy client always answers within the window.
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	// outBufDepth is the per-session outgoing frame buffer.
	outBufDepth = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks belong to the reverse proxy in front of the server.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Message is the envelope pushed to every client: the event name plus the
// same per-analyte summary snapshot GET /api/v1/evaluations serves.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub pushes the live evaluation snapshot to all connected WebSocket clients
// on a fixed cadence, so QC dashboards see fresh verdicts without polling.
type Hub struct {
	st    *store.Store
	every time.Duration

	mu       sync.RWMutex
	sessions map[*session]struct{}
}

// session is one connected client with its buffered outgoing frame queue.
type session struct {
	conn *websocket.Conn
	out  chan []byte
}

// New creates a Hub reading from st and broadcasting every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		st:       st,
		every:    interval,
		sessions: make(map[*session]struct{}),
	}
}

// Run drives the broadcast ticker until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	tick := time.NewTicker(h.every)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.sessions {
				close(s.out)
				delete(h.sessions, s)
			}
			h.mu.Unlock()
			return
		case <-tick.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the request, pushes the current snapshot right away, and
// then serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		return
	}

	s := &session{conn: conn, out: make(chan []byte, outBufDepth)}
	h.attach(s)
	defer h.detach(s)

	if frame, err := h.payload(); err == nil {
		select {
		case s.out <- frame:
		default:
		}
	}

	go s.writeLoop()
	s.readLoop() // returns when the connection closes
}

// Count reports the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) attach(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) detach(s *session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		close(s.out)
	}
	h.mu.Unlock()
}

// payload assembles the broadcast frame from the store's live entries.
func (h *Hub) payload() ([]byte, error) {
	return json.Marshal(Message{
		Event: "evaluations",
		Data:  api.BuildSnapshot(h.st),
	})
}

// broadcast queues the current snapshot for every session. A session whose
// buffer is full is not keeping up and gets disconnected instead of holding
// the hub back.
func (h *Hub) broadcast() {
	frame, err := h.payload()
	if err != nil {
		return
	}

	h.mu.RLock()
	all := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()

	for _, s := range all {
		select {
		case s.out <- frame:
		default:
			h.detach(s)
		}
	}
}

// writeLoop forwards queued frames and heartbeat pings to the connection.
// One goroutine per session.
func (s *session) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Queue closed: hub shutdown or slow-client eviction.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes control frames and notices the disconnect.
func (s *session) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
