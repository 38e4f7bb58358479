package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/config"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/logging"
)

// Feed frame types.
const (
	FeedSnapshot = "snapshot"
	FeedEvent    = "event"
)

const (
	// feedBufferSize is the number of frames queued per client before it is
	// dropped as too slow.
	feedBufferSize = 256

	// Fallbacks for a zero-value WebSocketConfig.
	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
)

// FeedMessage is one frame of the device feed.
//
// The first frame on every connection is a snapshot of the registry. Each
// later frame carries one registry event.
type FeedMessage struct {
	Type    string    `json:"type"`
	Event   string    `json:"event,omitempty"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// feedEvents are the registry events a client may ask for.
var feedEvents = map[device.EventType]bool{
	device.EventRegistered:   true,
	device.EventStateChanged: true,
}

// parseEventFilter reads the ?events= query value. An empty value selects
// every event.
func parseEventFilter(raw string) (map[device.EventType]bool, error) {
	filter := make(map[device.EventType]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ev := device.EventType(name)
		if !feedEvents[ev] {
			return nil, fmt.Errorf("unknown event: %s", name)
		}
		filter[ev] = true
	}
	return filter, nil
}

// The feed is read-only and carries no credentials, so any origin may
// connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans registry events out to connected dashboard clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu     sync.Mutex
	feeds  map[*feed]struct{}
	closed bool
}

// feed is one connected client.
type feed struct {
	id     string
	conn   *websocket.Conn
	filter map[device.EventType]bool
	out    chan []byte
	done   chan struct{}
	stop   sync.Once
}

func newFeed(conn *websocket.Conn, filter map[device.EventType]bool) *feed {
	return &feed{
		id:     uuid.NewString(),
		conn:   conn,
		filter: filter,
		out:    make(chan []byte, feedBufferSize),
		done:   make(chan struct{}),
	}
}

func (f *feed) wants(ev device.EventType) bool {
	return len(f.filter) == 0 || f.filter[ev]
}

// close signals the writer to say goodbye. Safe to call more than once.
func (f *feed) close() {
	f.stop.Do(func() { close(f.done) })
}

// NewHub creates a hub. Unset limits in cfg take their defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    withWSDefaults(cfg),
		logger: logger,
		feeds:  make(map[*feed]struct{}),
	}
}

// withWSDefaults fills unset WebSocket limits.
func withWSDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = int(defaultWSPingInterval / time.Second)
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = int(defaultWSPongTimeout / time.Second)
	}
	return cfg
}

// Run blocks until ctx is done, then disconnects every client.
// Clients arriving after that are refused.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for f := range h.feeds {
		f.close()
		delete(h.feeds, f)
	}
}

// add registers f. It returns false once the hub has shut down.
func (h *Hub) add(f *feed) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.feeds[f] = struct{}{}
	h.logger.Debug("websocket client connected", "client_id", f.id, "clients", len(h.feeds))
	return true
}

func (h *Hub) remove(f *feed) {
	h.mu.Lock()
	_, ok := h.feeds[f]
	delete(h.feeds, f)
	n := len(h.feeds)
	h.mu.Unlock()

	f.close()
	if ok {
		h.logger.Debug("websocket client disconnected", "client_id", f.id, "clients", n)
	}
}

// Broadcast sends one registry event to every client that wants it.
// It never blocks: a client whose queue is full is disconnected.
func (h *Hub) Broadcast(ev device.EventType, payload any) {
	data, err := json.Marshal(FeedMessage{
		Type:    FeedEvent,
		Event:   string(ev),
		Time:    time.Now().UTC(),
		Payload: payload,
	})
	if err != nil {
		h.logger.Error("marshalling feed event", "event", string(ev), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for f := range h.feeds {
		if !f.wants(ev) {
			continue
		}
		select {
		case f.out <- data:
			sent++
		default:
			delete(h.feeds, f)
			f.close()
			h.logger.Warn("dropping slow websocket client", "client_id", f.id)
		}
	}
	if sent > 0 {
		h.logger.Debug("feed event sent", "event", string(ev), "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// writeLoop owns all writes to the connection: queued frames, keepalive
// pings and the final close frame.
func (h *Hub) writeLoop(f *feed) {
	ping := time.NewTicker(time.Duration(h.cfg.PingInterval) * time.Second)
	wait := time.Duration(h.cfg.PongTimeout) * time.Second
	defer func() {
		ping.Stop()
		f.conn.Close() //nolint:errcheck // reader sees the error and exits
		h.remove(f)
	}()

	for {
		var err error
		select {
		case data := <-f.out:
			//nolint:errcheck // write error is checked below
			f.conn.SetWriteDeadline(time.Now().Add(wait))
			err = f.conn.WriteMessage(websocket.TextMessage, data)
		case <-ping.C:
			err = f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait))
		case <-f.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			f.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait)) //nolint:errcheck // best effort
			return
		}
		if err != nil {
			h.logger.Debug("websocket write failed", "client_id", f.id, "error", err)
			return
		}
	}
}

// readLoop services control frames until the peer goes away. Data frames
// from clients are discarded.
func (h *Hub) readLoop(f *feed) {
	defer h.remove(f)

	wait := time.Duration(h.cfg.PingInterval+h.cfg.PongTimeout) * time.Second
	f.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	f.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // checked by the next read
	f.conn.SetPongHandler(func(string) error {
		return f.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if _, _, err := f.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "client_id", f.id, "error", err)
			}
			return
		}
	}
}

// handleWebSocket upgrades the request to a device feed. The optional
// ?events= query takes a comma separated list of event names.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query().Get("events"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	f := newFeed(conn, filter)
	if !s.hub.add(f) {
		conn.Close() //nolint:errcheck // shutting down
		return
	}

	// Registered before the snapshot is taken, so nothing falls between
	// the two. An event may precede the snapshot; the snapshot is newer.
	snapshot, err := json.Marshal(FeedMessage{
		Type:    FeedSnapshot,
		Time:    time.Now().UTC(),
		Payload: s.deviceList(""),
	})
	if err == nil {
		select {
		case f.out <- snapshot:
		default:
		}
	}

	go s.hub.writeLoop(f)
	go s.hub.readLoop(f)
}
