package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the wire format pushed to websocket subscribers.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub fans notification events out to websocket connections. Connections
// are keyed by user ID so an event reaches only the user it targets,
// never the whole subscriber pool.
type Hub struct {
	mu           sync.RWMutex
	conns        map[string]map[*websocket.Conn]*sync.Mutex
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub(writeTimeout time.Duration, logger *zap.Logger) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:        make(map[string]map[*websocket.Conn]*sync.Mutex),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Register attaches a connection to a user's subscription set.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*websocket.Conn]*sync.Mutex)
		h.conns[userID] = set
	}
	set[conn] = &sync.Mutex{}
}

// Unregister detaches a connection and closes it.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	if set, ok := h.conns[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
	h.mu.Unlock()
	_ = conn.Close()
}

// Emit pushes an event to every open connection of the target user.
// Write failures drop the connection; they never propagate to callers.
// Writes to a single connection are serialized by a per-connection
// mutex: gorilla/websocket allows at most one concurrent writer, and
// concurrent dispatches for the same user are routine.
func (h *Hub) Emit(event string, payload interface{}, userID string) {
	raw, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		h.logger.Warn("realtime payload not serializable", zap.String("event", event), zap.Error(err))
		return
	}

	type target struct {
		conn *websocket.Conn
		mu   *sync.Mutex
	}

	h.mu.RLock()
	targets := make([]target, 0, len(h.conns[userID]))
	for conn, writeMu := range h.conns[userID] {
		targets = append(targets, target{conn: conn, mu: writeMu})
	}
	h.mu.RUnlock()

	for _, t := range targets {
		t.mu.Lock()
		_ = t.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		err := t.conn.WriteMessage(websocket.TextMessage, raw)
		t.mu.Unlock()
		if err != nil {
			h.logger.Debug("realtime write failed, dropping connection",
				zap.String("user_id", userID), zap.Error(err))
			h.Unregister(userID, t.conn)
		}
	}
}

// Connections reports how many open connections a user currently has.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}
