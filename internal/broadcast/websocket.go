// Package broadcast fans out engine events to websocket clients (the
// `orc watch` TUI and any external dashboard), layered directly on top of
// an events.Publisher subscription per connection.
//
// Adapted from internal/api/websocket.go: read/write pump structure, ping
///pong keepalive and per-connection subscribe/unsubscribe state machine
// are kept near-verbatim; the command surface is retargeted from
// pause/resume/cancel task control to gate decisions (approve/reject/revise),
// since task lifecycle control in this engine flows through the CLI/API,
// not the watch socket.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/orc/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// GateDecider resolves a gate decision received over the socket. `orc serve`
// binds it to the Store's DecideGate.
type GateDecider interface {
	DecideGate(gateID, decision, comment, revised string) error
}

// Message is the wire shape of an inbound client frame. Outbound event and
// error frames are written as plain JSON objects, not as Message values.
type Message struct {
	Type    string          `json:"type"` // subscribe, unsubscribe, gate_decision, ping
	TaskID  string          `json:"task_id,omitempty"`
	GateID  string          `json:"gate_id,omitempty"`
	Action  string          `json:"action,omitempty"` // approve, reject, revise
	Comment string          `json:"comment,omitempty"`
	Revised string          `json:"revised,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Handler upgrades HTTP connections to websockets and fans out events.Event
// to subscribed clients.
type Handler struct {
	upgrader    websocket.Upgrader
	publisher   events.Publisher
	decider     GateDecider
	connections map[*websocket.Conn]*conn
	mu          sync.RWMutex
	logger      *slog.Logger
}

type conn struct {
	ws           *websocket.Conn
	mu           sync.Mutex
	taskID       string
	eventChan    <-chan events.Event
	send         chan []byte
	done         chan struct{}
	unsubscribed bool
}

// NewHandler constructs a Handler. decider may be nil if this deployment
// doesn't accept gate decisions over the socket (read-only dashboards).
func NewHandler(pub events.Publisher, decider GateDecider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		publisher:   pub,
		decider:     decider,
		connections: make(map[*websocket.Conn]*conn),
		logger:      logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &conn{ws: ws, send: make(chan []byte, 256), done: make(chan struct{})}

	h.mu.Lock()
	h.connections[ws] = c
	h.mu.Unlock()

	go h.readPump(c)
	go h.writePump(c)
}

func (h *Handler) readPump(c *conn) {
	defer h.closeConnection(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("websocket read error", "error", err)
			}
			return
		}
		h.handleMessage(c, message)
	}
}

func (h *Handler) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			n := len(c.send)
			for i := 0; i < n; i++ {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handleMessage(c *conn, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(c, "invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe":
		h.handleSubscribe(c, msg.TaskID)
	case "unsubscribe":
		h.handleUnsubscribe(c)
	case "gate_decision":
		h.handleGateDecision(c, msg)
	case "ping":
		h.sendJSON(c, map[string]any{"type": "pong"})
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

func (h *Handler) handleSubscribe(c *conn, taskID string) {
	if taskID == "" {
		h.sendError(c, `task_id required for subscribe (use "*" for all tasks)`)
		return
	}
	h.handleUnsubscribe(c)

	c.mu.Lock()
	c.taskID = taskID
	c.eventChan = h.publisher.Subscribe(taskID)
	c.unsubscribed = false
	c.mu.Unlock()

	go h.forwardEvents(c)
	h.sendJSON(c, map[string]any{"type": "subscribed", "task_id": taskID})
}

func (h *Handler) handleUnsubscribe(c *conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.taskID != "" && c.eventChan != nil && !c.unsubscribed {
		h.publisher.Unsubscribe(c.taskID, c.eventChan)
		c.unsubscribed = true
		c.taskID = ""
		c.eventChan = nil
	}
}

func (h *Handler) handleGateDecision(c *conn, msg Message) {
	if h.decider == nil {
		h.sendError(c, "gate decisions are not accepted on this connection")
		return
	}
	if msg.GateID == "" {
		h.sendError(c, "gate_id required")
		return
	}
	if err := h.decider.DecideGate(msg.GateID, msg.Action, msg.Comment, msg.Revised); err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.sendJSON(c, map[string]any{"type": "gate_decision_result", "gate_id": msg.GateID, "action": msg.Action})
}

func (h *Handler) forwardEvents(c *conn) {
	c.mu.Lock()
	eventChan := c.eventChan
	c.mu.Unlock()
	if eventChan == nil {
		return
	}

	for {
		select {
		case <-c.done:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			c.mu.Lock()
			unsubscribed := c.unsubscribed
			c.mu.Unlock()
			if unsubscribed {
				return
			}
			h.sendJSON(c, map[string]any{
				"type": "event", "event": string(event.Type), "task_id": event.TaskID,
				"data": event.Data, "time": event.Time,
			})
		}
	}
}

func (h *Handler) closeConnection(c *conn) {
	h.mu.Lock()
	if _, ok := h.connections[c.ws]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, c.ws)
	h.mu.Unlock()

	h.handleUnsubscribe(c)

	select {
	case <-c.done:
	default:
		close(c.done)
	}
	_ = c.ws.Close()
}

func (h *Handler) sendJSON(c *conn, data any) {
	msg, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", "error", err)
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("websocket send buffer full, dropping message")
	}
}

func (h *Handler) sendError(c *conn, message string) {
	h.sendJSON(c, map[string]any{"type": "error", "error": message})
}

// ConnectionCount reports the number of active connections.
func (h *Handler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close terminates every active connection.
func (h *Handler) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		h.closeConnection(c)
	}
}
