package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Messages the hub itself sends
const (
	// EventHello carries the full session state right after connecting
	EventHello = "hello"
	// EventTime answers a client's clock probe with the server time in ms
	EventTime = "time"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // players reach the server by LAN address
	},
}

// outbound is a message queued for a room, or for a single client in it
type outbound struct {
	sessionID int64
	client    *Client
	msg       models.WSMessage
	closeRoom bool
}

// Hub keeps one room of clients per session and fans messages out to them
type Hub struct {
	log        logger.Logger
	rooms      map[int64]map[*Client]bool
	outbox     chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	state      services.StateServicer
	clock      clockwork.Clock
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan models.WSMessage
	sessionID int64
	userID    int64
}

// New creates a new Hub. state builds the hello snapshot and may be nil.
func New(log logger.Logger, state services.StateServicer, clock clockwork.Clock) *Hub {
	return &Hub{
		log:        log,
		rooms:      make(map[int64]map[*Client]bool),
		outbox:     make(chan outbound, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		state:      state,
		clock:      clock,
	}
}

// Start begins the hub's main loop in a goroutine
func (h *Hub) Start(ctx context.Context) {
	go h.Run(ctx)
}

// Run handles registration and message delivery until ctx is cancelled,
// then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for id, room := range h.rooms {
				for client := range room {
					close(client.send)
				}
				delete(h.rooms, id)
			}
			h.mutex.Unlock()
			close(h.done)
			h.log.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mutex.Lock()
			room, ok := h.rooms[client.sessionID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.sessionID] = room
			}
			room[client] = true
			n := len(room)
			h.mutex.Unlock()
			h.log.Debug("Client connected", "session_id", client.sessionID, "user_id", client.userID, "room_clients", n)

		case client := <-h.unregister:
			h.mutex.Lock()
			h.removeLocked(client)
			h.mutex.Unlock()
			h.log.Debug("Client disconnected", "session_id", client.sessionID, "user_id", client.userID)

		case out := <-h.outbox:
			h.dispatch(out)
		}
	}
}

func (h *Hub) dispatch(out outbound) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	room := h.rooms[out.sessionID]
	if out.closeRoom {
		for client := range room {
			close(client.send)
		}
		delete(h.rooms, out.sessionID)
		h.log.Debug("Room closed", "session_id", out.sessionID, "clients", len(room))
		return
	}

	for client := range room {
		if out.client != nil && client != out.client {
			continue
		}
		select {
		case client.send <- out.msg:
		default:
			// too slow to keep up
			h.log.Warn("Dropping slow client", "session_id", client.sessionID, "user_id", client.userID)
			h.removeLocked(client)
		}
	}
}

// removeLocked drops a client from its room. Callers hold h.mutex.
func (h *Hub) removeLocked(client *Client) {
	room, ok := h.rooms[client.sessionID]
	if !ok {
		return
	}
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.sessionID)
	}
}

func (h *Hub) enqueue(out outbound) {
	select {
	case h.outbox <- out:
	case <-h.done:
	}
}

// BroadcastToSession implements services.Broadcaster
func (h *Hub) BroadcastToSession(sessionID int64, msgType string, payload any) {
	h.enqueue(outbound{
		sessionID: sessionID,
		msg:       models.WSMessage{Type: msgType, Payload: payload},
	})
}

// CloseSession disconnects every client of an ended session after the
// messages already queued for it
func (h *Hub) CloseSession(sessionID int64) {
	h.enqueue(outbound{sessionID: sessionID, closeRoom: true})
}

// ClientCount returns how many clients are connected to a session
func (h *Hub) ClientCount(sessionID int64) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[sessionID])
}

func (h *Hub) sendTo(client *Client, msgType string, payload any) {
	h.enqueue(outbound{
		sessionID: client.sessionID,
		client:    client,
		msg:       models.WSMessage{Type: msgType, Payload: payload},
	})
}

// sendHello queues the full state for a freshly registered client. It is
// built after registration so no broadcast in between is lost.
func (h *Hub) sendHello(client *Client) {
	if h.state == nil {
		return
	}
	st, err := h.state.State(context.Background(), client.sessionID, client.userID)
	if err != nil {
		h.log.Error("Failed to build hello state", "session_id", client.sessionID, "user_id", client.userID, "error", err)
		return
	}
	h.sendTo(client, EventHello, st)
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket error", "error", err)
			}
			break
		}

		var msg models.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Debug("Ignoring malformed message", "user_id", c.userID)
			continue
		}
		switch msg.Type {
		case EventTime:
			c.hub.sendTo(c, EventTime, map[string]int64{"server_time": c.hub.clock.Now().UnixMilli()})
		default:
			c.hub.log.Debug("Received message", "type", msg.Type)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			msgBytes, err := json.Marshal(message)
			if err != nil {
				c.hub.log.Error("Failed to encode message", "type", message.Type, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and attaches the connection to the session's
// room. The caller has already resolved who is connecting.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, sessionID, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade error", "error", err)
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan models.WSMessage, sendBuffer),
		sessionID: sessionID,
		userID:    userID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
	go h.sendHello(client)
}
