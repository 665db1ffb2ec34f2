package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer; binary audio chunks included.
	maxMessageSize = 512 * 1024
)

// SessionHandler is the media session a socket is attached to.
type SessionHandler interface {
	HandleFrame(ctx context.Context, frame ClientFrame) error
	HandleAudio(chunk []byte) error
	// Resync is called once the socket is registered so the view can
	// catch up with the current state.
	Resync()
	Disconnected()
}

// Resolver finds the session a socket request is for. It is expected to
// check that the requesting user owns it.
type Resolver func(r *http.Request, sessionID string) (SessionHandler, error)

type outbound struct {
	messageType int
	payload     []byte
}

// Hub keeps at most one socket per media session. A newer connection for
// the same session replaces the older one.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	resolve  Resolver
	upgrader websocket.Upgrader
	logger   *logger.Log
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan outbound
	sessionID string
	handler   SessionHandler
	ctx       context.Context
}

func NewHub(resolve Resolver, allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		resolve:    resolve,
		logger:     logger.New().Named("ws"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// Run owns client registration until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.sessionID]; ok {
				close(old.send)
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("session_id", client.sessionID))
			client.handler.Resync()

		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[client.sessionID]
			if ok && current == client {
				delete(h.clients, client.sessionID)
				close(client.send)
			}
			h.mu.Unlock()
			if ok && current == client {
				client.handler.Disconnected()
				h.logger.Info("client disconnected", zap.String("session_id", client.sessionID))
			}

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Send queues frame for the session's socket without blocking. It reports
// false when no socket is attached or the socket cannot keep up.
func (h *Hub) Send(sessionID string, frame ServerFrame) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode frame")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[sessionID]
	if !ok {
		return false
	}
	select {
	case client.send <- outbound{messageType: websocket.TextMessage, payload: payload}:
		return true
	default:
		h.logger.Warn("dropping frame for slow client",
			zap.String("session_id", sessionID),
			zap.String("type", string(frame.Type)))
		return false
	}
}

func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// Disconnect closes the session's socket, if any.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if ok {
		client.conn.Close()
	}
}

// ServeWS upgrades GET /ws/{id}.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	handler, err := h.resolve(r, sessionID)
	if err != nil {
		http.Error(w, "Media session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan outbound, 256),
		sessionID: sessionID,
		handler:   handler,
		ctx:       context.WithoutCancel(r.Context()),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/{id}", h.ServeWS).Methods("GET")
}

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
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Warn("websocket read failed", zap.String("session_id", c.sessionID))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			if err := c.handler.HandleAudio(message); err != nil {
				c.hub.logger.Debug("audio chunk rejected",
					zap.String("session_id", c.sessionID), zap.Error(err))
			}
		}
	}
}

func (c *Client) processMessage(message []byte) {
	frame, err := ParseClientFrame(message)
	if err == nil {
		err = c.handler.HandleFrame(c.ctx, frame)
	}
	if err != nil {
		c.hub.logger.Debug("frame rejected", zap.String("session_id", c.sessionID), zap.Error(err))
		c.hub.Send(c.sessionID, ErrorFrame(err))
	}
}

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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(message.messageType, message.payload); err != nil {
				c.hub.logger.WithError(err).Warn("websocket write failed", zap.String("session_id", c.sessionID))
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
