package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/metrics"
	"github.com/taskline/taskline/internal/models"
)

// SubscribeAuthorizer decides whether a connected user may join a project's
// broadcast group. It must enforce the same tenant checks as the REST layer.
type SubscribeAuthorizer func(ctx context.Context, user *models.User, projectID uuid.UUID) bool

// Config holds configuration for the Hub.
type Config struct {
	// PingInterval is how often to send ping frames to clients.
	PingInterval time.Duration
	// WriteTimeout is the timeout for writing to a client.
	WriteTimeout time.Duration
	// ReadTimeout is the timeout for reading from a client.
	ReadTimeout time.Duration
	// MaxMessageSize is the maximum size of a message from a client.
	MaxMessageSize int64
	// SendBufferSize is the size of the send buffer per client.
	SendBufferSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 512,
		SendBufferSize: 64,
	}
}

// Client represents a connected WebSocket session.
type Client struct {
	id     uuid.UUID
	user   *models.User
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	groups map[string]struct{}

	mu     sync.Mutex
	closed bool
}

// trySend queues data for the client without blocking. It reports false
// when the client is already closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend marks the client closed and closes its send channel, after
// which trySend refuses quietly instead of panicking.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub manages broadcast groups and event fan-out to connected clients.
// A mutation publisher never blocks on a slow client: full send buffers
// drop the event for that client only.
type Hub struct {
	config     Config
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
	authorizer SubscribeAuthorizer

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	groups  map[string]map[uuid.UUID]*Client

	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client

	bridge Bridge

	done chan struct{}
	wg   sync.WaitGroup
}

// NewHub creates a new Hub with the given configuration.
func NewHub(cfg Config, authorizer SubscribeAuthorizer, logger zerolog.Logger) *Hub {
	return &Hub{
		config:     cfg,
		logger:     logger.With().Str("component", "realtime_hub").Logger(),
		authorizer: authorizer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // cross-origin filtering happens at the CORS layer
			},
		},
		clients:    make(map[uuid.UUID]*Client),
		groups:     make(map[string]map[uuid.UUID]*Client),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetBridge attaches a cross-process bridge (e.g. Redis pub/sub). Must be
// called before Start.
func (h *Hub) SetBridge(b Bridge) {
	h.bridge = b
}

// SetAuthorizer installs the subscribe authorizer. Must be called before
// clients connect; a nil authorizer allows every subscribe message.
func (h *Hub) SetAuthorizer(a SubscribeAuthorizer) {
	h.authorizer = a
}

// Start begins processing events and client management.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
	h.logger.Info().Msg("realtime hub started")
}

// Stop stops the hub and closes all client connections.
func (h *Hub) Stop() {
	close(h.done)
	h.wg.Wait()
	if h.bridge != nil {
		h.bridge.Close()
	}
	h.logger.Info().Msg("realtime hub stopped")
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.broadcast:
			h.fanOut(event)
		}
	}
}

// Publish delivers an event to local subscribers and, when a bridge is
// configured, to the other server processes. Best-effort: a full broadcast
// buffer drops the event rather than blocking the caller.
func (h *Hub) Publish(ctx context.Context, event *Event) {
	metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Str("type", string(event.Type)).Msg("broadcast buffer full, dropping event")
	}

	if h.bridge != nil {
		if err := h.bridge.Publish(ctx, event); err != nil {
			h.logger.Warn().Err(err).Msg("failed to publish event to bridge")
		}
	}
}

// publishLocal is the bridge's re-entry point for events that originated in
// another process.
func (h *Hub) publishLocal(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Str("type", string(event.Type)).Msg("broadcast buffer full, dropping bridged event")
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.id] = client
	for group := range client.groups {
		h.joinGroupLocked(client, group)
	}
	metrics.WebSocketClients.Set(float64(len(h.clients)))

	h.logger.Debug().
		Str("client_id", client.id.String()).
		Str("user_id", client.user.ID.String()).
		Msg("client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)

	for group := range client.groups {
		h.leaveGroupLocked(client, group)
	}
	client.closeSend()
	metrics.WebSocketClients.Set(float64(len(h.clients)))

	h.logger.Debug().Str("client_id", client.id.String()).Msg("client disconnected")
}

func (h *Hub) joinGroupLocked(client *Client, group string) {
	if _, ok := h.groups[group]; !ok {
		h.groups[group] = make(map[uuid.UUID]*Client)
	}
	h.groups[group][client.id] = client
	client.groups[group] = struct{}{}
}

func (h *Hub) leaveGroupLocked(client *Client, group string) {
	if members, ok := h.groups[group]; ok {
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	delete(client.groups, group)
}

// Subscribe adds a connected client to a broadcast group.
func (h *Hub) Subscribe(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinGroupLocked(client, group)
}

// Unsubscribe removes a connected client from a broadcast group.
func (h *Hub) Unsubscribe(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveGroupLocked(client, group)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.closeSend()
		// Unblocks the client's read pump; http.Server.Shutdown does not
		// close hijacked connections.
		client.conn.Close()
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.groups = make(map[string]map[uuid.UUID]*Client)
}

// fanOut delivers an event to every client in any of its groups, at most
// once per client.
func (h *Hub) fanOut(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	seen := make(map[uuid.UUID]struct{})
	var targets []*Client
	for _, group := range event.Groups {
		for id, client := range h.groups[group] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if !client.trySend(data) {
			h.logger.Warn().
				Str("client_id", client.id.String()).
				Msg("client send buffer full, dropping event")
		}
	}
}

// GroupClientCount returns the number of clients subscribed to a group.
func (h *Hub) GroupClientCount(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// TotalClientCount returns the total number of connected clients.
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and manages the session. The caller
// has already authenticated the user and authorized the initial groups.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, user *models.User, initialGroups ...string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	client := &Client{
		id:     uuid.New(),
		user:   user,
		conn:   conn,
		send:   make(chan []byte, h.config.SendBufferSize),
		hub:    h,
		groups: make(map[string]struct{}, len(initialGroups)+1),
	}
	for _, g := range initialGroups {
		client.groups[g] = struct{}{}
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// clientMessage is the JSON envelope for messages from clients.
type clientMessage struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id,omitempty"`
	Timestamp any    `json:"timestamp,omitempty"`
}

// enqueue queues a control reply to the client, dropping it if the buffer
// is full or the client is closed.
func (c *Client) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Client) readPump() {
	defer func() {
		// After the hub stops, nothing receives on unregister.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Msg("websocket read error")
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *clientMessage) {
	switch msg.Type {
	case "ping":
		c.enqueue(map[string]any{"type": "pong", "timestamp": msg.Timestamp})

	case "subscribe":
		projectID, err := uuid.Parse(msg.ProjectID)
		if err != nil {
			c.enqueue(map[string]any{"type": "error", "error": "invalid project_id"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		allowed := c.hub.authorizer == nil || c.hub.authorizer(ctx, c.user, projectID)
		cancel()
		if !allowed {
			c.enqueue(map[string]any{"type": "error", "error": "project not accessible"})
			return
		}
		c.hub.Subscribe(c, ProjectGroup(projectID))
		c.enqueue(map[string]any{"type": "subscribed", "project_id": msg.ProjectID})

	case "unsubscribe":
		projectID, err := uuid.Parse(msg.ProjectID)
		if err != nil {
			return
		}
		c.hub.Unsubscribe(c, ProjectGroup(projectID))
		c.enqueue(map[string]any{"type": "unsubscribed", "project_id": msg.ProjectID})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
