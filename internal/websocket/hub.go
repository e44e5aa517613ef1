// Package websocket pushes fresh access decisions to connected tenant
// sessions.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/saporia/saporia/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking based on config
		return true
	},
}

// Client represents a connected tenant session.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	id       string
	tenantID string
	lastPing time.Time
}

// Message is the wire envelope for pushed updates.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// targeted pairs a marshaled message with the tenant it is destined for.
// An empty tenant means broadcast to everyone.
type targeted struct {
	tenantID string
	payload  []byte
}

// Hub maintains active clients and routes decision updates to the sessions
// of the affected tenant.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan targeted
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	// getDecision returns the current access decision payload for a
	// tenant, sent to every client on connect.
	getDecision func(tenantID string) interface{}

	// onTenantUp fires when a tenant's first session connects; the
	// returned teardown runs when its last session leaves or the hub
	// stops.
	onTenantUp     func(tenantID string) func()
	tenantCounts   map[string]int
	tenantTeardown map[string]func()
}

// NewHub creates a hub. getDecision may be nil.
func NewHub(getDecision func(tenantID string) interface{}) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan targeted, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		getDecision:    getDecision,
		tenantCounts:   make(map[string]int),
		tenantTeardown: make(map[string]func()),
	}
}

// OnTenantSessions registers the per-tenant session hook. Must be set
// before Run.
func (h *Hub) OnTenantSessions(up func(tenantID string) func()) {
	h.onTenantUp = up
}

// Run starts the hub's main loop. It exits when stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
			log.Info().Str("client", client.id).Str("tenant", client.tenantID).Msg("WebSocket client connected")

			if h.getDecision != nil {
				msg := Message{Type: "accessDecision", Data: h.getDecision(client.tenantID)}
				if data, err := json.Marshal(msg); err == nil {
					select {
					case client.send <- data:
					default:
						log.Warn().Str("client", client.id).Msg("Client send buffer full, skipping initial decision")
					}
				}
			}

		case client := <-h.unregister:
			if h.removeClient(client) {
				log.Info().Str("client", client.id).Msg("WebSocket client disconnected")
			}

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-stop:
			h.shutdown()
			return
		}
	}
}

// addClient and removeClient run only on the Run goroutine; the mutex
// guards concurrent readers.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	firstSession := false
	if client.tenantID != "" {
		h.tenantCounts[client.tenantID]++
		firstSession = h.tenantCounts[client.tenantID] == 1
	}
	h.mu.Unlock()
	metrics.WebsocketClients.Inc()

	if firstSession && h.onTenantUp != nil {
		teardown := h.onTenantUp(client.tenantID)
		h.mu.Lock()
		h.tenantTeardown[client.tenantID] = teardown
		h.mu.Unlock()
	}
}

func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, client)
	close(client.send)
	var teardown func()
	if client.tenantID != "" {
		h.tenantCounts[client.tenantID]--
		if h.tenantCounts[client.tenantID] <= 0 {
			delete(h.tenantCounts, client.tenantID)
			teardown = h.tenantTeardown[client.tenantID]
			delete(h.tenantTeardown, client.tenantID)
		}
	}
	h.mu.Unlock()
	metrics.WebsocketClients.Dec()

	if teardown != nil {
		teardown()
	}
	return true
}

// shutdown closes done first so pump goroutines blocked on register or
// unregister are released instead of leaking.
func (h *Hub) shutdown() {
	close(h.done)

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.removeClient(client)
	}
}

func (h *Hub) deliver(msg targeted) {
	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if msg.tenantID == "" || client.tenantID == msg.tenantID {
			recipients = append(recipients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range recipients {
		select {
		case client.send <- msg.payload:
		default:
			// Slow client, drop it
			h.removeClient(client)
		}
	}
}

// BroadcastDecision pushes a fresh access decision to every session of the
// tenant.
func (h *Hub) BroadcastDecision(tenantID string, decision interface{}) {
	h.send(tenantID, Message{Type: "accessDecision", Data: decision})
}

// BroadcastGlobalConfig pushes updated display configuration to all
// tenants.
func (h *Hub) BroadcastGlobalConfig(cfg interface{}) {
	h.send("", Message{Type: "globalConfig", Data: cfg})
}

func (h *Hub) send(tenantID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}
	select {
	case h.broadcast <- targeted{tenantID: tenantID, payload: data}:
	default:
		log.Warn().Msg("WebSocket broadcast channel full")
	}
}

// ConnectedTenants returns the distinct tenants with at least one
// connected session, for scheduled re-evaluation sweeps.
func (h *Hub) ConnectedTenants() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool, len(h.clients))
	tenants := make([]string, 0, len(h.clients))
	for client := range h.clients {
		if client.tenantID != "" && !seen[client.tenantID] {
			seen[client.tenantID] = true
			tenants = append(tenants, client.tenantID)
		}
	}
	return tenants
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles WebSocket upgrade requests. The tenant identity
// is expected to have been resolved by the caller.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, tenantID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		id:       uuid.NewString(),
		tenantID: tenantID,
		lastPing: time.Now(),
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump handles incoming messages from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.lastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client", c.id).Msg("WebSocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Debug().Err(err).Str("client", c.id).Msg("Ignoring malformed WebSocket message")
			continue
		}

		switch msg.Type {
		case "ping":
			pong := Message{Type: "pong", Data: map[string]int64{"timestamp": time.Now().Unix()}}
			if data, err := json.Marshal(pong); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		case "requestDecision":
			if c.hub.getDecision != nil {
				reply := Message{Type: "accessDecision", Data: c.hub.getDecision(c.tenantID)}
				if data, err := json.Marshal(reply); err == nil {
					select {
					case c.send <- data:
					default:
					}
				}
			}
		default:
			log.Debug().Str("client", c.id).Str("type", msg.Type).Msg("Received WebSocket message")
		}
	}
}

// writePump handles outgoing messages to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
