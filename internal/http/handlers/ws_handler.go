package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/events"
	"github.com/keeper-escrow/backend/internal/middleware"
)

const wsWriteTimeout = 5 * time.Second

// WSHub pushes order events to the websocket connections of the order's parties.
type WSHub struct {
	authn       middleware.Authenticator
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[string][]*wsClient
}

// wsClient serializes writes; a websocket connection allows one writer at a time.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func NewWSHub(authn middleware.Authenticator, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		authn:       authn,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[string][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamOrders, h.Dispatch)
}

// Dispatch delivers event to every connection of each party named in it.
func (h *WSHub) Dispatch(event events.Event) {
	parties := event.Parties()
	if len(parties) == 0 {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal ws event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	seen := make(map[string]bool, len(parties))
	for _, identity := range parties {
		if seen[identity] {
			continue
		}
		seen[identity] = true
		h.SendTo(identity, data)
	}
}

func (h *WSHub) SendTo(identity string, data []byte) {
	h.mu.RLock()
	clients := append([]*wsClient(nil), h.connections[identity]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(data); err != nil {
			h.log.Debug("ws write failed", zap.String("identity", identity), zap.Error(err))
		}
	}
}

// Connections returns the number of open connections for identity.
func (h *WSHub) Connections(identity string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[identity])
}

// WSUpgradeMiddleware rejects non-websocket requests to /ws.
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		_ = conn.Close()
		return
	}

	identity, err := h.authn.Authenticate(tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		_ = conn.Close()
		return
	}

	client := &wsClient{conn: conn}
	h.register(identity, client)
	defer func() {
		h.unregister(identity, client)
		_ = conn.Close()
	}()

	// read loop keeps the connection alive and notices disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) register(identity string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[identity] = append(h.connections[identity], c)
}

func (h *WSHub) unregister(identity string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.connections[identity]
	for i, existing := range clients {
		if existing == c {
			h.connections[identity] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.connections[identity]) == 0 {
		delete(h.connections, identity)
	}
}
