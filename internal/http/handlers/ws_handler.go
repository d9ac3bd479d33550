package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/auth"
	"github.com/tsiken/backend/internal/config"
	"github.com/tsiken/backend/internal/events"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/models"
	"go.uber.org/zap"
)

type wsClient struct {
	conn *websocket.Conn
	role string
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub pushes detection events to connected clients. Admins receive every
// event, other users only events about their own detections. A revoked
// account is notified and disconnected so it reconnects with its new role.
type WSHub struct {
	cfg         *config.Config
	accounts    middleware.AccountChecker
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID][]*wsClient
}

func NewWSHub(cfg *config.Config, accounts middleware.AccountChecker, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		accounts:    accounts,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, func(stream string, event events.Event) {
		switch stream {
		case events.StreamAccounts:
			h.revoke(event)
		default:
			h.dispatch(event)
		}
	}, events.StreamDetections, events.StreamAccounts)
}

func (h *WSHub) revoke(event events.Event) {
	raw, _ := event.Payload["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		h.log.Warn("account event without user id", zap.String("type", event.Type))
		return
	}
	h.SendToUser(userID, event)
	if n := h.disconnect(userID); n > 0 {
		h.log.Info("ws connections revoked", zap.String("user_id", raw), zap.Int("connections", n))
	}
}

func (h *WSHub) dispatch(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("marshal ws event", zap.Error(err))
		return
	}
	owner, _ := event.Payload["user_id"].(string)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID, clients := range h.connections {
		for _, cl := range clients {
			if cl.role != models.RoleAdmin && userID.String() != owner {
				continue
			}
			_ = cl.send(data)
		}
	}
}

// SendToUser writes event to every connection of userID.
func (h *WSHub) SendToUser(userID uuid.UUID, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, cl := range h.connections[userID] {
		_ = cl.send(data)
	}
}

// Connected reports the number of open connections.
func (h *WSHub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.connections {
		n += len(clients)
	}
	return n
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) register(userID uuid.UUID, cl *wsClient) {
	h.mu.Lock()
	h.connections[userID] = append(h.connections[userID], cl)
	h.mu.Unlock()
}

// disconnect closes every connection of userID.
func (h *WSHub) disconnect(userID uuid.UUID) int {
	h.mu.Lock()
	clients := h.connections[userID]
	delete(h.connections, userID)
	h.mu.Unlock()

	for _, cl := range clients {
		cl.mu.Lock()
		_ = cl.conn.Close()
		cl.mu.Unlock()
	}
	return len(clients)
}

func (h *WSHub) unregister(userID uuid.UUID, cl *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.connections[userID]
	for i, c := range clients {
		if c == cl {
			h.connections[userID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	st, err := h.accounts.CurrentAccount(ctx, claims.UserID)
	cancel()
	if err != nil || st.Locked {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"account unavailable"}`))
		conn.Close()
		return
	}

	cl := &wsClient{conn: conn, role: st.Role}
	h.register(claims.UserID, cl)
	defer func() {
		h.unregister(claims.UserID, cl)
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
