package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/storage"
)

// HubConfig configures websocket delivery.
type HubConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// PongWait is how long a client may stay silent before it is dropped.
	PongWait time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SendBuffer is the per-client queue length; slow clients beyond it are dropped.
	SendBuffer int
}

// DefaultHubConfig returns default websocket hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

// withDefaults fills zero or negative fields from DefaultHubConfig.
func (c HubConfig) withDefaults() HubConfig {
	d := DefaultHubConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	return c
}

// EventMessage is the JSON payload pushed to websocket clients.
type EventMessage struct {
	EventID         string  `json:"event_id"`
	ObservationID   string  `json:"observation_id"`
	Signature       string  `json:"signature"`
	WalletID        string  `json:"wallet_id"`
	OldStatus       string  `json:"old_status"`
	NewStatus       string  `json:"new_status"`
	ConfidenceScore float64 `json:"confidence_score"`
	Trigger         string  `json:"trigger"`
	OccurredAt      int64   `json:"occurred_at"`
}

// NewEventMessage converts a transition event to its wire form.
func NewEventMessage(e *domain.TransitionEvent) EventMessage {
	return EventMessage{
		EventID:         e.EventID,
		ObservationID:   e.ObservationID,
		Signature:       e.Signature,
		WalletID:        e.WalletID,
		OldStatus:       string(e.OldStatus),
		NewStatus:       string(e.NewStatus),
		ConfidenceScore: e.ConfidenceScore,
		Trigger:         string(e.Trigger),
		OccurredAt:      e.OccurredAt,
	}
}

type client struct {
	conn   *websocket.Conn
	wallet string // empty receives every wallet
	send   chan []byte
}

// Hub streams resolution events (-> linked, -> ignored) to websocket clients,
// only for wallets with notifications enabled.
type Hub struct {
	settings storage.SettingsStore
	config   HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a websocket hub.
func NewHub(settings storage.SettingsStore, config *HubConfig, logger *zap.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = config.withDefaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		settings: settings,
		config:   cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// Name implements Named.
func (h *Hub) Name() string { return "websocket" }

// Publish implements Publisher.
func (h *Hub) Publish(ctx context.Context, e *domain.TransitionEvent) error {
	if !e.Notifiable() {
		return nil
	}
	settings, err := h.settings.Get(ctx, e.WalletID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !settings.NotificationEnabled {
		return nil
	}

	payload, err := json.Marshal(NewEventMessage(e))
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if c.wallet != "" && c.wallet != e.WalletID {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", zap.String("wallet_id", c.wallet))
		h.remove(c)
	}
	return nil
}

// ServeHTTP upgrades the request and streams events until the client leaves.
// The optional "wallet" query parameter restricts the stream to one wallet.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:   conn,
		wallet: r.URL.Query().Get("wallet"),
		send:   make(chan []byte, h.config.SendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()
	observability.SetWSClients(n)

	go h.writeLoop(c)
	go h.readLoop(c)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their loops to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	observability.SetWSClients(n)
}

// writeLoop drains the client queue and keeps the connection alive with pings.
func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				h.writeClose(c)
				return
			}
			if err := h.write(c, websocket.TextMessage, msg); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				h.remove(c)
				return
			}
		case <-ticker.C:
			if err := h.write(c, websocket.PingMessage, nil); err != nil {
				h.logger.Debug("websocket ping failed", zap.Error(err))
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) write(c *client, messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (h *Hub) writeClose(c *client) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := h.write(c, websocket.CloseMessage, msg); err != nil {
		h.logger.Debug("websocket close frame failed", zap.Error(err))
	}
}

// readLoop discards client messages and detects disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	if err := c.conn.SetReadDeadline(time.Now().Add(h.config.PongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
