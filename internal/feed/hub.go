package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/vkplay/internal/events"
)

// AllChannels subscribes a client to every bus channel.
const AllChannels = "*"

type broadcast struct {
	channel string
	payload []byte
}

// Hub maintains active WebSocket clients and broadcasts bus events to them.
type Hub struct {
	// channel -> set of clients
	channels map[string]map[*Client]bool
	mu       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	done       chan struct{}

	logger *zap.Logger
	now    func() time.Time
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		channels:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 256),
		done:       make(chan struct{}),
		logger:     logger,
		now:        time.Now,
	}
}

// Run is the hub event loop. It returns when ctx is done, closing all clients.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("Hub started")
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case msg := <-h.broadcast:
			h.broadcastToChannel(msg.channel, msg.payload)
			h.broadcastToChannel(AllChannels, msg.payload)
		}
	}
}

// Mirror implements bus.Mirror.
func (h *Hub) Mirror(ev events.Event) {
	payload, err := Marshal(ev, h.now())
	if err != nil {
		h.logger.Error("Encode event", zap.String("channel", string(ev.Channel())), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- broadcast{channel: string(ev.Channel()), payload: payload}:
	case <-h.done:
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[c.channel] == nil {
		h.channels[c.channel] = make(map[*Client]bool)
	}
	h.channels[c.channel][c] = true
	h.logger.Debug("Client registered",
		zap.String("channel", c.channel),
		zap.String("remote", c.remote),
		zap.Int("clients", len(h.channels[c.channel])),
	)
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.channels[c.channel]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.channels, c.channel)
	}
	h.logger.Debug("Client unregistered", zap.String("channel", c.channel), zap.String("remote", c.remote))
}

func (h *Hub) broadcastToChannel(channel string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.channels[channel]
	if !ok {
		return
	}
	for c := range clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("Client buffer full, disconnecting", zap.String("channel", channel), zap.String("remote", c.remote))
			close(c.send)
			delete(clients, c)
		}
	}
	if len(clients) == 0 {
		delete(h.channels, channel)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, clients := range h.channels {
		for c := range clients {
			close(c.send)
		}
		delete(h.channels, channel)
	}
}

// Clients returns the number of clients listening on channel.
func (h *Hub) Clients(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
