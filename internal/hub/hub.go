// Package hub fans messages out to connected clients and holds the pair
// currently selected by them.
package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/observability"
)

// DefaultBuffer is the number of pending messages kept per client.
const DefaultBuffer = 1000

// Options contains configuration for creating a Hub.
type Options struct {
	// Buffer is the per-client queue length. When full, the oldest queued
	// message is dropped. Default: DefaultBuffer.
	Buffer int
	// DefaultPair is the initial selection. Default: domain.DefaultPair.
	DefaultPair string
	Logger      *log.Logger
}

// Hub is the registry of connected clients.
// Broadcast never blocks on a slow client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	buffer  int

	pairMu sync.RWMutex
	pair   string

	logger *log.Logger
}

// New creates a new hub.
func New(opts Options) *Hub {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	pair := opts.DefaultPair
	if pair == "" {
		pair = domain.DefaultPair
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Hub{
		clients: make(map[string]*Client),
		buffer:  buffer,
		pair:    pair,
		logger:  logger,
	}
}

// Client is one registered connection's receive side.
type Client struct {
	id      string
	send    chan []byte
	dropped atomic.Int64
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Messages returns the client's queue. It is closed by Unregister.
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// Dropped returns how many messages were discarded because the client lagged.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// enqueue adds msg, evicting the oldest pending messages while the queue is full.
func (c *Client) enqueue(msg []byte) {
	for {
		select {
		case c.send <- msg:
			return
		default:
		}

		select {
		case <-c.send:
			c.dropped.Add(1)
			observability.RecordLaggedDrop()
		default:
		}
	}
}

// Register allocates a queue for a new connection.
func (h *Hub) Register() *Client {
	c := &Client{
		id:   uuid.NewString(),
		send: make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	observability.SetClientsConnected(n)
	h.logger.Printf("client %s registered (%d connected)", c.id, n)
	return c
}

// Unregister removes the connection and closes its queue. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		observability.SetClientsConnected(n)
		h.logger.Printf("client %s unregistered (%d connected)", id, n)
	}
}

// Broadcast queues msg for every registered client and returns how many
// clients it was queued for.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		c.enqueue(msg)
	}
	return len(h.clients)
}

// BroadcastTrade serializes t and broadcasts it.
func (h *Hub) BroadcastTrade(t *domain.Trade) (int, error) {
	msg, err := json.Marshal(t)
	if err != nil {
		return 0, fmt.Errorf("marshal trade %s: %w", t.ID, err)
	}

	n := h.Broadcast(msg)
	observability.RecordBroadcast(t.Side.String())
	if !t.IsPriceUpdate() {
		observability.RecordTradeBroadcast(t.Timestamp.Unix())
	}
	return n, nil
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SelectedPair returns the pair most recently selected by any client.
func (h *Hub) SelectedPair() string {
	h.pairMu.RLock()
	defer h.pairMu.RUnlock()
	return h.pair
}

// SetSelectedPair replaces the selection. Last writer wins.
func (h *Hub) SetSelectedPair(pair string) {
	h.pairMu.Lock()
	h.pair = pair
	h.pairMu.Unlock()
}
