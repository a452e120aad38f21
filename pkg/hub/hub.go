package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-arlens/internal/log"
	"go.opentelemetry.io/otel/metric"
)

// Options configures a Hub.
type Options struct {
	Logger *slog.Logger

	// Replay sends the most recent broadcast to clients as they connect,
	// so a late joiner does not wait for the next change.
	Replay bool

	// Clients, when set, tracks the connected client count.
	Clients metric.Int64UpDownCounter

	// OnMessage, when set, handles each message a client sends. A non-nil
	// return is written back to that client only. It runs on the client's
	// read goroutine.
	OnMessage func(data []byte) (reply []byte)
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name string
	opts Options
	log  *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Guards clients and latest for readers outside Run
	mu     sync.RWMutex
	latest *Message

	running bool
}

// New creates a new Hub
func New(name string, opts Options) *Hub {
	return &Hub{
		name:       name,
		opts:       opts,
		log:        log.Or(opts.Logger, "hub").With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			latest := h.latest
			h.mu.Unlock()
			if latest != nil && h.opts.Replay {
				client.send <- *latest
			}
			h.track(ctx, 1)
			h.log.Info("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.remove(ctx, client)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			h.latest = &message
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow reader: drop it rather than stall everyone.
					h.remove(ctx, client)
					h.log.Warn("dropped slow client", "clients", len(h.clients))
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(ctx context.Context, client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.track(ctx, -1)
}

func (h *Hub) track(ctx context.Context, delta int64) {
	if h.opts.Clients != nil {
		h.opts.Clients.Add(ctx, delta)
	}
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.remove(context.Background(), client)
	}
	h.running = false
	close(h.done)
}

// Broadcast sends a message to all connected clients. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
