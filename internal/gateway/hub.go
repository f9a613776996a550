// Package gateway re-publishes live dashboard state to browser clients over
// WebSocket. Each message is an envelope {"channel","data","ts","seq",
// "channel_seq"} where channel is "kind:code", e.g. "candle:005930".
// Clients narrow what they receive with SUBSCRIBE messages.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradedash/internal/ringbuf"
)

const defaultReplayDepth = 500

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

type replayEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

type replayBuffer = ringbuf.Ring[replayEntry]

func newReplayBuffer(depth int) *replayBuffer {
	return ringbuf.New[replayEntry](depth)
}

// Hub tracks WebSocket clients and the latest value of every channel.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*replayBuffer
	replayDepth int

	Broadcaster *Broadcaster

	// Metrics hooks (optional, set externally)
	OnClientCount func(n int)
	OnDropped     func()
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*replayBuffer),
		replayDepth: defaultReplayDepth,
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Publish marshals v and broadcasts it on channel.
func (h *Hub) Publish(channel string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal %s: %v", channel, err)
		return
	}
	h.Broadcaster.Broadcast(channel, data)
}

// Register attaches an upgraded connection and starts its pumps. lastTS
// (RFC3339Nano) limits the initial snapshot to newer values.
func (h *Hub) Register(conn *websocket.Conn, lastTS string) *Client {
	client := newClient(h, conn)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	client.sendInitialState(lastTS, nil)
	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// Latest returns the latest payload published on channel.
func (h *Hub) Latest(channel string) (json.RawMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[channel]
	return e.Data, ok
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	var out [][]byte
	for _, e := range rb.Snapshot() {
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e.Data)
		}
	}
	return out
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartStatusBroadcast publishes status() on the "status" channel every
// interval until ctx is cancelled.
func (h *Hub) StartStatusBroadcast(ctx context.Context, interval time.Duration, status func() any) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Publish("status", status())
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}
}
