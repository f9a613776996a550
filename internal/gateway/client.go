package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 256
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed instrument codes. Empty means everything.
	subMu sync.RWMutex
	codes map[string]bool
}

// SubscribeMsg is sent by clients to narrow or widen their feed.
// Type is "SUBSCRIBE" or "UNSUBSCRIBE".
type SubscribeMsg struct {
	Type  string   `json:"type"`
	ReqID string   `json:"req_id,omitempty"`
	Codes []string `json:"codes"`
}

type ackMsg struct {
	Type  string   `json:"type"`
	ReqID string   `json:"req_id,omitempty"`
	Codes []string `json:"codes"`
}

type errorMsg struct {
	Type    string `json:"type"`
	ReqID   string `json:"req_id,omitempty"`
	Message string `json:"message"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		hub:   h,
		codes: make(map[string]bool),
	}
}

// sendJSON queues v for the client, dropping it when the queue is full.
func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// sendInitialState replays the latest value of every channel the client
// receives. When only is non-nil the replay is limited to those codes.
func (c *Client) sendInitialState(lastTS string, only map[string]bool) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		if only != nil {
			_, code, ok := parseChannel(channel)
			if !ok || !only[code] {
				continue
			}
		} else if !c.matchesChannel(channel) {
			continue
		}

		envelope, _ := json.Marshal(map[string]any{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "SUBSCRIBE", "UNSUBSCRIBE":
			var sub SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				c.sendJSON(errorMsg{Type: "error", Message: "invalid " + base.Type + ": " + err.Error()})
				continue
			}
			c.handleSubscription(sub)
		default:
			if base.Ping > 0 {
				c.sendJSON(map[string]any{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
			}
		}
	}
}

func (c *Client) handleSubscription(msg SubscribeMsg) {
	if len(msg.Codes) == 0 {
		c.sendJSON(errorMsg{Type: "error", ReqID: msg.ReqID, Message: "codes are required"})
		return
	}

	added := make(map[string]bool)
	c.subMu.Lock()
	for _, code := range msg.Codes {
		if msg.Type == "SUBSCRIBE" {
			if !c.codes[code] {
				added[code] = true
			}
			c.codes[code] = true
		} else {
			delete(c.codes, code)
		}
	}
	c.subMu.Unlock()

	log.Printf("[gateway] client %s: codes=%v", msg.Type, msg.Codes)
	c.sendJSON(ackMsg{Type: "ack", ReqID: msg.ReqID, Codes: c.Codes()})
	if len(added) > 0 {
		c.sendInitialState("", added)
	}
}

// Codes returns the client's subscribed codes.
func (c *Client) Codes() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, 0, len(c.codes))
	for code := range c.codes {
		out = append(out, code)
	}
	return out
}

// matchesChannel reports whether the client should receive a message
// published on channel. Non-instrument channels always match.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.codes) == 0 {
		return true
	}
	_, code, ok := parseChannel(channel)
	if !ok {
		return true
	}
	return c.codes[code]
}
