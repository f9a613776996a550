package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RegisterRoutes mounts the live gateway on mux:
//
//	GET /ws?last_ts=...                       live envelopes
//	GET /api/missed?channel=...&from=..&to=.. buffered envelopes for gap fill
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade: %v", err)
			return
		}
		hub.Register(conn, r.URL.Query().Get("last_ts"))
	})

	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || err1 != nil || err2 != nil || from > to {
			http.Error(w, "channel, from and to are required", http.StatusBadRequest)
			return
		}

		entries := hub.GetReplayRange(channel, from, to)
		out := make([]json.RawMessage, 0, len(entries))
		for _, e := range entries {
			out = append(out, e)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"channel":     channel,
			"current_seq": hub.GetChannelSeq(channel),
			"messages":    out,
		})
	})
}
