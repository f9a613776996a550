package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
	Initial    bool            `json:"initial"`
}

func TestBuildEnvelopeIsValidJSON(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 5, 0, 0, time.UTC)
	buf := buildEnvelope("candle:005930", []byte(`{"close":72500}`), now, 7, 3)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, buf)
	}
	if env.Channel != "candle:005930" || env.Seq != 7 || env.ChannelSeq != 3 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if string(env.Data) != `{"close":72500}` {
		t.Fatalf("data = %s", env.Data)
	}
	if env.TS != "2025-06-10T00:05:00Z" {
		t.Fatalf("ts = %s", env.TS)
	}
}

func TestParseChannel(t *testing.T) {
	cases := []struct {
		in         string
		kind, code string
		ok         bool
	}{
		{CandleChannel("005930"), KindCandle, "005930", true},
		{QuoteChannel("000660"), KindQuote, "000660", true},
		{OrderBookChannel("035720"), KindOrderBook, "035720", true},
		{DetailChannel("005930"), KindDetail, "005930", true},
		{"status", "", "", false},
		{"candle:", "", "", false},
		{"other:005930", "", "", false},
	}
	for _, c := range cases {
		kind, code, ok := parseChannel(c.in)
		if kind != c.kind || code != c.code || ok != c.ok {
			t.Errorf("parseChannel(%q) = %q, %q, %v", c.in, kind, code, ok)
		}
	}
}

func TestMatchesChannel(t *testing.T) {
	c := newClient(NewHub(), nil)
	if !c.matchesChannel(CandleChannel("005930")) {
		t.Fatal("client without codes should receive everything")
	}
	c.codes["005930"] = true
	if !c.matchesChannel(QuoteChannel("005930")) {
		t.Fatal("subscribed code should match")
	}
	if c.matchesChannel(QuoteChannel("000660")) {
		t.Fatal("unsubscribed code should not match")
	}
	if !c.matchesChannel("status") {
		t.Fatal("status channel should always match")
	}
}

func TestChannelSeqAndReplay(t *testing.T) {
	h := NewHub()
	for i := 0; i < 5; i++ {
		h.Publish(CandleChannel("005930"), map[string]int{"i": i})
	}
	h.Publish(QuoteChannel("005930"), map[string]int{"price": 1})

	if got := h.GetChannelSeq(CandleChannel("005930")); got != 5 {
		t.Fatalf("candle seq = %d, want 5", got)
	}
	if got := h.GetChannelSeq(QuoteChannel("005930")); got != 1 {
		t.Fatalf("quote seq = %d, want 1", got)
	}

	msgs := h.GetReplayRange(CandleChannel("005930"), 2, 4)
	if len(msgs) != 3 {
		t.Fatalf("replay len = %d, want 3", len(msgs))
	}
	var env envelope
	if err := json.Unmarshal(msgs[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.ChannelSeq != 2 || string(env.Data) != `{"i":1}` {
		t.Fatalf("first replayed = %+v", env)
	}

	latest, ok := h.Latest(CandleChannel("005930"))
	if !ok || string(latest) != `{"i":4}` {
		t.Fatalf("latest = %s, %v", latest, ok)
	}
	if h.GetReplayRange("candle:missing", 0, 10) != nil {
		t.Fatal("unknown channel should replay nothing")
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads one frame and splits coalesced messages.
func readFrame(t *testing.T, conn *websocket.Conn) []map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out []map[string]json.RawMessage
	for _, line := range strings.Split(string(data), "\n") {
		var m map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad message %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketSubscribeFiltersByCode(t *testing.T) {
	h := NewHub()
	mux := http.NewServeMux()
	RegisterRoutes(mux, h)
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer h.Close()

	h.Publish(CandleChannel("005930"), map[string]int{"close": 100})

	conn := dial(t, srv, "")
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	initial := readFrame(t, conn)
	if string(initial[0]["initial"]) != "true" {
		t.Fatalf("expected initial snapshot, got %v", initial[0])
	}

	if err := conn.WriteJSON(SubscribeMsg{Type: "SUBSCRIBE", ReqID: "r1", Codes: []string{"000660"}}); err != nil {
		t.Fatal(err)
	}
	ack := readFrame(t, conn)
	if string(ack[0]["type"]) != `"ack"` || string(ack[0]["req_id"]) != `"r1"` {
		t.Fatalf("ack = %v", ack[0])
	}

	h.Publish(CandleChannel("005930"), map[string]int{"close": 101})
	h.Publish(CandleChannel("000660"), map[string]int{"close": 200})

	got := readFrame(t, conn)
	if string(got[0]["channel"]) != `"candle:000660"` {
		t.Fatalf("received %s, want candle:000660", got[0]["channel"])
	}
}

func TestMissedEndpoint(t *testing.T) {
	h := NewHub()
	mux := http.NewServeMux()
	RegisterRoutes(mux, h)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for i := 0; i < 3; i++ {
		h.Publish(QuoteChannel("005930"), i)
	}

	resp, err := http.Get(srv.URL + "/api/missed?channel=quote:005930&from=2&to=3")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		CurrentSeq int64             `json:"current_seq"`
		Messages   []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.CurrentSeq != 3 || len(body.Messages) != 2 {
		t.Fatalf("current_seq=%d messages=%d", body.CurrentSeq, len(body.Messages))
	}

	bad, err := http.Get(srv.URL + "/api/missed?channel=quote:005930&from=x&to=3")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", bad.StatusCode)
	}
}
