package stream

import (
	"strings"
	"testing"
)

func TestReadEvents_Framing(t *testing.T) {
	raw := strings.Join([]string{
		": keep-alive",
		"event: price_update",
		"id: 7",
		`data: {"a":1,`,
		`data: "b":2}`,
		"",
		"data: plain",
		"",
		"event: ignored",
		"data: never dispatched",
	}, "\n")

	var got []Event
	err := readEvents(strings.NewReader(raw), func(ev Event) bool {
		got = append(got, ev)
		return true
	})
	if err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(got), got)
	}
	if got[0].Name != "price_update" || got[0].ID != "7" {
		t.Errorf("first event header: %+v", got[0])
	}
	if string(got[0].Data) != "{\"a\":1,\n\"b\":2}" {
		t.Errorf("multi-line data: got %q", got[0].Data)
	}
	if got[1].Name != "message" || string(got[1].Data) != "plain" || got[1].ID != "7" {
		t.Errorf("second event: %+v", got[1])
	}
}

func TestReadEvents_StopsWhenHandlerDeclines(t *testing.T) {
	raw := "data: 1\n\ndata: 2\n\ndata: 3\n\n"
	n := 0
	readEvents(strings.NewReader(raw), func(Event) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Errorf("expected handler to run twice, ran %d", n)
	}
}

func TestReadEvents_CRLF(t *testing.T) {
	raw := "event: price_update\r\ndata: x\r\n\r\n"
	var got []Event
	readEvents(strings.NewReader(raw), func(ev Event) bool {
		got = append(got, ev)
		return true
	})
	if len(got) != 1 || got[0].Name != "price_update" || string(got[0].Data) != "x" {
		t.Errorf("unexpected events: %+v", got)
	}
}
