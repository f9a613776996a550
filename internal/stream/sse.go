package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Event is one dispatched server-sent event.
type Event struct {
	ID   string
	Name string // "message" when the server sends no event field
	Data []byte
}

const maxEventLine = 1 << 20

// readEvents parses text/event-stream framing from r and hands each complete
// event to fn. It stops when fn returns false, at EOF, or on a read error.
// A trailing event without its terminating blank line is discarded.
func readEvents(r io.Reader, fn func(Event) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var (
		name    string
		lastID  string
		data    bytes.Buffer
		hasData bool
	)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if hasData {
				ev := Event{ID: lastID, Name: name, Data: bytes.TrimSuffix(append([]byte(nil), data.Bytes()...), []byte{'\n'})}
				if ev.Name == "" {
					ev.Name = "message"
				}
				if !fn(ev) {
					return nil
				}
			}
			name = ""
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment / keep-alive
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			lastID = value
		}
	}
	return sc.Err()
}
