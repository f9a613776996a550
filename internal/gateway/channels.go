package gateway

import "strings"

// Channel kinds published to browser clients.
const (
	KindCandle    = "candle"
	KindQuote     = "quote"
	KindOrderBook = "orderbook"
	KindDetail    = "detail"
)

// CandleChannel carries chart bucket patches for one instrument.
func CandleChannel(code string) string { return KindCandle + ":" + code }

// QuoteChannel carries normalized ticks for one instrument.
func QuoteChannel(code string) string { return KindQuote + ":" + code }

// OrderBookChannel carries asking-price snapshots for one instrument.
func OrderBookChannel(code string) string { return KindOrderBook + ":" + code }

// DetailChannel carries detail-panel state for one instrument.
func DetailChannel(code string) string { return KindDetail + ":" + code }

// parseChannel splits "kind:code". Channels without a code, such as
// "status", are not instrument data.
func parseChannel(channel string) (kind, code string, ok bool) {
	kind, code, found := strings.Cut(channel, ":")
	if !found || code == "" {
		return "", "", false
	}
	switch kind {
	case KindCandle, KindQuote, KindOrderBook, KindDetail:
		return kind, code, true
	}
	return "", "", false
}
