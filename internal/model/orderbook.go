package model

// Depth is the number of price levels per side in an asking-price snapshot.
const Depth = 10

// Level is one order-book price level.
type Level struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
}

// OrderBook is a normalized asking_price_update snapshot. Level 0 is the
// best price on each side; absent levels are zero.
type OrderBook struct {
	StockCode      string       `json:"stock_code"`
	Asks           [Depth]Level `json:"asks"`
	Bids           [Depth]Level `json:"bids"`
	TotalAskVolume int64        `json:"total_ask_volume"`
	TotalBidVolume int64        `json:"total_bid_volume"`
}

// BestAsk returns the lowest ask, if any.
func (o *OrderBook) BestAsk() (Level, bool) {
	if o.Asks[0].Price <= 0 {
		return Level{}, false
	}
	return o.Asks[0], true
}

// BestBid returns the highest bid, if any.
func (o *OrderBook) BestBid() (Level, bool) {
	if o.Bids[0].Price <= 0 {
		return Level{}, false
	}
	return o.Bids[0], true
}
