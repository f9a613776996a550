package normalize

import (
	"errors"
	"testing"
	"time"

	"tradedash/internal/markethours"
	"tradedash/internal/model"
)

func TestDecodeTick_TextFields(t *testing.T) {
	raw := []byte(`{
		"stock_code": "005930",
		"trade_time": "093512",
		"current_price": "71500",
		"price_change": "500",
		"price_change_rate": "0.70",
		"price_change_sign": "2",
		"accumulated_volume": "1234567",
		"volume_ratio": "85.3",
		"trade_strength": "102.4",
		"open_price": "71000",
		"high_price": "71800",
		"low_price": "70900",
		"timestamp": "2025-06-10T09:35:12"
	}`)

	tick, err := DecodeTick(raw)
	if err != nil {
		t.Fatalf("DecodeTick: %v", err)
	}
	if tick.StockCode != "005930" {
		t.Errorf("stock code: got %q", tick.StockCode)
	}
	if tick.Price != 71500 || tick.Change != 500 || tick.AccVolume != 1234567 {
		t.Errorf("price/change/volume: got %d/%d/%d", tick.Price, tick.Change, tick.AccVolume)
	}
	if tick.ChangeRate != 0.70 {
		t.Errorf("change rate: got %v", tick.ChangeRate)
	}
	if tick.Open != 71000 || tick.High != 71800 || tick.Low != 70900 {
		t.Errorf("ohl: got %d/%d/%d", tick.Open, tick.High, tick.Low)
	}
	want := time.Date(2025, 6, 10, 9, 35, 12, 0, markethours.KST)
	if !tick.TS.Equal(want) {
		t.Errorf("ts: got %v, want %v", tick.TS, want)
	}
	h, m, s, ok := tick.Clock()
	if !ok || h != 9 || m != 35 || s != 12 {
		t.Errorf("clock: got %02d:%02d:%02d ok=%v", h, m, s, ok)
	}
}

func TestDecodeTick_NumericJSON(t *testing.T) {
	tick, err := DecodeTick([]byte(`{"stock_code":"000660","current_price":182000,"price_change_rate":1.5}`))
	if err != nil {
		t.Fatalf("DecodeTick: %v", err)
	}
	if tick.Price != 182000 || tick.ChangeRate != 1.5 {
		t.Errorf("got price=%d rate=%v", tick.Price, tick.ChangeRate)
	}
	if tick.AccVolume != 0 {
		t.Errorf("missing volume should be zero, got %d", tick.AccVolume)
	}
}

func TestTick_SignAdjustsChange(t *testing.T) {
	tick, err := Tick(model.WireTick{
		StockCode:       "005930",
		CurrentPrice:    "70000",
		PriceChange:     "1000",
		PriceChangeRate: "1.41",
		PriceChangeSign: "5",
	})
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if tick.Change != -1000 || tick.ChangeRate != -1.41 {
		t.Errorf("expected negative change, got %d / %v", tick.Change, tick.ChangeRate)
	}
	if tick.Sign.Symbol(tick.Change) != "▼" {
		t.Errorf("symbol: got %q", tick.Sign.Symbol(tick.Change))
	}
}

func TestTick_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing code", `{"current_price":"100"}`, "stock_code"},
		{"missing price", `{"stock_code":"005930"}`, "current_price"},
		{"bad price", `{"stock_code":"005930","current_price":"abc"}`, "current_price"},
		{"bad rate", `{"stock_code":"005930","current_price":"1","price_change_rate":"x"}`, "price_change_rate"},
		{"NaN price", `{"stock_code":"005930","current_price":"NaN"}`, "current_price"},
		{"overflowing price", `{"stock_code":"005930","current_price":"1e30"}`, "current_price"},
		{"infinite rate", `{"stock_code":"005930","current_price":"1","price_change_rate":"Inf"}`, "price_change_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTick([]byte(tt.raw))
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fe.Field != tt.field {
				t.Errorf("field: got %s, want %s", fe.Field, tt.field)
			}
		})
	}

	if _, err := DecodeTick([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestDecodeOrderBook(t *testing.T) {
	raw := []byte(`{
		"stock_code": "005930",
		"askp1": "71600", "askp_rsqn1": "1200",
		"askp2": "71700", "askp_rsqn2": "800",
		"bidp1": "71500", "bidp_rsqn1": "3000",
		"total_askp_rsqn": "2000", "total_bidp_rsqn": "3000"
	}`)

	ob, err := DecodeOrderBook(raw)
	if err != nil {
		t.Fatalf("DecodeOrderBook: %v", err)
	}
	if ask, ok := ob.BestAsk(); !ok || ask.Price != 71600 || ask.Volume != 1200 {
		t.Errorf("best ask: got %+v ok=%v", ask, ok)
	}
	if bid, ok := ob.BestBid(); !ok || bid.Price != 71500 {
		t.Errorf("best bid: got %+v ok=%v", bid, ok)
	}
	if ob.Asks[1].Price != 71700 || ob.Asks[9].Price != 0 {
		t.Errorf("levels: got %+v", ob.Asks)
	}
	if ob.TotalAskVolume != 2000 || ob.TotalBidVolume != 3000 {
		t.Errorf("totals: got %d/%d", ob.TotalAskVolume, ob.TotalBidVolume)
	}
}
