package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"tradedash/internal/model"
)

// wireCandle is a candle as the backend sends it; prices may be text.
type wireCandle struct {
	Date   string        `json:"candle_date"`
	Time   string        `json:"candle_time"`
	Open   model.Numeric `json:"open"`
	High   model.Numeric `json:"high"`
	Low    model.Numeric `json:"low"`
	Close  model.Numeric `json:"close"`
	Volume model.Numeric `json:"volume"`
}

type candleResponse struct {
	StockCode string       `json:"stock_code"`
	Date      string       `json:"date"`
	Source    string       `json:"source"`
	Candles   []wireCandle `json:"candles"`
}

// series converts the response. Source is left empty when the backend did not
// send a recognised tag; choosing a default is up to the caller.
func (r *candleResponse) series(code string, g model.Granularity) (model.Series, error) {
	s := model.Series{StockCode: code, Date: r.Date, Granularity: g}
	if r.StockCode != "" {
		s.StockCode = r.StockCode
	}
	if src, ok := model.ParseSource(r.Source); ok {
		s.Source = src
	}
	s.Candles = make([]model.Candle, 0, len(r.Candles))
	for i, w := range r.Candles {
		c, err := w.candle()
		if err != nil {
			return model.Series{}, fmt.Errorf("api: candle %d of %s: %w", i, code, err)
		}
		if c.Date == "" {
			c.Date = r.Date
		}
		s.Candles = append(s.Candles, c)
	}
	return s, nil
}

func (w wireCandle) candle() (model.Candle, error) {
	c := model.Candle{Date: w.Date, Time: w.Time}
	for _, f := range []struct {
		dst *int64
		src model.Numeric
		tag string
	}{
		{&c.Open, w.Open, "open"},
		{&c.High, w.High, "high"},
		{&c.Low, w.Low, "low"},
		{&c.Close, w.Close, "close"},
		{&c.Volume, w.Volume, "volume"},
	} {
		v, err := f.src.Int64()
		if err != nil {
			return model.Candle{}, fmt.Errorf("%s %q: %w", f.tag, f.src, err)
		}
		*f.dst = v
	}
	return c, nil
}

func minuteGranularity(interval int) (model.Granularity, error) {
	return model.ParseGranularity(strconv.Itoa(interval))
}

func (c *Client) candles(ctx context.Context, path string, q url.Values, code string, g model.Granularity) (model.Series, error) {
	var resp candleResponse
	if err := c.get(ctx, path, q, &resp); err != nil {
		return model.Series{}, err
	}
	return resp.series(code, g)
}

// HourCandlesToday fetches today's hour candles.
func (c *Client) HourCandlesToday(ctx context.Context, code string) (model.Series, error) {
	return c.candles(ctx, "/price/candles/"+url.PathEscape(code)+"/hours/today", nil, code, model.Hour)
}

// HourCandles fetches hour candles for a date range (inclusive).
func (c *Client) HourCandles(ctx context.Context, code, startDate, endDate string) (model.Series, error) {
	q := url.Values{"start_date": {startDate}, "end_date": {endDate}}
	return c.candles(ctx, "/price/candles/"+url.PathEscape(code)+"/hours", q, code, model.Hour)
}

// MinuteCandlesToday fetches today's minute candles at interval minutes.
func (c *Client) MinuteCandlesToday(ctx context.Context, code string, interval int) (model.Series, error) {
	g, err := minuteGranularity(interval)
	if err != nil {
		return model.Series{}, err
	}
	q := url.Values{"minute_interval": {strconv.Itoa(interval)}}
	return c.candles(ctx, "/price/candles/"+url.PathEscape(code)+"/minutes/today", q, code, g)
}

// MinuteCandles fetches minute candles for a date range (inclusive).
func (c *Client) MinuteCandles(ctx context.Context, code, startDate, endDate string, interval int) (model.Series, error) {
	g, err := minuteGranularity(interval)
	if err != nil {
		return model.Series{}, err
	}
	q := url.Values{
		"start_date":      {startDate},
		"end_date":        {endDate},
		"minute_interval": {strconv.Itoa(interval)},
	}
	return c.candles(ctx, "/price/candles/"+url.PathEscape(code)+"/minutes", q, code, g)
}

// MarketStatus reports whether the session is open.
func (c *Client) MarketStatus(ctx context.Context) (model.MarketStatus, error) {
	var st model.MarketStatus
	err := c.get(ctx, "/price/market/status", nil, &st)
	return st, err
}

// SellPrice fetches the order-ticket quote for code on date.
func (c *Client) SellPrice(ctx context.Context, code, date string) (model.SellPrice, error) {
	var w struct {
		StockCode    string        `json:"stock_code"`
		CurrentPrice model.Numeric `json:"current_price"`
		OpenPrice    model.Numeric `json:"open_price"`
		IsMarketOpen bool          `json:"is_market_open"`
	}
	var q url.Values
	if date != "" {
		q = url.Values{"date": {date}}
	}
	if err := c.get(ctx, "/price/sell/"+url.PathEscape(code), q, &w); err != nil {
		return model.SellPrice{}, err
	}
	cur, err := w.CurrentPrice.Int64()
	if err != nil {
		return model.SellPrice{}, fmt.Errorf("api: sell price current_price %q: %w", w.CurrentPrice, err)
	}
	open, err := w.OpenPrice.Int64()
	if err != nil {
		return model.SellPrice{}, fmt.Errorf("api: sell price open_price %q: %w", w.OpenPrice, err)
	}
	sp := model.SellPrice{StockCode: w.StockCode, CurrentPrice: cur, OpenPrice: open, IsMarketOpen: w.IsMarketOpen}
	if sp.StockCode == "" {
		sp.StockCode = code
	}
	return sp, nil
}

// Metadata fetches static instrument information.
func (c *Client) Metadata(ctx context.Context, code string) (model.Metadata, error) {
	var m model.Metadata
	err := c.get(ctx, "/stocks/metadata", url.Values{"stock_code": {code}}, &m)
	if err == nil && m.StockCode == "" {
		m.StockCode = code
	}
	return m, err
}

// Predictions fetches the prediction list for date.
func (c *Client) Predictions(ctx context.Context, date string) (model.PredictionList, error) {
	var l model.PredictionList
	err := c.get(ctx, "/predict", url.Values{"date": {date}}, &l)
	return l, err
}
