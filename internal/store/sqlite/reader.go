package sqlite

import (
	"context"
	"fmt"

	"tradedash/internal/model"
)

// LoadSeries reads an archived series ordered by bucket time. A series with
// no rows comes back with SourceNone.
func (a *Archive) LoadSeries(ctx context.Context, code, date string, g model.Granularity) (model.Series, error) {
	s := model.Series{StockCode: code, Date: date, Granularity: g, Source: model.SourceNone}

	rows, err := a.db.QueryContext(ctx, `
		SELECT candle_date, candle_time, open, high, low, close, volume, source
		FROM candles
		WHERE stock_code = ? AND granularity = ? AND candle_date = ?
		ORDER BY candle_time ASC
	`, code, string(g), date)
	if err != nil {
		return s, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c model.Candle
		var src string
		if err := rows.Scan(&c.Date, &c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &src); err != nil {
			return s, fmt.Errorf("sqlite scan candles: %w", err)
		}
		if parsed, ok := model.ParseSource(src); ok {
			s.Source = parsed
		}
		s.Candles = append(s.Candles, c)
	}
	return s, rows.Err()
}

// Dates lists the archived dates for code at granularity g, newest first.
func (a *Archive) Dates(ctx context.Context, code string, g model.Granularity) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT DISTINCT candle_date FROM candles
		WHERE stock_code = ? AND granularity = ?
		ORDER BY candle_date DESC
	`, code, string(g))
	if err != nil {
		return nil, fmt.Errorf("sqlite query dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("sqlite scan dates: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
