// Package export writes candle series to files in parquet, csv or json.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tradedash/internal/model"
)

// Row is one exported candle.
type Row struct {
	StockCode   string `json:"stock_code" parquet:"stock_code"`
	Granularity string `json:"granularity" parquet:"granularity"`
	Date        string `json:"candle_date" parquet:"candle_date"`
	Time        string `json:"candle_time" parquet:"candle_time"`
	Open        int64  `json:"open" parquet:"open"`
	High        int64  `json:"high" parquet:"high"`
	Low         int64  `json:"low" parquet:"low"`
	Close       int64  `json:"close" parquet:"close"`
	Volume      int64  `json:"volume" parquet:"volume"`
	Source      string `json:"source" parquet:"source"`
}

// Rows flattens a series into export rows.
func Rows(s model.Series) []Row {
	rows := make([]Row, len(s.Candles))
	for i, c := range s.Candles {
		rows[i] = Row{
			StockCode:   s.StockCode,
			Granularity: string(s.Granularity),
			Date:        c.Date,
			Time:        c.Time,
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			Volume:      c.Volume,
			Source:      string(s.Source),
		}
	}
	return rows
}

// Saver writes rows to a file.
type Saver interface {
	Save(rows []Row, path string) error
	Extension() string
}

// NewSaver returns the saver for format (csv, parquet, json).
func NewSaver(format string) (Saver, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}, nil
	case "parquet":
		return ParquetSaver{}, nil
	case "json":
		return JSONSaver{}, nil
	}
	return nil, fmt.Errorf("export: unsupported format %q (use csv, parquet, json)", format)
}

// FileName is "{code}_{date}_{granularity}.{ext}".
func FileName(s model.Series, sv Saver) string {
	return fmt.Sprintf("%s_%s_%s.%s", s.StockCode, s.Date, s.Granularity, sv.Extension())
}

// Series writes s into dir and returns the file path. Empty series are
// rejected.
func Series(s model.Series, dir string, sv Saver) (string, error) {
	if s.Empty() {
		return "", fmt.Errorf("export %s %s: no candles", s.StockCode, s.Date)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	path := filepath.Join(dir, FileName(s, sv))
	if err := sv.Save(Rows(s), path); err != nil {
		return "", fmt.Errorf("export %s: %w", path, err)
	}
	return path, nil
}
