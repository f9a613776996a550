package export

import (
	"encoding/csv"
	"os"
	"strconv"
)

var csvHeader = []string{
	"stock_code", "granularity", "candle_date", "candle_time",
	"open", "high", "low", "close", "volume", "source",
}

// CSVSaver writes rows as CSV with a header line.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(rows []Row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write(csvHeader)
	for _, r := range rows {
		w.Write([]string{
			r.StockCode, r.Granularity, r.Date, r.Time,
			strconv.FormatInt(r.Open, 10),
			strconv.FormatInt(r.High, 10),
			strconv.FormatInt(r.Low, 10),
			strconv.FormatInt(r.Close, 10),
			strconv.FormatInt(r.Volume, 10),
			r.Source,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
