package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"tradedash/internal/model"
)

func sampleSeries() model.Series {
	return model.Series{
		StockCode:   "005930",
		Date:        "2025-06-10",
		Granularity: model.Minute10,
		Source:      model.SourceDatabase,
		Candles: []model.Candle{
			{Date: "2025-06-10", Time: "09:00:00", Open: 100, High: 110, Low: 95, Close: 105, Volume: 1000},
			{Date: "2025-06-10", Time: "09:10:00", Open: 105, High: 108, Low: 101, Close: 102, Volume: 700},
		},
	}
}

func TestNewSaver(t *testing.T) {
	for _, f := range []string{"csv", "PARQUET", " json "} {
		if _, err := NewSaver(f); err != nil {
			t.Errorf("NewSaver(%q): %v", f, err)
		}
	}
	if _, err := NewSaver("xlsx"); err == nil {
		t.Error("expected error for xlsx")
	}
}

func TestParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := Series(sampleSeries(), dir, ParquetSaver{})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "005930_2025-06-10_10m.parquet" {
		t.Fatalf("path = %s", path)
	}
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1].Time != "09:10:00" || rows[0].High != 110 || rows[0].Source != "database" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestCSVHeaderAndRows(t *testing.T) {
	path, err := Series(sampleSeries(), t.TempDir(), CSVSaver{})
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || recs[0][0] != "stock_code" || recs[2][4] != "105" {
		t.Fatalf("records = %v", recs)
	}
}

func TestJSONRows(t *testing.T) {
	path, err := Series(sampleSeries(), t.TempDir(), JSONSaver{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].StockCode != "005930" || rows[1].Volume != 700 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestEmptySeriesRejected(t *testing.T) {
	s := sampleSeries()
	s.Candles = nil
	if _, err := Series(s, t.TempDir(), JSONSaver{}); err == nil {
		t.Fatal("expected error for empty series")
	}
}
