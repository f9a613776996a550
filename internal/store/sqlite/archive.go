// Package sqlite is the local candle archive. It keeps a copy of every
// database-provenance series the dashboard has loaded.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradedash/internal/model"
)

// Config configures the archive.
type Config struct {
	DBPath string // path to the SQLite file, e.g. "data/candles.db"
}

// Archive stores candle series in SQLite. It implements model.SeriesArchive.
type Archive struct {
	db *sql.DB

	// Metrics hook (optional, set externally)
	OnSaved func(candles int, elapsed time.Duration)
}

var _ model.SeriesArchive = (*Archive)(nil)

// DB returns the underlying sql.DB for health checks.
func (a *Archive) DB() *sql.DB { return a.db }

// Ping checks the database is reachable.
func (a *Archive) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened archive at %s", cfg.DBPath)
	return &Archive{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			stock_code  TEXT    NOT NULL,
			granularity TEXT    NOT NULL,
			candle_date TEXT    NOT NULL,
			candle_time TEXT    NOT NULL,
			open        INTEGER NOT NULL,
			high        INTEGER NOT NULL,
			low         INTEGER NOT NULL,
			close       INTEGER NOT NULL,
			volume      INTEGER NOT NULL DEFAULT 0,
			source      TEXT    NOT NULL,
			saved_at    INTEGER NOT NULL,
			PRIMARY KEY (stock_code, granularity, candle_date, candle_time)
		);

		CREATE INDEX IF NOT EXISTS idx_candles_date ON candles (candle_date);
	`)
	return err
}

// SaveSeries upserts every candle of s in one transaction.
func (a *Archive) SaveSeries(ctx context.Context, s model.Series) error {
	if s.Empty() {
		return nil
	}
	start := time.Now()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles
			(stock_code, granularity, candle_date, candle_time, open, high, low, close, volume, source, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, c := range s.Candles {
		date := c.Date
		if date == "" {
			date = s.Date
		}
		_, err := stmt.ExecContext(ctx, s.StockCode, string(s.Granularity), date, c.Time,
			c.Open, c.High, c.Low, c.Close, c.Volume, string(s.Source), now)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert %s %s: %w", s.StockCode, c.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if a.OnSaved != nil {
		a.OnSaved(len(s.Candles), time.Since(start))
	}
	log.Printf("[sqlite] archived %d %s candles for %s %s in %v",
		len(s.Candles), s.Granularity, s.StockCode, s.Date, time.Since(start))
	return nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
