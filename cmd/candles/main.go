// cmd/candles fetches, archives, exports and renders candle series from the
// trading backend without starting the dashboard server.
//
// Usage:
//
//	go run ./cmd/candles fetch  -code=005930 -date=2026-03-03 -interval=hour
//	go run ./cmd/candles export -code=005930 -date=2026-03-03 -format=parquet
//	go run ./cmd/candles svg    -code=005930 -interval=1m -target=76000 -out=chart.svg
//	go run ./cmd/candles dates  -code=005930 -interval=hour
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradedash/config"
	"tradedash/internal/api"
	"tradedash/internal/chart"
	"tradedash/internal/export"
	"tradedash/internal/fetcher"
	"tradedash/internal/markethours"
	"tradedash/internal/model"
	sqlitestore "tradedash/internal/store/sqlite"
)

const usage = `usage: candles <command> [flags]

commands:
  fetch   fetch a series from the backend and archive it
  export  write a series to csv, parquet or json
  svg     render a series as an SVG candlestick chart
  dates   list archived dates for an instrument`

// common are the flags every subcommand takes.
type common struct {
	code     string
	date     string
	interval string
	db       string
	offline  bool
}

func (c *common) bind(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&c.code, "code", "", "Stock code (required)")
	fs.StringVar(&c.date, "date", "", "Trading date YYYY-MM-DD (default: today, KST)")
	fs.StringVar(&c.interval, "interval", "hour", "Granularity: hour, 1m, 10m, 30m, 60m")
	fs.StringVar(&c.db, "db", cfg.SQLite.Path, "Path to SQLite archive")
	fs.BoolVar(&c.offline, "offline", false, "Read from the archive only")
}

func (c *common) granularity() (model.Granularity, error) {
	if c.code == "" {
		return "", errors.New("-code is required")
	}
	if c.date == "" {
		c.date = markethours.Today(time.Now())
	}
	return model.ParseGranularity(c.interval)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[candles] config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "fetch":
		err = runFetch(ctx, cfg, args)
	case "export":
		err = runExport(ctx, cfg, args)
	case "svg":
		err = runSVG(ctx, cfg, args)
	case "dates":
		err = runDates(ctx, cfg, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("[candles] %s: %v", cmd, err)
	}
}

func runFetch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var c common
	c.bind(fs, cfg)
	fs.Parse(args)

	s, err := load(ctx, cfg, c)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s: %d candles (source=%s)\n", s.StockCode, s.Date, s.Granularity, len(s.Candles), s.Source)
	for _, cd := range s.Candles {
		fmt.Printf("  %s %s  O=%s H=%s L=%s C=%s V=%d\n", cd.Date, cd.Time,
			chart.FormatPrice(cd.Open), chart.FormatPrice(cd.High),
			chart.FormatPrice(cd.Low), chart.FormatPrice(cd.Close), cd.Volume)
	}
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var c common
	c.bind(fs, cfg)
	format := fs.String("format", "parquet", "Output format: csv, parquet, json")
	dir := fs.String("dir", cfg.Export.Dir, "Output directory")
	fs.Parse(args)

	sv, err := export.NewSaver(*format)
	if err != nil {
		return err
	}
	s, err := load(ctx, cfg, c)
	if err != nil {
		return err
	}
	path, err := export.Series(s, *dir, sv)
	if err != nil {
		return err
	}
	log.Printf("[candles] wrote %d candles to %s", len(s.Candles), path)
	return nil
}

func runSVG(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("svg", flag.ExitOnError)
	var c common
	c.bind(fs, cfg)
	out := fs.String("out", "", "Output file (default: stdout)")
	width := fs.Int("width", 0, "Chart width in pixels")
	height := fs.Int("height", 0, "Chart height in pixels")
	var ref chart.RefPrices
	fs.Int64Var(&ref.Target, "target", 0, "Target price line")
	fs.Int64Var(&ref.Stop, "stop", 0, "Stop-loss price line")
	fs.Int64Var(&ref.Buy, "buy", 0, "Buy price line")
	fs.Parse(args)

	s, err := load(ctx, cfg, c)
	if err != nil {
		return err
	}

	opts := chart.DefaultOptions()
	if *width > 0 {
		opts.Width = *width
	}
	if *height > 0 {
		opts.Height = *height
	}
	ch := chart.New(opts)
	defer ch.Destroy()
	if err := ch.Mount(); err != nil {
		return err
	}
	if err := ch.SetData(s, ref); err != nil {
		return err
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return ch.Render(w)
}

func runDates(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("dates", flag.ExitOnError)
	var c common
	c.bind(fs, cfg)
	fs.Parse(args)

	g, err := c.granularity()
	if err != nil {
		return err
	}
	archive, err := sqlitestore.New(sqlitestore.Config{DBPath: c.db})
	if err != nil {
		return err
	}
	defer archive.Close()

	dates, err := archive.Dates(ctx, c.code, g)
	if err != nil {
		return err
	}
	for _, d := range dates {
		fmt.Println(d)
	}
	return nil
}

// load reads the series from the archive when it is there (or -offline is
// set) and fetches it from the backend otherwise. Fetched database series
// are archived on the way.
func load(ctx context.Context, cfg *config.Config, c common) (model.Series, error) {
	g, err := c.granularity()
	if err != nil {
		return model.Series{}, err
	}
	archive, err := sqlitestore.New(sqlitestore.Config{DBPath: c.db})
	if err != nil {
		return model.Series{}, err
	}
	defer archive.Close()

	if !markethours.IsToday(c.date, time.Now()) || c.offline {
		s, err := archive.LoadSeries(ctx, c.code, c.date, g)
		if err != nil {
			return model.Series{}, err
		}
		if !s.Empty() || c.offline {
			return s, nil
		}
	}

	client := api.NewClient(api.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		TOTPSecret:        cfg.API.TOTPSecret,
	})
	if cfg.API.Nickname != "" {
		if _, err := client.Login(ctx, cfg.API.Nickname, cfg.API.Password); err != nil {
			return model.Series{}, fmt.Errorf("login: %w", err)
		}
	}
	return fetcher.New(client, archive).Fetch(ctx, c.code, c.date, g)
}
