// Package config loads dashboard settings from an optional YAML file
// (DASHBOARD_CONFIG) with environment variable overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	API struct {
		BaseURL           string        `yaml:"base_url"`
		Nickname          string        `yaml:"nickname"`
		Password          string        `yaml:"password"`
		TOTPSecret        string        `yaml:"totp_secret"`
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
	} `yaml:"api"`
	Redis struct {
		Addr      string        `yaml:"addr"` // empty: in-process metadata cache
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		KeyPrefix string        `yaml:"key_prefix"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"redis"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Server struct {
		Addr        string `yaml:"addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`
	Session struct {
		PollCron string `yaml:"poll_cron"`
	} `yaml:"session"`
	Stream struct {
		Buffer       int `yaml:"buffer"`
		HistoryDepth int `yaml:"history_depth"`
	} `yaml:"stream"`
	Export struct {
		Dir string `yaml:"dir"`
	} `yaml:"export"`
	LogLevel string `yaml:"log_level"`
}

// Load reads the file named by DASHBOARD_CONFIG (if any), then applies
// environment overrides and defaults.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("DASHBOARD_CONFIG"))
}

// LoadFile is Load with an explicit path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrideString(&c.API.BaseURL, "API_BASE_URL")
	overrideString(&c.API.Nickname, "API_NICKNAME")
	overrideString(&c.API.Password, "API_PASSWORD")
	overrideString(&c.API.TOTPSecret, "API_TOTP_SECRET")
	overrideString(&c.Redis.Addr, "REDIS_ADDR")
	overrideString(&c.Redis.Password, "REDIS_PASSWORD")
	overrideString(&c.SQLite.Path, "SQLITE_PATH")
	overrideString(&c.Server.Addr, "HTTP_ADDR")
	overrideString(&c.Server.MetricsAddr, "METRICS_ADDR")
	overrideString(&c.Session.PollCron, "SESSION_POLL_CRON")
	overrideString(&c.Export.Dir, "EXPORT_DIR")
	overrideString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("API_TIMEOUT: %w", err)
		}
		c.API.Timeout = d
	}
	if v := os.Getenv("API_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("API_RPS: %w", err)
		}
		c.API.RequestsPerSecond = f
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.API.BaseURL, "http://localhost:8000/api/v1")
	setDefault(&c.Redis.KeyPrefix, "meta:")
	setDefault(&c.SQLite.Path, "data/candles.db")
	setDefault(&c.Server.Addr, ":8080")
	setDefault(&c.Server.MetricsAddr, ":9090")
	setDefault(&c.Session.PollCron, "*/30 * * * * *")
	setDefault(&c.Export.Dir, "data/export")
	setDefault(&c.LogLevel, "info")
	if c.API.Timeout == 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.API.RequestsPerSecond == 0 {
		c.API.RequestsPerSecond = 10
	}
	if c.API.Burst == 0 {
		c.API.Burst = 5
	}
	if c.Stream.Buffer == 0 {
		c.Stream.Buffer = 256
	}
	if c.Stream.HistoryDepth == 0 {
		c.Stream.HistoryDepth = 600
	}
}

// Validate checks that required fields are set and values are usable.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.Nickname == "" || c.API.Password == "" {
		errs = append(errs, errors.New("api.nickname and api.password are required"))
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("api.requests_per_second must not be negative"))
	}
	if c.API.Burst < 1 {
		errs = append(errs, errors.New("api.burst must be at least 1"))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, errors.New("api.timeout must not be negative"))
	}
	if c.Stream.Buffer < 1 || c.Stream.HistoryDepth < 1 {
		errs = append(errs, errors.New("stream.buffer and stream.history_depth must be positive"))
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.Session.PollCron); err != nil {
		errs = append(errs, fmt.Errorf("session.poll_cron: %w", err))
	}
	return errors.Join(errs...)
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDefault(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}
