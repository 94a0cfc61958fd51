package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"awdw/internal/storage"
)

// EnvPrefix prefixes every environment override. AWDW_SINK__DSN=... overrides sink.dsn.
const EnvPrefix = "AWDW_"

// DateLayout is the layout for dates.start / dates.end.
const DateLayout = "2006-01-02"

// Config is the top-level configuration for a warehouse run.
type Config struct {
	Source    StoreConfig     `koanf:"source"`
	Sink      StoreConfig     `koanf:"sink"`
	Dates     DatesConfig     `koanf:"dates"`
	Sales     SalesConfig     `koanf:"sales"`
	Purchases PurchasesConfig `koanf:"purchases"`
	Products  ProductsConfig  `koanf:"products"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
}

// StoreConfig describes one relational store (the OLTP source or the warehouse sink).
type StoreConfig struct {
	Kind   string            `koanf:"kind"`
	DSN    string            `koanf:"dsn"`
	Attach map[string]string `koanf:"attach"`

	// Schema holds the warehouse tables. Only read for the sink.
	Schema string `koanf:"schema"`
}

// Storage returns the storage.Config used to open this store.
func (s StoreConfig) Storage() storage.Config {
	return storage.Config{Kind: s.Kind, DSN: s.DSN, Attach: s.Attach}
}

// DatesConfig bounds the generated date dimension (inclusive, YYYY-MM-DD).
type DatesConfig struct {
	Start string `koanf:"start"`
	End   string `koanf:"end"`
}

// Range parses Start and End.
func (d DatesConfig) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, strings.TrimSpace(d.Start))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("dates.start: %w", err)
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(d.End))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("dates.end: %w", err)
	}
	return start, end, nil
}

type SalesConfig struct {
	// BatchSize is the number of order lines committed together with the watermark.
	BatchSize int `koanf:"batch_size"`
}

type PurchasesConfig struct {
	// Truncate empties fact_purchases before a single-step purchases run.
	// Full loads always truncate.
	Truncate bool `koanf:"truncate"`
}

type ProductsConfig struct {
	IncludeDiscontinued bool `koanf:"include_discontinued"`
}

type MetricsConfig struct {
	Backend    string `koanf:"backend"`     // "none" or "datadog"
	Tags       string `koanf:"tags"`        // comma-separated Datadog tags
	FlushEvery string `koanf:"flush_every"` // time.Duration string
}

// FlushInterval parses FlushEvery; an empty value means the backend default.
func (m MetricsConfig) FlushInterval() (time.Duration, error) {
	if strings.TrimSpace(m.FlushEvery) == "" {
		return 0, nil
	}
	return time.ParseDuration(m.FlushEvery)
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// Defaults returns the baseline values applied before the file and environment.
func Defaults() map[string]any {
	return map[string]any{
		"source.kind":                   "postgres",
		"sink.kind":                     "postgres",
		"sink.schema":                   "dw",
		"dates.start":                   "2000-01-01",
		"dates.end":                     "2015-12-31",
		"sales.batch_size":              1000,
		"purchases.truncate":            true,
		"products.include_discontinued": true,
		"metrics.backend":               "none",
		"metrics.flush_every":           "60s",
		"log.level":                     "info",
		"log.format":                    "json",
	}
}

// Load builds a Config from defaults, the optional YAML file at path, and
// AWDW_* environment variables, in that order of precedence (last wins).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	// 2. File
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// 3. Environment: AWDW_SOURCE__DSN -> source.dsn
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
