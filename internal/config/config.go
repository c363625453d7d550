// Package config loads process settings from the environment and
// recording profiles from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/synheart/synheart-recorder/internal/models"
	"gopkg.in/yaml.v3"
)

const envPrefix = "RECORDER_"

// Config holds the process configuration.
type Config struct {
	LogLevel         string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string  `env:"LOG_FORMAT" envDefault:"text"`
	HTTPAddr         string  `env:"HTTP_ADDR" envDefault:"127.0.0.1:8790"`
	DashboardWSAddr  string  `env:"DASHBOARD_WS_ADDR"`
	DashboardSSEAddr string  `env:"DASHBOARD_SSE_ADDR"`
	Token            string  `env:"TOKEN"`
	StoreDriver      string  `env:"STORE_DRIVER" envDefault:"sqlite"`
	StoreDSN         string  `env:"STORE_DSN" envDefault:"recorder.db"`
	JournalPath      string  `env:"JOURNAL_PATH"`
	RedisURL         string  `env:"REDIS_URL"`
	RedisStream      string  `env:"REDIS_STREAM" envDefault:"recorder_events"`
	EventsPerSecond  float64 `env:"EVENTS_RPS" envDefault:"200"`
	Profile          string  `env:"PROFILE"`
	AppName          string  `env:"APP_NAME" envDefault:"synheart-recorder"`
	AppVersion       string  `env:"APP_VERSION"`
}

// Load reads RECORDER_* variables, after loading .env when present.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "sqlite", "postgres", "":
	default:
		errs = append(errs, fmt.Errorf("%sSTORE_DRIVER: unsupported driver %q (sqlite, postgres)", envPrefix, c.StoreDriver))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%sLOG_FORMAT: unsupported format %q (text, json)", envPrefix, c.LogFormat))
	}
	if c.EventsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("%sEVENTS_RPS: must not be negative", envPrefix))
	}
	return errors.Join(errs...)
}

// LoadRecordingProfile reads a YAML recording profile. Settings the file
// omits keep their defaults. Unknown keys are rejected.
func LoadRecordingProfile(path string) (models.RecordingConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.RecordingConfiguration{}, fmt.Errorf("failed to read profile: %w", err)
	}
	cfg, err := ParseRecordingProfile(data)
	if err != nil {
		return models.RecordingConfiguration{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func ParseRecordingProfile(data []byte) (models.RecordingConfiguration, error) {
	cfg := models.DefaultConfiguration()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return models.RecordingConfiguration{}, fmt.Errorf("failed to parse profile: %w", err)
	}
	return cfg, nil
}

// WriteRecordingProfile renders cfg as a YAML profile.
func WriteRecordingProfile(w io.Writer, cfg models.RecordingConfiguration) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return enc.Close()
}
