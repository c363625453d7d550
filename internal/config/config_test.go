package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/synheart/synheart-recorder/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.StoreDriver != "sqlite" || cfg.StoreDSN != "recorder.db" {
		t.Errorf("store defaults = %q/%q", cfg.StoreDriver, cfg.StoreDSN)
	}
	if cfg.EventsPerSecond != 200 {
		t.Errorf("EventsPerSecond = %v", cfg.EventsPerSecond)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("RECORDER_LOG_LEVEL", "debug")
	t.Setenv("RECORDER_HTTP_ADDR", ":9999")
	t.Setenv("RECORDER_STORE_DRIVER", "postgres")
	t.Setenv("RECORDER_EVENTS_RPS", "12.5")
	t.Setenv("RECORDER_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.StoreDriver != "postgres" {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.EventsPerSecond != 12.5 {
		t.Errorf("EventsPerSecond = %v", cfg.EventsPerSecond)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"driver", "RECORDER_STORE_DRIVER", "mysql", "STORE_DRIVER"},
		{"log format", "RECORDER_LOG_FORMAT", "xml", "LOG_FORMAT"},
		{"negative rps", "RECORDER_EVENTS_RPS", "-1", "EVENTS_RPS"},
		{"unparsable rps", "RECORDER_EVENTS_RPS", "fast", "failed to parse environment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestLoadRecordingProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	profile := `record_api_calls: false
debounce_interval_ms: 50
excluded_element_types:
  - ScrollBar
sensitive_header_names:
  - X-Session
`
	if err := os.WriteFile(path, []byte(profile), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadRecordingProfile(path)
	if err != nil {
		t.Fatalf("LoadRecordingProfile() error = %v", err)
	}
	if cfg.RecordAPICalls {
		t.Error("RecordAPICalls should be false")
	}
	if cfg.DebounceIntervalMs != 50 {
		t.Errorf("DebounceIntervalMs = %d", cfg.DebounceIntervalMs)
	}
	if !cfg.IsExcluded("scrollbar", "") {
		t.Error("ScrollBar should be excluded")
	}
	if !cfg.IsSensitiveHeader("x-session") {
		t.Error("X-Session should be sensitive")
	}

	// Omitted keys keep their defaults.
	def := models.DefaultConfiguration()
	if !cfg.RecordInputEvents || cfg.MaxPayloadSize != def.MaxPayloadSize || cfg.MaskText != def.MaskText {
		t.Errorf("defaults not preserved: %+v", cfg)
	}
}

func TestParseRecordingProfile(t *testing.T) {
	cfg, err := ParseRecordingProfile(nil)
	if err != nil {
		t.Fatalf("empty profile: %v", err)
	}
	if cfg.DebounceIntervalMs != models.DefaultDebounceIntervalMs {
		t.Errorf("empty profile should yield defaults, got %+v", cfg)
	}

	if _, err := ParseRecordingProfile([]byte("record_everything: true\n")); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := ParseRecordingProfile([]byte("max_payload_size: [1]\n")); err == nil {
		t.Error("expected error for wrong type")
	}
}

func TestLoadRecordingProfile_Missing(t *testing.T) {
	if _, err := LoadRecordingProfile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteRecordingProfile_RoundTrip(t *testing.T) {
	want := models.DefaultConfiguration()
	want.ExcludedElementNames = []string{"DebugPanel"}

	var buf bytes.Buffer
	if err := WriteRecordingProfile(&buf, want); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "group_by_correlation: true") {
		t.Errorf("unexpected profile:\n%s", buf.String())
	}

	got, err := ParseRecordingProfile(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ExcludedElementNames) != 1 || got.ExcludedElementNames[0] != "DebugPanel" {
		t.Errorf("ExcludedElementNames = %v", got.ExcludedElementNames)
	}
}
