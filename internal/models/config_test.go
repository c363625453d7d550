package models

import (
	"strings"
	"testing"
)

func TestNormalize_ReportsAndRepairs(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.MaxPayloadSize = -1
	cfg.DebounceIntervalMs = -5
	cfg.MaskText = "  "
	cfg.ExcludedElementTypes = []string{"Border", " ", "ScrollBar"}

	out, issues := cfg.Normalize()

	if out.MaxPayloadSize != DefaultMaxPayloadSize {
		t.Errorf("MaxPayloadSize = %d, want default", out.MaxPayloadSize)
	}
	if out.DebounceIntervalMs != 0 {
		t.Errorf("DebounceIntervalMs = %d, want 0", out.DebounceIntervalMs)
	}
	if out.MaskText != DefaultMaskText {
		t.Errorf("MaskText = %q, want default", out.MaskText)
	}
	if len(out.ExcludedElementTypes) != 2 {
		t.Errorf("expected blank exclusion dropped, got %v", out.ExcludedElementTypes)
	}
	if len(issues) != 3 {
		t.Errorf("expected 3 issues, got %d: %v", len(issues), issues)
	}

	// The copy must not share backing arrays with the input.
	out.ExcludedElementTypes[0] = "Changed"
	if cfg.ExcludedElementTypes[0] != "Border" {
		t.Error("Normalize must return an independent copy")
	}
}

func TestIsExcluded(t *testing.T) {
	cfg := RecordingConfiguration{
		ExcludedElementTypes: []string{"ScrollViewer"},
		ExcludedElementNames: []string{"DebugPanel"},
	}

	tests := []struct {
		elementType string
		elementName string
		want        bool
	}{
		{"ScrollViewer", "Any", true},
		{"scrollviewer", "Any", true},
		{"TextBox", "DebugPanel", true},
		{"TextBox", "UserName", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := cfg.IsExcluded(tt.elementType, tt.elementName); got != tt.want {
			t.Errorf("IsExcluded(%q, %q) = %v, want %v", tt.elementType, tt.elementName, got, tt.want)
		}
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"txtPassword", "txt password"},
		{"PINCode", "pin code"},
		{"credit_card-no", "credit card no"},
		{"Field2Value", "field 2 value"},
		{"HTTPServer", "http server"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := strings.Join(splitWords(tt.in), " "); got != tt.want {
			t.Errorf("splitWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsSensitive(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.SensitiveHeaderNames = []string{"X-Session"}

	for _, name := range []string{"LoginPasswordBox", "txtPIN", "PINCode", "CreditCardNumber", "user_password", "api-token", "txtSSN"} {
		if !cfg.IsSensitiveField(name) {
			t.Errorf("expected %q to be sensitive", name)
		}
	}
	for _, name := range []string{"UserName", "ShippingAddress", "TypingArea", "SpinnerValue", "OpinionBox", "Tokens", ""} {
		if cfg.IsSensitiveField(name) {
			t.Errorf("expected %q to be non-sensitive", name)
		}
	}
	if !cfg.IsSensitiveHeader("Authorization") {
		t.Error("expected Authorization to be sensitive")
	}
	if !cfg.IsSensitiveHeader("SET-COOKIE") {
		t.Error("expected header matching to ignore case")
	}
	if !cfg.IsSensitiveHeader("x-session") {
		t.Error("expected configured header to be sensitive")
	}
	if cfg.IsSensitiveHeader("Accept") {
		t.Error("expected Accept to be non-sensitive")
	}
}
