package models

import (
	"strings"
	"time"
	"unicode"
)

const (
	DefaultMaxPayloadSize     = 1024 * 1024
	DefaultDebounceIntervalMs = 300
	DefaultMaskText           = "********"
)

// DefaultSensitiveHeaders are always masked by HTTP capture.
var DefaultSensitiveHeaders = []string{
	"authorization",
	"x-api-key",
	"api-key",
	"x-auth-token",
	"cookie",
	"set-cookie",
	"x-csrf-token",
}

// RecordingConfiguration controls what is captured and how. A Session keeps
// its own normalized copy taken at Start; it is never mutated afterwards.
type RecordingConfiguration struct {
	RecordInputEvents  bool `json:"recordInputEvents" yaml:"record_input_events"`
	RecordCommands     bool `json:"recordCommands" yaml:"record_commands"`
	RecordAPICalls     bool `json:"recordApiCalls" yaml:"record_api_calls"`
	CaptureAPIPayloads bool `json:"captureApiPayloads" yaml:"capture_api_payloads"`
	RecordNavigation   bool `json:"recordNavigation" yaml:"record_navigation"`
	RecordWindowEvents bool `json:"recordWindowEvents" yaml:"record_window_events"`

	MaxPayloadSize     int `json:"maxPayloadSize" yaml:"max_payload_size"`
	DebounceIntervalMs int `json:"debounceIntervalMs" yaml:"debounce_interval_ms"`

	ExcludedElementTypes []string `json:"excludedElementTypes" yaml:"excluded_element_types"`
	ExcludedElementNames []string `json:"excludedElementNames" yaml:"excluded_element_names"`
	SensitiveFieldNames  []string `json:"sensitiveFieldNames" yaml:"sensitive_field_names"`
	SensitiveHeaderNames []string `json:"sensitiveHeaderNames" yaml:"sensitive_header_names"`
	MaskText             string   `json:"maskText" yaml:"mask_text"`

	// GroupByCorrelation controls test-case grouping in generated code.
	GroupByCorrelation bool `json:"groupByCorrelation" yaml:"group_by_correlation"`
}

// DefaultConfiguration captures everything with conservative limits.
func DefaultConfiguration() RecordingConfiguration {
	return RecordingConfiguration{
		RecordInputEvents:  true,
		RecordCommands:     true,
		RecordAPICalls:     true,
		CaptureAPIPayloads: true,
		RecordNavigation:   true,
		RecordWindowEvents: true,
		MaxPayloadSize:     DefaultMaxPayloadSize,
		DebounceIntervalMs: DefaultDebounceIntervalMs,
		SensitiveFieldNames: []string{
			"password", "passwd", "secret", "pin", "token", "creditcard", "ssn",
		},
		MaskText:           DefaultMaskText,
		GroupByCorrelation: true,
	}
}

// Normalize returns an independent copy with malformed settings replaced
// or dropped. Each adjustment is reported; recording proceeds regardless.
func (c RecordingConfiguration) Normalize() (RecordingConfiguration, []ValidationError) {
	var issues []ValidationError
	out := c

	if out.MaxPayloadSize <= 0 {
		issues = append(issues, ValidationError{Field: "maxPayloadSize", Message: "must be positive, using default"})
		out.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if out.DebounceIntervalMs < 0 {
		issues = append(issues, ValidationError{Field: "debounceIntervalMs", Message: "must not be negative, debounce disabled"})
		out.DebounceIntervalMs = 0
	}
	if strings.TrimSpace(out.MaskText) == "" {
		out.MaskText = DefaultMaskText
	}

	out.ExcludedElementTypes = cleanList("excludedElementTypes", c.ExcludedElementTypes, &issues)
	out.ExcludedElementNames = cleanList("excludedElementNames", c.ExcludedElementNames, &issues)
	out.SensitiveFieldNames = cleanList("sensitiveFieldNames", c.SensitiveFieldNames, &issues)
	out.SensitiveHeaderNames = cleanList("sensitiveHeaderNames", c.SensitiveHeaderNames, &issues)

	return out, issues
}

func cleanList(field string, in []string, issues *[]ValidationError) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			*issues = append(*issues, ValidationError{Field: field, Message: "blank entry ignored"})
			continue
		}
		out = append(out, v)
	}
	return out
}

// DebounceInterval returns the debounce window as a duration.
func (c RecordingConfiguration) DebounceInterval() time.Duration {
	return time.Duration(c.DebounceIntervalMs) * time.Millisecond
}

// IsExcluded reports whether an element is excluded by type or name.
func (c RecordingConfiguration) IsExcluded(elementType, elementName string) bool {
	return containsFold(c.ExcludedElementTypes, elementType) || containsFold(c.ExcludedElementNames, elementName)
}

// IsSensitiveField reports whether an element name contains one of the
// configured sensitive field names as whole words. Names are split on case
// changes, digits and separators, so "txtPassword" and "credit_card_no"
// match while "SpinnerValue" does not match "pin".
func (c RecordingConfiguration) IsSensitiveField(name string) bool {
	words := splitWords(name)
	if len(words) == 0 {
		return false
	}
	for _, s := range c.SensitiveFieldNames {
		if containsWordRun(words, strings.Join(splitWords(s), "")) {
			return true
		}
	}
	return false
}

// containsWordRun reports whether consecutive words join to want.
func containsWordRun(words []string, want string) bool {
	if want == "" {
		return false
	}
	for i := range words {
		joined := ""
		for _, w := range words[i:] {
			joined += w
			if joined == want {
				return true
			}
			if len(joined) >= len(want) {
				break
			}
		}
	}
	return false
}

// splitWords lowercases name and splits it into words at separators,
// letter/digit changes and camelCase boundaries. An acronym keeps its
// letters together: "PINCode" yields "pin", "code".
func splitWords(name string) []string {
	runes := []rune(name)
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && len(cur) > 0 {
			prev := runes[i-1]
			switch {
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsLower(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush()
			}
		}
		cur = append(cur, unicode.ToLower(r))
	}
	flush()
	return words
}

// IsSensitiveHeader reports whether a header name must be masked.
func (c RecordingConfiguration) IsSensitiveHeader(name string) bool {
	return containsFold(DefaultSensitiveHeaders, name) || containsFold(c.SensitiveHeaderNames, name)
}

func containsFold(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
