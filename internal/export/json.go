package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

// FormatVersion identifies the layout of structured exports.
const FormatVersion = "1.0"

// Document is the structured-data export layout shared by the json, yaml,
// protobuf and plugin exporters.
type Document struct {
	FormatVersion string         `json:"formatVersion"`
	ExportedAt    time.Time      `json:"exportedAt"`
	Session       *session.Info  `json:"session"`
	Events        []models.Event `json:"events"`
}

// NewDocument builds a Document. Events is never nil so that an empty
// sequence renders as an empty array.
func NewDocument(events []models.Event, info *session.Info, now time.Time) Document {
	out := make([]models.Event, len(events))
	copy(out, events)
	return Document{
		FormatVersion: FormatVersion,
		ExportedAt:    now.UTC(),
		Session:       info,
		Events:        out,
	}
}

// JSONExporter writes a single indented JSON document.
type JSONExporter struct {
	Indent string
	Now    func() time.Time
}

func NewJSONExporter() *JSONExporter {
	return &JSONExporter{Indent: "  ", Now: time.Now}
}

func (e *JSONExporter) FormatName() string    { return "json" }
func (e *JSONExporter) FileExtension() string { return ".json" }

func (e *JSONExporter) Export(events []models.Event, info *session.Info) ([]byte, error) {
	doc := NewDocument(events, info, now(e.Now))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if e.Indent != "" {
		enc.SetIndent("", e.Indent)
	}
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeJSON parses a document produced by the json exporter.
func DecodeJSON(data []byte) (*session.Info, []models.Event, error) {
	var raw struct {
		FormatVersion string            `json:"formatVersion"`
		Session       *session.Info     `json:"session"`
		Events        []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if raw.FormatVersion != FormatVersion {
		return nil, nil, fmt.Errorf("unsupported format version %q", raw.FormatVersion)
	}

	events := make([]models.Event, 0, len(raw.Events))
	for i, msg := range raw.Events {
		e, err := models.UnmarshalEvent(msg)
		if err != nil {
			return nil, nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, e)
	}
	return raw.Session, events, nil
}

func now(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now()
	}
	return fn()
}
