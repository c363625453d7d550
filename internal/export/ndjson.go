package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

// NDJSONExporter writes a header line carrying the session metadata
// followed by one line per event.
type NDJSONExporter struct {
	Now func() time.Time
}

func NewNDJSONExporter() *NDJSONExporter {
	return &NDJSONExporter{Now: time.Now}
}

func (e *NDJSONExporter) FormatName() string    { return "ndjson" }
func (e *NDJSONExporter) FileExtension() string { return ".ndjson" }

func (e *NDJSONExporter) Export(events []models.Event, info *session.Info) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	header := struct {
		FormatVersion string        `json:"formatVersion"`
		ExportedAt    time.Time     `json:"exportedAt"`
		Session       *session.Info `json:"session"`
	}{FormatVersion, now(e.Now).UTC(), info}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}

	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return nil, fmt.Errorf("failed to encode event %s: %w", ev.Base().ID, err)
		}
	}
	return buf.Bytes(), nil
}
