package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
	"gopkg.in/yaml.v3"
)

// YAMLExporter writes the json document layout as YAML. Keys keep the
// json field names and order.
type YAMLExporter struct {
	Now func() time.Time
}

func NewYAMLExporter() *YAMLExporter {
	return &YAMLExporter{Now: time.Now}
}

func (e *YAMLExporter) FormatName() string    { return "yaml" }
func (e *YAMLExporter) FileExtension() string { return ".yaml" }

func (e *YAMLExporter) Export(events []models.Event, info *session.Info) ([]byte, error) {
	data, err := json.Marshal(NewDocument(events, info, now(e.Now)))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	// JSON is a subset of YAML, so decoding into a node keeps key order.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
