package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtobufExporter writes the json document layout as a binary
// google.protobuf.Struct, readable by any protobuf runtime.
type ProtobufExporter struct {
	Now func() time.Time
}

func NewProtobufExporter() *ProtobufExporter {
	return &ProtobufExporter{Now: time.Now}
}

func (e *ProtobufExporter) FormatName() string    { return "protobuf" }
func (e *ProtobufExporter) FileExtension() string { return ".pb" }

func (e *ProtobufExporter) Export(events []models.Event, info *session.Info) ([]byte, error) {
	st, err := toStruct(NewDocument(events, info, now(e.Now)))
	if err != nil {
		return nil, err
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal protobuf: %w", err)
	}
	return data, nil
}

// DecodeProtobuf parses a document written by ProtobufExporter back into
// its generic form.
func DecodeProtobuf(data []byte) (*structpb.Struct, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return &st, nil
}

func toStruct(doc Document) (*structpb.Struct, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	return st, nil
}
