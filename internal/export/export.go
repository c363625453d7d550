package export

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

// ErrUnsupportedFormat is returned when no exporter is registered for a format.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Exporter renders an ordered event sequence, plus optional session
// metadata, into one complete document. Implementations must not modify
// the events they are given.
type Exporter interface {
	FormatName() string
	FileExtension() string
	Export(events []models.Event, info *session.Info) ([]byte, error)
}

// Error reports a failed export. No partial output accompanies it.
type Error struct {
	Format string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s: %v", e.Format, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Registry maps format names to exporters.
type Registry struct {
	mu        sync.RWMutex
	exporters map[string]Exporter
}

// NewRegistry creates a registry holding the given exporters.
func NewRegistry(exporters ...Exporter) *Registry {
	r := &Registry{exporters: make(map[string]Exporter)}
	for _, e := range exporters {
		r.Register(e)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in format.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewJSONExporter(),
		NewNDJSONExporter(),
		NewYAMLExporter(),
		NewProtobufExporter(),
		NewGoTestExporter(),
		NewXUnitExporter(),
	)
}

// Register adds or replaces the exporter for e's format.
func (r *Registry) Register(e Exporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exporters[strings.ToLower(e.FormatName())] = e
}

// Get returns the exporter for a format name, ignoring case.
func (r *Registry) Get(format string) (Exporter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.exporters[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, format, strings.Join(r.formatsLocked(), ", "))
	}
	return e, nil
}

// Formats lists the registered format names in sorted order.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.formatsLocked()
}

func (r *Registry) formatsLocked() []string {
	names := make([]string, 0, len(r.exporters))
	for name := range r.exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Export renders events in the named format. Failures are returned as *Error.
func (r *Registry) Export(format string, events []models.Event, info *session.Info) ([]byte, error) {
	a, err := r.Render(format, events, info)
	if err != nil {
		return nil, err
	}
	return a.Data, nil
}

// Render is like Export but also returns naming information for the output.
func (r *Registry) Render(format string, events []models.Event, info *session.Info) (Artifact, error) {
	e, err := r.Get(format)
	if err != nil {
		return Artifact{}, &Error{Format: format, Err: err}
	}
	data, err := e.Export(events, info)
	if err != nil {
		return Artifact{}, &Error{Format: e.FormatName(), Err: err}
	}

	a := Artifact{
		Format:    e.FormatName(),
		Extension: e.FileExtension(),
		Data:      data,
	}
	if info != nil {
		a.SessionID = info.SessionID
		a.SessionName = info.Name
	}
	return a, nil
}

// Artifact is one rendered export document.
type Artifact struct {
	Format      string
	Extension   string
	SessionID   string
	SessionName string
	Data        []byte
}

// FileName returns a file name for the artifact derived from its session.
func (a Artifact) FileName() string {
	base := identifier(a.SessionName, "")
	if base == "" {
		base = "session"
	}
	if a.SessionID != "" {
		id := a.SessionID
		if len(id) > 8 {
			id = id[:8]
		}
		base += "_" + id
	}
	return base + a.Extension
}

// sorted returns a copy of events ordered by sequence number.
func sorted(events []models.Event) []models.Event {
	out := make([]models.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Base().SequenceNumber < out[j].Base().SequenceNumber
	})
	return out
}
