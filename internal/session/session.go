package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synheart/synheart-recorder/internal/models"
)

// ErrSessionEnded is returned when appending to a finalized session.
var ErrSessionEnded = errors.New("session has ended")

// Session is one bounded recording run: an append-only event log plus the
// metadata and configuration snapshot it was started with.
//
// Sequence assignment and append happen in a single critical section, so
// concurrent producers always observe a strict total order.
type Session struct {
	id        string
	name      string
	startTime time.Time
	env       models.Environment
	config    models.RecordingConfiguration
	issues    []models.ValidationError
	metadata  map[string]string

	mu          sync.Mutex
	events      []models.Event
	lastSeq     int64
	lastTS      time.Time
	endTime     time.Time
	dropped     int64
	correlation map[string][]int
}

// New creates an open session. The configuration is normalized here and the
// resulting issues are kept on the session.
func New(name string, cfg models.RecordingConfiguration, env models.Environment) *Session {
	normalized, issues := cfg.Normalize()
	now := time.Now().UTC()
	if name == "" {
		name = "Session " + now.Format("2006-01-02 15:04:05")
	}

	return &Session{
		id:          uuid.New().String(),
		name:        name,
		startTime:   now,
		env:         env,
		config:      normalized,
		issues:      issues,
		metadata:    make(map[string]string),
		correlation: make(map[string][]int),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Config returns the configuration snapshot taken when the session started.
func (s *Session) Config() models.RecordingConfiguration { return s.config }

// ConfigIssues returns the configuration problems found at start.
func (s *Session) ConfigIssues() []models.ValidationError {
	return append([]models.ValidationError(nil), s.issues...)
}

// Append validates e, assigns the next sequence number and appends it. The
// timestamp is clamped so it never precedes the previous entry's.
func (s *Session) Append(e models.Event) (models.Event, error) {
	e, err := models.Normalize(e)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.endTime.IsZero() {
		return nil, ErrSessionEnded
	}

	ts := e.Base().Timestamp
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastSeq++
	stamped := models.Stamp(e, s.lastSeq, ts)
	s.lastTS = ts

	s.events = append(s.events, stamped)
	if id := stamped.Base().CorrelationID; id != "" {
		s.correlation[id] = append(s.correlation[id], len(s.events)-1)
	}
	return stamped, nil
}

// Entries returns a snapshot of the log in sequence order. The returned
// slice is never touched by later appends.
func (s *Session) Entries() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of recorded events.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// ByCorrelation returns the events sharing a correlation id, in sequence order.
func (s *Session) ByCorrelation(id string) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.correlation[id]
	out := make([]models.Event, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.events[i])
	}
	return out
}

// NoteDropped counts an event that arrived while recording was paused.
func (s *Session) NoteDropped() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

// SetMetadata stores a free-form metadata value. It is ignored once the
// session has ended.
func (s *Session) SetMetadata(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endTime.IsZero() {
		s.metadata[key] = value
	}
}

// Finalize stamps the end time and makes the session terminal for writes.
// It reports false if the session had already ended.
func (s *Session) Finalize(at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.endTime.IsZero() {
		return false
	}
	at = at.UTC()
	if at.Before(s.startTime) {
		at = s.startTime
	}
	s.endTime = at
	return true
}

// Ended reports whether Finalize has been called.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.endTime.IsZero()
}

// Info returns a metadata snapshot.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		SessionID:          s.id,
		Name:               s.name,
		StartTime:          s.startTime,
		Environment:        s.env,
		SchemaVersion:      models.SchemaVersion,
		EventCount:         len(s.events),
		DroppedWhilePaused: s.dropped,
		Metadata:           make(map[string]string, len(s.metadata)),
		Configuration:      s.config,
		ConfigIssues:       append([]models.ValidationError{}, s.issues...),
	}
	for k, v := range s.metadata {
		info.Metadata[k] = v
	}
	if !s.endTime.IsZero() {
		end := s.endTime
		duration := end.Sub(s.startTime).Milliseconds()
		info.EndTime = &end
		info.DurationMs = &duration
	}
	return info
}

// CountByType returns the number of recorded events per event type.
func (s *Session) CountByType() map[models.EventType]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.EventType]int)
	for _, e := range s.events {
		counts[e.Type()]++
	}
	return counts
}

// Info is the exported metadata of a session.
type Info struct {
	SessionID          string                        `json:"sessionId"`
	Name               string                        `json:"name"`
	StartTime          time.Time                     `json:"startTime"`
	EndTime            *time.Time                    `json:"endTime"`
	DurationMs         *int64                        `json:"durationMs"`
	Environment        models.Environment            `json:"environment"`
	SchemaVersion      string                        `json:"schemaVersion"`
	EventCount         int                           `json:"eventCount"`
	DroppedWhilePaused int64                         `json:"droppedWhilePaused"`
	Metadata           map[string]string             `json:"metadata"`
	Configuration      models.RecordingConfiguration `json:"configuration"`
	ConfigIssues       []models.ValidationError      `json:"configIssues"`
}

// Duration returns EndTime - StartTime when the session has ended.
func (i Info) Duration() (time.Duration, bool) {
	if i.EndTime == nil {
		return 0, false
	}
	return i.EndTime.Sub(i.StartTime), true
}

// String renders a one-line summary.
func (i Info) String() string {
	if d, ok := i.Duration(); ok {
		return fmt.Sprintf("%s (%s, %d events, %s)", i.Name, i.SessionID, i.EventCount, d.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s (%s, %d events, open)", i.Name, i.SessionID, i.EventCount)
}

// SortedTypes returns the keys of counts in a stable order.
func SortedTypes(counts map[models.EventType]int) []models.EventType {
	out := make([]models.EventType, 0, len(counts))
	for t := range counts {
		out = append(out, t)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
