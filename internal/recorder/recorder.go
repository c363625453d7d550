package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/synheart/synheart-recorder/internal/hub"
	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

// Record kinds written to a journal.
const (
	KindEvent   = "event"
	KindState   = "state"
	KindSession = "session"
)

// Record is one journal line.
type Record struct {
	Kind      string          `json:"kind"`
	SessionID string          `json:"sessionId"`
	At        time.Time       `json:"at"`
	State     string          `json:"state,omitempty"`
	Session   *session.Info   `json:"session,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// Journal appends recorded entries to an NDJSON file as they happen, so a
// crashed process still leaves its events in the file.
type Journal struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewJournal opens path for appending, creating it if needed.
func NewJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &Journal{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// WriteEvent appends one recorded event.
func (j *Journal) WriteEvent(sessionID string, e models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return j.write(Record{Kind: KindEvent, SessionID: sessionID, At: time.Now().UTC(), Event: data})
}

// WriteState appends a recording state change.
func (j *Journal) WriteState(sessionID string, state hub.State) error {
	return j.write(Record{Kind: KindState, SessionID: sessionID, At: time.Now().UTC(), State: state.String()})
}

// WriteSession appends the final metadata of a finished session and
// flushes the journal.
func (j *Journal) WriteSession(info session.Info) error {
	if err := j.write(Record{Kind: KindSession, SessionID: info.SessionID, At: time.Now().UTC(), Session: &info}); err != nil {
		return err
	}
	return j.Flush()
}

func (j *Journal) write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Follow writes hub notifications until ctx is done or the channel closes.
// The buffer is flushed whenever no further notification is waiting, so
// bursts are batched and nothing written stays buffered while idle.
// onEntry, if set, is called after each recorded event is written.
func (j *Journal) Follow(ctx context.Context, notifications <-chan hub.Notification, onEntry func()) error {
	for {
		select {
		case <-ctx.Done():
			return j.Flush()
		case n, ok := <-notifications:
			if !ok {
				return j.Flush()
			}
			var err error
			switch n.Kind {
			case hub.EntryRecorded:
				err = j.WriteEvent(n.SessionID, n.Event)
			case hub.StateChanged:
				err = j.WriteState(n.SessionID, n.State)
			}
			if err == nil && len(notifications) == 0 {
				err = j.Flush()
			}
			if err != nil {
				return err
			}
			if n.Kind == hub.EntryRecorded && onEntry != nil {
				onEntry()
			}
		}
	}
}

// Flush flushes the buffer to disk.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writer.Flush()
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		j.file.Close()
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}
