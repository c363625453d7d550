package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

const maxLineSize = 16 * 1024 * 1024

// JournalSession is one session reconstructed from a journal.
type JournalSession struct {
	Info   session.Info
	Events []models.Event
	// Complete is false when the journal has no final session record, for
	// example after a crash.
	Complete bool
}

// LoadJournal reads a journal and groups its events by session, in the
// order sessions first appear.
func LoadJournal(path string) ([]JournalSession, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer file.Close()

	var (
		order    []string
		sessions = make(map[string]*JournalSession)
	)
	get := func(id string) *JournalSession {
		s, ok := sessions[id]
		if !ok {
			s = &JournalSession{Info: session.Info{SessionID: id, Name: "unfinished session", SchemaVersion: models.SchemaVersion}}
			sessions[id] = s
			order = append(order, id)
		}
		return s
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record at line %d: %w", lineNum, err)
		}
		if rec.SessionID == "" {
			continue
		}

		switch rec.Kind {
		case KindEvent:
			e, err := models.UnmarshalEvent(rec.Event)
			if err != nil {
				return nil, fmt.Errorf("failed to parse event at line %d: %w", lineNum, err)
			}
			s := get(rec.SessionID)
			s.Events = append(s.Events, e)
		case KindSession:
			s := get(rec.SessionID)
			if rec.Session != nil {
				s.Info = *rec.Session
				s.Complete = true
			}
		case KindState:
			get(rec.SessionID)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	out := make([]JournalSession, 0, len(order))
	for _, id := range order {
		s := sessions[id]
		sort.SliceStable(s.Events, func(a, b int) bool {
			return s.Events[a].Base().SequenceNumber < s.Events[b].Base().SequenceNumber
		})
		if !s.Complete {
			s.Info.EventCount = len(s.Events)
			if len(s.Events) > 0 {
				s.Info.StartTime = s.Events[0].Base().Timestamp
			}
		}
		out = append(out, *s)
	}
	return out, nil
}

// FindSession returns the journal session whose id starts with prefix.
func FindSession(sessions []JournalSession, prefix string) (JournalSession, error) {
	var found []JournalSession
	for _, s := range sessions {
		if s.Info.SessionID == prefix {
			return s, nil
		}
		if len(prefix) > 0 && len(s.Info.SessionID) >= len(prefix) && s.Info.SessionID[:len(prefix)] == prefix {
			found = append(found, s)
		}
	}
	switch len(found) {
	case 0:
		return JournalSession{}, fmt.Errorf("session %q not found in journal", prefix)
	case 1:
		return found[0], nil
	}
	return JournalSession{}, fmt.Errorf("session prefix %q is ambiguous (%d matches)", prefix, len(found))
}
