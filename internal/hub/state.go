package hub

import (
	"fmt"
	"time"

	"github.com/synheart/synheart-recorder/internal/models"
)

// State is the recording state of a Hub.
type State int32

const (
	Idle State = iota
	Recording
	Paused
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a session is open for this state.
func (s State) Active() bool {
	return s == Recording || s == Paused
}

// NotificationKind distinguishes hub notifications.
type NotificationKind string

const (
	EntryRecorded  NotificationKind = "entryRecorded"
	StateChanged   NotificationKind = "stateChanged"
	SessionCleared NotificationKind = "sessionCleared"
)

// Notification is delivered to subscribers after the hub has released its
// locks.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	At          time.Time        `json:"at"`
	SessionID   string           `json:"sessionId,omitempty"`
	State       State            `json:"state"`
	IsRecording bool             `json:"isRecording"`
	Event       models.Event     `json:"event,omitempty"`
}

// Stats summarizes the hub and its current session.
type Stats struct {
	State                State                    `json:"state"`
	SessionID            string                   `json:"sessionId,omitempty"`
	SessionName          string                   `json:"sessionName,omitempty"`
	EntryCount           int                      `json:"entryCount"`
	ByType               map[models.EventType]int `json:"byType"`
	DroppedWhilePaused   int64                    `json:"droppedWhilePaused"`
	DroppedNotifications int64                    `json:"droppedNotifications"`
	Subscribers          int                      `json:"subscribers"`
}
