package recorder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/synheart/synheart-recorder/internal/hub"
	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

func click(name string) models.InputEvent {
	return models.InputEvent{
		EventBase:         models.NewBase(models.EventTypeInput, ""),
		InputType:         models.InputButtonClicked,
		SourceElementName: name,
	}
}

func TestJournalFollowAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := NewJournal(path)
	if err != nil {
		t.Fatal(err)
	}

	h := hub.New()
	defer h.Close()
	ch, unsubscribe := h.Subscribe(64)

	entries := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- j.Follow(context.Background(), ch, func() { entries <- struct{}{} })
	}()

	h.Start("journal")
	h.AddEvent(click("a"))
	h.AddEvent(click("b"))
	for i := 0; i < 2; i++ {
		select {
		case <-entries:
		case <-time.After(2 * time.Second):
			t.Fatal("journal did not record entries")
		}
	}
	info, _ := h.Stop()
	if err := j.WriteSession(info); err != nil {
		t.Fatal(err)
	}

	unsubscribe()
	if err := <-done; err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	sessions, err := LoadJournal(path)
	if err != nil {
		t.Fatalf("LoadJournal() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if !s.Complete || s.Info.Name != "journal" || len(s.Events) != 2 {
		t.Errorf("session = %+v", s.Info)
	}
	if s.Events[1].(models.InputEvent).SourceElementName != "b" {
		t.Error("events out of order")
	}

	found, err := FindSession(sessions, info.SessionID[:8])
	if err != nil || found.Info.SessionID != info.SessionID {
		t.Errorf("FindSession() = %v, %v", found.Info.SessionID, err)
	}
}

func TestLoadJournalIncompleteSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := NewJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	e := click("x")
	e.SequenceNumber = 1
	if err := j.WriteEvent("s-1", e); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	sessions, err := LoadJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Complete || sessions[0].Info.EventCount != 1 {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestLoadJournalErrors(t *testing.T) {
	if _, err := LoadJournal(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.ndjson")
	if err := os.WriteFile(path, []byte("{not json}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadJournal(path)
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("LoadJournal() error = %v", err)
	}
}

func TestFindSessionAmbiguous(t *testing.T) {
	sessions := []JournalSession{
		{Info: sessionInfo("abc1")},
		{Info: sessionInfo("abc2")},
	}
	if _, err := FindSession(sessions, "abc"); err == nil {
		t.Error("expected ambiguity error")
	}
	if _, err := FindSession(sessions, "zzz"); err == nil {
		t.Error("expected not found error")
	}
}

func sessionInfo(id string) session.Info {
	return session.Info{SessionID: id}
}

func TestJournalFlushesWhileIdle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := NewJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	ch := make(chan hub.Notification, 4)
	entries := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Follow(ctx, ch, func() { entries <- struct{}{} })

	ch <- hub.Notification{Kind: hub.EntryRecorded, SessionID: "s-1", State: hub.Recording, Event: click("saved")}
	select {
	case <-entries:
	case <-time.After(2 * time.Second):
		t.Fatal("journal did not record the entry")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"sourceElementName":"saved"`) {
		t.Errorf("entry still buffered, file = %q", data)
	}
}
