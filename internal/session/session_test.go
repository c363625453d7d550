package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/synheart/synheart-recorder/internal/models"
)

func click(name, correlation string) models.InputEvent {
	return models.InputEvent{
		EventBase:         models.NewBase(models.EventTypeInput, correlation),
		InputType:         models.InputButtonClicked,
		SourceElementName: name,
		SourceElementType: "Button",
	}
}

func TestAppendAssignsSequence(t *testing.T) {
	s := New("seq", models.DefaultConfiguration(), models.Environment{})

	for i := 1; i <= 3; i++ {
		got, err := s.Append(click("Save", ""))
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if got.Base().SequenceNumber != int64(i) {
			t.Errorf("SequenceNumber = %d, want %d", got.Base().SequenceNumber, i)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestConcurrentAppendFormsPermutation(t *testing.T) {
	s := New("concurrent", models.DefaultConfiguration(), models.Environment{})

	const producers, perProducer = 8, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if _, err := s.Append(click("Save", "")); err != nil {
					t.Errorf("Append() error = %v", err)
				}
			}
		}()
	}
	wg.Wait()

	entries := s.Entries()
	if len(entries) != producers*perProducer {
		t.Fatalf("len(entries) = %d, want %d", len(entries), producers*perProducer)
	}
	for i, e := range entries {
		if e.Base().SequenceNumber != int64(i+1) {
			t.Fatalf("entries[%d].SequenceNumber = %d, want %d", i, e.Base().SequenceNumber, i+1)
		}
		if i > 0 && e.Base().Timestamp.Before(entries[i-1].Base().Timestamp) {
			t.Fatalf("timestamp at %d precedes previous entry", i)
		}
	}
}

func TestAppendClampsTimestamp(t *testing.T) {
	s := New("clamp", models.DefaultConfiguration(), models.Environment{})

	first := click("A", "")
	first.Timestamp = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	second := click("B", "")
	second.Timestamp = first.Timestamp.Add(-time.Minute)

	if _, err := s.Append(first); err != nil {
		t.Fatal(err)
	}
	got, err := s.Append(second)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Base().Timestamp.Equal(first.Timestamp) {
		t.Errorf("Timestamp = %v, want clamped to %v", got.Base().Timestamp, first.Timestamp)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := New("invalid", models.DefaultConfiguration(), models.Environment{})

	_, err := s.Append(models.CommandEvent{EventBase: models.NewBase(models.EventTypeCommand, "")})
	if !errors.Is(err, models.ErrInvalidEvent) {
		t.Fatalf("Append() error = %v, want ErrInvalidEvent", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestFinalize(t *testing.T) {
	s := New("final", models.DefaultConfiguration(), models.Environment{})
	if _, err := s.Append(click("Save", "")); err != nil {
		t.Fatal(err)
	}

	if !s.Finalize(time.Now()) {
		t.Fatal("first Finalize() = false, want true")
	}
	if s.Finalize(time.Now()) {
		t.Error("second Finalize() = true, want false")
	}
	if _, err := s.Append(click("Save", "")); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("Append() after Finalize error = %v, want ErrSessionEnded", err)
	}

	info := s.Info()
	if info.EndTime == nil || info.DurationMs == nil {
		t.Fatal("Info() missing end time or duration")
	}
	d, ok := info.Duration()
	if !ok || d < 0 {
		t.Errorf("Duration() = %v, %v", d, ok)
	}
	if *info.DurationMs != d.Milliseconds() {
		t.Errorf("DurationMs = %d, want %d", *info.DurationMs, d.Milliseconds())
	}
	if info.EventCount != 1 {
		t.Errorf("EventCount = %d, want 1", info.EventCount)
	}
}

func TestOpenSessionInfo(t *testing.T) {
	s := New("", models.DefaultConfiguration(), models.Environment{ApplicationName: "demo"})
	info := s.Info()

	if info.Name == "" {
		t.Error("expected a generated name")
	}
	if info.EndTime != nil || info.DurationMs != nil {
		t.Error("open session should not report end time")
	}
	if _, ok := info.Duration(); ok {
		t.Error("Duration() ok = true for open session")
	}
	if info.SchemaVersion != models.SchemaVersion {
		t.Errorf("SchemaVersion = %q", info.SchemaVersion)
	}
}

func TestByCorrelation(t *testing.T) {
	s := New("corr", models.DefaultConfiguration(), models.Environment{})
	for _, c := range []string{"a", "b", "a", ""} {
		if _, err := s.Append(click("Save", c)); err != nil {
			t.Fatal(err)
		}
	}

	got := s.ByCorrelation("a")
	if len(got) != 2 {
		t.Fatalf("len(ByCorrelation(a)) = %d, want 2", len(got))
	}
	if got[0].Base().SequenceNumber != 1 || got[1].Base().SequenceNumber != 3 {
		t.Errorf("unexpected sequence numbers %d, %d", got[0].Base().SequenceNumber, got[1].Base().SequenceNumber)
	}
	if len(s.ByCorrelation("missing")) != 0 {
		t.Error("expected no events for unknown correlation")
	}
}

func TestConfigSnapshotIsIndependent(t *testing.T) {
	cfg := models.DefaultConfiguration()
	cfg.ExcludedElementNames = []string{"Secret"}
	s := New("snap", cfg, models.Environment{})

	cfg.ExcludedElementNames[0] = "Changed"
	if got := s.Config().ExcludedElementNames[0]; got != "Secret" {
		t.Errorf("snapshot mutated: %q", got)
	}
}

func TestEntriesSnapshot(t *testing.T) {
	s := New("snapshot", models.DefaultConfiguration(), models.Environment{})
	if _, err := s.Append(click("A", "")); err != nil {
		t.Fatal(err)
	}
	snap := s.Entries()
	if _, err := s.Append(click("B", "")); err != nil {
		t.Fatal(err)
	}
	if len(snap) != 1 {
		t.Errorf("snapshot length changed to %d", len(snap))
	}
}
