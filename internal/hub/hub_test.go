package hub

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/synheart/synheart-recorder/internal/export"
	"github.com/synheart/synheart-recorder/internal/metrics"
	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

func newHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h := New(opts...)
	t.Cleanup(h.Close)
	return h
}

func click(name string) models.InputEvent {
	return models.InputEvent{
		EventBase:         models.NewBase(models.EventTypeInput, ""),
		InputType:         models.InputButtonClicked,
		SourceElementName: name,
	}
}

func next(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("notification channel closed")
		}
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return Notification{}
}

func TestLifecycle(t *testing.T) {
	h := newHub(t)

	if h.State() != Idle {
		t.Fatalf("initial state = %v", h.State())
	}
	if _, ok := h.Stop(); ok {
		t.Error("Stop() on idle hub reported a session")
	}
	if !h.Start("LoginFlow") {
		t.Fatal("Start() = false")
	}
	if h.Start("again") {
		t.Error("Start() while recording should be a no-op")
	}
	if !h.Pause() || h.State() != Paused {
		t.Fatal("Pause() failed")
	}
	if h.Start("again") {
		t.Error("Start() while paused should be a no-op")
	}
	if !h.Resume() || h.State() != Recording {
		t.Fatal("Resume() failed")
	}

	info, ok := h.Stop()
	if !ok {
		t.Fatal("Stop() = false")
	}
	if h.State() != Idle {
		t.Errorf("state after Stop = %v", h.State())
	}
	if info.EndTime == nil || info.EndTime.Before(info.StartTime) || info.DurationMs == nil {
		t.Errorf("unexpected end time %v / start %v", info.EndTime, info.StartTime)
	}
	if info.Name != "LoginFlow" {
		t.Errorf("Name = %q", info.Name)
	}
	if _, ok := h.Stop(); ok {
		t.Error("second Stop() should be idempotent")
	}
}

func TestAddEvent(t *testing.T) {
	h := newHub(t)

	got, err := h.AddEvent(click("Save"))
	if err != nil || got != nil {
		t.Fatalf("AddEvent() while idle = %v, %v; want dropped", got, err)
	}

	h.Start("s")
	got, err = h.AddEvent(click("Save"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Base().SequenceNumber != 1 {
		t.Errorf("SequenceNumber = %d", got.Base().SequenceNumber)
	}

	if _, err := h.AddEvent(nil); !errors.Is(err, models.ErrInvalidEvent) {
		t.Errorf("AddEvent(nil) error = %v, want ErrInvalidEvent", err)
	}
	ptr := click("Pointer")
	if _, err := h.AddEvent(&ptr); err != nil {
		t.Errorf("AddEvent(pointer) error = %v", err)
	}
	if h.EntryCount() != 2 {
		t.Errorf("EntryCount() = %d, want 2", h.EntryCount())
	}
}

func TestPauseDropsEvents(t *testing.T) {
	h := newHub(t)
	h.Start("s")
	h.AddEvent(click("a"))
	h.Pause()

	got, err := h.AddEvent(click("b"))
	if err != nil || got != nil {
		t.Fatalf("AddEvent() while paused = %v, %v", got, err)
	}
	h.Resume()
	h.AddEvent(click("c"))

	entries := h.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[1].Base().SequenceNumber != 2 {
		t.Errorf("sequence after resume = %d, want 2", entries[1].Base().SequenceNumber)
	}
	if st := h.Stats(); st.DroppedWhilePaused != 1 {
		t.Errorf("DroppedWhilePaused = %d, want 1", st.DroppedWhilePaused)
	}
}

func TestClear(t *testing.T) {
	h := newHub(t)

	if h.Clear() {
		t.Error("Clear() with no session should report false")
	}

	h.Start("clear-me")
	h.AddEvent(click("a"))
	if h.Clear() {
		t.Error("Clear() while recording should be a no-op")
	}
	if h.EntryCount() != 1 {
		t.Fatalf("EntryCount() = %d after rejected clear", h.EntryCount())
	}

	h.Pause()
	oldID := h.Current().ID()
	if !h.Clear() {
		t.Fatal("Clear() while paused = false")
	}
	if h.State() != Paused || h.EntryCount() != 0 {
		t.Errorf("after paused clear: state=%v count=%d", h.State(), h.EntryCount())
	}
	if h.Current().ID() == oldID || h.Current().Name() != "clear-me" {
		t.Error("expected a fresh session with the same name")
	}

	h.Resume()
	h.AddEvent(click("b"))
	h.Stop()
	if !h.Clear() {
		t.Fatal("Clear() after Stop = false")
	}
	if h.EntryCount() != 0 || h.Info() != nil {
		t.Errorf("EntryCount() = %d after clear", h.EntryCount())
	}
}

func TestConcurrentAddEvent(t *testing.T) {
	h := newHub(t)
	h.Start("concurrent")

	const producers, perProducer = 10, 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if _, err := h.AddEvent(click("x")); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, e := range h.Entries() {
		seq := e.Base().SequenceNumber
		if seq < 1 || seq > producers*perProducer || seen[seq] {
			t.Fatalf("bad or duplicate sequence %d", seq)
		}
		seen[seq] = true
	}
	if len(seen) != producers*perProducer {
		t.Errorf("got %d entries, want %d", len(seen), producers*perProducer)
	}
}

func TestStartRacesAddEvent(t *testing.T) {
	for round := 0; round < 200; round++ {
		h := New()

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			recorded int
			stop     = make(chan struct{})
		)
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					stamped, err := h.AddEvent(click("race"))
					if err != nil {
						t.Error(err)
						return
					}
					if stamped != nil {
						mu.Lock()
						recorded++
						mu.Unlock()
					}
				}
			}()
		}

		h.Start("race")
		info, _ := h.Stop()
		close(stop)
		wg.Wait()

		if info.EventCount != recorded {
			t.Fatalf("round %d: session holds %d events, producers saw %d stamped", round, info.EventCount, recorded)
		}
		h.Close()
	}
}

func TestNotifications(t *testing.T) {
	h := newHub(t)
	ch, unsubscribe := h.Subscribe(16)
	defer unsubscribe()

	h.Start("notify")
	n := next(t, ch)
	if n.Kind != StateChanged || !n.IsRecording {
		t.Errorf("first notification = %+v", n)
	}

	h.AddEvent(click("a"))
	h.AddEvent(click("b"))
	for want := int64(1); want <= 2; want++ {
		n = next(t, ch)
		if n.Kind != EntryRecorded || n.Event.Base().SequenceNumber != want {
			t.Errorf("notification = %+v, want entry %d", n, want)
		}
	}

	h.Stop()
	n = next(t, ch)
	if n.Kind != StateChanged || n.IsRecording || n.State != Idle {
		t.Errorf("stop notification = %+v", n)
	}

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"state":"idle"`) {
		t.Errorf("notification json = %s", data)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := newHub(t)
	_, unsubscribe := h.Subscribe(1)
	defer unsubscribe()

	h.Start("slow")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			h.AddEvent(click("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producers blocked by slow subscriber")
	}
	if h.EntryCount() != 200 {
		t.Errorf("EntryCount() = %d", h.EntryCount())
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.DroppedNotifications() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.DroppedNotifications() == 0 {
		t.Error("expected dropped notifications to be counted")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	h := New()
	ch, _ := h.Subscribe(1)
	h.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not closed")
	}
}

func TestStopRunsHooks(t *testing.T) {
	h := newHub(t)

	var flushed bool
	var finished *session.Session
	h.OnFlush(func() {
		flushed = true
		h.AddEvent(click("pending"))
	})
	h.OnSessionFinished(func(s *session.Session) { finished = s })

	h.Start("hooks")
	h.Stop()

	if !flushed {
		t.Error("flush hook not run")
	}
	if finished == nil || !finished.Ended() {
		t.Fatal("finished hook not run with ended session")
	}
	if finished.Len() != 1 {
		t.Errorf("flushed event not recorded before finalize, len = %d", finished.Len())
	}
}

func TestConfigurationSnapshot(t *testing.T) {
	cfg := models.DefaultConfiguration()
	cfg.MaxPayloadSize = 10
	h := newHub(t, WithConfiguration(cfg))

	h.Start("s")
	changed := cfg
	changed.MaxPayloadSize = 99
	h.SetConfiguration(changed)

	if got := h.Configuration().MaxPayloadSize; got != 10 {
		t.Errorf("active configuration MaxPayloadSize = %d, want 10", got)
	}
	h.Stop()
	if got := h.Configuration().MaxPayloadSize; got != 99 {
		t.Errorf("next configuration MaxPayloadSize = %d, want 99", got)
	}
}

func TestExportAs(t *testing.T) {
	m := metrics.New()
	h := newHub(t, WithMetrics(m))

	data, err := h.ExportAs("json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"events": []`) {
		t.Errorf("empty export = %s", data)
	}

	h.Start("LoginFlow")
	h.AddEvent(models.InputEvent{
		EventBase:         models.NewBase(models.EventTypeInput, ""),
		InputType:         models.InputButtonClicked,
		SourceElementName: "SubmitButton",
	})
	h.Stop()

	data, err = h.ExportAs("gotest")
	if err != nil {
		t.Fatal(err)
	}
	src := string(data)
	if !strings.Contains(src, `app.Click("SubmitButton")`) || !strings.Contains(src, "TestLoginFlow_") {
		t.Errorf("generated code:\n%s", src)
	}

	if _, err := h.ExportAs("pdf"); !errors.Is(err, export.ErrUnsupportedFormat) {
		t.Errorf("ExportAs(pdf) error = %v", err)
	}
}

func TestStats(t *testing.T) {
	h := newHub(t)
	h.Start("stats")
	h.AddEvent(click("a"))
	h.AddEvent(models.CommandEvent{EventBase: models.NewBase(models.EventTypeCommand, ""), CommandName: "Save"})

	st := h.Stats()
	if st.State != Recording || st.EntryCount != 2 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.ByType[models.EventTypeInput] != 1 || st.ByType[models.EventTypeCommand] != 1 {
		t.Errorf("ByType = %v", st.ByType)
	}
}
