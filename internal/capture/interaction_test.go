package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/synheart/synheart-recorder/internal/hub"
	"github.com/synheart/synheart-recorder/internal/models"
)

func TestInstrumentGuard(t *testing.T) {
	sink := newSink(func(c *models.RecordingConfiguration) {
		c.ExcludedElementTypes = []string{"ScrollBar"}
		c.ExcludedElementNames = []string{"DebugPanel"}
	})
	a := NewInteraction(sink, nil)

	if a.Instrument("e1", "ScrollBar", "vscroll") {
		t.Error("excluded type was instrumented")
	}
	if a.Instrument("e2", "Grid", "debugpanel") {
		t.Error("excluded name was instrumented")
	}
	if !a.Instrument("e3", "TextBox", "txtName") {
		t.Fatal("first Instrument() = false")
	}
	if a.Instrument("e3", "TextBox", "txtName") {
		t.Error("element instrumented twice")
	}
	if a.Instrumented() != 1 {
		t.Errorf("Instrumented() = %d, want 1", a.Instrumented())
	}
	a.Forget("e3")
	if !a.Instrument("e3", "TextBox", "txtName") {
		t.Error("Instrument() after Forget = false")
	}
}

func TestExcludedSignalsDropped(t *testing.T) {
	sink := newSink(func(c *models.RecordingConfiguration) {
		c.ExcludedElementNames = []string{"Hidden"}
	})
	a := NewInteraction(sink, nil)

	a.ButtonClicked(bg, Signal{ElementType: "Button", ElementName: "Hidden"})
	a.ButtonClicked(bg, Signal{ElementType: "Button", ElementName: "Visible"})

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].(models.InputEvent).SourceElementName != "Visible" {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestDebounceKeepsLatest(t *testing.T) {
	sink := newSink(func(c *models.RecordingConfiguration) { c.DebounceIntervalMs = 100 })
	a := NewInteraction(sink, nil)

	a.TextChanged(bg, Signal{ElementName: "txtName", OldValue: "", NewValue: "a"})
	time.Sleep(10 * time.Millisecond)
	a.TextChanged(bg, Signal{ElementName: "txtName", OldValue: "a", NewValue: "ab"})

	if len(sink.Events()) != 0 {
		t.Fatal("event emitted before debounce window elapsed")
	}

	sink.waitForEvents(1, 2*time.Second)
	time.Sleep(150 * time.Millisecond)
	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	in := events[0].(models.InputEvent)
	if in.NewValue != "ab" || in.OldValue != "" {
		t.Errorf("debounced event old=%q new=%q, want old=\"\" new=\"ab\"", in.OldValue, in.NewValue)
	}
}

func TestDebounceIsPerElement(t *testing.T) {
	sink := newSink(func(c *models.RecordingConfiguration) { c.DebounceIntervalMs = 50 })
	a := NewInteraction(sink, nil)

	a.TextChanged(bg, Signal{ElementName: "first", NewValue: "1"})
	a.TextChanged(bg, Signal{ElementName: "second", NewValue: "2"})
	a.ButtonClicked(bg, Signal{ElementName: "first"})

	if events := sink.waitForEvents(3, 2*time.Second); len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
}

func TestFlushEmitsPending(t *testing.T) {
	sink := newSink(func(c *models.RecordingConfiguration) { c.DebounceIntervalMs = 60_000 })
	a := NewInteraction(sink, nil)

	a.TextChanged(bg, Signal{ElementName: "a", NewValue: "x"})
	a.SelectionChanged(bg, Signal{ElementName: "b", NewValue: "y"})
	if a.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", a.Pending())
	}

	a.Flush()
	if a.Pending() != 0 {
		t.Errorf("Pending() after Flush = %d", a.Pending())
	}
	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].(models.InputEvent).SourceElementName != "a" {
		t.Error("flush did not preserve signal order")
	}
}

func TestHubStopFlushesPending(t *testing.T) {
	cfg := models.DefaultConfiguration()
	cfg.DebounceIntervalMs = 60_000
	h := hub.New(hub.WithConfiguration(cfg))
	defer h.Close()

	a := NewInteraction(h, nil)
	h.OnFlush(a.Flush)
	h.Start("flush")

	a.TextChanged(bg, Signal{ElementName: "txtUser", NewValue: "ann"})
	if h.EntryCount() != 0 {
		t.Fatalf("EntryCount() = %d before Stop, want 0", h.EntryCount())
	}

	info, ok := h.Stop()
	if !ok {
		t.Fatal("Stop() = false")
	}
	if info.EventCount != 1 {
		t.Errorf("EventCount = %d, want 1", info.EventCount)
	}
}

func TestSensitiveValuesMasked(t *testing.T) {
	sink := newSink(nil)
	a := NewInteraction(sink, nil)

	a.TextChanged(bg, Signal{ElementName: "txtPassword", OldValue: "hunter", NewValue: "hunter2"})
	a.TextChanged(bg, Signal{ElementName: "field", AutomationID: "ApiToken", NewValue: "abc"})
	a.TextChanged(bg, Signal{ElementName: "txtUser", NewValue: "bob"})

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("got %d events", len(events))
	}
	for i, want := range []string{models.DefaultMaskText, models.DefaultMaskText, "bob"} {
		if got := events[i].(models.InputEvent).NewValue; got != want {
			t.Errorf("event %d NewValue = %q, want %q", i, got, want)
		}
	}
	if got := events[1].(models.InputEvent).OldValue; got != "" {
		t.Errorf("empty OldValue masked to %q", got)
	}
}

func TestInputDisabled(t *testing.T) {
	sink := newSink(func(c *models.RecordingConfiguration) { c.RecordInputEvents = false })
	a := NewInteraction(sink, nil)
	a.ButtonClicked(bg, Signal{ElementName: "btn"})
	if len(sink.Events()) != 0 {
		t.Error("input recorded while disabled")
	}
}

func TestWindowEvents(t *testing.T) {
	sink := newSink(nil)
	a := NewInteraction(sink, nil)
	w := WindowInfo{Title: "Main", Type: "MainWindow", Width: 800, Height: 600}

	a.WindowOpened(bg, w)
	w.State = WindowMaximized
	a.WindowStateChanged(bg, w)
	w.State = WindowMinimized
	a.WindowStateChanged(bg, w)
	w.State = WindowNormal
	a.WindowStateChanged(bg, w)
	a.WindowActivated(bg, w)
	a.WindowDeactivated(bg, w)
	a.WindowClosed(bg, w)

	want := []models.WindowEventType{
		models.WindowOpened, models.WindowMaximized, models.WindowMinimized,
		models.WindowRestored, models.WindowActivated, models.WindowDeactivated, models.WindowClosed,
	}
	events := sink.Events()
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		we := e.(models.WindowEvent)
		if we.WindowEventType != want[i] {
			t.Errorf("event %d = %s, want %s", i, we.WindowEventType, want[i])
		}
	}
	if got := events[1].(models.WindowEvent).CurrentState; got != "Maximized" {
		t.Errorf("CurrentState = %q", got)
	}

	off := newSink(func(c *models.RecordingConfiguration) { c.RecordWindowEvents = false })
	NewInteraction(off, nil).WindowOpened(bg, w)
	if len(off.Events()) != 0 {
		t.Error("window event recorded while disabled")
	}
}

func TestNavigation(t *testing.T) {
	sink := newSink(nil)
	a := NewInteraction(sink, nil)

	a.Navigated(bg, "Login", "Dashboard")
	a.TabChanged(bg, "Settings", "Advanced")

	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	nav := events[0].(models.NavigationEvent)
	if nav.NavigationType != models.NavigationView || nav.FromView != "Login" || nav.ToView != "Dashboard" {
		t.Errorf("navigation = %+v", nav)
	}
	tab := events[1].(models.NavigationEvent)
	if tab.NavigationType != models.NavigationTabChanged || tab.TabHeader != "Advanced" {
		t.Errorf("tab = %+v", tab)
	}
}

func TestExecuteCommand(t *testing.T) {
	sink := newSink(nil)
	a := NewInteraction(sink, nil)

	boom := errors.New("boom")
	var inner string
	err := a.ExecuteCommand(bg, "SaveCommand", "RelayCommand", "draft", func(ctx context.Context) error {
		inner = CorrelationFrom(ctx)
		return boom
	})
	if err != boom {
		t.Fatalf("ExecuteCommand() error = %v, want boom unchanged", err)
	}

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	cmd := events[0].(models.CommandEvent)
	if cmd.IsSuccess || cmd.ErrorMessage != "boom" || cmd.CommandParameter != "draft" {
		t.Errorf("command event = %+v", cmd)
	}
	if inner == "" || cmd.CorrelationID != inner {
		t.Errorf("correlation not shared: inner=%q event=%q", inner, cmd.CorrelationID)
	}

	ctx := WithCorrelation(bg, "fixed")
	if err := a.ExecuteCommand(ctx, "Open", "", "", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	ok := sink.Events()[1].(models.CommandEvent)
	if !ok.IsSuccess || ok.CorrelationID != "fixed" {
		t.Errorf("command event = %+v", ok)
	}
}
