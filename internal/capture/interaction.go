package capture

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synheart/synheart-recorder/internal/models"
)

// Signal is what the UI toolkit reports for one interaction with an element.
type Signal struct {
	ElementType       string
	ElementName       string
	AutomationID      string
	OldValue          string
	NewValue          string
	ViewModelProperty string
	ScreenPosition    *models.Point
	RelativePosition  *models.Point
	Metadata          map[string]string
}

func (s Signal) key() string {
	if s.ElementName != "" {
		return s.ElementName
	}
	return s.AutomationID
}

// WindowState is the host's window state.
type WindowState int

const (
	WindowNormal WindowState = iota
	WindowMinimized
	WindowMaximized
)

func (s WindowState) String() string {
	switch s {
	case WindowMinimized:
		return "Minimized"
	case WindowMaximized:
		return "Maximized"
	}
	return "Normal"
}

// WindowInfo describes a window at the time of a lifecycle signal.
type WindowInfo struct {
	Title  string
	Type   string
	X      float64
	Y      float64
	Width  float64
	Height float64
	State  WindowState
}

type debounceKey struct {
	inputType models.InputType
	element   string
}

type pendingInput struct {
	event models.InputEvent
	timer *time.Timer
}

// Interaction converts UI signals into input, window, navigation and
// command events. Signals pass exclusion, the instrumentation guard,
// debounce and masking, in that order.
type Interaction struct {
	sink   Sink
	logger *slog.Logger

	mu           sync.Mutex
	instrumented map[string]struct{}
	pending      map[debounceKey]*pendingInput
}

func NewInteraction(sink Sink, logger *slog.Logger) *Interaction {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Interaction{
		sink:         sink,
		logger:       logger.With("component", "interaction_capture"),
		instrumented: make(map[string]struct{}),
		pending:      make(map[debounceKey]*pendingInput),
	}
}

// Instrument reports whether the element identified by id should have
// handlers attached. Excluded elements and elements already instrumented
// return false.
func (a *Interaction) Instrument(id, elementType, elementName string) bool {
	if a.sink.Configuration().IsExcluded(elementType, elementName) {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.instrumented[id]; ok {
		return false
	}
	a.instrumented[id] = struct{}{}
	return true
}

// Forget removes an element from the instrumentation guard, for example
// when the host disposes it.
func (a *Interaction) Forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.instrumented, id)
}

// Instrumented returns the number of elements currently instrumented.
func (a *Interaction) Instrumented() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.instrumented)
}

func (a *Interaction) TextChanged(ctx context.Context, sig Signal) {
	a.input(ctx, models.InputTextChanged, sig)
}

func (a *Interaction) ButtonClicked(ctx context.Context, sig Signal) {
	a.input(ctx, models.InputButtonClicked, sig)
}

func (a *Interaction) SelectionChanged(ctx context.Context, sig Signal) {
	a.input(ctx, models.InputSelectionChanged, sig)
}

func (a *Interaction) CheckedChanged(ctx context.Context, sig Signal) {
	a.input(ctx, models.InputCheckedChanged, sig)
}

func (a *Interaction) input(ctx context.Context, inputType models.InputType, sig Signal) {
	cfg := a.sink.Configuration()
	if !cfg.RecordInputEvents || cfg.IsExcluded(sig.ElementType, sig.ElementName) {
		return
	}

	e := models.InputEvent{
		EventBase:         models.NewBase(models.EventTypeInput, CorrelationFrom(ctx)),
		InputType:         inputType,
		SourceElementName: sig.ElementName,
		SourceElementType: sig.ElementType,
		AutomationID:      sig.AutomationID,
		OldValue:          sig.OldValue,
		NewValue:          sig.NewValue,
		ViewModelProperty: sig.ViewModelProperty,
		ScreenPosition:    sig.ScreenPosition,
		RelativePosition:  sig.RelativePosition,
		Metadata:          copyMetadata(sig.Metadata),
	}
	if cfg.IsSensitiveField(sig.ElementName) || cfg.IsSensitiveField(sig.AutomationID) {
		e.OldValue = mask(e.OldValue, cfg.MaskText)
		e.NewValue = mask(e.NewValue, cfg.MaskText)
	}

	interval := cfg.DebounceInterval()
	if interval <= 0 {
		a.emit(e)
		return
	}
	a.debounce(debounceKey{inputType, sig.key()}, e, interval)
}

// debounce holds e until no newer signal for the same key arrives within
// interval. The newest value wins; the oldest OldValue of the burst is kept.
func (a *Interaction) debounce(key debounceKey, e models.InputEvent, interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.pending[key]; ok {
		prev.timer.Stop()
		e.OldValue = prev.event.OldValue
	}
	p := &pendingInput{event: e}
	p.timer = time.AfterFunc(interval, func() { a.fire(key, p) })
	a.pending[key] = p
}

func (a *Interaction) fire(key debounceKey, p *pendingInput) {
	a.mu.Lock()
	if a.pending[key] != p {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	a.mu.Unlock()

	a.emit(p.event)
}

// Flush emits every pending debounced event immediately, oldest first.
func (a *Interaction) Flush() {
	a.mu.Lock()
	events := make([]models.InputEvent, 0, len(a.pending))
	for key, p := range a.pending {
		p.timer.Stop()
		events = append(events, p.event)
		delete(a.pending, key)
	}
	a.mu.Unlock()

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	for _, e := range events {
		a.emit(e)
	}
}

// Pending returns the number of debounced events not yet emitted.
func (a *Interaction) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Interaction) WindowOpened(ctx context.Context, w WindowInfo) {
	a.window(ctx, models.WindowOpened, w)
}

func (a *Interaction) WindowActivated(ctx context.Context, w WindowInfo) {
	a.window(ctx, models.WindowActivated, w)
}

func (a *Interaction) WindowDeactivated(ctx context.Context, w WindowInfo) {
	a.window(ctx, models.WindowDeactivated, w)
}

func (a *Interaction) WindowClosed(ctx context.Context, w WindowInfo) {
	a.window(ctx, models.WindowClosed, w)
}

// WindowStateChanged translates the host's reported window state.
func (a *Interaction) WindowStateChanged(ctx context.Context, w WindowInfo) {
	switch w.State {
	case WindowMinimized:
		a.window(ctx, models.WindowMinimized, w)
	case WindowMaximized:
		a.window(ctx, models.WindowMaximized, w)
	default:
		a.window(ctx, models.WindowRestored, w)
	}
}

func (a *Interaction) window(ctx context.Context, t models.WindowEventType, w WindowInfo) {
	if !a.sink.Configuration().RecordWindowEvents {
		return
	}
	a.emit(models.WindowEvent{
		EventBase:       models.NewBase(models.EventTypeWindow, CorrelationFrom(ctx)),
		WindowEventType: t,
		WindowTitle:     w.Title,
		WindowType:      w.Type,
		X:               w.X,
		Y:               w.Y,
		Width:           w.Width,
		Height:          w.Height,
		CurrentState:    w.State.String(),
	})
}

// Navigated records a view change.
func (a *Interaction) Navigated(ctx context.Context, from, to string) {
	if !a.sink.Configuration().RecordNavigation {
		return
	}
	a.emit(models.NavigationEvent{
		EventBase:      models.NewBase(models.EventTypeNavigation, CorrelationFrom(ctx)),
		NavigationType: models.NavigationView,
		FromView:       from,
		ToView:         to,
	})
}

// TabChanged records a tab selection inside view.
func (a *Interaction) TabChanged(ctx context.Context, view, header string) {
	if !a.sink.Configuration().RecordNavigation {
		return
	}
	a.emit(models.NavigationEvent{
		EventBase:      models.NewBase(models.EventTypeNavigation, CorrelationFrom(ctx)),
		NavigationType: models.NavigationTabChanged,
		ToView:         view,
		TabHeader:      header,
	})
}

// ExecuteCommand runs fn and records a CommandEvent describing it. fn gets
// a context carrying the command's correlation id, so API calls it makes
// are grouped with the command. fn's error is returned unchanged.
func (a *Interaction) ExecuteCommand(ctx context.Context, name, commandType, parameter string, fn func(context.Context) error) error {
	if !a.sink.Configuration().RecordCommands {
		return fn(ctx)
	}

	id := CorrelationFrom(ctx)
	if id == "" {
		id = uuid.New().String()
		ctx = WithCorrelation(ctx, id)
	}

	e := models.CommandEvent{
		EventBase:        models.NewBase(models.EventTypeCommand, id),
		CommandName:      name,
		CommandType:      commandType,
		CommandParameter: parameter,
	}
	start := time.Now()
	err := fn(ctx)
	e.ExecutionDurationMs = time.Since(start).Milliseconds()
	e.IsSuccess = err == nil
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	a.emit(e)
	return err
}

func (a *Interaction) emit(e models.Event) {
	if _, err := a.sink.AddEvent(e); err != nil {
		a.logger.Warn("failed to record event", "event_type", e.Type(), "error", err)
	}
}

func mask(v, maskText string) string {
	if v == "" {
		return v
	}
	return maskText
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
