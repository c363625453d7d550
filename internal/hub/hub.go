package hub

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/synheart/synheart-recorder/internal/export"
	"github.com/synheart/synheart-recorder/internal/metrics"
	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

const defaultQueueSize = 1024

// Hub owns the current recording session and its state machine:
//
//	Idle -> Recording -> {Paused <-> Recording} -> Stopping -> Idle
//
// Construct one per process with New and hand it to every producer.
// Events arriving while Paused are dropped and counted on the session.
type Hub struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	exporters *export.Registry
	env       models.Environment

	// mu serializes state transitions. appendMu serializes appends with
	// their notifications so that subscribers see sequence order.
	// Transitions that swap the session or change the state also hold
	// appendMu, taken after mu, so an append sees both change together.
	mu       sync.Mutex
	appendMu sync.Mutex
	state    atomic.Int32
	current  atomic.Pointer[session.Session]
	config   models.RecordingConfiguration

	hooksMu    sync.Mutex
	flushers   []func()
	onFinished []func(*session.Session)

	queue      chan Notification
	subsMu     sync.Mutex
	subs       map[int]chan Notification
	nextSub    int
	dropped    atomic.Int64
	done       chan struct{}
	closeOnce  sync.Once
	dispatcher sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithExporters(r *export.Registry) Option {
	return func(h *Hub) { h.exporters = r }
}

func WithEnvironment(env models.Environment) Option {
	return func(h *Hub) { h.env = env }
}

// WithConfiguration sets the configuration used for new sessions.
func WithConfiguration(cfg models.RecordingConfiguration) Option {
	return func(h *Hub) { h.config = cfg }
}

// WithQueueSize sets the capacity of the notification queue.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queue = make(chan Notification, n)
		}
	}
}

// New creates an idle hub and starts its notification dispatcher.
func New(opts ...Option) *Hub {
	h := &Hub{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		config: models.DefaultConfiguration(),
		queue:  make(chan Notification, defaultQueueSize),
		subs:   make(map[int]chan Notification),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.exporters == nil {
		h.exporters = export.DefaultRegistry()
	}
	h.logger = h.logger.With("component", "hub")

	h.dispatcher.Add(1)
	go h.run()
	return h
}

// Close stops the dispatcher and closes every subscriber channel.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.dispatcher.Wait()
	})
}

func (h *Hub) State() State {
	return State(h.state.Load())
}

func (h *Hub) IsRecording() bool {
	return h.State() == Recording
}

func (h *Hub) setState(s State) {
	h.state.Store(int32(s))
	h.metrics.SetRecording(s == Recording)
}

// Current returns the current session, or nil.
func (h *Hub) Current() *session.Session {
	return h.current.Load()
}

// SetConfiguration replaces the configuration used by the next Start.
// The running session keeps its snapshot.
func (h *Hub) SetConfiguration(cfg models.RecordingConfiguration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = cfg
}

// Configuration returns the active session's snapshot, or the configuration
// the next session will use.
func (h *Hub) Configuration() models.RecordingConfiguration {
	if s := h.current.Load(); s != nil && !s.Ended() {
		return s.Config()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.config
}

// OnFlush registers a callback run at the start of Stop, before the session
// is finalized. Capture adapters use it to emit pending debounced events.
func (h *Hub) OnFlush(fn func()) {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()
	h.flushers = append(h.flushers, fn)
}

// OnSessionFinished registers a callback run after Stop has finalized a
// session.
func (h *Hub) OnSessionFinished(fn func(*session.Session)) {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()
	h.onFinished = append(h.onFinished, fn)
}

// Start opens a new session. It is a no-op unless the hub is Idle.
func (h *Hub) Start(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.State() != Idle {
		return false
	}

	s := session.New(name, h.config, h.env)
	for _, issue := range s.ConfigIssues() {
		h.logger.Warn("recording configuration issue", "field", issue.Field, "message", issue.Message)
	}
	h.appendMu.Lock()
	h.current.Store(s)
	h.setState(Recording)
	h.appendMu.Unlock()
	h.logger.Info("recording started", "session_id", s.ID(), "name", s.Name())
	h.publishState(s)
	return true
}

// Stop finalizes the active session and returns to Idle. It returns the
// finished session's metadata, or false if nothing was active.
func (h *Hub) Stop() (session.Info, bool) {
	if !h.State().Active() {
		return session.Info{}, false
	}
	for _, fn := range h.hooks() {
		fn()
	}

	h.mu.Lock()
	if !h.State().Active() {
		h.mu.Unlock()
		return session.Info{}, false
	}
	h.appendMu.Lock()
	h.setState(Stopping)
	s := h.current.Load()
	s.Finalize(time.Now())
	h.setState(Idle)
	h.appendMu.Unlock()
	info := s.Info()
	h.logger.Info("recording stopped", "session_id", info.SessionID, "events", info.EventCount, "dropped_while_paused", info.DroppedWhilePaused)
	h.publishState(s)
	h.mu.Unlock()

	h.hooksMu.Lock()
	finished := append([]func(*session.Session){}, h.onFinished...)
	h.hooksMu.Unlock()
	for _, fn := range finished {
		fn(s)
	}
	return info, true
}

func (h *Hub) hooks() []func() {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()
	return append([]func(){}, h.flushers...)
}

// Pause suspends recording without ending the session.
func (h *Hub) Pause() bool {
	return h.transition(Recording, Paused)
}

// Resume continues a paused session.
func (h *Hub) Resume() bool {
	return h.transition(Paused, Recording)
}

func (h *Hub) transition(from, to State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.State() != from {
		return false
	}
	h.appendMu.Lock()
	h.setState(to)
	h.appendMu.Unlock()
	h.logger.Info("recording state changed", "from", from, "to", to)
	h.publishState(h.current.Load())
	return true
}

// Clear discards recorded events. It does nothing while Recording. When
// Paused the session is replaced by an empty one with the same name and
// configuration and the hub stays Paused. When Idle the finished session is
// dropped.
func (h *Hub) Clear() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.current.Load()
	switch h.State() {
	case Paused:
		s := session.New(old.Name(), old.Config(), h.env)
		h.appendMu.Lock()
		h.current.Store(s)
		h.appendMu.Unlock()
		h.logger.Info("session cleared", "old_session_id", old.ID(), "session_id", s.ID())
		h.enqueue(Notification{Kind: SessionCleared, At: time.Now().UTC(), SessionID: s.ID(), State: Paused})
		return true
	case Idle:
		if old == nil {
			return false
		}
		h.appendMu.Lock()
		h.current.Store(nil)
		h.appendMu.Unlock()
		h.logger.Info("session cleared", "old_session_id", old.ID())
		h.enqueue(Notification{Kind: SessionCleared, At: time.Now().UTC(), State: Idle})
		return true
	}
	return false
}

// AddEvent records e in the active session. It returns the stamped event,
// or nil without error when the event was dropped because the hub is not
// recording. Malformed events fail with models.ErrInvalidEvent.
func (h *Hub) AddEvent(e models.Event) (models.Event, error) {
	e, err := models.Normalize(e)
	if err != nil {
		h.metrics.DropEvent("invalid")
		return nil, err
	}

	h.appendMu.Lock()
	defer h.appendMu.Unlock()

	state := h.State()
	s := h.current.Load()
	if s == nil {
		h.metrics.DropEvent("idle")
		return nil, nil
	}
	switch state {
	case Recording:
	case Paused:
		s.NoteDropped()
		h.metrics.DropEvent("paused")
		return nil, nil
	default:
		h.metrics.DropEvent("idle")
		return nil, nil
	}

	stamped, err := s.Append(e)
	if errors.Is(err, session.ErrSessionEnded) {
		h.metrics.DropEvent("ended")
		return nil, nil
	}
	if err != nil {
		h.metrics.DropEvent("invalid")
		return nil, err
	}

	h.metrics.RecordEvent(string(stamped.Type()))
	h.enqueue(Notification{
		Kind:        EntryRecorded,
		At:          time.Now().UTC(),
		SessionID:   s.ID(),
		State:       Recording,
		IsRecording: true,
		Event:       stamped,
	})
	return stamped, nil
}

// Entries returns a snapshot of the current session's events.
func (h *Hub) Entries() []models.Event {
	if s := h.current.Load(); s != nil {
		return s.Entries()
	}
	return []models.Event{}
}

func (h *Hub) EntryCount() int {
	if s := h.current.Load(); s != nil {
		return s.Len()
	}
	return 0
}

// Info returns the current session's metadata, or nil.
func (h *Hub) Info() *session.Info {
	if s := h.current.Load(); s != nil {
		info := s.Info()
		return &info
	}
	return nil
}

func (h *Hub) Stats() Stats {
	st := Stats{
		State:                h.State(),
		ByType:               map[models.EventType]int{},
		DroppedNotifications: h.dropped.Load(),
		Subscribers:          h.subscriberCount(),
	}
	if s := h.current.Load(); s != nil {
		info := s.Info()
		st.SessionID = info.SessionID
		st.SessionName = info.Name
		st.EntryCount = info.EventCount
		st.DroppedWhilePaused = info.DroppedWhilePaused
		st.ByType = s.CountByType()
	}
	return st
}

// Exporters returns the registry used by ExportAs.
func (h *Hub) Exporters() *export.Registry {
	return h.exporters
}

// ExportAs renders the current session in the named format.
func (h *Hub) ExportAs(format string) ([]byte, error) {
	a, err := h.Render(format)
	if err != nil {
		return nil, err
	}
	return a.Data, nil
}

// Render is like ExportAs but keeps the artifact naming information.
func (h *Hub) Render(format string) (export.Artifact, error) {
	var (
		events = []models.Event{}
		info   *session.Info
	)
	if s := h.current.Load(); s != nil {
		events = s.Entries()
		i := s.Info()
		info = &i
	}

	start := time.Now()
	a, err := h.exporters.Render(format, events, info)
	if err != nil {
		h.logger.Warn("export failed", "format", format, "error", err)
		return export.Artifact{}, err
	}
	h.metrics.ObserveExport(a.Format, time.Since(start), len(a.Data))
	return a, nil
}

func (h *Hub) publishState(s *session.Session) {
	n := Notification{
		Kind:        StateChanged,
		At:          time.Now().UTC(),
		State:       h.State(),
		IsRecording: h.State() == Recording,
	}
	if s != nil {
		n.SessionID = s.ID()
	}
	h.enqueue(n)
}
