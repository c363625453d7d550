package capture

import (
	"context"
	"sync"
	"time"

	"github.com/synheart/synheart-recorder/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	cfg    models.RecordingConfiguration
	events []models.Event
}

func newSink(mutate func(*models.RecordingConfiguration)) *recordingSink {
	cfg := models.DefaultConfiguration()
	cfg.DebounceIntervalMs = 0
	if mutate != nil {
		mutate(&cfg)
	}
	cfg, _ = cfg.Normalize()
	return &recordingSink{cfg: cfg}
}

func (s *recordingSink) AddEvent(e models.Event) (models.Event, error) {
	e, err := models.Normalize(e)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return e, nil
}

func (s *recordingSink) Configuration() models.RecordingConfiguration {
	return s.cfg
}

func (s *recordingSink) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

// waitForEvents polls until the sink holds n events or the timeout passes.
func (s *recordingSink) waitForEvents(n int, timeout time.Duration) []models.Event {
	deadline := time.Now().Add(timeout)
	for {
		events := s.Events()
		if len(events) >= n || time.Now().After(deadline) {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var bg = context.Background()
