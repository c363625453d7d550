// Package publish mirrors recorded events onto external streams.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synheart/synheart-recorder/internal/hub"
)

const (
	DefaultStream = "recorder_events"
	defaultMaxLen = 10000
)

// StreamPublisher appends hub notifications to a Redis stream.
type StreamPublisher struct {
	client    *redis.Client
	stream    string
	maxLen    int64
	logger    *slog.Logger
	available atomic.Bool
	published atomic.Int64
}

// NewStreamPublisher connects to the Redis server at url and verifies it
// responds before returning.
func NewStreamPublisher(ctx context.Context, url, stream string, logger *slog.Logger) (*StreamPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newStreamPublisher(client, stream, logger), nil
}

func newStreamPublisher(client *redis.Client, stream string, logger *slog.Logger) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: defaultMaxLen,
		logger: logger.With("component", "redis_publisher", "stream", stream),
	}
	p.available.Store(true)
	return p
}

// Publish appends one notification to the stream.
func (p *StreamPublisher) Publish(ctx context.Context, n hub.Notification) error {
	values, err := streamValues(n)
	if err != nil {
		return err
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		if p.available.CompareAndSwap(true, false) {
			p.logger.Error("Redis stream unavailable", "error", err)
		}
		return fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	if p.available.CompareAndSwap(false, true) {
		p.logger.Info("Redis stream recovered")
	}
	p.published.Add(1)
	return nil
}

// Follow publishes notifications until ctx is done or the channel closes.
// Failed writes are logged and skipped.
func (p *StreamPublisher) Follow(ctx context.Context, notifications <-chan hub.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := p.Publish(pubCtx, n); err != nil {
				p.logger.Debug("publish failed", "kind", n.Kind, "error", err)
			}
			cancel()
		}
	}
}

func (p *StreamPublisher) Published() int64 {
	return p.published.Load()
}

func (p *StreamPublisher) Close() error {
	return p.client.Close()
}

// streamValues flattens a notification into stream entry fields. The full
// notification travels as JSON under "payload".
func streamValues(n hub.Notification) (map[string]interface{}, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	values := map[string]interface{}{
		"kind":    string(n.Kind),
		"state":   n.State.String(),
		"payload": payload,
	}
	if n.SessionID != "" {
		values["session_id"] = n.SessionID
	}
	if n.Event != nil {
		base := n.Event.Base()
		values["event_type"] = string(base.EventType)
		values["sequence"] = base.SequenceNumber
		if base.CorrelationID != "" {
			values["correlation_id"] = base.CorrelationID
		}
	}
	return values, nil
}
