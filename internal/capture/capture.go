// Package capture turns UI signals and HTTP exchanges into recorded events.
//
// Adapters never return capture problems to the code they observe: invalid
// or dropped events are logged and the host carries on.
package capture

import (
	"context"

	"github.com/google/uuid"
	"github.com/synheart/synheart-recorder/internal/models"
	"go.opentelemetry.io/otel/trace"
)

// Sink receives captured events. *hub.Hub implements it.
type Sink interface {
	AddEvent(e models.Event) (models.Event, error)
	Configuration() models.RecordingConfiguration
}

type correlationKey struct{}

// WithCorrelation returns a context whose captured events share id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationFrom returns the correlation id carried by ctx, if any.
func CorrelationFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// correlationFor prefers an explicit id, then the active trace, then a
// fresh id.
func correlationFor(ctx context.Context) string {
	if id := CorrelationFrom(ctx); id != "" {
		return id
	}
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			return sc.TraceID().String()
		}
	}
	return uuid.New().String()
}
