package models

import (
	"errors"
	"fmt"
)

// ErrInvalidEvent is returned for nil or malformed events.
var ErrInvalidEvent = errors.New("invalid event")

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return fmt.Errorf("%w: %w", ErrInvalidEvent, &ValidationError{Field: field, Message: message})
}

// Normalize dereferences pointer variants and validates the event. The
// returned event is always a value variant.
func Normalize(e Event) (Event, error) {
	switch v := e.(type) {
	case nil:
		return nil, invalid("event", "is nil")
	case *InputEvent:
		if v == nil {
			return nil, invalid("event", "is nil")
		}
		e = *v
	case *CommandEvent:
		if v == nil {
			return nil, invalid("event", "is nil")
		}
		e = *v
	case *APICallEvent:
		if v == nil {
			return nil, invalid("event", "is nil")
		}
		e = *v
	case *NavigationEvent:
		if v == nil {
			return nil, invalid("event", "is nil")
		}
		e = *v
	case *WindowEvent:
		if v == nil {
			return nil, invalid("event", "is nil")
		}
		e = *v
	}

	if err := Validate(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the shared envelope and the variant's required fields.
func Validate(e Event) error {
	if e == nil {
		return invalid("event", "is nil")
	}

	base := e.Base()
	if base.ID == "" {
		return invalid("id", "is required")
	}
	if base.Timestamp.IsZero() {
		return invalid("timestamp", "is required")
	}
	if base.EventType != e.Type() {
		return invalid("eventType", fmt.Sprintf("%q does not match variant %s", base.EventType, e.Type()))
	}

	switch v := e.(type) {
	case InputEvent:
		if v.InputType == "" {
			return invalid("inputType", "is required")
		}
		if v.SourceElementName == "" && v.AutomationID == "" {
			return invalid("sourceElementName", "sourceElementName or automationId is required")
		}
	case CommandEvent:
		if v.CommandName == "" {
			return invalid("commandName", "is required")
		}
	case APICallEvent:
		if v.HTTPMethod == "" {
			return invalid("httpMethod", "is required")
		}
		if v.RequestURL == "" {
			return invalid("requestUrl", "is required")
		}
	case NavigationEvent:
		if v.NavigationType == "" {
			return invalid("navigationType", "is required")
		}
	case WindowEvent:
		if v.WindowEventType == "" {
			return invalid("windowEventType", "is required")
		}
	default:
		return invalid("event", fmt.Sprintf("unsupported variant %T", e))
	}
	return nil
}
