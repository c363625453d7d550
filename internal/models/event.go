package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the recordable event variants.
type EventType string

const (
	EventTypeInput      EventType = "Input"
	EventTypeCommand    EventType = "Command"
	EventTypeAPICall    EventType = "ApiCall"
	EventTypeNavigation EventType = "Navigation"
	EventTypeWindow     EventType = "Window"
)

// InputType names the kind of user input an InputEvent describes.
type InputType string

const (
	InputTextChanged      InputType = "TextChanged"
	InputButtonClicked    InputType = "ButtonClicked"
	InputSelectionChanged InputType = "SelectionChanged"
	InputCheckedChanged   InputType = "CheckedChanged"
)

// NavigationType names the kind of navigation a NavigationEvent describes.
type NavigationType string

const (
	NavigationView       NavigationType = "ViewNavigation"
	NavigationTabChanged NavigationType = "TabChanged"
)

// WindowEventType names a window lifecycle transition.
type WindowEventType string

const (
	WindowOpened      WindowEventType = "Opened"
	WindowActivated   WindowEventType = "Activated"
	WindowDeactivated WindowEventType = "Deactivated"
	WindowMinimized   WindowEventType = "Minimized"
	WindowMaximized   WindowEventType = "Maximized"
	WindowRestored    WindowEventType = "Restored"
	WindowClosed      WindowEventType = "Closed"
)

// Event is the closed set of recordable occurrences. The unexported marker
// method keeps the set limited to the variants declared in this package.
type Event interface {
	Base() EventBase
	Type() EventType
	isEvent()
}

// EventBase carries the fields every event shares.
type EventBase struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	SequenceNumber int64     `json:"sequenceNumber"`
	CorrelationID  string    `json:"correlationId"`
	EventType      EventType `json:"eventType"`
}

// NewBase returns a base with a fresh id and the current UTC capture time.
func NewBase(eventType EventType, correlationID string) EventBase {
	return EventBase{
		ID:            uuid.New().String(),
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		EventType:     eventType,
	}
}

// Point is a screen or element-relative coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// InputEvent records a value change or activation on a UI element.
type InputEvent struct {
	EventBase
	InputType         InputType         `json:"inputType"`
	SourceElementName string            `json:"sourceElementName"`
	SourceElementType string            `json:"sourceElementType"`
	AutomationID      string            `json:"automationId"`
	OldValue          string            `json:"oldValue"`
	NewValue          string            `json:"newValue"`
	ViewModelProperty string            `json:"viewModelProperty"`
	ScreenPosition    *Point            `json:"screenPosition"`
	RelativePosition  *Point            `json:"relativePosition"`
	Metadata          map[string]string `json:"metadata"`
}

// CommandEvent records the execution of an application command.
type CommandEvent struct {
	EventBase
	CommandName         string `json:"commandName"`
	CommandType         string `json:"commandType"`
	CommandParameter    string `json:"commandParameter"`
	ExecutionDurationMs int64  `json:"executionDurationMs"`
	IsSuccess           bool   `json:"isSuccess"`
	ErrorMessage        string `json:"errorMessage"`
}

// APICallEvent records one outbound HTTP exchange.
type APICallEvent struct {
	EventBase
	HTTPMethod          string            `json:"httpMethod"`
	RequestURL          string            `json:"requestUrl"`
	StatusCode          int               `json:"statusCode"`
	DurationMs          int64             `json:"durationMs"`
	RequestContentType  string            `json:"requestContentType"`
	ResponseContentType string            `json:"responseContentType"`
	RequestHeaders      map[string]string `json:"requestHeaders"`
	ResponseHeaders     map[string]string `json:"responseHeaders"`
	RequestBody         string            `json:"requestBody"`
	ResponseBody        string            `json:"responseBody"`
	ErrorMessage        string            `json:"errorMessage"`
}

// NavigationEvent records a view or tab change.
type NavigationEvent struct {
	EventBase
	NavigationType NavigationType `json:"navigationType"`
	FromView       string         `json:"fromView"`
	ToView         string         `json:"toView"`
	TabHeader      string         `json:"tabHeader"`
}

// WindowEvent records a window lifecycle transition.
type WindowEvent struct {
	EventBase
	WindowEventType WindowEventType `json:"windowEventType"`
	WindowTitle     string          `json:"windowTitle"`
	WindowType      string          `json:"windowType"`
	X               float64         `json:"x"`
	Y               float64         `json:"y"`
	Width           float64         `json:"width"`
	Height          float64         `json:"height"`
	CurrentState    string          `json:"currentState"`
}

func (e InputEvent) Base() EventBase      { return e.EventBase }
func (e CommandEvent) Base() EventBase    { return e.EventBase }
func (e APICallEvent) Base() EventBase    { return e.EventBase }
func (e NavigationEvent) Base() EventBase { return e.EventBase }
func (e WindowEvent) Base() EventBase     { return e.EventBase }

func (InputEvent) Type() EventType      { return EventTypeInput }
func (CommandEvent) Type() EventType    { return EventTypeCommand }
func (APICallEvent) Type() EventType    { return EventTypeAPICall }
func (NavigationEvent) Type() EventType { return EventTypeNavigation }
func (WindowEvent) Type() EventType     { return EventTypeWindow }

func (InputEvent) isEvent()      {}
func (CommandEvent) isEvent()    {}
func (APICallEvent) isEvent()    {}
func (NavigationEvent) isEvent() {}
func (WindowEvent) isEvent()     {}

// Stamp returns a copy of e carrying the given sequence number and timestamp.
func Stamp(e Event, seq int64, ts time.Time) Event {
	switch v := e.(type) {
	case InputEvent:
		v.SequenceNumber, v.Timestamp = seq, ts
		return v
	case CommandEvent:
		v.SequenceNumber, v.Timestamp = seq, ts
		return v
	case APICallEvent:
		v.SequenceNumber, v.Timestamp = seq, ts
		return v
	case NavigationEvent:
		v.SequenceNumber, v.Timestamp = seq, ts
		return v
	case WindowEvent:
		v.SequenceNumber, v.Timestamp = seq, ts
		return v
	}
	panic(fmt.Sprintf("models: unhandled event variant %T", e))
}

// UnmarshalEvent decodes one event record, dispatching on its eventType.
func UnmarshalEvent(data []byte) (Event, error) {
	var envelope struct {
		EventType EventType `json:"eventType"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: failed to decode event: %w", ErrInvalidEvent, err)
	}

	switch envelope.EventType {
	case EventTypeInput:
		return decodeAs[InputEvent](data)
	case EventTypeCommand:
		return decodeAs[CommandEvent](data)
	case EventTypeAPICall:
		return decodeAs[APICallEvent](data)
	case EventTypeNavigation:
		return decodeAs[NavigationEvent](data)
	case EventTypeWindow:
		return decodeAs[WindowEvent](data)
	case "":
		return nil, invalid("eventType", "is required")
	default:
		return nil, invalid("eventType", fmt.Sprintf("unknown event type %q", envelope.EventType))
	}
}

func decodeAs[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %T: %w", ErrInvalidEvent, v, err)
	}
	return v, nil
}
