package stream

import "encoding/json"

// Event types emitted by the Think Box stream.
const (
	EventRunStarted   = "run_started"
	EventToken        = "token"
	EventFallbackMode = "fallback_mode"
	EventError        = "error"
	EventDone         = "done"
)

// Event is a discriminated union for stream events.
// Check the concrete type via type switch.
type Event interface {
	eventType() string
}

// RunStartedEvent announces the run id the backend assigned.
type RunStartedEvent struct {
	RunID string `json:"run_id"`
}

func (RunStartedEvent) eventType() string { return EventRunStarted }

// TokenEvent carries a piece of answer text.
type TokenEvent struct {
	Content string `json:"content"`
}

func (TokenEvent) eventType() string { return EventToken }

// FallbackModeEvent reports that the backend answered in a degraded mode.
type FallbackModeEvent struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason,omitempty"`
}

func (FallbackModeEvent) eventType() string { return EventFallbackMode }

// ErrorEvent is a backend-side failure. It does not end the stream by itself.
type ErrorEvent struct {
	Detail string `json:"detail"`
}

func (ErrorEvent) eventType() string { return EventError }

// DoneEvent marks the end of a run.
type DoneEvent struct{}

func (DoneEvent) eventType() string { return EventDone }

// UnknownEvent is any event with an unrecognized type.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }

// Type returns the wire type name of e.
func Type(e Event) string {
	return e.eventType()
}

// ParseEvent decodes a single JSON payload into a typed event.
func ParseEvent(data []byte) (Event, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}

	switch header.Type {
	case EventRunStarted:
		var e RunStartedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventToken:
		var e TokenEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventFallbackMode:
		var e FallbackModeEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventError:
		var e ErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventDone:
		return DoneEvent{}, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return UnknownEvent{Type: header.Type, Raw: raw}, nil
	}
}
