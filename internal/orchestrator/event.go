package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies an engine event.
type EventType string

const (
	EventPersona EventType = "persona"
	EventContent EventType = "content"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// PersonaInfo identifies the speaker of a turn.
type PersonaInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Model  string `json:"model"`
}

// Event is one step of a turn as seen by the caller.
// On the wire it is {"type": ..., "data": ...}.
type Event struct {
	Type    EventType
	Persona *PersonaInfo // EventPersona
	Content string       // EventContent
	Message *Message     // EventDone, the persisted message
	Err     error        // EventError
}

type wireEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the event in its wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	var data any
	switch e.Type {
	case EventPersona:
		data = e.Persona
	case EventContent:
		data = e.Content
	case EventError:
		if e.Err != nil {
			data = e.Err.Error()
		}
	}

	w := wireEvent{Type: e.Type}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		w.Data = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an event from its wire form.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*e = Event{Type: w.Type}
	switch w.Type {
	case EventPersona:
		e.Persona = &PersonaInfo{}
		return json.Unmarshal(w.Data, e.Persona)
	case EventContent:
		return json.Unmarshal(w.Data, &e.Content)
	case EventError:
		var msg string
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &msg); err != nil {
				return err
			}
		}
		e.Err = errors.New(msg)
	case EventDone:
	default:
		return fmt.Errorf("unknown event type %q", w.Type)
	}
	return nil
}
