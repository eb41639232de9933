package hub

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the envelope pushed to clients: {"event": ..., "data": ...}.
// Clients match on the literal event name; there is no versioning.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func NewMessage(event string, data any) *Message {
	return &Message{Event: event, Data: data}
}

// Encode serializes the message once so it can be written to every connection.
func (m *Message) Encode() ([]byte, error) {
	if m == nil {
		return nil, errors.New("message cannot be nil")
	}
	if m.Event == "" {
		return nil, errors.New("message event cannot be empty")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message %s: %w", m.Event, err)
	}
	return b, nil
}
