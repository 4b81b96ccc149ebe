package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope written to the topic. Data holds the JSON-encoded
// domain payload, e.g. order.OrderPlaced.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewEvent(eventType, key string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Key:       key,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// DecodeEvent parses a message value into an envelope
func DecodeEvent(value []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("invalid event envelope: missing type")
	}
	return &e, nil
}
