package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/ports"
)

// DefaultTopic is the topic session events are published to
const DefaultTopic = "leaderboard.session"

// Envelope is the wire form of a core.Event
type Envelope struct {
	ID     string          `json:"id"`
	Type   core.EventType  `json:"type"`
	Op     string          `json:"op"`
	At     time.Time       `json:"at"`
	Error  string          `json:"error,omitempty"`
	Scores *core.TopScores `json:"scores,omitempty"`
	User   *core.User      `json:"user,omitempty"`
}

// NewEnvelope converts an event for publishing
func NewEnvelope(event core.Event) Envelope {
	env := Envelope{
		ID:     event.ID,
		Type:   event.Type,
		Op:     event.Op,
		At:     event.At,
		Scores: event.Scores,
		User:   event.User,
	}
	if event.Err != nil {
		env.Error = event.Err.Error()
	}
	return env
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// Publish publishes the event as a JSON envelope
func (p *WatermillPublisher) Publish(ctx context.Context, event core.Event) error {
	payload, err := json.Marshal(NewEnvelope(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", string(event.Type))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
