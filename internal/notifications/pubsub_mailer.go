package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const envelopeVersion = 1

// Publisher is satisfied by pkg/pubsub.Client.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

type emailEnvelope struct {
	Version    int       `json:"version"`
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       Message   `json:"data"`
}

// PubSubMailer publishes messages for the transactional-email worker.
type PubSubMailer struct {
	pub   Publisher
	topic string
	now   func() time.Time
}

func NewPubSubMailer(pub Publisher, topic string) (*PubSubMailer, error) {
	if pub == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	if topic == "" {
		return nil, fmt.Errorf("email topic required")
	}
	return &PubSubMailer{pub: pub, topic: topic, now: time.Now}, nil
}

func (m *PubSubMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("recipient required")
	}
	env := emailEnvelope{
		Version:    envelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: m.now().UTC(),
		Data:       msg,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal email envelope: %w", err)
	}
	attrs := map[string]string{
		"event_type": "email.send",
		"event_id":   env.EventID,
		"template":   msg.Template,
	}
	if _, err := m.pub.Publish(ctx, m.topic, data, attrs); err != nil {
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}
