package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSub publishes events to a Google Cloud Pub/Sub topic. Sends are
// fire-and-forget; the client batches and retries in the background.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

var _ Publisher = (*PubSub)(nil)

// NewPubSub connects to the project and verifies the topic exists.
func NewPubSub(ctx context.Context, projectID, topicID string) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close() //nolint:errcheck
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if !exists {
		client.Close() //nolint:errcheck
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &PubSub{client: client, topic: topic}, nil
}

// Publish serializes the event and hands it to the topic.
func (p *PubSub) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"type": ev.Type},
	})
	return nil
}

// Close flushes pending sends and shuts the client down.
func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
