// Package pubsub publishes job completion events to Google Cloud Pub/Sub so
// downstream consumers can react without polling the API.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub"
)

// Publisher sends JSON-encoded events to Pub/Sub topics. Topic handles are
// cached per name.
type Publisher struct {
	client *gcppubsub.Client

	mu     sync.Mutex
	topics map[string]*gcppubsub.Topic
}

// NewPublisher connects to Pub/Sub for the given project.
func NewPublisher(ctx context.Context, projectID string) (*Publisher, error) {
	client, err := gcppubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{
		client: client,
		topics: make(map[string]*gcppubsub.Topic),
	}, nil
}

// Publish marshals the payload to JSON, sends it to the topic, and waits for
// the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	result := p.topic(topic).Publish(ctx, &gcppubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to topic %s: %w", topic, err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}

func (p *Publisher) topic(name string) *gcppubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}
