// Package memory provides an in-process Publisher that records events for
// tests and development runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Event is one published message.
type Event struct {
	Topic   string
	Payload []byte
}

// Publisher accumulates published events in memory.
type Publisher struct {
	mu     sync.Mutex
	events []Event
	nextID int
}

// NewPublisher creates an empty Publisher.
func NewPublisher() *Publisher { return &Publisher{} }

// Publish records the payload and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.events = append(p.events, Event{Topic: topic, Payload: data})
	return fmt.Sprintf("mem-%d", p.nextID), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
