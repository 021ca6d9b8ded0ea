// Package notification provides the notification manager for broadcasting
// engine events to transport subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	EventSessionStarted          = "SESSION_STARTED"
	EventSessionEnded            = "SESSION_ENDED"
	EventSessionPlaylistsUpdated = "SESSION_PLAYLISTS_UPDATED"
	EventVoteAdded               = "VOTE_ADDED"
)

// Event is a discrete named event with a JSON-serializable payload.
type Event struct {
	Type       string `json:"type"`
	Payload    any    `json:"payload"`
	SequenceNo uint64 `json:"sequenceNo"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(Event) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast sends an event to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
func (m *Manager) Broadcast(event Event) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	event.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(event)
			}()

			select {
			case <-done:
				// Send errors are ignored; a dead subscriber is removed
				// by the transport layer when it notices.
			case <-ctx.Done():
				// Timeout - continue to next subscriber
			}
		}(sub)
	}

	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
