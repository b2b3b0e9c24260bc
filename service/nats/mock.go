package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	purchases    []*PurchaseEvent
	raised       []*RaisedEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishPurchase records the event and returns any configured error.
func (m *MockPublisher) PublishPurchase(ctx context.Context, event *PurchaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.purchases = append(m.purchases, event)
	return nil
}

// PublishRaised records the event and returns any configured error.
func (m *MockPublisher) PublishRaised(ctx context.Context, event *RaisedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.raised = append(m.raised, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPurchases returns all published purchase events (for testing).
func (m *MockPublisher) GetPurchases() []*PurchaseEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*PurchaseEvent, len(m.purchases))
	copy(events, m.purchases)
	return events
}

// GetRaised returns all published raised snapshots.
func (m *MockPublisher) GetRaised() []*RaisedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*RaisedEvent, len(m.raised))
	copy(events, m.raised)
	return events
}

// GetPurchasesForNetwork returns purchases published for a specific network.
func (m *MockPublisher) GetPurchasesForNetwork(network string) []*PurchaseEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*PurchaseEvent, 0)
	for _, event := range m.purchases {
		if event.Network == network {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = nil
	m.raised = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
