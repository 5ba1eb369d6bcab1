package subscription

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Subscription errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Handle identifies one subscription.
type Handle[K comparable] struct {
	ID    string
	Topic K
}

// Valid reports whether the handle was issued by a manager.
func (h Handle[K]) Valid() bool {
	return h.ID != ""
}

// PanicError wraps a value recovered from a subscriber.
type PanicError struct {
	SubscriptionID string
	Recovered      any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("subscriber %s panicked: %v", e.SubscriptionID, e.Recovered)
}

// Config configures a Manager.
type Config[K comparable] struct {
	// OnPanic is called after a subscriber panic is recovered.
	OnPanic func(topic K, err *PanicError)
}

type entry[T any] struct {
	id string
	fn func(T)
}

// Manager is a topic-keyed registry of subscribers.
type Manager[K comparable, T any] struct {
	mu     sync.RWMutex
	config Config[K]
	topics map[K][]entry[T]
	index  map[string]K
}

// NewManager creates an empty manager.
func NewManager[K comparable, T any](config Config[K]) *Manager[K, T] {
	return &Manager[K, T]{
		config: config,
		topics: make(map[K][]entry[T]),
		index:  make(map[string]K),
	}
}

// Subscribe registers fn for topic. A nil fn returns an invalid handle.
func (m *Manager[K, T]) Subscribe(topic K, fn func(T)) Handle[K] {
	if fn == nil {
		return Handle[K]{}
	}

	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[topic] = append(m.topics[topic], entry[T]{id: id, fn: fn})
	m.index[id] = topic

	return Handle[K]{ID: id, Topic: topic}
}

// Unsubscribe removes the subscription behind h.
func (m *Manager[K, T]) Unsubscribe(h Handle[K]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	topic, ok := m.index[h.ID]
	if !ok || topic != h.Topic {
		return ErrSubscriptionNotFound
	}
	delete(m.index, h.ID)

	subs := m.topics[topic]
	for i, e := range subs {
		if e.id == h.ID {
			// Copy so a Publish iterating the old slice is unaffected.
			next := make([]entry[T], 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			m.topics[topic] = next
			break
		}
	}
	if len(m.topics[topic]) == 0 {
		delete(m.topics, topic)
	}
	return nil
}

// Publish delivers v to every subscriber of topic and returns how many
// subscribers returned normally.
func (m *Manager[K, T]) Publish(topic K, v T) int {
	m.mu.RLock()
	subs := m.topics[topic]
	onPanic := m.config.OnPanic
	m.mu.RUnlock()

	delivered := 0
	for _, e := range subs {
		if err := deliver(e, v); err != nil {
			if onPanic != nil {
				onPanic(topic, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

func deliver[T any](e entry[T], v T) (err *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{SubscriptionID: e.id, Recovered: r}
		}
	}()
	e.fn(v)
	return nil
}

// ClearAll removes every subscription.
func (m *Manager[K, T]) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = make(map[K][]entry[T])
	m.index = make(map[string]K)
}

// Count returns the total number of subscriptions.
func (m *Manager[K, T]) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index)
}

// CountTopic returns the number of subscriptions for topic.
func (m *Manager[K, T]) CountTopic(topic K) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics[topic])
}
