package events

import (
	"context"
	"sync"
)

// LocalBroker delivers events to in-process subscribers. It stands in for Redis
// when the API runs without one (STORE_DRIVER=memory).
type LocalBroker struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]func(Event)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{handlers: make(map[string]map[int]func(Event))}
}

func (b *LocalBroker) Publish(_ context.Context, stream string, event Event) error {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.handlers[stream]))
	for _, h := range b.handlers[stream] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Subscribe registers handler until ctx is cancelled.
func (b *LocalBroker) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[stream] == nil {
		b.handlers[stream] = make(map[int]func(Event))
	}
	b.handlers[stream][id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers[stream], id)
		b.mu.Unlock()
	}()
	return nil
}
