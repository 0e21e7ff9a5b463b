package events

import (
	"context"
	"sync"
)

// LocalBus delivers changes to in-process subscribers synchronously. It is
// used when no Kafka brokers are configured.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []func(Change)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Subscribe(handler func(Change)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *LocalBus) Publish(_ context.Context, change Change) error {
	b.mu.RLock()
	handlers := make([]func(Change), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(change)
	}
	return nil
}
