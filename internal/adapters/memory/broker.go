package memory

import (
	"context"
	"sync"
)

// Broker is an in-process EventPublisher and EventSubscriber for
// deployments without NATS. Slow subscribers drop events.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan []byte
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan []byte)}
}

// PublishSessionEvent fans data out to the session's subscribers.
func (b *Broker) PublishSessionEvent(_ context.Context, sessionID string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[sessionID] {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// SubscribeSessionEvents calls handler for each event until unsubscribe
// or ctx is done.
func (b *Broker) SubscribeSessionEvents(ctx context.Context, sessionID string, handler func(data []byte)) (func(), error) {
	ch := make(chan []byte, 32)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan []byte)
	}
	b.subs[sessionID][id] = ch
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-ch:
				handler(data)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			b.mu.Lock()
			delete(b.subs[sessionID], id)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			b.mu.Unlock()
		})
	}, nil
}
