package eventbus

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// Bus is an in-process fan-out pub/sub channel. Publishing never blocks: a
// subscriber whose buffer is full misses the event rather than stalling the
// pipeline that produced it.
type Bus[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]chan T
}

func New[T any]() *Bus[T] {
	return &Bus[T]{
		subscribers: make(map[string]chan T),
	}
}

func (b *Bus[T]) Subscribe(bufSize int) (string, <-chan T) {
	id := ulid.Make().String()
	ch := make(chan T, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus[T]) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			// buffer full, drop for this subscriber
		}
	}
}
