package services

import (
	"sync"
)

// Notifier fans a value out to registered listeners. Each registration
// returns its own unsubscribe handle, so removing a listener never depends on
// comparing functions.
type Notifier[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(T)
}

// NewNotifier creates an empty notifier
func NewNotifier[T any]() *Notifier[T] {
	return &Notifier[T]{listeners: make(map[uint64]func(T))}
}

// Subscribe registers fn and returns a handle that removes it. Calling the
// handle more than once is harmless.
func (n *Notifier[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Notify calls every listener with v. Listeners run outside the lock and may
// unsubscribe themselves.
func (n *Notifier[T]) Notify(v T) {
	n.mu.RLock()
	fns := make([]func(T), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of registered listeners
func (n *Notifier[T]) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
