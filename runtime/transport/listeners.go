package transport

import (
	"slices"
	"sync"
)

// Listeners is a registry of callbacks for one notification kind. It is safe
// for concurrent use; callbacks run on the emitting goroutine, outside the
// registry lock.
type Listeners[T any] struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func(T)
}

// Add registers fn and returns a function that removes it.
func (l *Listeners[T]) Add(fn func(T)) (unsubscribe func()) {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(T))
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Emit calls every registered callback with v in registration order.
func (l *Listeners[T]) Emit(v T) {
	l.mu.Lock()
	ids := make([]uint64, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	fns := make([]func(T), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of registered callbacks.
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
