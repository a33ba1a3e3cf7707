package live

import "sync"

// observers is an ordered list of callbacks with removal support
type observers[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []observer[T]
}

type observer[T any] struct {
	id uint64
	fn T
}

// add appends fn and returns a func that removes it. Calling the returned
// func more than once is harmless.
func (o *observers[T]) add(fn T) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	o.entries = append(o.entries, observer[T]{id: id, fn: fn})

	return func() { o.remove(id) }
}

func (o *observers[T]) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, e := range o.entries {
		if e.id == id {
			o.entries = append(o.entries[:i:i], o.entries[i+1:]...)
			return
		}
	}
}

// snapshot returns the callbacks in registration order
func (o *observers[T]) snapshot() []T {
	o.mu.Lock()
	defer o.mu.Unlock()

	fns := make([]T, len(o.entries))
	for i, e := range o.entries {
		fns[i] = e.fn
	}
	return fns
}

func (o *observers[T]) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// Bindings maps event names to ordered handler lists
type Bindings[T any] struct {
	mu     sync.Mutex
	events map[string]*observers[T]
}

// On registers fn for event and returns its unsubscribe func
func (b *Bindings[T]) On(event string, fn T) func() {
	b.mu.Lock()
	if b.events == nil {
		b.events = make(map[string]*observers[T])
	}
	obs, ok := b.events[event]
	if !ok {
		obs = &observers[T]{}
		b.events[event] = obs
	}
	b.mu.Unlock()

	return obs.add(fn)
}

// Handlers returns the handlers bound to event in registration order
func (b *Bindings[T]) Handlers(event string) []T {
	b.mu.Lock()
	obs, ok := b.events[event]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return obs.snapshot()
}

// Count returns the number of handlers bound to event
func (b *Bindings[T]) Count(event string) int {
	b.mu.Lock()
	obs, ok := b.events[event]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return obs.len()
}
