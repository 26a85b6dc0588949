package state

import (
	"context"
	"sync"
)

// subscriberBuffer bounds how many updates a slow subscriber can fall behind
// before the oldest ones are dropped. The latest value is always delivered.
const subscriberBuffer = 16

// Stream is the read side of an observable value. New subscribers receive
// the current value immediately and then every subsequent change.
type Stream[T any] interface {
	Get() T
	Subscribe() (<-chan T, func())
	Await(ctx context.Context, match func(T) bool) (T, error)
}

// Value is a single-writer, multi-reader observable cell
type Value[T any] struct {
	mu    sync.RWMutex
	cur   T
	equal func(a, b T) bool
	subs  map[int]chan T
	next  int
}

// NewValue creates a cell for a comparable type
func NewValue[T comparable](initial T) *Value[T] {
	return NewValueFunc(initial, func(a, b T) bool { return a == b })
}

// NewValueFunc creates a cell that uses equal to suppress duplicate updates
func NewValueFunc[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		cur:   initial,
		equal: equal,
		subs:  make(map[int]chan T),
	}
}

// Get returns the latest value
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Set stores x and publishes it to subscribers. It reports false, and
// publishes nothing, when x equals the current value.
func (v *Value[T]) Set(x T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.equal(v.cur, x) {
		return false
	}

	v.cur = x
	for _, ch := range v.subs {
		deliver(ch, x)
	}
	return true
}

// deliver pushes x, dropping the oldest buffered value if the subscriber is full.
// Callers hold v.mu so there is no competing sender.
func deliver[T any](ch chan T, x T) {
	for {
		select {
		case ch <- x:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel that yields the current value and then every
// change, and a cancel func that closes it. The channel is never closed otherwise.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, subscriberBuffer)
	ch <- v.cur

	id := v.next
	v.next++
	v.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			close(ch)
			v.mu.Unlock()
		})
	}
	return ch, cancel
}

// Await blocks until a value matching match is observed or ctx is done
func (v *Value[T]) Await(ctx context.Context, match func(T) bool) (T, error) {
	ch, cancel := v.Subscribe()
	defer cancel()

	for {
		select {
		case x := <-ch:
			if match(x) {
				return x, nil
			}
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}
