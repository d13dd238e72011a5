package resolver

import (
	"time"

	"github.com/google/uuid"
)

// window accumulates the requests of one batching scope. It is mutated only
// while open and under the resolver lock; once sealed it is read-only.
type window[K comparable, V any] struct {
	id        string
	keys      []K // distinct keys in first-registration order
	waiters   map[K][]*request[K, V]
	requests  int
	firstSeen time.Time
	timer     *time.Timer
	sealed    bool
}

func newWindow[K comparable, V any]() *window[K, V] {
	return &window[K, V]{
		id:        uuid.NewString(),
		waiters:   make(map[K][]*request[K, V]),
		firstSeen: time.Now(),
	}
}

// register appends req to the waiters of its key and reports whether the
// key is new to this window.
func (w *window[K, V]) register(req *request[K, V]) bool {
	waiting, seen := w.waiters[req.key]
	if !seen {
		w.keys = append(w.keys, req.key)
	}
	w.waiters[req.key] = append(waiting, req)
	w.requests++
	return !seen
}

// size returns the number of distinct keys
func (w *window[K, V]) size() int {
	return len(w.keys)
}

// distribute fans the fetch outcome out to every waiter. All waiters of a
// key receive the same Result. Waiters that gave up are still sent their
// result but are not counted as delivered.
func (w *window[K, V]) distribute(found map[K]V, err error) (delivered int) {
	for _, key := range w.keys {
		var result Result[V]
		if err != nil {
			result = Result[V]{Err: err}
		} else {
			value, ok := found[key]
			result = Result[V]{Value: value, Found: ok}
		}
		for _, req := range w.waiters[key] {
			if req.deliver(result) && !req.cancelled.Load() {
				delivered++
			}
		}
	}
	return delivered
}
