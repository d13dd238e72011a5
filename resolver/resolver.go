package resolver

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mevdschee/tqloader/metrics"
)

var (
	errNilKey        = errors.New("key is nil")
	errUnhashableKey = errors.New("key is not hashable")
)

// Resolver batches concurrent lookups by key into one bulk fetch per window
type Resolver[K comparable, V any] struct {
	name     string
	fetch    FetchFunc[K, V]
	config   Config
	logger   *zap.Logger
	validate func(K) error

	mu      sync.Mutex
	current *window[K, V] // open window, nil when none

	inflight     sync.WaitGroup
	currentDelay atomic.Int64 // in microseconds
	resolved     atomic.Uint64
	opsPerSecond atomic.Uint64
	closed       atomic.Bool
}

// New creates a resolver that calls fetch once per flushed window
func New[K comparable, V any](name string, fetch FetchFunc[K, V], config Config, logger *zap.Logger) *Resolver[K, V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver[K, V]{
		name:   name,
		fetch:  fetch,
		config: config,
		logger: logger.With(zap.String("resolver", name)),
	}
	r.currentDelay.Store(int64(config.InitialDelayMs * 1000))
	return r
}

// WithKeyValidator adds a validity rule applied before registration. It must
// be set before the resolver is used.
func (r *Resolver[K, V]) WithKeyValidator(fn func(K) error) *Resolver[K, V] {
	r.validate = fn
	return r
}

// Name returns the resolver name used in logs and metrics
func (r *Resolver[K, V]) Name() string {
	return r.name
}

// Resolve registers key in the open window and waits for its outcome
func (r *Resolver[K, V]) Resolve(ctx context.Context, key K) Result[V] {
	req, err := r.enqueue(key)
	if err != nil {
		return Result[V]{Err: err}
	}
	return r.wait(ctx, req)
}

// ResolveThunk registers key immediately and returns a function that waits
// for the outcome. The function may be called more than once.
func (r *Resolver[K, V]) ResolveThunk(ctx context.Context, key K) func() Result[V] {
	req, err := r.enqueue(key)
	if err != nil {
		return func() Result[V] {
			return Result[V]{Err: err}
		}
	}
	return sync.OnceValue(func() Result[V] {
		return r.wait(ctx, req)
	})
}

// ResolveAll registers every key, flushes the open window and returns the
// outcomes in the order of keys.
func (r *Resolver[K, V]) ResolveAll(ctx context.Context, keys []K) []Result[V] {
	results := make([]Result[V], len(keys))
	requests := make([]*request[K, V], len(keys))
	for i, key := range keys {
		req, err := r.enqueue(key)
		if err != nil {
			results[i] = Result[V]{Err: err}
			continue
		}
		requests[i] = req
	}

	if w := r.detachCurrent(); w != nil {
		fetchCtx, cancel := r.fetchContext(context.WithoutCancel(ctx))
		r.execute(fetchCtx, w)
		cancel()
		r.inflight.Done()
	}

	for i, req := range requests {
		if req != nil {
			results[i] = r.wait(ctx, req)
		}
	}
	return results
}

// Drain flushes the open window and returns once every request in it has
// been fulfilled. The fetch keeps the values of ctx but not its
// cancellation, since other waiters share it. It returns the fetch error of
// the window, or nil when there was nothing to flush.
func (r *Resolver[K, V]) Drain(ctx context.Context) error {
	w := r.detachCurrent()
	if w == nil {
		return nil
	}
	defer r.inflight.Done()
	fetchCtx, cancel := r.fetchContext(context.WithoutCancel(ctx))
	defer cancel()
	return r.execute(fetchCtx, w)
}

// Pending returns the number of requests waiting in the open window
func (r *Resolver[K, V]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0
	}
	return r.current.requests
}

// Close refuses new requests, fails the requests of the open window and
// waits for in-flight flushes
func (r *Resolver[K, V]) Close() error {
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return nil
	}
	r.closed.Store(true)
	w := r.current
	if w != nil {
		r.sealLocked(w)
	}
	r.mu.Unlock()

	if w != nil {
		w.distribute(nil, ErrResolverClosed)
	}
	r.inflight.Wait()
	return nil
}

// SetDelay updates the delay for new windows (for adaptive delay system)
func (r *Resolver[K, V]) SetDelay(delayMicros int64) {
	r.currentDelay.Store(delayMicros)
}

// GetDelay returns the current delay in microseconds
func (r *Resolver[K, V]) GetDelay() int64 {
	return r.currentDelay.Load()
}

func (r *Resolver[K, V]) enqueue(key K) (*request[K, V], error) {
	if r.closed.Load() {
		metrics.ResolveTotal.WithLabelValues(r.name, "closed").Inc()
		return nil, ErrResolverClosed
	}
	if err := r.checkKey(key); err != nil {
		metrics.ResolveTotal.WithLabelValues(r.name, "invalid").Inc()
		return nil, err
	}

	req := newRequest[K, V](key)

	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		metrics.ResolveTotal.WithLabelValues(r.name, "closed").Inc()
		return nil, ErrResolverClosed
	}
	w := r.current
	if w == nil {
		// First request - open a window and start the timer
		w = newWindow[K, V]()
		r.current = w
		if !r.config.Manual {
			delay := time.Duration(r.currentDelay.Load()) * time.Microsecond
			w.timer = time.AfterFunc(delay, func() {
				r.flushExpired(w)
			})
		}
	}
	w.register(req)

	if r.config.MaxBatchSize > 0 && w.size() >= r.config.MaxBatchSize {
		// Window full - flush immediately, later requests open a fresh window
		r.sealLocked(w)
		r.inflight.Add(1)
		r.mu.Unlock()
		go r.flushDetached(w)
		return req, nil
	}
	r.mu.Unlock()
	return req, nil
}

func (r *Resolver[K, V]) wait(ctx context.Context, req *request[K, V]) Result[V] {
	select {
	case result := <-req.resultChan:
		metrics.ResolveTotal.WithLabelValues(r.name, outcome(result)).Inc()
		return result
	case <-ctx.Done():
		req.cancelled.Store(true)
		metrics.ResolveTotal.WithLabelValues(r.name, "cancelled").Inc()
		return Result[V]{Err: ctx.Err()}
	}
}

func (r *Resolver[K, V]) checkKey(key K) error {
	if isNil(key) {
		return &InvalidKeyError{Key: key, Reason: errNilKey}
	}
	// An interface key may hold a slice, map or func, which cannot index the window
	if !reflect.ValueOf(key).Comparable() {
		return &InvalidKeyError{Key: key, Reason: errUnhashableKey}
	}
	if r.validate != nil {
		if err := r.validate(key); err != nil {
			return &InvalidKeyError{Key: key, Reason: err}
		}
	}
	return nil
}

// detachCurrent seals the open window and registers it as in flight. The
// caller must call r.inflight.Done once the window has been executed.
func (r *Resolver[K, V]) detachCurrent() *window[K, V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.current
	if w == nil {
		return nil
	}
	r.sealLocked(w)
	r.inflight.Add(1)
	return w
}

// flushExpired runs when the window timer fires. It is a no-op when the
// window was already flushed by size, Drain or Close.
func (r *Resolver[K, V]) flushExpired(w *window[K, V]) {
	r.mu.Lock()
	if w.sealed || r.current != w {
		r.mu.Unlock()
		return
	}
	r.sealLocked(w)
	r.inflight.Add(1)
	r.mu.Unlock()

	r.flushDetached(w)
}

func (r *Resolver[K, V]) flushDetached(w *window[K, V]) {
	defer r.inflight.Done()
	ctx, cancel := r.fetchContext(context.Background())
	defer cancel()
	r.execute(ctx, w)
}

// sealLocked closes w for registration; r.mu must be held
func (r *Resolver[K, V]) sealLocked(w *window[K, V]) {
	w.sealed = true
	if r.current == w {
		r.current = nil
	}
	if w.timer != nil {
		w.timer.Stop()
	}
}

// fetchContext bounds a shared fetch by FetchTimeoutMs. parent must not
// carry a single caller's cancellation.
func (r *Resolver[K, V]) fetchContext(parent context.Context) (context.Context, context.CancelFunc) {
	if r.config.FetchTimeoutMs <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(r.config.FetchTimeoutMs)*time.Millisecond)
}

func outcome[V any](result Result[V]) string {
	switch {
	case result.Err != nil:
		return "error"
	case result.Found:
		return "found"
	default:
		return "not_found"
	}
}

func isNil(key any) bool {
	if key == nil {
		return true
	}
	v := reflect.ValueOf(key)
	switch v.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return v.IsNil()
	}
	return false
}
