package resolver

import (
	"context"
	"sync/atomic"
	"time"
)

// FetchFunc performs one bulk lookup for a set of distinct keys. Keys that
// do not exist are simply absent from the returned map.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Result is the terminal outcome of a single resolve call. A nil Err with
// Found false means the key was looked up and does not exist.
type Result[V any] struct {
	Value V
	Found bool
	Err   error
}

// NotFound reports whether the key was looked up successfully but absent.
func (r Result[V]) NotFound() bool {
	return r.Err == nil && !r.Found
}

// request is one outstanding resolve call waiting for its window to flush
type request[K comparable, V any] struct {
	key        K
	resultChan chan Result[V]
	enqueuedAt time.Time
	delivered  atomic.Bool
	cancelled  atomic.Bool
}

func newRequest[K comparable, V any](key K) *request[K, V] {
	return &request[K, V]{
		key:        key,
		resultChan: make(chan Result[V], 1),
		enqueuedAt: time.Now(),
	}
}

// deliver fulfills the request. Only the first call has any effect.
func (req *request[K, V]) deliver(result Result[V]) bool {
	if !req.delivered.CompareAndSwap(false, true) {
		return false
	}
	req.resultChan <- result
	return true
}

// Config holds configuration for a resolver
type Config struct {
	InitialDelayMs     int     // Delay between the first registration and the flush (1ms default)
	MinDelayMs         int     // Lower bound for adaptive delay (0ms default)
	MaxDelayMs         int     // Upper bound for adaptive delay (100ms default)
	MaxBatchSize       int     // Distinct keys that force an immediate flush (1000 default)
	Manual             bool    // Only flush on Drain or when MaxBatchSize is reached
	FetchTimeoutMs     int     // Bound on timer-triggered fetches (30000ms default)
	LoadThreshold      int     // Resolves per second above which the delay grows (1000 default)
	AdaptiveStep       float64 // Factor applied on each adaptive adjustment (1.5 default)
	MetricsIntervalSec int     // Seconds between adaptive adjustments (1 default)
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		InitialDelayMs:     1,
		MinDelayMs:         0,
		MaxDelayMs:         100,
		MaxBatchSize:       1000,
		FetchTimeoutMs:     30000,
		LoadThreshold:      1000,
		AdaptiveStep:       1.5,
		MetricsIntervalSec: 1,
	}
}
