package resolver

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mevdschee/tqloader/metrics"
)

// execute runs the bulk fetch for a sealed window and fulfills every request
// in it. It returns the window-wide fetch error, if any.
func (r *Resolver[K, V]) execute(ctx context.Context, w *window[K, V]) error {
	keyCount := w.size()
	if keyCount == 0 {
		return nil
	}

	// Record metrics
	metrics.WindowKeys.WithLabelValues(r.name).Observe(float64(keyCount))
	metrics.WindowRequests.WithLabelValues(r.name).Observe(float64(w.requests))
	metrics.WindowDelay.WithLabelValues(r.name).Observe(time.Since(w.firstSeen).Seconds())

	fetchStart := time.Now()
	found, err := r.call(ctx, slices.Clone(w.keys))
	elapsed := time.Since(fetchStart)
	metrics.FetchLatency.WithLabelValues(r.name).Observe(elapsed.Seconds())

	if err != nil {
		err = &FetchError{Window: w.id, Keys: keyCount, Err: err}
		metrics.FetchErrors.WithLabelValues(r.name).Inc()
		r.logger.Warn("bulk fetch failed",
			zap.String("window", w.id),
			zap.Int("keys", keyCount),
			zap.Int("requests", w.requests),
			zap.Error(err))
	}

	delivered := w.distribute(found, err)
	r.resolved.Add(uint64(delivered))

	r.logger.Debug("window flushed",
		zap.String("window", w.id),
		zap.Int("keys", keyCount),
		zap.Int("requests", w.requests),
		zap.Int("found", len(found)),
		zap.Duration("fetch", elapsed))

	return err
}

// call invokes the fetch function, turning a panic into an error so that no
// request of the window is left waiting
func (r *Resolver[K, V]) call(ctx context.Context, keys []K) (found map[K]V, err error) {
	defer func() {
		if p := recover(); p != nil {
			found = nil
			err = fmt.Errorf("panic in fetch: %v", p)
		}
	}()
	return r.fetch(ctx, keys)
}
