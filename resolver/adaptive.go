package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mevdschee/tqloader/metrics"
)

// StartAdaptiveAdjustment runs the adaptive delay adjustment loop
func (r *Resolver[K, V]) StartAdaptiveAdjustment(ctx context.Context) {
	interval := time.Duration(r.config.MetricsIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.adjustDelay(interval)
		}
	}
}

// adjustDelay adjusts the window delay based on the resolves observed
// during the last interval
func (r *Resolver[K, V]) adjustDelay(interval time.Duration) {
	currentOps := uint64(float64(r.resolved.Swap(0)) / interval.Seconds())
	r.opsPerSecond.Store(currentOps)
	currentDelay := r.currentDelay.Load()

	// Update gauge metrics
	metrics.ResolvesPerSecond.WithLabelValues(r.name).Set(float64(currentOps))
	metrics.CurrentDelay.WithLabelValues(r.name).Set(float64(currentDelay) / 1000.0)

	if r.config.Manual || r.config.AdaptiveStep <= 1 {
		return
	}
	threshold := uint64(r.config.LoadThreshold)

	if currentOps > threshold {
		// High load - wait longer so windows collect more keys
		newDelay := int64(float64(currentDelay) * r.config.AdaptiveStep)
		if newDelay == currentDelay {
			newDelay++
		}
		maxDelay := int64(r.config.MaxDelayMs * 1000) // to microseconds
		if newDelay > maxDelay {
			newDelay = maxDelay
		}
		if newDelay != currentDelay {
			r.currentDelay.Store(newDelay)
			metrics.DelayAdjustments.WithLabelValues(r.name, "increase").Inc()
			r.logger.Debug("window delay increased",
				zap.Uint64("ops", currentOps),
				zap.Int64("delay_us", newDelay))
		}
	} else if currentOps < threshold/2 && currentOps > 0 {
		// Low load - flush sooner for lower latency
		newDelay := int64(float64(currentDelay) / r.config.AdaptiveStep)
		minDelay := int64(r.config.MinDelayMs * 1000) // to microseconds
		if newDelay < minDelay {
			newDelay = minDelay
		}
		if newDelay != currentDelay {
			r.currentDelay.Store(newDelay)
			metrics.DelayAdjustments.WithLabelValues(r.name, "decrease").Inc()
			r.logger.Debug("window delay decreased",
				zap.Uint64("ops", currentOps),
				zap.Int64("delay_us", newDelay))
		}
	}
	// Between threshold/2 and threshold the delay is kept
}

// GetCurrentDelay returns the current delay in milliseconds
func (r *Resolver[K, V]) GetCurrentDelay() float64 {
	return float64(r.currentDelay.Load()) / 1000.0
}

// GetOpsPerSecond returns the throughput measured by the last adjustment
func (r *Resolver[K, V]) GetOpsPerSecond() uint64 {
	return r.opsPerSecond.Load()
}
