package resolver

import (
	"context"
	"testing"
	"time"
)

func adaptiveConfig() Config {
	config := DefaultConfig()
	config.LoadThreshold = 50 // Low threshold for testing
	config.MetricsIntervalSec = 1
	config.InitialDelayMs = 1
	config.MaxDelayMs = 10
	config.MinDelayMs = 0
	config.AdaptiveStep = 2
	return config
}

func TestAdaptiveDelay_IncreasesUnderLoad(t *testing.T) {
	f := newRecordingFetcher(nil)
	r := New("test", f.fetch, adaptiveConfig(), nil)
	defer r.Close()

	initialDelay := r.GetCurrentDelay()

	r.resolved.Store(200)
	r.adjustDelay(time.Second)

	if got := r.GetOpsPerSecond(); got != 200 {
		t.Errorf("Expected 200 ops/sec, got %d", got)
	}
	if finalDelay := r.GetCurrentDelay(); finalDelay <= initialDelay {
		t.Errorf("Expected delay to increase under load: initial=%.2fms, final=%.2fms",
			initialDelay, finalDelay)
	}
}

func TestAdaptiveDelay_CappedAtMax(t *testing.T) {
	f := newRecordingFetcher(nil)
	r := New("test", f.fetch, adaptiveConfig(), nil)
	defer r.Close()

	for i := 0; i < 10; i++ {
		r.resolved.Store(1000)
		r.adjustDelay(time.Second)
	}

	if got := r.GetDelay(); got != 10000 {
		t.Errorf("Expected delay capped at 10000us, got %d", got)
	}
}

func TestAdaptiveDelay_DecreasesUnderLowLoad(t *testing.T) {
	f := newRecordingFetcher(nil)
	config := adaptiveConfig()
	config.LoadThreshold = 1000
	r := New("test", f.fetch, config, nil)
	defer r.Close()

	r.SetDelay(8000)

	r.resolved.Store(10)
	r.adjustDelay(time.Second)

	if got := r.GetDelay(); got != 4000 {
		t.Errorf("Expected delay to halve to 4000us, got %d", got)
	}
}

func TestAdaptiveDelay_KeptWithoutTraffic(t *testing.T) {
	f := newRecordingFetcher(nil)
	r := New("test", f.fetch, adaptiveConfig(), nil)
	defer r.Close()

	r.SetDelay(5000)
	r.adjustDelay(time.Second)

	if got := r.GetDelay(); got != 5000 {
		t.Errorf("Expected delay unchanged without traffic, got %d", got)
	}
}

func TestAdaptiveDelay_CountsDeliveredRequests(t *testing.T) {
	f := newRecordingFetcher(map[int]string{1: "one"})
	r := New("test", f.fetch, manualConfig(), nil)
	defer r.Close()

	r.ResolveAll(context.Background(), []int{1, 1, 2})

	if got := r.resolved.Load(); got != 3 {
		t.Errorf("Expected 3 delivered requests counted, got %d", got)
	}
}

func TestAdaptiveDelay_LoopStopsOnCancel(t *testing.T) {
	f := newRecordingFetcher(nil)
	r := New("test", f.fetch, adaptiveConfig(), nil)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.StartAdaptiveAdjustment(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Adjustment loop did not stop after cancel")
	}
}
