package resolver

import (
	"errors"
	"slices"
	"testing"
)

func TestWindow_RegisterDeduplicates(t *testing.T) {
	w := newWindow[string, int]()

	if !w.register(newRequest[string, int]("a")) {
		t.Error("Expected first registration of a to be a new key")
	}
	if w.register(newRequest[string, int]("a")) {
		t.Error("Expected second registration of a to join the existing key")
	}
	if !w.register(newRequest[string, int]("b")) {
		t.Error("Expected b to be a new key")
	}

	if !slices.Equal(w.keys, []string{"a", "b"}) {
		t.Errorf("Expected keys [a b], got %v", w.keys)
	}
	if w.size() != 2 || w.requests != 3 {
		t.Errorf("Expected 2 keys and 3 requests, got %d and %d", w.size(), w.requests)
	}
	if len(w.waiters["a"]) != 2 {
		t.Errorf("Expected 2 waiters for a, got %d", len(w.waiters["a"]))
	}
}

func TestWindow_DistributeExactlyOnce(t *testing.T) {
	w := newWindow[string, int]()
	reqs := []*request[string, int]{
		newRequest[string, int]("a"),
		newRequest[string, int]("a"),
		newRequest[string, int]("b"),
	}
	for _, req := range reqs {
		w.register(req)
	}

	if delivered := w.distribute(map[string]int{"a": 1}, nil); delivered != 3 {
		t.Errorf("Expected 3 deliveries, got %d", delivered)
	}
	if delivered := w.distribute(map[string]int{"a": 2}, nil); delivered != 0 {
		t.Errorf("Expected no second delivery, got %d", delivered)
	}

	for i, want := range []Result[int]{{Value: 1, Found: true}, {Value: 1, Found: true}, {}} {
		if got := <-reqs[i].resultChan; got != want {
			t.Errorf("Request %d: expected %+v, got %+v", i, want, got)
		}
	}
}

func TestWindow_DistributeError(t *testing.T) {
	w := newWindow[int, string]()
	a := newRequest[int, string](1)
	b := newRequest[int, string](2)
	w.register(a)
	w.register(b)

	failure := errors.New("fetch failed")
	w.distribute(map[int]string{1: "ignored"}, failure)

	for _, req := range []*request[int, string]{a, b} {
		got := <-req.resultChan
		if got.Err != failure || got.Found {
			t.Errorf("Key %d: expected uniform failure, got %+v", req.key, got)
		}
	}
}

func TestWindow_DistributeSkipsCancelledInCount(t *testing.T) {
	w := newWindow[int, string]()
	live := newRequest[int, string](1)
	gone := newRequest[int, string](1)
	gone.cancelled.Store(true)
	w.register(live)
	w.register(gone)

	if delivered := w.distribute(map[int]string{1: "one"}, nil); delivered != 1 {
		t.Errorf("Expected only the live waiter counted, got %d", delivered)
	}
	// The cancelled waiter still gets a result without blocking the flush
	if got := <-gone.resultChan; got.Value != "one" {
		t.Errorf("Expected cancelled waiter to receive \"one\", got %+v", got)
	}
	if got := <-live.resultChan; got.Value != "one" {
		t.Errorf("Expected live waiter to receive \"one\", got %+v", got)
	}
}
