// Package resolver coalesces concurrent lookups by key into a single bulk
// fetch per batching window.
//
// Callers invoke Resolve from as many goroutines as they like. Requests are
// registered in the open window, duplicate keys collapse to one lookup, and
// when the window flushes the fetch function is called once with the
// distinct keys. Every request then receives exactly one Result: the value,
// a not-found outcome, or the error of the whole fetch.
//
// A window flushes when its timer fires, when MaxBatchSize distinct keys
// have been registered, or when Drain is called. In Manual mode the timer is
// disabled. Requests arriving while a window is being fetched open a new
// window; nothing is cached between windows.
package resolver
