package resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrResolverClosed is returned when a resolve is attempted on a closed resolver
	ErrResolverClosed = errors.New("resolver is closed")

	// ErrInvalidKey is returned when a key is rejected before registration
	ErrInvalidKey = errors.New("invalid key")

	// ErrFetchFailed is returned to every request of a window whose bulk fetch failed
	ErrFetchFailed = errors.New("bulk fetch failed")
)

// InvalidKeyError describes why a key was rejected
type InvalidKeyError struct {
	Key    any
	Reason error
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key %v: %v", e.Key, e.Reason)
}

func (e *InvalidKeyError) Is(target error) bool {
	return target == ErrInvalidKey
}

func (e *InvalidKeyError) Unwrap() error {
	return e.Reason
}

// FetchError is delivered identically to every request of a failed window
type FetchError struct {
	Window string
	Keys   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("bulk fetch of %d keys failed: %v", e.Keys, e.Err)
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
