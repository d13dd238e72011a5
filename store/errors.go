package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is returned when a row cannot be decoded into its entity
	ErrDecode = errors.New("decode failed")

	// ErrUnsupportedDriver is returned for drivers the store cannot open
	ErrUnsupportedDriver = errors.New("unsupported driver")
)

// DecodeError reports a row of table that failed to decode
type DecodeError struct {
	Table string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s row: %v", e.Table, e.Err)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
