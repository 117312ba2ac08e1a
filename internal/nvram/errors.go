package nvram

import "errors"

// Domain errors for the persistent store.
var (
	// ErrOutOfRange is returned for a read or write beyond the store capacity.
	ErrOutOfRange = errors.New("nvram: offset out of range")

	// ErrClosed is returned for any operation after Close.
	ErrClosed = errors.New("nvram: store closed")

	// ErrBadCapacity is returned when a store is opened with a non-positive capacity.
	ErrBadCapacity = errors.New("nvram: capacity must be positive")
)
