package session

import "errors"

// Domain errors for the session manager.
var (
	// ErrNotOpen is returned when publishing without an open session.
	ErrNotOpen = errors.New("session: not open")

	// ErrNoBroker is returned when no broker host is configured.
	ErrNoBroker = errors.New("session: no broker configured")

	// ErrTopicTooLong is returned when a built topic exceeds MaxTopicLen.
	ErrTopicTooLong = errors.New("session: topic too long")

	// ErrPayloadTooLong is returned when a payload exceeds MaxPayloadLen.
	ErrPayloadTooLong = errors.New("session: payload too long")

	// ErrInvalidQoS is returned when QoS is not 0, 1, or 2.
	ErrInvalidQoS = errors.New("session: invalid QoS level")
)
