package settings

import "errors"

// Configuration errors returned by Apply. None of them changes the live set.
var (
	// ErrUnknownTag is returned when neither the core table nor the application accepts a tag.
	ErrUnknownTag = errors.New("settings: tag not recognised")

	// ErrTagTooLong is returned for an empty tag or one over MaxTagLen bytes.
	ErrTagTooLong = errors.New("settings: tag length out of range")

	// ErrValueTooLong is returned for a value over MaxValueLen bytes.
	ErrValueTooLong = errors.New("settings: value too long")

	// ErrBadValue is returned when a value fails the tag's validation.
	ErrBadValue = errors.New("settings: invalid value")

	// ErrBadHex is returned when a 0x directive value is not valid hex text.
	ErrBadHex = errors.New("settings: invalid hex value")

	// ErrStoreFull is returned when the change would not fit in the store.
	ErrStoreFull = errors.New("settings: store capacity exceeded")
)

// Integrity errors returned by Load. The store carries on empty and dirty.
var (
	// ErrNoLog is returned when the validity marker is clear.
	ErrNoLog = errors.New("settings: no persisted log")

	// ErrSignatureMismatch is returned when the stored signature is not ours.
	ErrSignatureMismatch = errors.New("settings: signature mismatch")

	// ErrAppMismatch is returned when the log belongs to another application.
	ErrAppMismatch = errors.New("settings: application mismatch")

	// ErrMalformedLog is returned when a record runs past the end of the store.
	ErrMalformedLog = errors.New("settings: malformed log")
)
