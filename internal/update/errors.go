package update

import "errors"

// Fetch outcomes. A Fetcher returns ErrInsufficientSpace when the image does
// not fit; any other error is a generic failure.
var (
	// ErrInsufficientSpace is returned when the image is larger than the space available.
	ErrInsufficientSpace = errors.New("update: insufficient space")

	// ErrFetchFailed wraps a transfer that did not complete.
	ErrFetchFailed = errors.New("update: fetch failed")

	// ErrVerifyFailed is returned when a received image fails its checks.
	ErrVerifyFailed = errors.New("update: image verification failed")

	// ErrNoHost is returned when no update host is configured.
	ErrNoHost = errors.New("update: no update host configured")
)
