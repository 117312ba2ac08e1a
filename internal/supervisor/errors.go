package supervisor

import "errors"

// ErrStopped is returned by operations after the supervisor has handed
// control to the platform for a restart or sleep.
var ErrStopped = errors.New("supervisor: stopped")
