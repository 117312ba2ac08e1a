package scheduler

import (
	"time"
)

// Kind identifies a deferred action.
type Kind int

// Action kinds, in the order Due checks them.
const (
	Restart Kind = iota
	Upgrade
	Sleep
	numKinds
)

// String returns the action name used in logs and status messages.
func (k Kind) String() string {
	switch k {
	case Restart:
		return "restart"
	case Upgrade:
		return "upgrade"
	case Sleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// Deadline is an optional point on the wrapping tick counter.
// The zero value is "no deadline".
type Deadline struct {
	at  uint32
	set bool
}

// At returns a deadline delay after now.
func At(now uint32, delay time.Duration) Deadline {
	if delay < 0 {
		delay = 0
	}
	return Deadline{at: now + uint32(delay.Milliseconds()), set: true} //nolint:gosec // wraparound is the contract
}

// Due reports whether the deadline is set and has been reached.
// The difference is read as signed so the test survives counter wraparound
// for deadlines less than ~24 days away.
func (d Deadline) Due(now uint32) bool {
	return d.set && int32(d.at-now) <= 0 //nolint:gosec // signed difference is the point
}

// IsSet reports whether a deadline is outstanding.
func (d Deadline) IsSet() bool { return d.set }

// Remaining returns the time left until the deadline, zero when due or unset.
func (d Deadline) Remaining(now uint32) time.Duration {
	if !d.set {
		return 0
	}
	diff := int32(d.at - now) //nolint:gosec // signed difference is the point
	if diff <= 0 {
		return 0
	}
	return time.Duration(diff) * time.Millisecond
}

// Since returns the elapsed time between an earlier tick and now,
// wrap-safe for intervals below ~24 days.
func Since(then, now uint32) time.Duration {
	diff := int32(now - then) //nolint:gosec // signed difference is the point
	if diff < 0 {
		return 0
	}
	return time.Duration(diff) * time.Millisecond
}

// Action is a due pending action handed to the caller for execution.
type Action struct {
	Kind Kind

	// Asset names an explicit firmware asset for Upgrade, empty for the default.
	Asset string

	// Duration is how long to sleep for Sleep.
	Duration time.Duration
}

// Scheduler holds at most one pending deadline per action kind.
//
// Scheduling a kind that is already pending replaces it. Scheduling with a
// negative delay cancels it. Not safe for concurrent use; it is owned by the
// supervisor tick.
type Scheduler struct {
	pending [numKinds]Deadline
	asset   string
	sleep   time.Duration
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule arms kind to fire delay after now. A negative delay cancels it.
func (s *Scheduler) Schedule(kind Kind, now uint32, delay time.Duration) {
	if kind < 0 || kind >= numKinds {
		return
	}
	if delay < 0 {
		s.Cancel(kind)
		return
	}
	s.pending[kind] = At(now, delay)
	if kind == Upgrade {
		s.asset = ""
	}
}

// ScheduleUpgrade arms an upgrade of a specific asset. An empty asset means the default image.
func (s *Scheduler) ScheduleUpgrade(now uint32, delay time.Duration, asset string) {
	s.Schedule(Upgrade, now, delay)
	if delay >= 0 {
		s.asset = asset
	}
}

// ScheduleSleep arms a deep sleep of length d.
func (s *Scheduler) ScheduleSleep(now uint32, delay, d time.Duration) {
	s.Schedule(Sleep, now, delay)
	if delay >= 0 {
		s.sleep = d
	}
}

// Cancel clears any pending deadline for kind.
func (s *Scheduler) Cancel(kind Kind) {
	if kind < 0 || kind >= numKinds {
		return
	}
	s.pending[kind] = Deadline{}
	switch kind {
	case Upgrade:
		s.asset = ""
	case Sleep:
		s.sleep = 0
	}
}

// Pending reports whether kind has an outstanding deadline.
func (s *Scheduler) Pending(kind Kind) bool {
	if kind < 0 || kind >= numKinds {
		return false
	}
	return s.pending[kind].IsSet()
}

// Due returns the first due action and clears its deadline so it fires
// exactly once. Restart is checked before Upgrade, and both before Sleep;
// restart is the safer action when both are due in the same tick.
func (s *Scheduler) Due(now uint32) (Action, bool) {
	for kind := Restart; kind < numKinds; kind++ {
		if !s.pending[kind].Due(now) {
			continue
		}
		action := Action{Kind: kind}
		switch kind {
		case Upgrade:
			action.Asset = s.asset
		case Sleep:
			action.Duration = s.sleep
		}
		s.Cancel(kind)
		return action, true
	}
	return Action{}, false
}
