package supervisor

import (
	"time"

	"github.com/nerrad567/gray-logic-node/internal/link"
	"github.com/nerrad567/gray-logic-node/internal/scheduler"
	"github.com/nerrad567/gray-logic-node/internal/session"
	"github.com/nerrad567/gray-logic-node/internal/settings"
)

// Status is the diagnostic snapshot published on the info topic after
// every connect.
type Status struct {
	App      string `json:"app"`
	Version  string `json:"version"`
	DeviceID string `json:"device_id"`
	Hostname string `json:"hostname"`
	BootID   string `json:"boot_id"`
	Uptime   int64  `json:"uptime_s"`

	StoreUsed     int   `json:"store_used"`
	StoreCapacity int64 `json:"store_capacity"`

	Link         string `json:"link"`
	SSID         string `json:"ssid,omitempty"`
	BSSID        string `json:"bssid,omitempty"`
	Channel      int    `json:"channel,omitempty"`
	RSSI         int    `json:"rssi,omitempty"`
	LinkAttempts int    `json:"link_attempts"`
	LastLinkDown int64  `json:"last_link_down_ms"`

	Session         string `json:"session"`
	Broker          string `json:"broker,omitempty"`
	Backup          bool   `json:"backup,omitempty"`
	SessionAttempts int    `json:"session_attempts"`
}

// Status returns a diagnostic snapshot of the node.
func (s *Supervisor) Status() Status {
	ls := s.link.Status()
	return Status{
		App:             s.id.App(),
		Version:         s.id.Version(),
		DeviceID:        s.id.DeviceID(),
		Hostname:        s.id.Hostname(),
		BootID:          s.id.BootID(),
		Uptime:          int64(time.Since(s.started) / time.Second),
		StoreUsed:       s.store.Used(),
		StoreCapacity:   s.store.Capacity(),
		Link:            ls.State.String(),
		SSID:            ls.SSID,
		BSSID:           ls.BSSID,
		Channel:         ls.Channel,
		RSSI:            ls.RSSI,
		LinkAttempts:    ls.Attempts,
		LastLinkDown:    ls.LastDown.Milliseconds(),
		Session:         s.session.State().String(),
		Broker:          s.session.Active(),
		Backup:          s.session.Backup(),
		SessionAttempts: s.session.Attempts(),
	}
}

// Restart schedules a restart after delay. A negative delay cancels it.
func (s *Supervisor) Restart(delay time.Duration) {
	s.sched.Schedule(scheduler.Restart, s.clock.Now(), delay)
}

// Upgrade schedules a firmware update after delay. An empty asset fetches
// the application's own image. A negative delay cancels it.
func (s *Supervisor) Upgrade(delay time.Duration, asset string) {
	s.sched.ScheduleUpgrade(s.clock.Now(), delay, asset)
}

// Sleep schedules a sleep of length d after delay. A negative delay cancels it.
func (s *Supervisor) Sleep(delay, d time.Duration) {
	s.sched.ScheduleSleep(s.clock.Now(), delay, d)
}

// Pending reports whether an action of kind is scheduled.
func (s *Supervisor) Pending(kind scheduler.Kind) bool {
	return s.sched.Pending(kind)
}

// Publish sends o on the open session.
func (s *Supervisor) Publish(o session.Outbound) error {
	if s.stopped {
		return ErrStopped
	}
	return s.session.Publish(o)
}

// State publishes a retained status message under the state prefix.
func (s *Supervisor) State(suffix, payload string) error {
	return s.Publish(session.State(suffix).Text(payload).Retained())
}

// Event publishes a notable occurrence under the event prefix.
func (s *Supervisor) Event(suffix, payload string) error {
	return s.Publish(session.Event(suffix).Text(payload))
}

// Info publishes a diagnostic message under the info prefix.
func (s *Supervisor) Info(suffix, payload string) error {
	return s.Publish(session.Info(suffix).Text(payload))
}

// Error publishes a failure report under the error prefix.
func (s *Supervisor) Error(suffix, payload string) error {
	return s.Publish(session.Error(suffix).Text(payload))
}

// Setting applies one setting through the same validation as a remote change.
func (s *Supervisor) Setting(tag string, value []byte) error {
	return s.store.Apply(tag, value)
}

// Settings returns the live settings store for reading.
func (s *Supervisor) Settings() *settings.Store { return s.store }

// CloseSession announces reason and closes the session until OpenSession.
func (s *Supervisor) CloseSession(reason string) {
	s.session.Close(reason)
}

// OpenSession reopens the session. When silent, the online announcement is skipped.
func (s *Supervisor) OpenSession(silent bool) error {
	if s.stopped {
		return ErrStopped
	}
	return s.session.Open(silent)
}

// LinkState returns the link state.
func (s *Supervisor) LinkState() link.State { return s.link.State() }

// SessionState returns the session phase.
func (s *Supervisor) SessionState() session.Phase { return s.session.State() }
