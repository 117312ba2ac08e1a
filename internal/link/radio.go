package link

import (
	"bytes"
	"fmt"
)

// Credential is one network to try.
type Credential struct {
	SSID       string
	Passphrase string
	Channel    int
	BSSID      []byte

	// Pinned is set when BSSID came from configuration rather than from a
	// completed association; a pinned access point is never roamed away from.
	Pinned bool
}

// IsZero reports whether the slot is empty.
func (c Credential) IsZero() bool { return c.SSID == "" }

// Equal reports whether two credentials name the same network and access point.
func (c Credential) Equal(o Credential) bool {
	return c.SSID == o.SSID && c.Passphrase == o.Passphrase && c.Channel == o.Channel && bytes.Equal(c.BSSID, o.BSSID)
}

// ScanResult is one access point seen by a scan.
type ScanResult struct {
	SSID    string
	BSSID   []byte
	Channel int
	RSSI    int
}

// FormatBSSID renders an access point id as colon-separated hex.
func FormatBSSID(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var buf bytes.Buffer
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(':')
		}
		fmt.Fprintf(&buf, "%02X", v)
	}
	return buf.String()
}

// Radio is the link hardware collaborator. Calls must not block; an
// association or scan is started and its outcome observed on later ticks.
type Radio interface {
	// Associate starts an attempt to join c. Channel and BSSID are hints and
	// may be zero.
	Associate(c Credential) error

	// Connected reports whether the link is currently up.
	Connected() bool

	// Current returns the access point and channel of the live link.
	Current() (bssid []byte, channel int)

	// RSSI returns the signal strength of the live link in dBm.
	RSSI() int

	// StartScan begins a background scan for ssid.
	StartScan(ssid string) error

	// ScanResults returns the results of the last scan once done is true.
	ScanResults() (results []ScanResult, done bool)

	// Disconnect drops the link or abandons an attempt.
	Disconnect() error

	// OnLinkLoss registers fn to be called, from any goroutine, whenever the
	// link drops or an attempt fails. reason is radio specific.
	OnLinkLoss(fn func(reason int))
}
