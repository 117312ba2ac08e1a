package identity

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// machineIDPaths are tried in order when deriving the device id.
var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// deviceIDLen is the number of hex digits in a derived device id.
const deviceIDLen = 6

// HardwareID derives a stable six hex digit device id for this host.
//
// It prefers the systemd machine id and falls back to the lowest three
// bytes of the first non-loopback hardware address.
//
// Returns:
//   - string: upper-case hex device id (e.g. "1A2B3C")
//   - error: if neither source is available
func HardwareID() (string, error) {
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		id := strings.TrimSpace(string(data))
		if len(id) >= deviceIDLen {
			return strings.ToUpper(id[len(id)-deviceIDLen:]), nil
		}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("identity: listing interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) < 3 {
			continue
		}
		mac := iface.HardwareAddr
		return fmt.Sprintf("%02X%02X%02X", mac[len(mac)-3], mac[len(mac)-2], mac[len(mac)-1]), nil
	}
	return "", errors.New("identity: no hardware identifier available")
}
