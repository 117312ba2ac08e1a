package session

import (
	"fmt"
	"strings"
)

// Size bounds for built topics and payloads.
const (
	MaxTopicLen   = 256
	MaxPayloadLen = 4096
)

// AllHosts is the host level that addresses every node of an application.
const AllHosts = "*"

// Topics builds topics for one application and host.
type Topics struct {
	App  string
	Host string
}

// Topic returns {prefix}/{app}/{host}[/{suffix}].
//
// Example: state/Thermo/A1B2C3
func (t Topics) Topic(prefix, suffix string) (string, error) {
	topic := fmt.Sprintf("%s/%s/%s", prefix, t.App, t.Host)
	if suffix != "" {
		topic += "/" + suffix
	}
	if len(topic) > MaxTopicLen {
		return "", fmt.Errorf("%w: %d bytes", ErrTopicTooLong, len(topic))
	}
	return topic, nil
}

// Subscriptions returns the four subscription patterns: this host and every
// host, for the command and setting prefixes.
//
// Example: command/Thermo/A1B2C3/#, command/Thermo/*/#
func (t Topics) Subscriptions(command, setting string) []string {
	return []string{
		fmt.Sprintf("%s/%s/%s/#", command, t.App, t.Host),
		fmt.Sprintf("%s/%s/%s/#", setting, t.App, t.Host),
		fmt.Sprintf("%s/%s/%s/#", command, t.App, AllHosts),
		fmt.Sprintf("%s/%s/%s/#", setting, t.App, AllHosts),
	}
}

// Address is a parsed inbound topic.
type Address struct {
	Prefix string
	App    string
	Host   string
	Suffix string
}

// ParseTopic splits prefix/app/host[/suffix]. The suffix is everything
// after the third level and may itself contain slashes.
func ParseTopic(topic string) (Address, bool) {
	parts := strings.SplitN(topic, "/", 4)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Address{}, false
	}
	a := Address{Prefix: parts[0], App: parts[1], Host: parts[2]}
	if len(parts) == 4 {
		a.Suffix = parts[3]
	}
	return a, true
}
