package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/tlspin"
	"github.com/nerrad567/gray-logic-node/internal/session"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds the connect handshake when the caller's
	// context has no earlier deadline.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// defaultQueueSize bounds the inbound queue between ticks.
	defaultQueueSize = 64

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// buildClientOptions creates paho MQTT options for one connect attempt.
//
// This configures:
//   - Broker URL (ssl:// when the target is pinned, tcp:// otherwise)
//   - Client ID and credentials (if provided)
//   - Last will on the state topic
//   - TLS with the pinned fingerprint
//   - Clean session mode
//
// Reconnection is left to the session manager, so paho's own auto-reconnect
// and connect-retry are disabled.
func buildClientOptions(target session.Target, will session.Will, keepAlive, connectTimeout time.Duration) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if target.Pin != nil {
		scheme = "ssl"
		tlsConfig, err := tlspin.Config(target.Host, target.Pin)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, target.Host, target.Port))

	opts.SetClientID(target.ClientID)
	if target.Username != "" {
		opts.SetUsername(target.Username)
		opts.SetPassword(target.Password)
	}

	if will.Topic != "" {
		opts.SetBinaryWill(will.Topic, will.Payload, will.QoS, will.Retain)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	return opts, nil
}
