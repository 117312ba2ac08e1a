package mqtt

import (
	"bytes"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/session"
)

// Subscribe adds a subscription on the open session. Matching messages are
// queued for Poll.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "command/Thermo/+/#"
//   - # (multi-level): "setting/Thermo/GL-0042/#"
//
// Subscriptions are not restored across connections; the session manager
// subscribes again after every connect.
func (t *Transport) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	client, err := t.current()
	if err != nil {
		return err
	}

	token := client.Subscribe(topic, qos, t.enqueue)
	if !token.WaitTimeout(t.opts.PublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, t.opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// enqueue is the paho message handler. It runs on paho goroutines.
func (t *Transport) enqueue(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			if logger := t.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}
	}()

	m := session.Message{Topic: msg.Topic(), Payload: bytes.Clone(msg.Payload())}

	t.inMu.Lock()
	defer t.inMu.Unlock()
	if len(t.inbound) >= t.opts.QueueSize {
		t.inbound = t.inbound[1:]
		t.dropped++
	}
	t.inbound = append(t.inbound, m)
}
