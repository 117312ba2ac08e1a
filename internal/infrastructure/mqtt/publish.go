package mqtt

import (
	"fmt"

	"github.com/nerrad567/gray-logic-node/internal/session"
)

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "state/Thermo/GL-0042")
//   - payload: The message payload (max session.MaxPayloadLen)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Retained Messages:
//   - Used for the node state topic so new subscribers see online/offline
//   - Not used for replies or events
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (t *Transport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > session.MaxPayloadLen {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), session.MaxPayloadLen)
	}

	client, err := t.current()
	if err != nil {
		return err
	}

	token := client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(t.opts.PublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, t.opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
