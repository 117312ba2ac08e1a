package session

import (
	"context"
	"time"
)

// Target is one broker endpoint.
type Target struct {
	Host     string
	Port     int
	Username string
	Password string

	// Pin is the SHA-1 fingerprint of the broker certificate. A pinned
	// target uses TLS; an unpinned one is plain TCP.
	Pin []byte

	ClientID string
}

// Will is the last-will message armed at connect.
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Message is one inbound message.
type Message struct {
	Topic   string
	Payload []byte
}

// Transport is the publish/subscribe collaborator.
//
// Inbound messages may arrive on any goroutine; the transport queues them
// and hands them over in Poll, which the Manager calls inside the tick.
type Transport interface {
	// Connect opens a session to target with will armed. It blocks for at
	// most the transport's connect timeout.
	Connect(ctx context.Context, target Target, will Will) error

	// Subscribe adds a subscription on the open session.
	Subscribe(topic string, qos byte) error

	// Publish sends one message on the open session.
	Publish(topic string, payload []byte, qos byte, retain bool) error

	// Disconnect closes the session, waiting up to quiesce for in-flight
	// publishes to leave.
	Disconnect(quiesce time.Duration)

	// Alive reports the heartbeat outcome: false once the session is lost.
	Alive() bool

	// Poll returns and clears the inbound queue.
	Poll() []Message
}
