package session

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-node/internal/settings"
)

// Kind is the namespace of an outbound message.
type Kind int

// Outbound namespaces. Each maps to a configurable prefix.
const (
	KindState Kind = iota
	KindEvent
	KindInfo
	KindError
	KindCommand
	KindSetting
)

// prefixTag returns the settings tag holding the prefix for k.
func (k Kind) prefixTag() string {
	switch k {
	case KindState:
		return settings.TagPrefixState
	case KindEvent:
		return settings.TagPrefixEvent
	case KindInfo:
		return settings.TagPrefixInfo
	case KindError:
		return settings.TagPrefixError
	case KindCommand:
		return settings.TagPrefixCommand
	default:
		return settings.TagPrefixSetting
	}
}

// Outbound is a message to publish, built with the helpers below.
//
//	session.State("").Text("1 " + version).Retained()
//	session.Error("bogus").Text("Bad command")
type Outbound struct {
	Kind    Kind
	Suffix  string
	Payload []byte
	Retain  bool

	// QoS overrides the manager default when set.
	QoS    byte
	hasQoS bool
}

// New returns an empty message of kind k with the given topic suffix.
func New(k Kind, suffix string) Outbound { return Outbound{Kind: k, Suffix: suffix} }

// State returns a state message. State messages describe the node and are
// normally retained.
func State(suffix string) Outbound { return New(KindState, suffix) }

// Event returns an event message.
func Event(suffix string) Outbound { return New(KindEvent, suffix) }

// Info returns an info message.
func Info(suffix string) Outbound { return New(KindInfo, suffix) }

// Error returns an error message.
func Error(suffix string) Outbound { return New(KindError, suffix) }

// Text sets a text payload.
func (o Outbound) Text(s string) Outbound {
	o.Payload = []byte(s)
	return o
}

// Bytes sets a binary payload.
func (o Outbound) Bytes(b []byte) Outbound {
	o.Payload = b
	return o
}

// JSON sets a JSON payload.
func (o Outbound) JSON(v any) (Outbound, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return o, fmt.Errorf("encoding payload: %w", err)
	}
	o.Payload = b
	return o, nil
}

// Retained marks the message retained.
func (o Outbound) Retained() Outbound {
	o.Retain = true
	return o
}

// WithQoS sets an explicit QoS level.
func (o Outbound) WithQoS(q byte) Outbound {
	o.QoS = q
	o.hasQoS = true
	return o
}
