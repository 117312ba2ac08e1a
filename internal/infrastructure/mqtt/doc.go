// Package mqtt provides the node's publish/subscribe transport on top of
// paho.mqtt.golang.
//
// Transport implements session.Transport. It manages:
//   - One connection per Connect, to the broker the session manager chose
//   - Last Will and Testament on the node state topic
//   - TLS with a pinned certificate fingerprint (see tlspin)
//   - Connection-lost detection reported through Alive
//   - An inbound queue drained by the supervisor tick
//
// # Reconnection
//
// paho's auto-reconnect is disabled. The session manager owns backoff,
// broker failover and the connect sequence, so it needs every attempt to
// be explicit.
//
// # Security Considerations
//
//   - A pinned broker is reached over TLS and trusted by fingerprint only
//   - An unpinned broker is plain TCP
//   - The backup broker never receives credentials
//
// # Usage
//
//	tr := mqtt.New(mqtt.Options{KeepAlive: 30 * time.Second})
//	err := tr.Connect(ctx, session.Target{Host: "broker.lan", Port: 1883, ClientID: "GL-0042"},
//	    session.Will{Topic: "state/Thermo/GL-0042", Payload: []byte("0 Fail"), QoS: 1, Retain: true})
//	if err != nil {
//	    return err
//	}
//	_ = tr.Subscribe("command/Thermo/GL-0042/#", 1)
//	for _, m := range tr.Poll() {
//	    fmt.Println(m.Topic)
//	}
package mqtt
