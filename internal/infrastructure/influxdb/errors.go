package influxdb

import "errors"

var (
	// ErrNotConnected is returned for a client that was closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps the ping failure from Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled means telemetry is switched off in the node config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
