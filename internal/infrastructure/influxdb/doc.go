// Package influxdb is the node's optional telemetry sink.
//
// The node records its own lifecycle as time series:
//   - node_link: link state, signal strength and association attempts
//   - node_session: session state, active broker and connect attempts
//   - node_update: firmware update outcomes
//
// Points are tagged with the node host name and the per-run boot id, so
// a restart shows up as a new series on the same host.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	client.SetBootID(id.BootID())
//	client.WriteLinkMetric("GL-0042", "associated", -61, 3)
//
// Writes never block the tick loop. The client library batches them and
// retries while the link is down; a batch that still fails reaches the
// SetOnError callback.
package influxdb
