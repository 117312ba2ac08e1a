package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLink    = "node_link"
	MeasurementSession = "node_session"
	MeasurementUpdate  = "node_update"
)

// WriteLinkMetric records a link state transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - node: Host name of the node
//   - state: Link state after the transition (e.g., "associated")
//   - rssi: Signal strength in dBm, zero when not associated
//   - attempts: Association attempts since start
//
// Example:
//
//	client.WriteLinkMetric("GL-0042", "associated", -61, 3)
func (c *Client) WriteLinkMetric(node, state string, rssi, attempts int) {
	w := c.live()
	if w == nil {
		return
	}
	w.WritePoint(linkPoint(node, c.boot(), state, rssi, attempts, time.Now()))
}

// WriteSessionMetric records a session state transition.
//
// Parameters:
//   - node: Host name of the node
//   - state: Session state after the transition (e.g., "open")
//   - broker: Active broker host
//   - attempts: Connect attempts since start
func (c *Client) WriteSessionMetric(node, state, broker string, attempts int) {
	w := c.live()
	if w == nil {
		return
	}
	w.WritePoint(sessionPoint(node, c.boot(), state, broker, attempts, time.Now()))
}

// WriteUpdateResult records the outcome of a firmware update.
//
// Only failures are normally seen here; a successful update restarts the
// node before the batch is flushed unless Flush is called first.
//
// Parameters:
//   - node: Host name of the node
//   - path: Image path of the last attempt
//   - attempts: Number of fetches made
//   - err: Failure, or nil on success
func (c *Client) WriteUpdateResult(node, path string, attempts int, err error) {
	w := c.live()
	if w == nil {
		return
	}
	w.WritePoint(updatePoint(node, c.boot(), path, attempts, err, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("node_store",
//	    map[string]string{"node": "GL-0042"},
//	    map[string]interface{}{"used_bytes": 312, "capacity_bytes": 4096})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	w := c.live()
	if w == nil {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	w.WritePoint(point)
}

func nodeTags(node, boot string) map[string]string {
	tags := map[string]string{"node": node}
	if boot != "" {
		tags["boot"] = boot
	}
	return tags
}

func linkPoint(node, boot, state string, rssi, attempts int, ts time.Time) *write.Point {
	tags := nodeTags(node, boot)
	tags["state"] = state
	return write.NewPoint(MeasurementLink, tags, map[string]interface{}{
		"rssi":     rssi,
		"attempts": attempts,
	}, ts)
}

func sessionPoint(node, boot, state, broker string, attempts int, ts time.Time) *write.Point {
	tags := nodeTags(node, boot)
	tags["state"] = state
	tags["broker"] = broker
	return write.NewPoint(MeasurementSession, tags, map[string]interface{}{
		"attempts": attempts,
	}, ts)
}

func updatePoint(node, boot, path string, attempts int, err error, ts time.Time) *write.Point {
	tags := nodeTags(node, boot)
	tags["path"] = path
	fields := map[string]interface{}{
		"attempts": attempts,
		"success":  err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	return write.NewPoint(MeasurementUpdate, tags, fields, ts)
}
