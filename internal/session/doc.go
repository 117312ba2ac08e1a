// Package session keeps the node's publish/subscribe session open.
//
// The Manager walks Closed → Connecting → Open. It only connects while the
// link is up. On connect it arms a last will on the node's state topic,
// subscribes to the command and setting namespaces for this host and for
// the fleet-wide host "*", announces itself, and notifies the router.
//
// Connect failures back off from a floor, doubling to a cap. Once the
// backoff has sat at the cap for the failover period the Manager swaps to
// the backup broker, or, without one, asks the link to re-associate.
//
// Topic shape:
//
//	{prefix}/{app}/{host}[/{suffix}]
//
// Example:
//
//	state/Thermo/A1B2C3
//	command/Thermo/*/restart
package session
