// Package link keeps the node's wireless link associated.
//
// The Supervisor walks Disconnected → Associating → Associated. From
// Disconnected it tries one candidate per tick, round robin over the last
// network that worked and the three configured credentials, skipping empty
// slots. Link loss arrives from the radio as an event, is queued, and is
// drained at the top of the next tick so a transient drop is never missed.
//
// While associated, a periodic scan looks for a clearly stronger access
// point on the same network and re-associates to it, unless the access
// point is pinned by configuration. If the link stays down longer than the
// configured threshold the Supervisor asks the scheduler for a restart, once.
package link
