// Package settings implements the node's persistent tag/value table.
//
// Every change, whether it arrives over the network, from the offline CLI,
// or from the persisted log at startup, goes through Store.Apply. Apply
// first offers the tag to the core table (host name, broker, credential,
// update and prefix tags) and then to the application. Accepted changes
// schedule a debounced save that rewrites the whole table to the nvram
// store.
//
// Persisted layout (all lengths are single bytes):
//
//	[0]      validity marker: len(Signature) when valid, 0 when invalidated
//	[1..]    Signature
//	         len(app), app name
//	         repeated: len(tag), tag, len(value), value
//	         0 terminator
package settings
