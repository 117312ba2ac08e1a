// Package nvram provides the node's byte-addressable persistent store.
//
// A Store is a fixed-capacity linear region addressed by offset. Reads and
// writes go to an in-memory image; Sync commits the whole image to the
// backing medium in one step, so a power cut leaves either the previous
// image or the new one. One successful Sync of a changed image is one
// physical write.
//
// Backends:
//   - Memory: volatile, counts physical writes (tests, dry runs)
//   - File: a single image file replaced atomically by rename
//   - SQLite: a single-row BLOB in the node database
package nvram
