// Package store holds the immutable index state shared by readers and the
// single index writer, the optional HNSW graph over chunk vectors, and the
// on-disk artifacts those states are persisted to.
//
// LexicalState and VectorState are copy-on-write: With and Without return a
// new value and never mutate the receiver, so a state reachable from a
// published snapshot can be read without locks.
package store
