package store

import "time"

// Document is the indexed record of one file under the watch root.
type Document struct {
	// Key is the slash-separated path relative to the watch root.
	Key         string
	Hash        string
	ModTime     time.Time
	Size        int64
	Text        string
	ExtractedAt time.Time
	Chunks      int
}

// Chunk is one embedded slice of a document.
type Chunk struct {
	// ID is unique across the lifetime of the index, so the ANN graph can
	// tell a replaced chunk from its successor.
	ID      uint64
	Ordinal int
	Text    string
	Vector  []float32
}
