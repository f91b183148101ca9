// Package chunk splits document text into overlapping windows for embedding.
package chunk

import (
	"strings"
)

// Piece is one chunk of a document's text.
type Piece struct {
	Ordinal int
	Text    string
	// Start and End are rune offsets into the source text.
	Start int
	End   int
}

// Chunker is a rune-based sliding window.
type Chunker struct {
	Size    int
	Overlap int
	MinSize int
}

// New creates a Chunker. Invalid sizes are clamped: Size at least 1 and
// Overlap strictly below Size.
func New(size, overlap, minSize int) *Chunker {
	if size < 1 {
		size = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	if minSize < 0 {
		minSize = 0
	}
	return &Chunker{Size: size, Overlap: overlap, MinSize: minSize}
}

// Split cuts text into windows of Size runes stepping Size-Overlap.
// Windows whose trimmed text is shorter than MinSize are dropped. A
// document too short to produce any window yields one piece holding its
// whole trimmed text, so short documents stay searchable.
func (c *Chunker) Split(text string) []Piece {
	runes := []rune(text)
	step := c.Size - c.Overlap

	var pieces []Piece
	for start := 0; start < len(runes); start += step {
		end := min(start+c.Size, len(runes))
		trimmed := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(trimmed)) >= c.MinSize && trimmed != "" {
			pieces = append(pieces, Piece{
				Ordinal: len(pieces),
				Text:    trimmed,
				Start:   start,
				End:     end,
			})
		}
		if end == len(runes) {
			break
		}
	}

	if len(pieces) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			pieces = append(pieces, Piece{Ordinal: 0, Text: trimmed, Start: 0, End: len(runes)})
		}
	}
	return pieces
}

// Texts returns the text of each piece.
func Texts(pieces []Piece) []string {
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.Text
	}
	return out
}
