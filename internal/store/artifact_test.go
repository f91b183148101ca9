package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePair(id uint64) (*LexicalArtifact, *VectorArtifact) {
	now := time.Now().UTC().Truncate(time.Second)
	lex := &LexicalArtifact{
		Header: Header{SnapshotID: id, CreatedAt: now, Documents: 1},
		Documents: map[string]Document{
			"a.txt": {Key: "a.txt", Hash: "h", Size: 25, Text: "machine learning in Japan", ModTime: now},
		},
		Terms: map[string]map[string]int{"a.txt": {"machine": 1, "learning": 1, "japan": 1}},
	}
	vec := &VectorArtifact{
		Header: Header{SnapshotID: id, CreatedAt: now, Dimensions: 2, Model: "static-hash-v1"},
		Chunks: map[string][]Chunk{"a.txt": {{ID: 1, Text: "machine learning in Japan", Vector: []float32{0.6, 0.8}}}},
	}
	return lex, vec
}

func TestSavePair_LoadPairRoundTrip(t *testing.T) {
	// Given: a saved pair
	dir := t.TempDir()
	lex, vec := samplePair(7)
	require.NoError(t, SavePair(dir, lex, vec))

	// When: loading it back
	gotLex, gotVec, err := LoadPair(dir)

	// Then: content and headers survive
	require.NoError(t, err)
	assert.Equal(t, uint64(7), gotLex.Header.SnapshotID)
	assert.Equal(t, 2, gotVec.Header.Dimensions)
	assert.Equal(t, "static-hash-v1", gotVec.Header.Model)
	assert.Equal(t, lex.Documents["a.txt"].Text, gotLex.Documents["a.txt"].Text)
	assert.Equal(t, lex.Terms, gotLex.Terms)
	assert.Equal(t, vec.Chunks, gotVec.Chunks)

	// no temp files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLoadPair_MissingArtifact(t *testing.T) {
	_, _, err := LoadPair(t.TempDir())
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestLoadPair_SnapshotMismatch(t *testing.T) {
	// Given: a lexical artifact from a newer snapshot than the vector one
	dir := t.TempDir()
	lex, vec := samplePair(1)
	require.NoError(t, SavePair(dir, lex, vec))

	lex2, vec2 := samplePair(2)
	other := t.TempDir()
	require.NoError(t, SavePair(other, lex2, vec2))
	data, err := os.ReadFile(filepath.Join(other, LexicalFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LexicalFile), data, 0o644))

	// When/Then: the torn pair is rejected
	_, _, err = LoadPair(dir)
	assert.ErrorIs(t, err, ErrSnapshotMismatch)
}

func TestLoadPair_CorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	lex, vec := samplePair(3)
	require.NoError(t, SavePair(dir, lex, vec))
	require.NoError(t, os.WriteFile(filepath.Join(dir, VectorFile), []byte("not zstd"), 0o644))

	_, _, err := LoadPair(dir)
	assert.ErrorIs(t, err, ErrArtifactCorrupt)
}

func TestSavePair_RejectsDifferentSnapshotIDs(t *testing.T) {
	lex, _ := samplePair(1)
	_, vec := samplePair(2)
	assert.Error(t, SavePair(t.TempDir(), lex, vec))
}

func TestReadHeader(t *testing.T) {
	dir := t.TempDir()
	lex, vec := samplePair(9)
	require.NoError(t, SavePair(dir, lex, vec))

	h, err := ReadHeader(filepath.Join(dir, VectorFile))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), h.SnapshotID)
	assert.Equal(t, "vector", h.Kind)
}

func TestDirLock_SecondLockFails(t *testing.T) {
	dir := t.TempDir()
	first := NewDirLock(dir)
	require.NoError(t, first.TryLock())
	defer func() { _ = first.Unlock() }()

	second := NewDirLock(dir)
	err := second.TryLock()
	assert.ErrorIs(t, err, ErrLocked)
}
