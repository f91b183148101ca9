package store

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	// ArtifactFormat is bumped whenever the payload layout changes.
	ArtifactFormat = 1

	// LexicalFile holds documents and their term frequencies.
	LexicalFile = "lexical.lfs"

	// VectorFile holds chunk vectors.
	VectorFile = "vectors.lfs"

	kindLexical = "lexical"
	kindVector  = "vector"
)

var (
	// ErrArtifactMissing is returned when either artifact does not exist.
	ErrArtifactMissing = errors.New("index artifact missing")

	// ErrArtifactCorrupt is returned when an artifact cannot be decoded.
	ErrArtifactCorrupt = errors.New("index artifact corrupt")

	// ErrSnapshotMismatch is returned when the two artifacts were written
	// for different snapshots, e.g. after a crash between the two renames.
	ErrSnapshotMismatch = errors.New("index artifacts belong to different snapshots")
)

// Header precedes the payload in every artifact.
type Header struct {
	Format     int
	Kind       string
	SnapshotID uint64
	CreatedAt  time.Time
	Documents  int
	// Dimensions and Model are set for the vector artifact only.
	Dimensions int
	Model      string
}

// LexicalArtifact is the decoded content of lexical.lfs.
type LexicalArtifact struct {
	Header    Header
	Documents map[string]Document
	Terms     map[string]map[string]int
}

// VectorArtifact is the decoded content of vectors.lfs.
type VectorArtifact struct {
	Header Header
	Chunks map[string][]Chunk
}

// SavePair writes both artifacts for one snapshot. Both are written to temp
// files first; if either write fails both temps are removed and the
// previous pair is left untouched.
func SavePair(dir string, lex *LexicalArtifact, vec *VectorArtifact) error {
	if lex.Header.SnapshotID != vec.Header.SnapshotID {
		return fmt.Errorf("refusing to save pair for snapshots %d and %d", lex.Header.SnapshotID, vec.Header.SnapshotID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	lex.Header.Format, lex.Header.Kind = ArtifactFormat, kindLexical
	vec.Header.Format, vec.Header.Kind = ArtifactFormat, kindVector

	lexTmp, err := writeTemp(dir, LexicalFile, lex.Header, lex.Documents, lex.Terms)
	if err != nil {
		return fmt.Errorf("write %s: %w", LexicalFile, err)
	}
	vecTmp, err := writeTemp(dir, VectorFile, vec.Header, vec.Chunks)
	if err != nil {
		_ = os.Remove(lexTmp)
		return fmt.Errorf("write %s: %w", VectorFile, err)
	}

	if err := os.Rename(lexTmp, filepath.Join(dir, LexicalFile)); err != nil {
		_ = os.Remove(lexTmp)
		_ = os.Remove(vecTmp)
		return fmt.Errorf("commit %s: %w", LexicalFile, err)
	}
	if err := os.Rename(vecTmp, filepath.Join(dir, VectorFile)); err != nil {
		// The lexical artifact is now ahead; LoadPair reports the mismatch.
		_ = os.Remove(vecTmp)
		return fmt.Errorf("commit %s: %w", VectorFile, err)
	}
	return nil
}

// writeTemp encodes header and values into a zstd-compressed gob stream in
// a temp file next to name and returns the temp path.
func writeTemp(dir, name string, header Header, values ...any) (path string, err error) {
	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", err
	}
	path = f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(path)
		}
	}()

	bw := bufio.NewWriter(f)
	zw, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", err
	}
	enc := gob.NewEncoder(zw)
	if err = enc.Encode(header); err != nil {
		_ = zw.Close()
		return "", err
	}
	for _, v := range values {
		if err = enc.Encode(v); err != nil {
			_ = zw.Close()
			return "", err
		}
	}
	if err = zw.Close(); err != nil {
		return "", err
	}
	if err = bw.Flush(); err != nil {
		return "", err
	}
	if err = f.Sync(); err != nil {
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// LoadPair reads both artifacts and checks they belong together.
func LoadPair(dir string) (*LexicalArtifact, *VectorArtifact, error) {
	lex := &LexicalArtifact{}
	if err := readArtifact(filepath.Join(dir, LexicalFile), kindLexical, &lex.Header, &lex.Documents, &lex.Terms); err != nil {
		return nil, nil, err
	}
	vec := &VectorArtifact{}
	if err := readArtifact(filepath.Join(dir, VectorFile), kindVector, &vec.Header, &vec.Chunks); err != nil {
		return nil, nil, err
	}
	if lex.Header.SnapshotID != vec.Header.SnapshotID {
		return nil, nil, fmt.Errorf("%w: lexical %d, vector %d", ErrSnapshotMismatch, lex.Header.SnapshotID, vec.Header.SnapshotID)
	}
	if lex.Documents == nil {
		lex.Documents = map[string]Document{}
	}
	if lex.Terms == nil {
		lex.Terms = map[string]map[string]int{}
	}
	if vec.Chunks == nil {
		vec.Chunks = map[string][]Chunk{}
	}
	return lex, vec, nil
}

// ReadHeader decodes only the header of an artifact.
func ReadHeader(path string) (Header, error) {
	var h Header
	err := readArtifact(path, "", &h)
	return h, err
}

func readArtifact(path, kind string, header *Header, values ...any) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, filepath.Base(path))
		}
		return err
	}
	defer func() { _ = f.Close() }()

	zr, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, filepath.Base(path), err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	if err := dec.Decode(header); err != nil {
		return fmt.Errorf("%w: %s header: %v", ErrArtifactCorrupt, filepath.Base(path), err)
	}
	if header.Format != ArtifactFormat {
		return fmt.Errorf("%w: %s has format %d, want %d", ErrArtifactCorrupt, filepath.Base(path), header.Format, ArtifactFormat)
	}
	if kind != "" && header.Kind != kind {
		return fmt.Errorf("%w: %s has kind %q, want %q", ErrArtifactCorrupt, filepath.Base(path), header.Kind, kind)
	}
	for _, v := range values {
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%w: %s payload: %v", ErrArtifactCorrupt, filepath.Base(path), err)
		}
	}
	return nil
}
