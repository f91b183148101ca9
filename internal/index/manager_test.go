package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/extract"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/watcher"
)

const testDims = 64

// flakyExtractor delegates to the real extractor unless a failure is set
// for the path.
type flakyExtractor struct {
	inner *extract.Extractor

	mu    sync.Mutex
	fails map[string]error
}

func newFlakyExtractor() *flakyExtractor {
	return &flakyExtractor{
		inner: extract.New(extract.Options{Extensions: []string{".txt", ".md"}}, nil),
		fails: make(map[string]error),
	}
}

func (f *flakyExtractor) failOn(abs string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[abs] = err
}

func (f *flakyExtractor) Extract(ctx context.Context, abs string) (*extract.Extracted, error) {
	f.mu.Lock()
	err := f.fails[abs]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.inner.Extract(ctx, abs)
}

// renamedEmbedder reports a different model over the static vectors.
type renamedEmbedder struct {
	*embed.StaticEmbedder
	model string
}

func (e renamedEmbedder) ModelName() string { return e.model }

type fixture struct {
	root    string
	dataDir string
	cfg     *config.Config
	ext     *flakyExtractor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Watch.Root = t.TempDir()
	cfg.Watch.Debounce = 20 * time.Millisecond
	cfg.Persist.DataDir = t.TempDir()
	cfg.Persist.AutosaveInterval = 0
	cfg.Vector.Dimensions = testDims
	cfg.Workers.Size = 2
	return &fixture{
		root:    cfg.Watch.Root,
		dataDir: cfg.Persist.DataDir,
		cfg:     cfg,
		ext:     newFlakyExtractor(),
	}
}

func (f *fixture) write(t *testing.T, key, content string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) manager(t *testing.T, emb embed.Embedder) *Manager {
	t.Helper()
	return f.managerWith(t, emb, nil)
}

// watched returns a manager following the fixture root with fsnotify.
func (f *fixture) watched(t *testing.T) *Manager {
	t.Helper()
	w, err := watcher.New(watcher.Options{
		Root:         f.root,
		DataDir:      f.dataDir,
		Extensions:   []string{".txt", ".md"},
		PollInterval: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	return f.managerWith(t, nil, w)
}

func (f *fixture) managerWith(t *testing.T, emb embed.Embedder, w watcher.Watcher) *Manager {
	t.Helper()
	if emb == nil {
		emb = embed.NewStaticEmbedder(f.cfg.Vector.Dimensions, tokenize.MustDefault())
	}
	m, err := NewManager(Dependencies{
		Config:    f.cfg,
		Embedder:  emb,
		Tokenizer: tokenize.MustDefault(),
		Extractor: f.ext,
		Watcher:   w,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func (f *fixture) started(t *testing.T) *Manager {
	t.Helper()
	m := f.manager(t, nil)
	require.NoError(t, m.InitializeIndices(context.Background()))
	return m
}

func waitIdle(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.WaitIdle(ctx))
}

func TestNewManager_RequiresDependencies(t *testing.T) {
	f := newFixture(t)
	emb := embed.NewStaticEmbedder(testDims, tokenize.MustDefault())

	_, err := NewManager(Dependencies{Embedder: emb, Tokenizer: tokenize.MustDefault()})
	assert.Error(t, err)
	_, err = NewManager(Dependencies{Config: f.cfg, Tokenizer: tokenize.MustDefault()})
	assert.Error(t, err)
	_, err = NewManager(Dependencies{Config: f.cfg, Embedder: emb})
	assert.Error(t, err)
}

func TestInitializeIndices_IndexesExistingFiles(t *testing.T) {
	// Given: two documents under the root
	f := newFixture(t)
	f.write(t, "a.txt", "apple banana")
	f.write(t, "notes/b.md", "banana cherry")

	// When: the manager initializes
	m := f.started(t)

	// Then: both are indexed with lexical and vector entries
	snap := m.Current()
	assert.Equal(t, []string{"a.txt", "notes/b.md"}, snap.Keys())
	assert.Equal(t, uint64(2), snap.Version)
	assert.True(t, snap.Lexical.Has("a.txt"))
	assert.Equal(t, 2, snap.Lexical.DocFreq("banana"))
	assert.Len(t, snap.Vectors.Chunks("notes/b.md"), 1)

	doc, ok := m.Document("a.txt")
	require.True(t, ok)
	assert.Equal(t, "apple banana", doc.Text)
	assert.Equal(t, 1, doc.Chunks)
	assert.NotEmpty(t, doc.Hash)
}

func TestInitializeIndices_MissingRoot(t *testing.T) {
	f := newFixture(t)
	f.cfg.Watch.Root = filepath.Join(f.root, "missing")
	m := f.manager(t, nil)

	err := m.InitializeIndices(context.Background())

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeWatchRootMissing, apperrors.GetCode(err))
}

func TestApply_Idempotent(t *testing.T) {
	// Given: an indexed file
	f := newFixture(t)
	f.write(t, "a.txt", "apple banana")
	m := f.started(t)
	ctx := context.Background()
	before := m.Current()

	// When: the same path is applied twice without changes on disk
	first, err := m.Apply(ctx, "a.txt")
	require.NoError(t, err)
	second, err := m.Apply(ctx, "a.txt")
	require.NoError(t, err)

	// Then: no snapshot is published
	assert.Equal(t, OutcomeUnchanged, first)
	assert.Equal(t, OutcomeUnchanged, second)
	assert.Same(t, before, m.Current())
}

func TestApply_AddUpdateRemove(t *testing.T) {
	f := newFixture(t)
	m := f.started(t)
	ctx := context.Background()
	require.Equal(t, uint64(0), m.Current().Version)

	f.write(t, "a.txt", "apple")
	out, err := m.Apply(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdded, out)
	firstChunks := m.Current().Vectors.Chunks("a.txt")
	require.Len(t, firstChunks, 1)

	f.write(t, "a.txt", "apple orange")
	out, err = m.Apply(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, out)
	snap := m.Current()
	assert.Equal(t, 1, snap.Lexical.DocFreq("orange"))
	// New content gets new chunk ids.
	assert.NotEqual(t, firstChunks[0].ID, snap.Vectors.Chunks("a.txt")[0].ID)

	require.NoError(t, os.Remove(filepath.Join(f.root, "a.txt")))
	out, err = m.Apply(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, out)

	snap = m.Current()
	assert.Equal(t, uint64(3), snap.Version)
	assert.Empty(t, snap.Docs)
	assert.False(t, snap.Lexical.Has("a.txt"))
	assert.Zero(t, snap.Vectors.ChunkCount())

	st := m.GetStatus()
	assert.Equal(t, int64(1), st.FilesAdded)
	assert.Equal(t, int64(1), st.FilesUpdated)
	assert.Equal(t, int64(1), st.FilesRemoved)
}

func TestApply_OldSnapshotUnaffected(t *testing.T) {
	// Given: a reader holding the snapshot before an update
	f := newFixture(t)
	f.write(t, "a.txt", "apple")
	m := f.started(t)
	held := m.Current()

	// When: the document changes
	f.write(t, "a.txt", "orange")
	_, err := m.Apply(context.Background(), "a.txt")
	require.NoError(t, err)

	// Then: the held snapshot still shows the old content
	assert.Equal(t, "apple", held.Docs["a.txt"].Text)
	assert.Equal(t, 1, held.Lexical.DocFreq("apple"))
	assert.Zero(t, held.Lexical.DocFreq("orange"))
	assert.Equal(t, "orange", m.Current().Docs["a.txt"].Text)
}

func TestApply_ExtractionFailureKeepsPreviousVersion(t *testing.T) {
	// Given: an indexed file whose next extraction fails
	f := newFixture(t)
	f.write(t, "a.txt", "apple")
	m := f.started(t)
	before := m.Current()

	f.write(t, "a.txt", "apple orange")
	f.ext.failOn(filepath.Join(f.root, "a.txt"), errors.New("decoder crashed"))

	// When: the change is applied
	out, err := m.Apply(context.Background(), "a.txt")

	// Then: the failure is reported and the old version stays searchable
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, out)
	assert.Equal(t, apperrors.ErrCodeExtractionFailed, apperrors.GetCode(err))
	assert.Same(t, before, m.Current())
	assert.Equal(t, "apple", m.Current().Docs["a.txt"].Text)
	assert.Equal(t, int64(1), m.GetStatus().FilesFailed)
}

func TestApply_SkippedFileIsRemoved(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "apple")
	m := f.started(t)

	// Emptied files leave the index.
	f.write(t, "a.txt", "   \n")
	out, err := m.Apply(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, out)
	assert.Empty(t, m.Current().Docs)

	// Unsupported and never indexed: nothing to do.
	f.write(t, "data.bin", "apple")
	out, err = m.Apply(context.Background(), "data.bin")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, out)
}

func TestApply_DirectoryRemoval(t *testing.T) {
	// Given: two documents in a subdirectory
	f := newFixture(t)
	f.write(t, "sub/x.txt", "xray")
	f.write(t, "sub/y.txt", "yankee")
	f.write(t, "keep.txt", "kilo")
	m := f.started(t)

	// When: the directory disappears
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "sub")))
	out, err := m.Apply(context.Background(), "sub")

	// Then: everything below it is removed in one snapshot
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, out)
	assert.Equal(t, []string{"keep.txt"}, m.Current().Keys())
	assert.Equal(t, int64(2), m.GetStatus().FilesRemoved)
}

func TestApply_Canceled(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "apple")
	m := f.started(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Apply(ctx, "a.txt")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.GetStatus().FilesFailed)
}

func TestOnFileEvent_CreateThenDelete(t *testing.T) {
	f := newFixture(t)
	m := f.started(t)

	f.write(t, "a.txt", "apple")
	m.OnFileEvent(watcher.FileEvent{Path: "a.txt", Operation: watcher.OpCreate, Timestamp: time.Now()})
	waitIdle(t, m)
	require.Contains(t, m.Current().Docs, "a.txt")

	require.NoError(t, os.Remove(filepath.Join(f.root, "a.txt")))
	m.OnFileEvent(watcher.FileEvent{Path: "a.txt", Operation: watcher.OpDelete, Timestamp: time.Now()})
	waitIdle(t, m)
	assert.NotContains(t, m.Current().Docs, "a.txt")
}

func TestOnFileEvent_BurstPublishesOnce(t *testing.T) {
	// Given: a burst of create and modify events for one new file
	f := newFixture(t)
	m := f.started(t)
	f.write(t, "a.txt", "apple")

	// When: they arrive inside the debounce window
	m.OnFileEvent(watcher.FileEvent{Path: "a.txt", Operation: watcher.OpCreate})
	m.OnFileEvent(watcher.FileEvent{Path: "a.txt", Operation: watcher.OpModify})
	m.OnFileEvent(watcher.FileEvent{Path: "a.txt", Operation: watcher.OpModify})
	waitIdle(t, m)

	// Then: one snapshot is published for the final content
	assert.Equal(t, uint64(1), m.Current().Version)
	assert.Equal(t, int64(1), m.GetStatus().FilesAdded)
}

func TestOnFileEvent_CreateDeleteInWindowLeavesNoDocument(t *testing.T) {
	f := newFixture(t)
	m := f.started(t)

	m.OnFileEvent(watcher.FileEvent{Path: "tmp.txt", Operation: watcher.OpCreate})
	m.OnFileEvent(watcher.FileEvent{Path: "tmp.txt", Operation: watcher.OpDelete})
	waitIdle(t, m)

	assert.NotContains(t, m.Current().Docs, "tmp.txt")
	assert.Equal(t, uint64(0), m.Current().Version)
}

func TestOnFileEvent_CreateDeleteInWindowRemovesIndexedFile(t *testing.T) {
	// Given: an indexed file
	f := newFixture(t)
	f.write(t, "a.txt", "apple")
	m := f.started(t)
	require.Contains(t, m.Current().Docs, "a.txt")

	// When: an atomic save reports a create and the file is deleted in the same window
	m.OnFileEvent(watcher.FileEvent{Path: "a.txt", Operation: watcher.OpCreate})
	require.NoError(t, os.Remove(filepath.Join(f.root, "a.txt")))
	m.OnFileEvent(watcher.FileEvent{Path: "a.txt", Operation: watcher.OpDelete})
	waitIdle(t, m)

	// Then: the document leaves both indices
	snap := m.Current()
	assert.NotContains(t, snap.Docs, "a.txt")
	assert.Zero(t, snap.Lexical.DocCount())
	assert.Zero(t, snap.Vectors.DocCount())
}

func TestStart_SeesFileWrittenRightAfterStart(t *testing.T) {
	if testing.Short() {
		t.Skip("watches the file system")
	}

	// Given: a watched folder with one document
	f := newFixture(t)
	f.write(t, "a.txt", "apple")
	m := f.watched(t)

	// When: a file is written as soon as Start returns
	require.NoError(t, m.Start(context.Background()))
	f.write(t, "b.txt", "banana")

	// Then: the watcher reports it
	require.Eventually(t, func() bool {
		_, ok := m.Current().Docs["b.txt"]
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, m.Current().Docs, "a.txt")
}

func TestStart_RescansAfterEarlierInitialize(t *testing.T) {
	if testing.Short() {
		t.Skip("watches the file system")
	}

	// Given: indices initialized before the watcher was attached
	f := newFixture(t)
	f.write(t, "a.txt", "apple")
	m := f.watched(t)
	require.NoError(t, m.InitializeIndices(context.Background()))

	// When: the folder changes before Start
	f.write(t, "b.txt", "banana")
	require.NoError(t, os.Remove(filepath.Join(f.root, "a.txt")))
	require.NoError(t, m.Start(context.Background()))

	// Then: Start catches up without waiting for an event
	snap := m.Current()
	assert.Contains(t, snap.Docs, "b.txt")
	assert.NotContains(t, snap.Docs, "a.txt")
}

func TestReadersDuringWrites(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "apple")
	m := f.started(t)
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := m.Current()
				// Both halves of one snapshot always agree.
				assert.Equal(t, len(snap.Docs), snap.Lexical.DocCount())
				assert.Equal(t, len(snap.Docs), snap.Vectors.DocCount())
			}
		}()
	}

	for i := range 20 {
		f.write(t, "a.txt", "apple "+string(rune('a'+i)))
		_, err := m.Apply(ctx, "a.txt")
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestResolveKey(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, nil)
	root := m.Root()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative", path: "docs/a.md", want: "docs/a.md"},
		{name: "absolute", path: filepath.Join(root, "docs", "a.md"), want: "docs/a.md"},
		{name: "cleaned", path: "docs/../a.md", want: "a.md"},
		{name: "empty", path: " ", wantErr: true},
		{name: "root itself", path: root, wantErr: true},
		{name: "escape", path: "../outside.txt", wantErr: true},
		{name: "absolute outside", path: filepath.Join(filepath.Dir(root), "x.txt"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ResolveKey(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeInvalidPath, apperrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "apple banana")
	m := f.started(t)

	st := m.GetStatus()

	assert.True(t, st.Ready)
	assert.Equal(t, 1, st.Documents)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, 2, st.Terms)
	assert.Equal(t, uint64(1), st.SnapshotVersion)
	// Initialization persists the rebuilt snapshot.
	assert.Equal(t, uint64(1), st.PersistedSnapshot)
	assert.False(t, st.Dirty)
	assert.False(t, st.Degraded)
	assert.Equal(t, "exact", st.VectorBackend)
	assert.Equal(t, embed.StaticModelName, st.EmbeddingModel)
	assert.Equal(t, testDims, st.Dimensions)
	assert.Zero(t, st.PendingEvents)
}

func TestHNSWBackend_CompactsOrphans(t *testing.T) {
	// Given: the hnsw backend with a low compaction threshold
	f := newFixture(t)
	f.cfg.Vector.Backend = "hnsw"
	f.cfg.Vector.HNSW.CompactRatio = 0.1
	f.write(t, "a.txt", "apple")
	f.write(t, "b.txt", "banana")
	f.write(t, "c.txt", "cherry")
	m := f.started(t)
	require.NotNil(t, m.Current().Vectors.Graph())
	require.Equal(t, 3, m.Current().Vectors.Graph().Len())

	// When: one document changes, orphaning its old chunk
	f.write(t, "a.txt", "apricot")
	_, err := m.Apply(context.Background(), "a.txt")
	require.NoError(t, err)

	// Then: the graph was rebuilt without the orphan
	g := m.Current().Vectors.Graph()
	assert.Equal(t, 3, g.Len())
	assert.Zero(t, g.OrphanRatio())
}
