package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher runs w in the background and stops it when the test ends.
func startWatcher(t *testing.T, w Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		<-done
	})
	select {
	case <-w.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never became ready")
	}
}

// waitFor drains events until one matches path and op.
func waitFor(t *testing.T, w Watcher, path string, op Operation) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got, ok := <-w.Events():
			require.True(t, ok, "events channel closed")
			if got.Path == path && got.Operation == op {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s %s", op, path)
		}
	}
}

// assertNoEventFor fails when an event for path shows up within wait.
func assertNoEventFor(t *testing.T, w Watcher, path string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case got := <-w.Events():
			assert.NotEqual(t, path, got.Path, "unexpected event %s", got.Operation)
		case <-deadline:
			return
		}
	}
}

func newHybrid(t *testing.T, opts Options) *HybridWatcher {
	t.Helper()
	w, err := NewHybridWatcher(opts)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	return w
}

func TestHybridWatcher_DetectsCreateModifyDelete(t *testing.T) {
	// Given: a watcher over an empty root
	root := t.TempDir()
	w := newHybrid(t, Options{Root: root, Extensions: []string{".txt"}})
	startWatcher(t, w)

	// When/Then: a file is created, written and removed
	file := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))
	waitFor(t, w, "a.txt", OpCreate)

	require.NoError(t, os.WriteFile(file, []byte("hello again"), 0o644))
	waitFor(t, w, "a.txt", OpModify)

	require.NoError(t, os.Remove(file))
	waitFor(t, w, "a.txt", OpDelete)
}

func TestHybridWatcher_RenameReportsOldPathAndNewCreate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.md"), []byte("x"), 0o644))
	w := newHybrid(t, Options{Root: root})
	startWatcher(t, w)

	require.NoError(t, os.Rename(filepath.Join(root, "old.md"), filepath.Join(root, "new.md")))

	waitFor(t, w, "old.md", OpRename)
	waitFor(t, w, "new.md", OpCreate)
}

func TestHybridWatcher_NewDirectoryFilesAreAnnounced(t *testing.T) {
	// Given: a directory prepared outside the root
	root := t.TempDir()
	staging := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "batch", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "batch", "deep", "c.txt"), []byte("c"), 0o644))

	w := newHybrid(t, Options{Root: root})
	startWatcher(t, w)

	// When: it is moved into the root in one step
	require.NoError(t, os.Rename(filepath.Join(staging, "batch"), filepath.Join(root, "batch")))

	// Then: the nested file is reported as created
	waitFor(t, w, "batch/deep/c.txt", OpCreate)

	// And: later writes inside the new directory are seen too
	require.NoError(t, os.WriteFile(filepath.Join(root, "batch", "deep", "d.txt"), []byte("d"), 0o644))
	waitFor(t, w, "batch/deep/d.txt", OpCreate)
}

func TestHybridWatcher_IgnoresDataDirGlobsAndExtensions(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, ".lfsearch")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	w := newHybrid(t, Options{
		Root:       root,
		DataDir:    dataDir,
		Extensions: []string{".txt"},
		Ignore:     []string{"*.tmp.txt"},
	})
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "lexical.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "scratch.tmp.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("x"), 0o644))

	// keep.txt arrives; nothing else precedes it or follows it
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-w.Events():
			require.NotEqual(t, ".lfsearch/lexical.txt", got.Path)
			require.NotEqual(t, "scratch.tmp.txt", got.Path)
			require.NotEqual(t, "image.png", got.Path)
			if got.Path == "keep.txt" {
				assertNoEventFor(t, w, "image.png", 200*time.Millisecond)
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for keep.txt")
		}
	}
}

func TestHybridWatcher_GitignoreIsHonouredAndReloaded(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("secret.txt\n"), 0o644))
	w := newHybrid(t, Options{Root: root})
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0o644))
	assertNoEventFor(t, w, "secret.txt", 300*time.Millisecond)

	// When: the rule is dropped
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("\n"), 0o644))
	time.Sleep(150 * time.Millisecond)

	// Then: the file becomes visible
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("y"), 0o644))
	waitFor(t, w, "secret.txt", OpModify)
}

func TestHybridWatcher_StartOnMissingRootFails(t *testing.T) {
	w := newHybrid(t, Options{Root: filepath.Join(t.TempDir(), "missing")})

	err := w.Start(context.Background())
	require.Error(t, err)

	_, open := <-w.Events()
	assert.False(t, open)
}

func TestHybridWatcher_StopClosesChannelsAndIsIdempotent(t *testing.T) {
	w := newHybrid(t, Options{Root: t.TempDir()})

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, open := <-w.Events()
	assert.False(t, open)
	_, open = <-w.Errors()
	assert.False(t, open)
	assert.ErrorIs(t, w.Start(context.Background()), ErrStopped)
}

func TestHybridWatcher_ContextCancelStopsStart(t *testing.T) {
	w := newHybrid(t, Options{Root: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	<-w.Ready()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestHybridWatcher_ReportsWriteRightAfterReady(t *testing.T) {
	// Given: a started watcher over an existing subdirectory
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))
	w := newHybrid(t, Options{Root: root})
	startWatcher(t, w)

	// When: a file lands the moment Ready closes
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "n.md"), []byte("x"), 0o644))

	// Then: it is reported
	waitFor(t, w, "notes/n.md", OpCreate)
}
