package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextBatch(t *testing.T, ch <-chan Batch) Batch {
	t.Helper()
	select {
	case b, ok := <-ch:
		require.True(t, ok, "watcher closed")
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch")
		return Batch{}
	}
}

func TestWatcher_Batches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "lib.rs"), []byte("mod a;"), 0o644))

	l, err := NewLoader(dir)
	require.NoError(t, err)
	w, err := NewWatcher(l, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := w.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.rs"), []byte("pub fn f() {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	b := nextBatch(t, ch)
	assert.Equal(t, uint64(1), b.Version)
	assert.Equal(t, []Change{{Path: "src/a.rs"}}, b.Changes)

	require.NoError(t, os.Remove(filepath.Join(dir, "src", "a.rs")))
	b = nextBatch(t, ch)
	assert.Equal(t, uint64(2), b.Version)
	assert.Equal(t, []Change{{Path: "src/a.rs", Removed: true}}, b.Changes)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not close")
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))

	l, err := NewLoader(dir)
	require.NoError(t, err)
	w, err := NewWatcher(l, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := w.Start(ctx)
	require.NoError(t, err)

	sub := filepath.Join(dir, "src", "net")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "mod.rs"), []byte(""), 0o644))

	b := nextBatch(t, ch)
	assert.Contains(t, b.Changes, Change{Path: "src/net/mod.rs"})
}

func TestWatcher_NewDirectoryWithFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))

	l, err := NewLoader(dir)
	require.NoError(t, err)
	w, err := NewWatcher(l, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := w.Start(ctx)
	require.NoError(t, err)

	// Build the tree outside the root and move it in whole, so its files
	// exist before any watch on them can be registered.
	staging := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "net", "tcp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "net", "mod.rs"), []byte("mod tcp;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "net", "tcp", "mod.rs"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "net", "README.md"), []byte(""), 0o644))
	require.NoError(t, os.Rename(filepath.Join(staging, "net"), filepath.Join(dir, "src", "net")))

	b := nextBatch(t, ch)
	assert.Equal(t, []Change{{Path: "src/net/mod.rs"}, {Path: "src/net/tcp/mod.rs"}}, b.Changes)
}
