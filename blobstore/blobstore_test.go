package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lifecycle exercises the Store contract shared by every backend.
func lifecycle(t *testing.T, bs Store) {
	t.Helper()
	ctx := context.Background()

	_, err := bs.Open(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	payload := "gps telemetry archive"
	require.NoError(t, bs.Put(ctx, "archives/2026/trip-42.snap", strings.NewReader(payload), int64(len(payload))))
	require.NoError(t, bs.Put(ctx, "archives/2026/trip-43.snap", strings.NewReader("other"), 5))
	require.NoError(t, bs.Put(ctx, "reports/august.json", strings.NewReader("{}"), 2))

	rc, err := bs.Open(ctx, "archives/2026/trip-42.snap")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, payload, string(data))

	names, err := bs.List(ctx, "archives/")
	require.NoError(t, err)
	assert.Equal(t, []string{"archives/2026/trip-42.snap", "archives/2026/trip-43.snap"}, names)

	all, err := bs.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Overwrite replaces the content.
	require.NoError(t, bs.Put(ctx, "reports/august.json", strings.NewReader(`{"v":2}`), 7))
	rc, err = bs.Open(ctx, "reports/august.json")
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, `{"v":2}`, string(data))

	require.NoError(t, bs.Delete(ctx, "archives/2026/trip-43.snap"))
	_, err = bs.Open(ctx, "archives/2026/trip-43.snap")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing blob is not an error.
	require.NoError(t, bs.Delete(ctx, "archives/2026/trip-43.snap"))
}

func TestLocalStoreLifecycle(t *testing.T) {
	lifecycle(t, NewLocalStore(t.TempDir()))
}

func TestMemoryStoreLifecycle(t *testing.T) {
	lifecycle(t, NewMemoryStore())
}

func TestLocalStoreListMissingRoot(t *testing.T) {
	bs := NewLocalStore(t.TempDir() + "/never-created")
	names, err := bs.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStoreListSkipsTempFiles(t *testing.T) {
	// A crashed Put leaves a ".blob-*" temp file behind; List must not
	// surface it as a blob.
	dir := t.TempDir()
	bs := NewLocalStore(dir)
	ctx := context.Background()

	require.NoError(t, bs.Put(ctx, "a.snap", strings.NewReader("x"), 1))

	leftover := filepath.Join(dir, ".blob-1234")
	require.NoError(t, os.WriteFile(leftover, []byte("partial"), 0o644))

	names, err := bs.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.snap"}, names)
}

func TestStoreRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, bs := range []Store{NewMemoryStore(), NewLocalStore(t.TempDir())} {
		assert.Error(t, bs.Put(ctx, "x", strings.NewReader("x"), 1))
		_, err := bs.Open(ctx, "x")
		assert.Error(t, err)
		assert.Error(t, bs.Delete(ctx, "x"))
		_, err = bs.List(ctx, "")
		assert.Error(t, err)
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	bs := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, bs.Put(ctx, "k", strings.NewReader("v1"), 2))
	rc, err := bs.Open(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()

	// A Put after Open must not leak into the already-open reader.
	require.NoError(t, bs.Put(ctx, "k", strings.NewReader("v2"), 2))

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	bs := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n byte) {
			defer wg.Done()
			name := "blob-" + string('a'+n)
			for j := 0; j < 50; j++ {
				_ = bs.Put(ctx, name, strings.NewReader("payload"), 7)
				if rc, err := bs.Open(ctx, name); err == nil {
					_, _ = io.ReadAll(rc)
					rc.Close()
				}
				_, _ = bs.List(ctx, "blob-")
			}
		}(byte(i))
	}
	wg.Wait()

	assert.Equal(t, 8, bs.Len())
}
