package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mbs4/mbs4/pkg/storepath"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	return store
}

func mustPath(t *testing.T, s string) storepath.Path {
	t.Helper()
	p, err := storepath.New(s)
	require.NoError(t, err)
	return p
}

func sha256Hex(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

func TestStoreDataCollisionSuffix(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	path := mustPath(t, "usarna/kulisatna.txt")
	content := []byte("neco tady je")

	first, err := store.StoreData(ctx, path, content)
	require.NoError(t, err)
	assert.Equal(t, "usarna/kulisatna.txt", first.FinalPath.String())
	assert.Equal(t, int64(len(content)), first.Size)
	assert.Equal(t, sha256Hex(content), first.Hash)

	second, err := store.StoreData(ctx, path, content)
	require.NoError(t, err)
	assert.Equal(t, "usarna/kulisatna(1).txt", second.FinalPath.String())

	for _, info := range []Info{first, second} {
		data, err := os.ReadFile(store.LocalPath(info.FinalPath))
		require.NoError(t, err)
		assert.Equal(t, content, data)
	}
}

func TestStoreDataConflictExhausted(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	path := mustPath(t, "dir/file.txt")

	// Occupy the plain name and all ten suffixed candidates.
	for i := 0; i < 11; i++ {
		_, err := store.StoreData(ctx, path, []byte("x"))
		require.NoError(t, err)
	}

	_, err := store.StoreData(ctx, path, []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathConflict)

	// The failed write left no temp file behind.
	entries, err := os.ReadDir(filepath.Join(store.Root(), "dir"))
	require.NoError(t, err)
	assert.Len(t, entries, 11)
}

func TestStoreStreamHashMatchesStoreData(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	content := []byte("chunked stream content for hashing, long enough to split")

	whole, err := store.StoreData(ctx, mustPath(t, "whole.bin"), content)
	require.NoError(t, err)

	// Deliver the same bytes one byte at a time.
	streamed, err := store.StoreStream(ctx, mustPath(t, "streamed.bin"), &oneByteReader{data: content})
	require.NoError(t, err)

	assert.Equal(t, whole.Hash, streamed.Hash)
	assert.Equal(t, whole.Size, streamed.Size)
}

// oneByteReader yields one byte per Read call.
type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

type failingReader struct {
	remaining int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, errors.New("simulated read failure")
	}
	n := len(p)
	if n > r.remaining {
		n = r.remaining
	}
	for i := 0; i < n; i++ {
		p[i] = 'a'
	}
	r.remaining -= n
	return n, nil
}

func TestStoreStreamFailureLeavesNothing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	path := mustPath(t, "dir/failed.bin")

	_, err := store.StoreStream(ctx, path, &failingReader{remaining: 100})
	require.Error(t, err)

	_, statErr := os.Stat(store.LocalPath(path))
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(filepath.Join(store.Root(), "dir"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreStreamCancelledContext(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.StoreStream(ctx, mustPath(t, "cancelled.bin"), &oneByteReader{data: []byte("abc")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreDataOverwrite(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	path := mustPath(t, "icons/42.png")

	_, err := store.StoreData(ctx, path, []byte("old"))
	require.NoError(t, err)

	info, err := store.StoreDataOverwrite(ctx, path, []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, path, info.FinalPath)
	assert.Equal(t, sha256Hex([]byte("new")), info.Hash)

	data, err := os.ReadFile(store.LocalPath(path))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestLoadDataAndSize(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	path := mustPath(t, "books/a/b.epub")
	content := []byte("epub bytes")

	_, err := store.StoreData(ctx, path, content)
	require.NoError(t, err)

	rc, err := store.LoadData(ctx, path)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	size, err := store.Size(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	_, err = store.LoadData(ctx, mustPath(t, "books/missing.epub"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Size(ctx, mustPath(t, "books/missing.epub"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRename(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	from := mustPath(t, "upload/abc.epub")
	to := mustPath(t, "books/Doyle Arthur Conan/The Adventures(en)/Doyle Arthur Conan - The Adventures.epub")

	_, err := store.StoreData(ctx, from, []byte("book"))
	require.NoError(t, err)

	final, err := store.Rename(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, to, final)
	assert.False(t, store.Exists(ctx, from))
	assert.True(t, store.Exists(ctx, to))

	// Renaming onto an occupied destination picks a suffixed name.
	_, err = store.StoreData(ctx, from, []byte("book2"))
	require.NoError(t, err)
	final2, err := store.Rename(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t,
		"books/Doyle Arthur Conan/The Adventures(en)/Doyle Arthur Conan - The Adventures(1).epub",
		final2.String())

	_, err = store.Rename(ctx, mustPath(t, "upload/missing.epub"), to)
	assert.ErrorIs(t, err, ErrNotFound)

	// A directory is not a movable file.
	_, err = store.Rename(ctx, mustPath(t, "books/Doyle Arthur Conan"), to)
	assert.ErrorIs(t, err, ErrNotAFile)
}

func TestImportFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	content := []byte("external cover bytes")

	external := filepath.Join(t.TempDir(), "cover.jpg")
	require.NoError(t, os.WriteFile(external, content, 0o644))

	// Copy import keeps the source.
	info, err := store.ImportFile(ctx, external, mustPath(t, "upload/cover.jpg"), false)
	require.NoError(t, err)
	assert.Equal(t, "upload/cover.jpg", info.FinalPath.String())
	assert.Equal(t, sha256Hex(content), info.Hash)
	_, err = os.Stat(external)
	assert.NoError(t, err)

	// Move import removes the source.
	info, err = store.ImportFile(ctx, external, mustPath(t, "upload/cover.jpg"), true)
	require.NoError(t, err)
	assert.Equal(t, "upload/cover(1).jpg", info.FinalPath.String())
	_, err = os.Stat(external)
	assert.True(t, os.IsNotExist(err))

	_, err = store.ImportFile(ctx, filepath.Join(t.TempDir(), "gone.jpg"), mustPath(t, "upload/x.jpg"), false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	old := mustPath(t, "upload/old.epub")
	fresh := mustPath(t, "upload/fresh.epub")
	_, err := store.StoreData(ctx, old, []byte("old"))
	require.NoError(t, err)
	_, err = store.StoreData(ctx, fresh, []byte("fresh"))
	require.NoError(t, err)

	stale := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(store.LocalPath(old), stale, stale))

	removed, err := store.Cleanup(ctx, storepath.PrefixUpload, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, store.Exists(ctx, old))
	assert.True(t, store.Exists(ctx, fresh))
}

func TestDelete(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	path := mustPath(t, "upload/x.epub")

	_, err := store.StoreData(ctx, path, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, path))
	assert.ErrorIs(t, store.Delete(ctx, path), ErrNotFound)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	path := mustPath(t, "upload/d.epub")
	content := []byte("describe me")

	_, err := store.StoreData(ctx, path, content)
	require.NoError(t, err)

	info, err := store.Describe(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, path, info.FinalPath)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, sha256Hex(content), info.Hash)

	_, err = store.Describe(ctx, mustPath(t, "upload/missing.epub"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManyDistinctWrites(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	path := mustPath(t, "multi/data.txt")

	seen := map[string]string{}
	for i := 0; i < 8; i++ {
		content := []byte(fmt.Sprintf("content %d", i))
		info, err := store.StoreData(ctx, path, content)
		require.NoError(t, err)
		_, dup := seen[info.FinalPath.String()]
		require.False(t, dup, "duplicate final path %s", info.FinalPath)
		seen[info.FinalPath.String()] = info.Hash
		assert.Equal(t, sha256Hex(content), info.Hash)
	}
}
