// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharemac.
//
// go-sharemac is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	fs, err := New(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestNew(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	root := filepath.Join(t.TempDir(), "nested", "root")
	fs, err := New(root)
	require.NoError(t, err)
	assert.DirExists(t, root)
	assert.True(t, filepath.IsAbs(fs.Root()))
}

func TestPutGet(t *testing.T) {
	fs := newTestStorage(t)

	require.NoError(t, fs.Put("datasets/a/shares", []byte{1, 2, 3}, nil))
	got, err := fs.Get("datasets/a/shares")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, fs.Put("datasets/a/shares", []byte{4}, nil))
	got, err = fs.Get("datasets/a/shares")
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, got, "overwrite replaces the record")

	_, err = fs.Get("datasets/a/missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPermissions(t *testing.T) {
	fs := newTestStorage(t)

	tests := []struct {
		key  string
		opts *storage.Options
		want os.FileMode
	}{
		{key: "seeds/key_DS.txt", want: 0600},
		{key: "he/secret.key", want: 0600},
		{key: "he/public.key", want: 0640},
		{key: "datasets/a/shares", want: 0640},
		{key: "datasets/a/manifest", opts: &storage.Options{Permissions: 0644}, want: 0644},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, fs.Put(tt.key, []byte("x"), tt.opts))
			info, err := os.Stat(filepath.Join(fs.Root(), filepath.FromSlash(tt.key)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Mode().Perm())
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	fs := newTestStorage(t)
	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../b", "nul\x00byte"} {
		t.Run(fmt.Sprintf("%q", key), func(t *testing.T) {
			assert.ErrorIs(t, fs.Put(key, []byte("x"), nil), storage.ErrInvalidID)
			_, err := fs.Get(key)
			assert.ErrorIs(t, err, storage.ErrInvalidID)
			_, err = fs.Exists(key)
			assert.ErrorIs(t, err, storage.ErrInvalidID)
			assert.ErrorIs(t, fs.Delete(key), storage.ErrInvalidID)
		})
	}

	// dots inside a segment are fine
	require.NoError(t, fs.Put("a/b..c", []byte("x"), nil))
}

func TestDeleteExists(t *testing.T) {
	fs := newTestStorage(t)
	require.NoError(t, fs.Put("k", []byte("v"), nil))

	ok, err := fs.Exists("k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fs.Delete("k"))
	assert.ErrorIs(t, fs.Delete("k"), storage.ErrNotFound)

	ok, err = fs.Exists("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	fs := newTestStorage(t)
	for _, k := range []string{"datasets/b/shares", "datasets/a/tag_sq", "datasets/a/shares", "he/public.key"} {
		require.NoError(t, fs.Put(k, []byte("x"), nil))
	}
	// leftovers of an interrupted write are not objects
	require.NoError(t, os.WriteFile(filepath.Join(fs.Root(), "datasets", "a", ".tmp-123"), nil, 0600))

	all, err := fs.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"datasets/a/shares", "datasets/a/tag_sq", "datasets/b/shares", "he/public.key"}, all)

	a, err := fs.List("datasets/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"datasets/a/shares", "datasets/a/tag_sq"}, a)

	none, err := fs.List("zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClose(t *testing.T) {
	fs := newTestStorage(t)
	require.NoError(t, fs.Put("k", []byte("v"), nil))
	require.NoError(t, fs.Close())

	_, err := fs.Get("k")
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = fs.List("")
	assert.ErrorIs(t, err, storage.ErrClosed)

	reopened, err := New(fs.Root())
	require.NoError(t, err)
	got, err := reopened.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestConcurrentAccess(t *testing.T) {
	fs := newTestStorage(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("datasets/d%d/shares", i)
			assert.NoError(t, fs.Put(key, []byte{byte(i)}, nil))
			got, err := fs.Get(key)
			assert.NoError(t, err)
			assert.Equal(t, []byte{byte(i)}, got)
		}(i)
	}
	wg.Wait()

	keys, err := fs.List("datasets/")
	require.NoError(t, err)
	assert.Len(t, keys, 8)
}

func TestImplementsBackend(t *testing.T) {
	var _ storage.Backend = newTestStorage(t)
}
