package storage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()}, logger)
	require.NoError(t, err)
	return s
}

func TestLocalStoragePutGet(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	body := "the quick brown fox jumps over the lazy dog"

	err := s.Put(ctx, "content/a/book.pdf", strings.NewReader(body), PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)

	rc, info, err := s.Get(ctx, "content/a/book.pdf")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
	assert.Equal(t, int64(len(body)), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)
}

func TestLocalStoragePutOverwrite(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", strings.NewReader("v1"), PutOptions{}))

	err := s.Put(ctx, "k", strings.NewReader("v2"), PutOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyExists)

	require.NoError(t, s.Put(ctx, "k", strings.NewReader("v2"), PutOptions{Overwrite: true}))
	rc, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "v2", string(got))
}

func TestLocalStoragePutMaxSize(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()

	err := s.Put(ctx, "big", strings.NewReader("0123456789"), PutOptions{MaxSize: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)

	// The partial write must not be left behind.
	exists, err := s.Exists(ctx, "big")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageGetRange(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	body := "0123456789"
	require.NoError(t, s.Put(ctx, "r", strings.NewReader(body), PutOptions{}))

	tests := []struct {
		name           string
		offset, length int64
		want           string
	}{
		{"middle slice", 2, 3, "234"},
		{"from offset to end", 5, -1, "56789"},
		{"single byte", 9, 1, "9"},
		{"length past end is truncated", 8, 100, "89"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, info, err := s.GetRange(ctx, "r", tt.offset, tt.length)
			require.NoError(t, err)
			defer rc.Close()

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, int64(len(body)), info.Size)
		})
	}
}

func TestLocalStorageGetRangeInvalid(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "r", strings.NewReader("0123456789"), PutOptions{}))

	_, _, err := s.GetRange(ctx, "r", 10, 1)
	require.Error(t, err)
	assert.True(t, IsInvalidRange(err))

	_, _, err = s.GetRange(ctx, "r", -1, 1)
	require.Error(t, err)
	assert.True(t, IsInvalidRange(err))
}

func TestLocalStorageGetMissing(t *testing.T) {
	s := newTestLocalStorage(t)
	_, _, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestLocalStorageDeleteIdempotent(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "d", strings.NewReader("x"), PutOptions{}))

	require.NoError(t, s.Delete(ctx, "d"))
	require.NoError(t, s.Delete(ctx, "d"))

	exists, err := s.Exists(ctx, "d")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "a/../../escape"} {
		err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{})
		assert.Error(t, err, "key %q must be rejected", key)
	}
}
