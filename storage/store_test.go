package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return s
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	s, err := New(dir)
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(s.Dir()))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	// Idempotent on an existing directory.
	_, err = New(dir)
	require.NoError(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2024, 5, 1, 10, 20, 30, 123_000_000, time.UTC)

	saved, err := s.Save("report.json", at, strings.NewReader(`{"a":1}`), 1<<20)
	require.NoError(t, err)
	require.Equal(t, "report_2024-05-01T10-20-30-123Z.json", saved.Name)
	require.Equal(t, filepath.Join(s.Dir(), saved.Name), saved.Path)
	require.Equal(t, int64(7), saved.Size)

	got, err := os.ReadFile(saved.Path)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(got))
}

func TestSave_RandomBytes(t *testing.T) {
	s := newTestStore(t)

	buff := make([]byte, 64*1024)
	_, err := rand.Read(buff)
	require.NoError(t, err)

	saved, err := s.Save("blob.bin", time.Now(), bytes.NewReader(buff), int64(len(buff)))
	require.NoError(t, err, "exactly at the limit is accepted")
	require.Equal(t, int64(len(buff)), saved.Size)

	got, err := os.ReadFile(saved.Path)
	require.NoError(t, err)
	require.Equal(t, buff, got)
}

func TestSave_TooLargeRemovesPartialFile(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Save("big.txt", time.Now(), strings.NewReader(strings.Repeat("x", 11)), 10)
	require.ErrorIs(t, err, ErrFileTooLarge)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSave_SameInstantDoesNotOverwrite(t *testing.T) {
	s := newTestStore(t)
	at := time.Now()

	first, err := s.Save("dup.txt", at, strings.NewReader("first"), 100)
	require.NoError(t, err)
	second, err := s.Save("dup.txt", at, strings.NewReader("second"), 100)
	require.NoError(t, err)

	require.NotEqual(t, first.Name, second.Name)

	got, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	require.Equal(t, "first", string(got))
	got, err = os.ReadFile(second.Path)
	require.NoError(t, err)
	require.Equal(t, "second", string(got))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSave_SourceError(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Save("x.txt", time.Now(), io.MultiReader(strings.NewReader("abc"), failingReader{}), 100)
	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestList(t *testing.T) {
	s := newTestStore(t)

	files, err := s.List(context.Background())
	require.NoError(t, err)
	require.NotNil(t, files)
	require.Empty(t, files)

	sizes := map[string]int{"c.txt": 3, "a.txt": 1, "b.txt": 20}
	for name, n := range sizes {
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), name), bytes.Repeat([]byte("z"), n), 0o644))
	}

	files, err = s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 3)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
		require.Equal(t, int64(sizes[f.Name]), f.Size)
		require.Equal(t, filepath.Join(s.Dir(), f.Name), f.Path)
		require.False(t, f.Modified.IsZero())
	}
	require.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names, "directory enumeration order")
}

func TestList_MissingDirectory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.RemoveAll(s.Dir()))

	_, err := s.List(context.Background())
	require.Error(t, err)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	saved, err := s.Save("gone.txt", time.Now(), strings.NewReader("x"), 10)
	require.NoError(t, err)

	require.NoError(t, s.Remove(saved.Name))
	_, err = os.Stat(saved.Path)
	require.True(t, os.IsNotExist(err))
}
