// Package storage owns the uploads directory: it allocates collision-avoiding
// names, streams uploads to disk and lists what is stored. The directory itself
// is the system of record; nothing is cached.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cppla/filedrop/models"
)

var (
	// ErrFileTooLarge is returned by Save when the source exceeds the limit.
	ErrFileTooLarge = errors.New("file exceeds size limit")
	// ErrNameExhausted means every candidate name was already taken.
	ErrNameExhausted = errors.New("could not allocate a unique filename")
)

const (
	maxNameAttempts = 5
	statWorkers     = 8
)

// SourceError wraps a failure reading the upload stream, as opposed to writing it.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string { return "read upload stream: " + e.Err.Error() }

func (e *SourceError) Unwrap() error { return e.Err }

// SavedFile describes a file written by Save.
type SavedFile struct {
	Name string
	Path string
	Size int64
}

// Store writes to and lists a single uploads directory.
type Store struct {
	dir string
}

// EnsureDir creates dir if needed and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve uploads dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	return abs, nil
}

// New prepares dir and returns a Store rooted at its absolute path.
func New(dir string) (*Store, error) {
	abs, err := EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute uploads directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save streams r into a new file named after original and the instant at.
// At most limit bytes are accepted; anything larger removes the partial file
// and returns ErrFileTooLarge.
func (s *Store) Save(original string, at time.Time, r io.Reader, limit int64) (SavedFile, error) {
	f, name, err := s.create(original, at)
	if err != nil {
		return SavedFile{}, err
	}
	path := f.Name()

	src := &trackingReader{r: io.LimitReader(r, limit+1)}
	n, err := io.Copy(f, src)
	if err == nil && n > limit {
		err = ErrFileTooLarge
	}
	if err == nil {
		err = f.Close()
	} else {
		_ = f.Close()
	}
	if err != nil {
		_ = os.Remove(path)
		switch {
		case errors.Is(err, ErrFileTooLarge):
			return SavedFile{}, err
		case src.err != nil:
			return SavedFile{}, &SourceError{Err: src.err}
		default:
			return SavedFile{}, fmt.Errorf("write %s: %w", name, err)
		}
	}

	return SavedFile{Name: name, Path: path, Size: n}, nil
}

// Remove deletes a previously saved file by name.
func (s *Store) Remove(name string) error {
	return os.Remove(filepath.Join(s.dir, filepath.Base(name)))
}

func (s *Store) create(original string, at time.Time) (*os.File, string, error) {
	name := AllocateName(original, at)
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		if attempt > 0 {
			name = disambiguatedName(original, at)
		}
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil, "", ErrNameExhausted
}

// List stats every directory entry and returns them in directory enumeration order.
// Entries that disappear between the read and the stat are skipped.
func (s *Store) List(ctx context.Context) ([]models.FileListingEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read uploads dir: %w", err)
	}

	results := make([]*models.FileListingEntry, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statWorkers)
	for i, e := range entries {
		i, name := i, e.Name()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(s.dir, name)
			info, err := os.Stat(path)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("stat %s: %w", name, err)
			}
			results[i] = &models.FileListingEntry{
				Name:     name,
				Size:     info.Size(),
				Modified: info.ModTime(),
				Path:     path,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make([]models.FileListingEntry, 0, len(results))
	for _, r := range results {
		if r != nil {
			files = append(files, *r)
		}
	}
	return files, nil
}

// trackingReader remembers the first non-EOF read error so Save can tell
// a broken upload stream apart from a disk failure.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}
