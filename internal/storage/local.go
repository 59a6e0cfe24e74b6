package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
)

// LocalStorage implements ObjectStorage over an fs.FS: a directory on disk
// or a filesystem embedded in the binary.
type LocalStorage struct {
	fsys fs.FS
	name string
}

// NewLocalStorage opens the directory at basePath. The directory must
// exist.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", basePath)
	}
	return &LocalStorage{fsys: os.DirFS(basePath), name: basePath}, nil
}

// NewFSStorage wraps an existing filesystem, such as an embed.FS.
func NewFSStorage(fsys fs.FS, name string) *LocalStorage {
	return &LocalStorage{fsys: fsys, name: name}
}

// String names the storage for logs.
func (l *LocalStorage) String() string {
	return l.name
}

// ListObjects returns the regular files at the root, sorted by name.
func (l *LocalStorage) ListObjects(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}

	objects := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			objects = append(objects, entry.Name())
		}
	}
	sort.Strings(objects)
	return objects, nil
}

// Open opens the named file.
func (l *LocalStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := l.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return f, nil
}
