package store

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/render"
)

// FileStore keeps one file per board in a single directory.
type FileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore stores under dir on the OS filesystem.
func NewFileStore(dir string) *FileStore {
	return NewFileStoreFs(afero.NewOsFs(), dir)
}

// NewFileStoreFs stores under dir on fs.
func NewFileStoreFs(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir}
}

// Dir returns the directory boards are written to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Save(_ context.Context, img *render.RenderedImage, id string) (string, error) {
	name, err := fileName(img, id)
	if err != nil {
		return "", &StoreError{Op: "save", Path: s.dir, Err: err}
	}
	path := filepath.Join(s.dir, name)

	if err := s.fs.MkdirAll(s.dir, 0o750); err != nil {
		return "", &StoreError{Op: "save", Path: s.dir, Err: err}
	}
	if err := afero.WriteFile(s.fs, path, img.Data, 0o644); err != nil {
		return "", &StoreError{Op: "save", Path: path, Err: err}
	}

	log.Debug(log.CatStore, "saved board", "path", path, "bytes", len(img.Data))
	return path, nil
}

func (s *FileStore) Read(_ context.Context, path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ResourceMissingError{Path: path}
		}
		return nil, &StoreError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

func (s *FileStore) Delete(_ context.Context, path string) error {
	if err := s.fs.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug(log.CatStore, "board already gone", "path", path)
			return nil
		}
		return &StoreError{Op: "delete", Path: path, Err: err}
	}
	log.Debug(log.CatStore, "deleted board", "path", path)
	return nil
}
