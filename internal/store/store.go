// Package store persists rendered board images.
//
// A Store maps a board id and image format to a location, writes the bytes
// there and reads or removes them later. It never inspects content.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/boardwalk/internal/render"
)

// Store is the persistence contract used by the registry.
type Store interface {
	// Save writes img for id and returns the location it was written to.
	// Saving the same id and format twice overwrites.
	Save(ctx context.Context, img *render.RenderedImage, id string) (string, error)
	// Read returns the bytes at path, or a *ResourceMissingError when absent.
	Read(ctx context.Context, path string) ([]byte, error)
	// Delete removes path. A missing path is not an error.
	Delete(ctx context.Context, path string) error
}

// ResourceMissingError reports that a catalogued artifact is gone.
type ResourceMissingError struct {
	Path string
}

func (e *ResourceMissingError) Error() string {
	return fmt.Sprintf("resource file missing: %s", e.Path)
}

// StoreError wraps an I/O failure with the operation and location.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsMissing reports whether err is or wraps a *ResourceMissingError.
func IsMissing(err error) bool {
	var missing *ResourceMissingError
	return errors.As(err, &missing)
}

func fileName(img *render.RenderedImage, id string) (string, error) {
	if img == nil {
		return "", errors.New("no image")
	}
	if id == "" {
		return "", errors.New("empty id")
	}
	return id + img.Format.Extension(), nil
}
