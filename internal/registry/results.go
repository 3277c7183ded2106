package registry

import (
	"errors"
	"fmt"

	"github.com/zjrosen/boardwalk/internal/position"
	"github.com/zjrosen/boardwalk/internal/render"
	"github.com/zjrosen/boardwalk/internal/store"
)

// CreateResult is the outcome of Registry.Create. Err is nil on success.
type CreateResult struct {
	Resource BoardResource
	FEN      string
	Size     int
	Message  string
	Err      error
}

// OK reports success.
func (r CreateResult) OK() bool { return r.Err == nil }

// Failure describes Err for a caller. It is empty on success.
func (r CreateResult) Failure() string {
	if r.Err == nil {
		return ""
	}
	var (
		invalid  *position.InvalidPositionError
		renderEr *render.RenderError
		storeErr *store.StoreError
	)
	switch {
	case errors.As(r.Err, &invalid):
		return fmt.Sprintf("Invalid position %q: %s", invalid.Notation, invalid.Reason)
	case errors.As(r.Err, &renderEr):
		return fmt.Sprintf("Error rendering board for %q at %dpx: %v", r.FEN, r.Size, renderEr.Err)
	case errors.As(r.Err, &storeErr):
		return fmt.Sprintf("Error saving board for %q: %v", r.FEN, storeErr.Err)
	default:
		return fmt.Sprintf("Error creating board for %q: %v", r.FEN, r.Err)
	}
}

// GetResult is the outcome of Registry.Get.
type GetResult struct {
	ID       string
	Resource BoardResource
	Data     []byte
	MimeType string
	Err      error
}

func (r GetResult) OK() bool { return r.Err == nil }

// NotFound reports whether the id was unknown.
func (r GetResult) NotFound() bool {
	var nf *ResourceNotFoundError
	return errors.As(r.Err, &nf)
}

func (r GetResult) Failure() string {
	if r.Err == nil {
		return ""
	}
	var missing *store.ResourceMissingError
	switch {
	case r.NotFound():
		return fmt.Sprintf("Board not found: %s", r.ID)
	case errors.As(r.Err, &missing):
		return fmt.Sprintf("Board %s is catalogued but its file is missing: %s", r.ID, missing.Path)
	default:
		return fmt.Sprintf("Error reading board %s: %v", r.ID, r.Err)
	}
}

// ListResult is the outcome of Registry.List. Listing cannot fail.
type ListResult struct {
	Boards []BoardResource
	Err    error
}

func (r ListResult) OK() bool { return r.Err == nil }

func (r ListResult) Failure() string {
	if r.Err == nil {
		return ""
	}
	return fmt.Sprintf("Error listing boards: %v", r.Err)
}

// ClearResult is the outcome of Registry.Clear. Cleared counts catalogue
// entries removed, including those whose file could not be deleted.
type ClearResult struct {
	Cleared int
	Err     error
}

func (r ClearResult) OK() bool { return r.Err == nil }

func (r ClearResult) Failure() string {
	if r.Err == nil {
		return ""
	}
	return fmt.Sprintf("Cleared %d boards with errors: %v", r.Cleared, r.Err)
}

// Message is the success text for a clear.
func (r ClearResult) Message() string {
	return fmt.Sprintf("Cleared %d board resources", r.Cleared)
}
