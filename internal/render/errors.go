package render

import "fmt"

// RenderError reports a failure to produce an image in the given format.
type RenderError struct {
	Format Format
	Size   int
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s board at %dpx: %v", e.Format, e.Size, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
