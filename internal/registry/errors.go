package registry

import "fmt"

// ResourceNotFoundError reports an id that is not in the catalogue.
type ResourceNotFoundError struct {
	ID string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("board not found: %s", e.ID)
}
