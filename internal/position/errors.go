package position

import "fmt"

// InvalidPositionError reports notation that does not describe a legal position.
type InvalidPositionError struct {
	Notation string
	Reason   string
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position %q: %s", e.Notation, e.Reason)
}
