package fetch

import "fmt"

// Error reports that the source document could not be retrieved. Fatal for
// the whole request: no pages can be produced without the source.
type Error struct {
	Source string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: upstream status %d", e.Source, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
