package extraction

import (
	"errors"
	"fmt"
)

// ErrInvalidPattern is matched by every InvalidPatternError
var ErrInvalidPattern = errors.New("invalid pattern")

var errEmptyPattern = errors.New("pattern is required")

// InvalidPatternError reports a descriptor whose pattern cannot be compiled
type InvalidPatternError struct {
	Index   int
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("descriptor %d: invalid pattern %q: %v", e.Index, e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match against ErrInvalidPattern
func (e *InvalidPatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}
