package patterns

import (
	"errors"
	"fmt"
)

// Built-in pattern type names
const (
	TypeURL   = "url"
	TypePhone = "phone"
	TypeEmail = "email"
)

// ErrUnsupportedPatternType is matched by every UnsupportedPatternTypeError
var ErrUnsupportedPatternType = errors.New("unsupported pattern type")

// UnsupportedPatternTypeError reports a type name missing from the registry
type UnsupportedPatternTypeError struct {
	Name string
}

func (e *UnsupportedPatternTypeError) Error() string {
	return fmt.Sprintf("%s is not a supported type", e.Name)
}

// Is lets errors.Is match against ErrUnsupportedPatternType
func (e *UnsupportedPatternTypeError) Is(target error) bool {
	return target == ErrUnsupportedPatternType
}

// Pattern represents a single built-in pattern definition
type Pattern struct {
	Name        string `json:"name"`
	Expression  string `json:"expression"`
	Description string `json:"description"`
}
