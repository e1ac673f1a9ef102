package codec

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCharacter = errors.New("invalid character")
	ErrInvalidLength    = errors.New("impossible encoded length")
	ErrTrailingBits     = errors.New("non-zero trailing bits")
)

// FormatError reports malformed encoded text.
type FormatError struct {
	Offset int
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("codec: %v at offset %d", e.Err, e.Offset)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
