package envcipher

import (
	"errors"
	"fmt"
)

var (
	ErrNoKey         = errors.New("no encryption key available")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidSource = errors.New("invalid key source")
)

// SourceError reports a failure tied to a specific key source.
type SourceError struct {
	Source SourceType
	Err    error
}

func (e *SourceError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s (%s): %v", ErrInvalidSource, e.Source, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrInvalidSource, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func NewSourceError(source SourceType, err error) *SourceError {
	return &SourceError{
		Source: source,
		Err:    err,
	}
}
