package types

import "errors"

// Column-related errors
var (
	// ErrKindMismatch is returned when a value of one kind is applied to a
	// column of another kind
	ErrKindMismatch = errors.New("column kind mismatch")

	// ErrLengthMismatch is returned when columns of different lengths are
	// combined into one table
	ErrLengthMismatch = errors.New("column length mismatch")
)
