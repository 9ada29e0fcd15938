package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrAbsolutePath     = errors.New("path must be relative to the project root")
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrInvalidLineRange = errors.New("invalid line range")
	ErrMissingChunkID   = errors.New("chunk ID is required")
	ErrMissingHash      = errors.New("content hash must be computed")
	ErrInvalidKind      = errors.New("invalid kind")
)
