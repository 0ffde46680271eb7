package types

import "errors"

// Domain errors for type validation
var (
	ErrMissingPath     = errors.New("path is required")
	ErrInvalidPath     = errors.New("path must not contain '..'")
	ErrInvalidNoteType = errors.New("invalid note type")
	ErrEmptyContent    = errors.New("content cannot be empty")
	ErrInvalidOrdinal  = errors.New("ordinal must be >= 0")
	ErrInvalidRank     = errors.New("rank must be >= 1")
	ErrInvalidScore    = errors.New("score must be between 0 and 1")
)
