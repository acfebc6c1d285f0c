// Package apperr defines sentinel errors shared across the engine.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAliasLoop      = errors.New("alias chain too long")
	ErrInvalidPattern = errors.New("invalid route pattern")
	ErrMissingRoot    = errors.New("content root missing")
)
