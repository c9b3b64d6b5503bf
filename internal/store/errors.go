package store

import "errors"

var (
	// ErrConflict reports a lost compare-and-set or a violated uniqueness rule.
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
)
