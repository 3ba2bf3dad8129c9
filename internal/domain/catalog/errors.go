package catalog

import "errors"

// Sentinel errors surfaced by the store. Callers branch with errors.Is;
// everything else wraps an internal cause.
var (
	ErrInvalidInput     = errors.New("catalog: invalid input")
	ErrNotFound         = errors.New("catalog: not found")
	ErrMergeConflict    = errors.New("catalog: product already merged")
	ErrDeadlineExceeded = errors.New("catalog: deadline exceeded")
	ErrParseFailure     = errors.New("catalog: unparseable source file")
)
