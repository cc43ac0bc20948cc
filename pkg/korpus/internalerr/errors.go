package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTokenize         = errors.New("tokenization failed")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrWriteFailed      = errors.New("write failed")
)
