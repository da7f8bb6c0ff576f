package harbor_errors

import "errors"

// Common errors
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadyExists    = errors.New("already exists")
	ErrConflict         = errors.New("conflict")
	ErrTransport        = errors.New("transport failure")
	ErrTimeout          = errors.New("timed out")
	ErrRateLimited      = errors.New("rate limited")
)
