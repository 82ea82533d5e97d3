package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a requested release or file does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid or missing configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnauthorized indicates the catalog rejected our credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the remote side answered 429
	ErrRateLimited = errors.New("rate limited")

	// ErrCorrupt indicates a cache file could not be parsed
	ErrCorrupt = errors.New("corrupt cache file")

	// ErrBusy indicates a background job is already running
	ErrBusy = errors.New("busy")
)
