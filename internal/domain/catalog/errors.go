package catalog

import "errors"

// Sentinel errors for engine registration.
var (
	ErrInvalidDescriptor = errors.New("invalid engine descriptor")
	ErrInvalidVersion    = errors.New("invalid engine version")
	ErrStaleVersion      = errors.New("engine version older than registered")
	ErrNilExecutor       = errors.New("engine executor is nil")
	ErrInvalidFile       = errors.New("invalid engines file")
)

// ErrPermanent marks an Analyze error that repeating the call cannot fix.
var ErrPermanent = errors.New("permanent executor failure")
