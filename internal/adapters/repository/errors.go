package repository

import "errors"

// Sentinel kinds for store errors. Lookups of unknown records return
// pipeline.ErrJobNotFound or pipeline.ErrSessionNotFound.
var (
	ErrEmptyID      = errors.New("record id is empty")
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrClosed       = errors.New("store is closed")
)
