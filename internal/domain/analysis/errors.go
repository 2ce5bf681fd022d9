package analysis

import "errors"

// Sentinel errors for analysis output handling.
var (
	ErrNoJSON         = errors.New("no JSON object found in output")
	ErrSchemaMismatch = errors.New("output does not match the analysis result schema")
	ErrInvariant      = errors.New("analysis result violates invariants")
	ErrTemplate       = errors.New("prompt template error")
	ErrNilCompleter   = errors.New("completer is nil")
)
