package quality

import "errors"

// Sentinel errors for gate construction.
var (
	ErrUnknownProfile      = errors.New("unknown quality profile")
	ErrInvalidExpression   = errors.New("invalid quality expression")
	ErrNonBooleanPredicate = errors.New("quality expression must evaluate to a boolean")
)
