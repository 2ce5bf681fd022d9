package aiclient

import "errors"

var (
	// ErrNoEndpoint is returned when the client has no URL configured.
	ErrNoEndpoint = errors.New("ai endpoint url is empty")
	// ErrTransport wraps non-2xx responses and network failures.
	ErrTransport = errors.New("ai transport error")
	// ErrEmptyCompletion is returned when the response carries no text.
	ErrEmptyCompletion = errors.New("ai response carried no text")
)
