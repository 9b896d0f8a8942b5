package source

import "errors"

// Sentinel errors for source operations.
var (
	// ErrNotStarted is returned when fetching before Start has subscribed
	// to the response topic.
	ErrNotStarted = errors.New("source: not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("source: already started")
)
