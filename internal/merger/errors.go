package merger

import "errors"

var (
	// ErrDuplicateStream is returned by Register when the id is already live.
	ErrDuplicateStream = errors.New("merger: stream already registered")

	// ErrUnknownStream is returned by Deregister for ids that are not live.
	ErrUnknownStream = errors.New("merger: stream not registered")

	// ErrTooManyStreams is returned by Register when the stream limit is reached.
	ErrTooManyStreams = errors.New("merger: stream limit reached")

	// ErrStreamClosed is returned by Producer.Push after the stream has been
	// deregistered.
	ErrStreamClosed = errors.New("merger: stream closed")
)
