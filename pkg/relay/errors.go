package relay

import "errors"

// Parser errors. Pre-declared sentinels rather than fmt.Errorf on the hot
// path, following the teacher's http11 convention.
var (
	// ErrMalformedLine indicates a request or status line could not be
	// split into its required fields.
	ErrMalformedLine = errors.New("relay: malformed request/status line")

	// ErrMalformedHeader indicates a header field line had no colon
	// separator.
	ErrMalformedHeader = errors.New("relay: malformed header field")

	// ErrInvalidContentLength indicates a Content-Length value was not a
	// valid non-negative decimal integer.
	ErrInvalidContentLength = errors.New("relay: invalid Content-Length")

	// ErrInvalidChunkSize indicates a chunk-size line was not valid hex.
	ErrInvalidChunkSize = errors.New("relay: invalid chunk size")
)
