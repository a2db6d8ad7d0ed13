package proxy

import "errors"

var (
	// ErrUpstreamUnreachable names a failed dial of the origin. The
	// CONNECT and plaintext handlers answer such a failure with a 504
	// directly and end the session without a retry; they do not return
	// this error.
	ErrUpstreamUnreachable = errors.New("proxy: upstream unreachable")

	// ErrSessionClosed names a session that has ended on EOF or an
	// unrecoverable parse error. A session's goroutines unwind through
	// the shared teardown that closes both connections, not through this
	// error, and it is never surfaced to a client.
	ErrSessionClosed = errors.New("proxy: session closed")

	// ErrPolicyDowngrade signals that the response task decided the
	// origin must be retried without the HTTPS upgrade (a 4xx/5xx,
	// excluding 503, on the first response seen for that origin). The
	// request task's loop is expected to stop instead of issuing further
	// requests on this connection.
	ErrPolicyDowngrade = errors.New("proxy: policy downgraded, redirect issued")
)
