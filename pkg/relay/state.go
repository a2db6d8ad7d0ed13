package relay

// State is the per-direction HTTP message parser state described in
// spec.md §3. Content-Length sets BodyLength and Transfer-Encoding:
// chunked sets Chunked; neither clears the other, so both can be set on
// one message. When Chunked is set it governs the body framing and
// BodyLength is ignored, whichever header came first.
type State struct {
	HeadersComplete bool
	BodyLength      int64
	Chunked         bool

	// ChunkRemaining is nil when the parser is expecting the next
	// chunk-size line; otherwise it holds the size of the current chunk,
	// which TunnelChunk copies whole (the value is not decremented).
	ChunkRemaining *int64

	BodyComplete bool
}
