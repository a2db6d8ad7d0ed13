package relay

import (
	"bytes"
	"io"
	"strconv"

	"github.com/watt-toolkit/nagato/pkg/framing"
)

// Parser incrementally parses one direction of an HTTP/1.1 message
// (request or response) as bytes arrive, optionally teeing every line it
// reads verbatim to a downstream writer so the message can be relayed
// byte-for-byte while being inspected. This mirrors
// original_source/nagato.py's HttpStream, restructured around
// pkg/framing's line reader and Go tagged-union return values instead of
// Python's tuple/bytes/None overload.
type Parser struct {
	r   *framing.Reader
	tee io.Writer

	state State
}

// New creates a Parser reading from r. If tee is non-nil, every line
// read by RequestLine, StatusLine, NextHeaderField and NextChunkMarker is
// also written to tee verbatim, preserving on-wire bytes and ordering.
func New(r *framing.Reader, tee io.Writer) *Parser {
	return &Parser{r: r, tee: tee}
}

// State returns the parser's current body-framing state.
func (p *Parser) State() State { return p.state }

// SetTee attaches a tee writer after construction, for callers that must
// decide whether (and where) to forward a message before any of it has
// been read — e.g. rewriting headers by hand and only then relaying the
// body's chunk framing verbatim.
func (p *Parser) SetTee(w io.Writer) { p.tee = w }

func (p *Parser) readLine() ([]byte, error) {
	line, err := p.r.ReadLine()
	if err != nil {
		return nil, err
	}
	if p.tee != nil {
		if _, err := p.tee.Write(line); err != nil {
			return nil, err
		}
	}
	return line, nil
}

// RequestLine reads "METHOD SP Request-URI SP HTTP-Version CRLF", split
// by single spaces into exactly three tokens.
func (p *Parser) RequestLine() (method, rawURL, version string, err error) {
	line, err := p.readLine()
	if err != nil {
		return "", "", "", err
	}
	trimmed := bytes.TrimRight(line, "\r\n")
	parts := bytes.SplitN(trimmed, []byte(" "), 3)
	if len(parts) != 3 {
		return "", "", "", ErrMalformedLine
	}
	return string(parts[0]), string(parts[1]), string(parts[2]), nil
}

// StatusLine reads "HTTP-Version SP Status-Code SP Reason-Phrase CRLF".
// The reason phrase may itself contain spaces, so the line is split into
// at most three parts.
func (p *Parser) StatusLine() (version string, status int, reason string, err error) {
	line, err := p.readLine()
	if err != nil {
		return "", 0, "", err
	}
	trimmed := bytes.TrimRight(line, "\r\n")
	parts := bytes.SplitN(trimmed, []byte(" "), 3)
	if len(parts) < 2 {
		return "", 0, "", ErrMalformedLine
	}
	code, convErr := strconv.Atoi(string(parts[1]))
	if convErr != nil {
		return "", 0, "", ErrMalformedLine
	}
	reasonPhrase := ""
	if len(parts) == 3 {
		reasonPhrase = string(parts[2])
	}
	return string(parts[0]), code, reasonPhrase, nil
}

// NextHeaderField reads the next header field line. Once the blank line
// terminating the header block has been seen, subsequent calls return
// FieldDone without reading anything further.
func (p *Parser) NextHeaderField() (HeaderField, error) {
	if p.state.HeadersComplete {
		return HeaderField{Kind: FieldDone}, nil
	}

	line, err := p.readLine()
	if err != nil {
		return HeaderField{}, err
	}

	if bytes.Equal(line, []byte("\r\n")) {
		p.state.HeadersComplete = true
		return HeaderField{Kind: FieldEnd}, nil
	}

	colon := bytes.IndexByte(line, ':')
	if colon == -1 {
		return HeaderField{}, ErrMalformedHeader
	}

	name := bytes.TrimSpace(line[:colon])
	value := bytes.TrimRight(trimLeadingSpace(line[colon+1:]), "\r\n")

	if equalFold(name, []byte("Content-Length")) {
		n, convErr := strconv.ParseInt(string(value), 10, 64)
		if convErr != nil || n < 0 {
			return HeaderField{}, ErrInvalidContentLength
		}
		p.state.BodyLength = n
	} else if equalFold(name, []byte("Transfer-Encoding")) {
		for _, coding := range bytes.Split(value, []byte(",")) {
			if equalFold(bytes.TrimSpace(coding), []byte("chunked")) {
				p.state.Chunked = true
			}
		}
	}

	return HeaderField{Kind: FieldValue, Name: name, Value: value}, nil
}

// NextChunkMarker advances the body/chunk framing state machine by one
// step without consuming any payload bytes — the caller uses TunnelChunk
// to copy a payload once a ChunkLength marker is returned.
func (p *Parser) NextChunkMarker() (ChunkMarker, error) {
	if p.state.BodyComplete {
		return ChunkMarker{Kind: ChunkDone}, nil
	}

	if !p.state.Chunked {
		p.state.BodyComplete = true
		if p.state.BodyLength > 0 {
			return ChunkMarker{Kind: ChunkLength, Length: p.state.BodyLength}, nil
		}
		return ChunkMarker{Kind: ChunkDone}, nil
	}

	line, err := p.readLine()
	if err != nil {
		return ChunkMarker{}, err
	}

	if p.state.ChunkRemaining == nil {
		size, convErr := parseHexChunkSize(line)
		if convErr != nil {
			return ChunkMarker{}, convErr
		}
		p.state.ChunkRemaining = &size
		return ChunkMarker{Kind: ChunkLength, Length: size}, nil
	}

	if *p.state.ChunkRemaining == 0 {
		p.state.BodyComplete = true
	}
	p.state.ChunkRemaining = nil
	return ChunkMarker{Kind: ChunkTrailer, Line: line}, nil
}

// TunnelChunk copies the payload for the chunk/body length most recently
// returned by NextChunkMarker to w, in 64KiB slices.
func (p *Parser) TunnelChunk(w io.Writer) error {
	var n int64
	if p.state.Chunked {
		if p.state.ChunkRemaining != nil {
			n = *p.state.ChunkRemaining
		}
	} else {
		n = p.state.BodyLength
	}
	return p.r.CopyN(w, n)
}

func parseHexChunkSize(line []byte) (int64, error) {
	trimmed := bytes.TrimRight(line, "\r\n")
	if idx := bytes.IndexByte(trimmed, ';'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	trimmed = bytes.TrimSpace(trimmed)
	if len(trimmed) == 0 {
		return 0, ErrInvalidChunkSize
	}
	n, err := strconv.ParseInt(string(trimmed), 16, 64)
	if err != nil || n < 0 {
		return 0, ErrInvalidChunkSize
	}
	return n, nil
}

func trimLeadingSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	return b
}

// equalFold compares two byte slices case-insensitively, per RFC 7230
// header-name comparison rules. Adapted from shockwave/http11/header.go's
// bytesEqualCaseInsensitive/toLower.
func equalFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if toLower(a[i]) != toLower(b[i]) {
			return false
		}
	}
	return true
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}
