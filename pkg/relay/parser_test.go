package relay

import (
	"bytes"
	"strings"
	"testing"

	"github.com/watt-toolkit/nagato/pkg/framing"
)

func newParser(s string) (*Parser, *bytes.Buffer) {
	var tee bytes.Buffer
	return New(framing.New(strings.NewReader(s)), &tee), &tee
}

func TestRequestLine(t *testing.T) {
	p, tee := newParser("GET http://example.com/ HTTP/1.1\r\n")
	method, url, version, err := p.RequestLine()
	if err != nil {
		t.Fatalf("RequestLine: %v", err)
	}
	if method != "GET" || url != "http://example.com/" || version != "HTTP/1.1" {
		t.Fatalf("unexpected parts: %q %q %q", method, url, version)
	}
	if tee.String() != "GET http://example.com/ HTTP/1.1\r\n" {
		t.Fatalf("tee mismatch: %q", tee.String())
	}
}

func TestStatusLineWithSpacesInReason(t *testing.T) {
	p, _ := newParser("HTTP/1.1 404 Not Found Here\r\n")
	version, status, reason, err := p.StatusLine()
	if err != nil {
		t.Fatalf("StatusLine: %v", err)
	}
	if version != "HTTP/1.1" || status != 404 || reason != "Not Found Here" {
		t.Fatalf("unexpected parts: %q %d %q", version, status, reason)
	}
}

func TestNextHeaderFieldContentLength(t *testing.T) {
	p, _ := newParser("Content-Length: 2\r\n\r\n")

	field, err := p.NextHeaderField()
	if err != nil {
		t.Fatalf("NextHeaderField: %v", err)
	}
	if field.Kind != FieldValue || string(field.Name) != "Content-Length" || string(field.Value) != "2" {
		t.Fatalf("unexpected field: %+v", field)
	}
	if p.State().BodyLength != 2 {
		t.Fatalf("expected BodyLength 2, got %d", p.State().BodyLength)
	}

	field, err = p.NextHeaderField()
	if err != nil {
		t.Fatalf("NextHeaderField: %v", err)
	}
	if field.Kind != FieldEnd {
		t.Fatalf("expected FieldEnd, got %+v", field)
	}

	field, err = p.NextHeaderField()
	if err != nil {
		t.Fatalf("NextHeaderField: %v", err)
	}
	if field.Kind != FieldDone {
		t.Fatalf("expected FieldDone, got %+v", field)
	}
}

func TestChunkedTakesPrecedenceOverContentLength(t *testing.T) {
	p, _ := newParser("Content-Length: 100\r\nTransfer-Encoding: chunked\r\n\r\n")
	for i := 0; i < 2; i++ {
		if _, err := p.NextHeaderField(); err != nil {
			t.Fatalf("NextHeaderField: %v", err)
		}
	}
	if _, err := p.NextHeaderField(); err != nil {
		t.Fatalf("NextHeaderField (end): %v", err)
	}
	if !p.State().Chunked {
		t.Fatalf("expected Chunked true")
	}
}

func TestNonChunkedBodyMarker(t *testing.T) {
	p, _ := newParser("")
	p.state.BodyLength = 5

	marker, err := p.NextChunkMarker()
	if err != nil {
		t.Fatalf("NextChunkMarker: %v", err)
	}
	if marker.Kind != ChunkLength || marker.Length != 5 {
		t.Fatalf("unexpected marker: %+v", marker)
	}

	marker, err = p.NextChunkMarker()
	if err != nil {
		t.Fatalf("NextChunkMarker: %v", err)
	}
	if marker.Kind != ChunkDone {
		t.Fatalf("expected ChunkDone, got %+v", marker)
	}
}

func TestZeroLengthBodyIsImmediatelyDone(t *testing.T) {
	p, _ := newParser("")
	marker, err := p.NextChunkMarker()
	if err != nil {
		t.Fatalf("NextChunkMarker: %v", err)
	}
	if marker.Kind != ChunkDone {
		t.Fatalf("expected ChunkDone, got %+v", marker)
	}
}

func TestChunkedBodyRoundTrip(t *testing.T) {
	// "Hello" then " World" then terminator, per spec.md S6.
	p, _ := newParser("5\r\nHello\r\n6\r\n World\r\n0\r\n\r\n")
	p.state.Chunked = true

	var out bytes.Buffer

	marker, err := p.NextChunkMarker()
	if err != nil || marker.Kind != ChunkLength || marker.Length != 5 {
		t.Fatalf("first chunk marker: %+v, err=%v", marker, err)
	}
	if err := p.TunnelChunk(&out); err != nil {
		t.Fatalf("TunnelChunk: %v", err)
	}
	marker, err = p.NextChunkMarker()
	if err != nil || marker.Kind != ChunkTrailer {
		t.Fatalf("trailer marker: %+v, err=%v", marker, err)
	}

	marker, err = p.NextChunkMarker()
	if err != nil || marker.Kind != ChunkLength || marker.Length != 6 {
		t.Fatalf("second chunk marker: %+v, err=%v", marker, err)
	}
	if err := p.TunnelChunk(&out); err != nil {
		t.Fatalf("TunnelChunk: %v", err)
	}
	marker, err = p.NextChunkMarker()
	if err != nil || marker.Kind != ChunkTrailer {
		t.Fatalf("trailer marker: %+v, err=%v", marker, err)
	}

	marker, err = p.NextChunkMarker()
	if err != nil || marker.Kind != ChunkLength || marker.Length != 0 {
		t.Fatalf("last chunk marker: %+v, err=%v", marker, err)
	}
	marker, err = p.NextChunkMarker()
	if err != nil || marker.Kind != ChunkTrailer {
		t.Fatalf("final trailer marker: %+v, err=%v", marker, err)
	}

	marker, err = p.NextChunkMarker()
	if err != nil || marker.Kind != ChunkDone {
		t.Fatalf("expected ChunkDone, got %+v, err=%v", marker, err)
	}

	if out.String() != "Hello World" {
		t.Fatalf("unexpected body: %q", out.String())
	}
}

func TestMalformedRequestLine(t *testing.T) {
	p, _ := newParser("GET /\r\n")
	if _, _, _, err := p.RequestLine(); err != ErrMalformedLine {
		t.Fatalf("expected ErrMalformedLine, got %v", err)
	}
}
