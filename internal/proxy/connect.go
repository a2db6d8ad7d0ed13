package proxy

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/watt-toolkit/nagato/pkg/framing"
	"github.com/watt-toolkit/nagato/pkg/pump"
)

// tlsClientHelloPrefix is the first three bytes of a TLS record carrying
// a ClientHello: content type 0x16 (handshake), version 0x0301 (for
// compatibility, regardless of the negotiated version).
var tlsClientHelloPrefix = []byte{0x16, 0x03, 0x01}

// sniSplitThreshold is the ClientHello record length above which the
// record is split after its first 85 bytes, segmenting the SNI extension
// (which starts well past the record header on any realistic
// ClientHello) across two TCP writes.
const sniSplitThreshold = 85

// handleConnect implements C6: establish a CONNECT tunnel to host:port,
// fragment the TLS ClientHello record if present, then pump bytes in
// both directions until either side closes. Grounded on
// original_source/nagato.py's handle_tunnel.
func (s *Server) handleConnect(ctx context.Context, clientConn net.Conn, client *framing.Reader, rawURL, version string, log *logrus.Entry) {
	host, port, err := splitConnectTarget(rawURL)
	if err != nil {
		log.WithError(err).Debug("malformed CONNECT target")
		return
	}

	// A CONNECT request carries no body; drain any remaining header
	// lines up to the blank line before dialing upstream.
	if err := drainHeaders(client); err != nil {
		log.WithError(err).Debug("failed draining CONNECT headers")
		return
	}

	upstream, err := s.dial(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		log.WithError(err).Info("upstream unreachable for CONNECT")
		fmt.Fprintf(clientConn, "%s 504 Gateway Timeout\r\nProxy-Agent: %s\r\nConnection: close\r\n\r\n", version, ProxyAgent)
		return
	}
	defer upstream.Close()
	s.tuneSocket(upstream)

	if _, err := fmt.Fprintf(clientConn, "%s 200 Connection Established\r\nProxy-Agent: %s\r\n\r\n", version, ProxyAgent); err != nil {
		log.WithError(err).Debug("failed to write CONNECT 200")
		return
	}

	if err := forwardClientHello(client, upstream); err != nil {
		log.WithError(err).Debug("failed forwarding TLS ClientHello")
		return
	}

	var once sync.Once
	teardown := func() { once.Do(func() { clientConn.Close(); upstream.Close() }) }

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pump.Copy(upstream, client.Underlying(), teardown)
	}()
	go func() {
		defer wg.Done()
		pump.Copy(clientConn, upstream, teardown)
	}()
	wg.Wait()
}

// forwardClientHello reads the first 5 bytes the client sends after the
// CONNECT handshake (a TLS record header, if the client proceeds
// straight to TLS) and forwards it to upstream. If it looks like a
// ClientHello record longer than sniSplitThreshold bytes, it reads and
// flushes the next 85 bytes as a second write, splitting the record (and
// therefore the SNI extension within it) across two TCP segments.
func forwardClientHello(client *framing.Reader, upstream net.Conn) error {
	head, err := client.ReadFull(5)
	if err != nil {
		if err == framing.ErrUnexpectedEOF {
			return nil
		}
		return err
	}
	if _, err := upstream.Write(head); err != nil {
		return err
	}

	if !bytes.HasPrefix(head, tlsClientHelloPrefix) {
		return nil
	}

	helloLen := binary.BigEndian.Uint16(head[3:5])
	if helloLen <= sniSplitThreshold {
		return nil
	}

	segment, err := client.ReadFull(sniSplitThreshold)
	if err != nil {
		if err == framing.ErrUnexpectedEOF {
			return nil
		}
		return err
	}
	_, err = upstream.Write(segment)
	return err
}

// drainHeaders reads and discards lines until a bare CRLF line or EOF.
func drainHeaders(client *framing.Reader) error {
	for {
		line, err := client.ReadLine()
		if err != nil {
			if err == framing.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		if bytes.Equal(line, []byte("\r\n")) {
			return nil
		}
	}
}

// splitConnectTarget parses a CONNECT request target of the form
// "host:port" (RFC 7231 §4.3.6). A missing port is rejected rather than
// defaulted, since CONNECT targets always carry an explicit port.
func splitConnectTarget(target string) (host, port string, err error) {
	return net.SplitHostPort(target)
}
