// Package proxy implements the connection acceptor and per-connection
// request/response state machines (C6–C8): the CONNECT tunnel handler,
// the plaintext upgrade/passthrough relay, and the net.Listener-based
// acceptor that ties them together. Grounded directly on
// original_source/nagato.py's NagatoStream/run_server, with the
// accept-loop and graceful-shutdown shape adapted from
// shockwave/pkg/shockwave/server/server.go's BaseServer.
package proxy

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/watt-toolkit/nagato/internal/proxy/socket"
	"github.com/watt-toolkit/nagato/pkg/framing"
	"github.com/watt-toolkit/nagato/pkg/policy"
	"github.com/watt-toolkit/nagato/pkg/relay"
)

// Dialer opens a connection to an upstream origin. Tests substitute a
// net.Pipe-backed dialer; production uses net.Dialer.DialContext.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds the acceptor's construction parameters.
type Config struct {
	Policy *policy.Map
	Log    *logrus.Logger
	Dial   Dialer
}

// Server accepts connections and runs the CONNECT/plaintext state
// machines over each one. The zero value is not usable; construct with
// New.
type Server struct {
	policy *policy.Map
	log    *logrus.Logger
	dial   Dialer

	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs a Server. A nil Policy gets a fresh policy.Map, a nil
// Log gets logrus.StandardLogger(), and a nil Dial gets a plain
// net.Dialer.
func New(cfg Config) *Server {
	if cfg.Policy == nil {
		cfg.Policy = policy.New()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}
	return &Server{policy: cfg.Policy, log: cfg.Log, dial: cfg.Dial}
}

// Serve accepts connections on l until ctx is cancelled, running each
// one in its own goroutine, and waits for in-flight connections to
// finish before returning. A panic in a single connection's handler is
// recovered and logged; it never brings down the acceptor.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.listener = l

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return l.Close()
	})

	g.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				select {
				case <-gctx.Done():
					return nil
				default:
					return err
				}
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.recoverConnection(conn)
				s.handleConn(ctx, conn)
			}()
		}
	})

	err := g.Wait()
	s.wg.Wait()
	return err
}

// Shutdown stops accepting new connections and waits for in-flight ones
// to drain.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) recoverConnection(conn net.Conn) {
	if r := recover(); r != nil {
		s.log.WithField("panic", r).Error("recovered panic handling connection")
	}
	conn.Close()
}

func (s *Server) tuneSocket(conn net.Conn) {
	if err := socket.Tune(conn); err != nil {
		s.log.WithError(err).Debug("socket tuning failed")
	}
}

// handleConn reads the first request line off a freshly accepted
// connection and dispatches to the CONNECT or plaintext handler based on
// its method, mirroring NagatoStream.handle_streams.
func (s *Server) handleConn(ctx context.Context, clientConn net.Conn) {
	defer clientConn.Close()
	s.tuneSocket(clientConn)

	client := framing.New(clientConn)
	parser := relay.New(client, nil)

	method, rawURL, version, err := parser.RequestLine()
	if err != nil {
		s.log.WithError(err).Debug("failed to read request line")
		return
	}

	log := s.log.WithFields(logrus.Fields{"method": method, "url": rawURL, "version": version})
	log.Info("request")

	if method == "CONNECT" {
		s.handleConnect(ctx, clientConn, client, rawURL, version, log)
		return
	}

	s.handlePlaintext(ctx, clientConn, client, method, rawURL, version, log)
}
