package proxy

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/watt-toolkit/nagato/pkg/framing"
	"github.com/watt-toolkit/nagato/pkg/obfuscate"
	"github.com/watt-toolkit/nagato/pkg/policy"
	"github.com/watt-toolkit/nagato/pkg/pump"
	"github.com/watt-toolkit/nagato/pkg/relay"
)

// hostFragmentStep is the step passed to obfuscate.RandomSplit when
// fragmenting the obfuscated Host line, matching nagato.py's
// random_split(host_line[2:], 6).
const hostFragmentStep = 6

// maxHostFragmentSleepMillis bounds the per-fragment sleep to [0, 9] ms,
// matching nagato.py's random.randrange(10) / 1000.0.
const maxHostFragmentSleepMillis = 10

// plaintextSession holds the shared state two goroutines (request task,
// response task) cooperate over for the life of one keep-alive plaintext
// proxy connection, grounded on original_source/nagato.py's NagatoStream.
type plaintextSession struct {
	srv *Server

	origin string // host:port, the policy map key
	host   string // hostname only, used as the Host-line fallback

	clientConn net.Conn
	client     *framing.Reader

	upstream  net.Conn
	upstreamR *framing.Reader

	log *logrus.Entry

	mu      sync.Mutex
	lastURL string
}

func (ps *plaintextSession) setLastURL(u string) {
	ps.mu.Lock()
	ps.lastURL = u
	ps.mu.Unlock()
}

func (ps *plaintextSession) getLastURL() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastURL
}

// handlePlaintext implements C7: dial the origin, then run the paired
// request/response tasks until the connection ends or policy settles.
func (s *Server) handlePlaintext(ctx context.Context, clientConn net.Conn, client *framing.Reader, method, rawURL, version string, log *logrus.Entry) {
	u, err := url.Parse(rawURL)
	if err != nil {
		log.WithError(err).Debug("malformed request URL")
		return
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "80"
	}
	origin := net.JoinHostPort(host, port)

	upstream, err := s.dial(ctx, "tcp", origin)
	if err != nil {
		log.WithError(err).Info("upstream unreachable")
		fmt.Fprintf(clientConn, "%s 504 Gateway Timeout\r\nProxy-Agent: %s\r\nConnection: close\r\n\r\n", version, ProxyAgent)
		return
	}
	defer upstream.Close()
	s.tuneSocket(upstream)

	ps := &plaintextSession{
		srv:        s,
		origin:     origin,
		host:       host,
		clientConn: clientConn,
		client:     client,
		upstream:   upstream,
		upstreamR:  framing.New(upstream),
		log:        log,
	}

	var once sync.Once
	teardown := func() { once.Do(func() { clientConn.Close(); upstream.Close() }) }

	var g errgroup.Group
	g.Go(func() error {
		defer teardown()
		return ps.requestTask(method, rawURL, version)
	})
	g.Go(func() error {
		defer teardown()
		return ps.responseTask(teardown)
	})

	if err := g.Wait(); err != nil && err != ErrPolicyDowngrade {
		log.WithError(err).Debug("plaintext session ended")
	}
}

// requestTask implements the request side of C7: for each pipelined
// request, consult policy, rewrite the request line, forward headers
// (capturing Host, renaming Proxy-Connection), emit the obfuscated Host
// line, then relay the body.
func (ps *plaintextSession) requestTask(method, rawURL, version string) error {
	for {
		ps.setLastURL(rawURL)

		pol := ps.srv.policy.Get(ps.origin)
		if pol == policy.Unknown {
			pol = policy.Upgrade
		}

		if err := ps.writeRequest(method, rawURL, version, pol); err != nil {
			return err
		}

		nextMethod, nextURL, nextVersion, err := relay.New(ps.client, nil).RequestLine()
		if err != nil {
			return nil
		}
		method, rawURL, version = nextMethod, nextURL, nextVersion
	}
}

func (ps *plaintextSession) writeRequest(method, rawURL, version string, pol policy.State) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	var outURL string
	if pol == policy.Upgrade {
		u.Scheme = "https"
		outURL = u.String()
	} else {
		u.Scheme = ""
		u.Host = ""
		outURL = u.String()
	}

	bw := bufio.NewWriter(ps.upstream)
	if _, err := fmt.Fprintf(bw, "%s %s %s\r\n", method, outURL, version); err != nil {
		return err
	}

	if pol == policy.Passthrough {
		for i := 0; i < 8; i++ {
			if _, err := fmt.Fprintf(bw, "X-%s: %s\r\n", obfuscate.RandomToken(16), obfuscate.RandomToken(128)); err != nil {
				return err
			}
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}

	parser := relay.New(ps.client, nil)
	var host string
	var hostCaptured bool

	for {
		field, err := parser.NextHeaderField()
		if err != nil {
			return err
		}
		if field.Kind == relay.FieldEnd || field.Kind == relay.FieldDone {
			break
		}

		name := string(field.Name)
		switch {
		case strings.EqualFold(name, "Host"):
			host = string(field.Value)
			hostCaptured = true
		case strings.EqualFold(name, "Proxy-Connection"):
			if _, err := fmt.Fprintf(bw, "Connection: %s\r\n", string(field.Value)); err != nil {
				return err
			}
		default:
			if _, err := fmt.Fprintf(bw, "%s: %s\r\n", name, string(field.Value)); err != nil {
				return err
			}
		}
	}

	if pol == policy.Passthrough || (pol == policy.Upgrade && hostCaptured) {
		hostValue := host
		if hostValue == "" {
			hostValue = ps.host
		}
		hostLine := []byte("hoSt:" + hostValue + "\r\n")

		if err := ps.writeHostFragment(bw, hostLine[:2]); err != nil {
			return err
		}
		for _, part := range obfuscate.RandomSplit(hostLine[2:], hostFragmentStep) {
			if err := ps.writeHostFragment(bw, part); err != nil {
				return err
			}
		}
	}

	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	// Headers were rewritten by hand above, but a chunked body's framing
	// (chunk-size lines, trailers) must cross the wire verbatim, so the
	// parser starts teeing them to bw only now, for the body phase.
	parser.SetTee(bw)

	for {
		marker, err := parser.NextChunkMarker()
		if err != nil {
			return err
		}
		if marker.Kind == relay.ChunkLength && marker.Length > 0 {
			if err := parser.TunnelChunk(bw); err != nil {
				return err
			}
			continue
		}
		if marker.Kind == relay.ChunkDone {
			return bw.Flush()
		}
	}
}

// writeHostFragment writes and flushes one fragment of the obfuscated
// Host line, then sleeps a random [0, 9] ms duration — the flush-then-sleep
// is what forces the fragment onto its own TCP segment (invariant 3).
func (ps *plaintextSession) writeHostFragment(bw *bufio.Writer, part []byte) error {
	if _, err := bw.Write(part); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	time.Sleep(time.Duration(rand.IntN(maxHostFragmentSleepMillis)) * time.Millisecond)
	return nil
}

// responseTask implements the response side of C7: classify each
// pipelined response, settle the origin's policy, and either forward or
// discard-and-redirect. Once policy settles to upgrade, it degrades to a
// raw pump for the remainder of the connection.
func (ps *plaintextSession) responseTask(teardown func()) error {
	for ps.srv.policy.Get(ps.origin) == policy.Unknown {
		parser := relay.New(ps.upstreamR, nil)
		version, status, reason, err := parser.StatusLine()
		if err != nil {
			return nil
		}

		switch {
		case (status >= 200 && status < 300) || status == 304:
			ps.srv.policy.Set(ps.origin, policy.Upgrade)
		case status >= 400 && status < 600 && status != 503:
			ps.srv.policy.Set(ps.origin, policy.Passthrough)
			lastURL := ps.getLastURL()
			ps.log.WithFields(logrus.Fields{"status": status, "reason": reason}).Info("downgrading to passthrough, issuing redirect")
			fmt.Fprintf(ps.clientConn, "%s 307 Temporary Redirect\r\nLocation: %s\r\nProxy-Agent: %s\r\nConnection: close\r\n\r\n", version, lastURL, ProxyAgent)
			ps.clientConn.Close()
			return ErrPolicyDowngrade
		}

		if _, err := fmt.Fprintf(ps.clientConn, "%s %d %s\r\n", version, status, reason); err != nil {
			return err
		}

		teeParser := relay.New(ps.upstreamR, ps.clientConn)
		for {
			field, err := teeParser.NextHeaderField()
			if err != nil {
				return err
			}
			if field.Kind == relay.FieldEnd || field.Kind == relay.FieldDone {
				break
			}
		}
		for {
			marker, err := teeParser.NextChunkMarker()
			if err != nil {
				return err
			}
			if marker.Kind == relay.ChunkLength && marker.Length > 0 {
				if err := teeParser.TunnelChunk(ps.clientConn); err != nil {
					return err
				}
				continue
			}
			if marker.Kind == relay.ChunkDone {
				break
			}
		}
	}

	return pump.Copy(ps.clientConn, ps.upstreamR.Underlying(), teardown)
}
