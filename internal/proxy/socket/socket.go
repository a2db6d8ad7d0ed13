// Package socket applies the one socket tuning option this proxy cares
// about: disabling Nagle's algorithm, so that the deliberately small,
// separately-flushed writes used for Host-line and ClientHello
// fragmentation (pkg/obfuscate) actually reach the wire as distinct TCP
// segments instead of being coalesced.
//
// Adapted from shockwave/pkg/shockwave/socket/tuning.go, trimmed to just
// TCP_NODELAY via the portable net.TCPConn API: the platform-specific
// options in that package (SO_RCVBUF/SO_SNDBUF tuning, TCP_QUICKACK,
// TCP_DEFER_ACCEPT, TCP_FASTOPEN) optimize for throughput and accept
// latency, which this proxy has no use for — its only socket-level
// requirement is that fragmented writes stay fragmented.
package socket

import "net"

// Tune disables Nagle's algorithm on conn if it is a TCP connection. It
// is a no-op for any other net.Conn implementation (e.g. the net.Pipe
// connections used in tests).
func Tune(conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tcpConn.SetNoDelay(true)
}
