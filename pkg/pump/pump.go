// Package pump implements the raw one-way byte-copy loop (C5) used for
// CONNECT tunnels (one Copy per direction) and for the response side of
// a plaintext connection once its policy has settled, grounded on
// original_source/nagato.py's tunnel_stream.
package pump

import "io"

// BufferSize is the read buffer size used by Copy, matching
// tunnel_stream's 65536-byte reads.
const BufferSize = 65536

// Copy reads from src and writes to dst until src returns EOF or either
// side errors, then calls teardown exactly once before returning. The
// caller is expected to wrap teardown in a sync.Once when running two
// Copy calls back-to-back over a shared pair of connections, so that
// whichever direction finishes first tears down both.
func Copy(dst io.Writer, src io.Reader, teardown func()) error {
	defer teardown()

	buf := make([]byte, BufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
