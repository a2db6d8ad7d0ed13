// Package obfuscate implements the randomized building blocks used to
// fragment outgoing Host lines and to mint dummy passthrough headers (C4),
// grounded directly on original_source/nagato.py's random_str and
// random_split — the teacher repo has no equivalent, since host-header
// fragmentation is specific to this proxy's evasion behavior.
package obfuscate

import "math/rand/v2"

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomToken returns a random string of n letters from the 52-letter
// mixed-case alphabet, mirroring nagato.py's random_str. Used to mint
// dummy "X-<token>: <token>" passthrough headers.
func RandomToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// RandomSplit splits b into a sequence of slices of uniformly random
// length in [1, step-1], covering the full input in order, mirroring
// nagato.py's random_split generator. The returned slices alias b.
func RandomSplit(b []byte, step int) [][]byte {
	var parts [][]byte
	for len(b) > 0 {
		n := rand.IntN(step-1) + 1
		if n > len(b) {
			n = len(b)
		}
		parts = append(parts, b[:n])
		b = b[n:]
	}
	return parts
}
