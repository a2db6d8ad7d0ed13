package obfuscate

import (
	"bytes"
	"strings"
	"testing"
)

func TestRandomTokenLength(t *testing.T) {
	for _, n := range []int{0, 1, 16, 128} {
		tok := RandomToken(n)
		if len(tok) != n {
			t.Fatalf("RandomToken(%d): got length %d", n, len(tok))
		}
		for _, r := range tok {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("RandomToken(%d): unexpected rune %q", n, r)
			}
		}
	}
}

func TestRandomTokenVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		seen[RandomToken(32)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected RandomToken to produce varying output, got %d distinct values", len(seen))
	}
}

func TestRandomSplitCoversInput(t *testing.T) {
	input := []byte("the quick brown fox jumps over the lazy dog")
	parts := RandomSplit(input, 6)

	var rebuilt bytes.Buffer
	for _, p := range parts {
		if len(p) == 0 {
			t.Fatalf("unexpected empty part")
		}
		if len(p) > 5 {
			t.Fatalf("part exceeds step-1 bound: %q (len %d)", p, len(p))
		}
		rebuilt.Write(p)
	}
	if !bytes.Equal(rebuilt.Bytes(), input) {
		t.Fatalf("rebuilt input mismatch: got %q want %q", rebuilt.Bytes(), input)
	}
}

func TestRandomSplitEmptyInput(t *testing.T) {
	parts := RandomSplit(nil, 6)
	if len(parts) != 0 {
		t.Fatalf("expected no parts for empty input, got %d", len(parts))
	}
}

func TestRandomSplitShortInput(t *testing.T) {
	input := []byte("a")
	parts := RandomSplit(input, 6)
	if len(parts) != 1 || string(parts[0]) != "a" {
		t.Fatalf("unexpected parts: %+v", parts)
	}
}
