package internal

import (
	"encoding/hex"
	"testing"
)

func TestNewHexTokenDefaultLength(t *testing.T) {
	token, err := NewHexToken(DefaultTokenLength)
	if err != nil {
		t.Fatalf("NewHexToken failed: %v", err)
	}
	if len(token) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(token))
	}
	if _, err := hex.DecodeString(token); err != nil {
		t.Fatalf("expected hex token, got %q: %v", token, err)
	}
}

func TestNewHexTokenIsRandom(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		token, err := NewHexToken(32)
		if err != nil {
			t.Fatalf("NewHexToken failed: %v", err)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = struct{}{}
	}
}

func TestNewHexTokenRejectsBadLength(t *testing.T) {
	for _, n := range []int{0, -2, 7, 2048} {
		if _, err := NewHexToken(n); err == nil {
			t.Fatalf("expected length %d to be rejected", n)
		}
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("abc")
	b := HashToken("abc")
	c := HashToken("abd")
	if a != b {
		t.Fatal("expected identical digests for identical tokens")
	}
	if a == c {
		t.Fatal("expected different digests for different tokens")
	}
}
