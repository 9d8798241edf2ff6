package utils

import (
	"encoding/hex"
	"testing"
)

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(32)
	if err != nil {
		t.Fatalf("RandomHex returned error: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(a))
	}
	if _, err := hex.DecodeString(a); err != nil {
		t.Fatalf("expected valid hex, got %q: %v", a, err)
	}

	b, err := RandomHex(32)
	if err != nil {
		t.Fatalf("RandomHex returned error: %v", err)
	}
	if a == b {
		t.Fatal("expected two calls to produce different values")
	}
}
