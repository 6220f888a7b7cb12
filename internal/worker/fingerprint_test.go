package worker

import (
	"strings"
	"testing"
)

func TestFingerprint(t *testing.T) {
	// Known SHA-256 of "abc", uppercased.
	want := "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD"
	if got := Fingerprint([]byte("abc")); got != want {
		t.Errorf("Fingerprint(abc) = %s, want %s", got, want)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	data := []byte("%PDF-1.4 sample document")
	first := Fingerprint(data)
	second := Fingerprint(data)
	if first != second {
		t.Errorf("Fingerprint is not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(first))
	}
	if first != strings.ToUpper(first) {
		t.Errorf("Expected uppercase hex, got %s", first)
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	if Fingerprint([]byte("a")) == Fingerprint([]byte("b")) {
		t.Error("Different content produced the same fingerprint")
	}
}
