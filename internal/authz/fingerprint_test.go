// ABOUTME: Policy fingerprint determinism and shape.
package authz

import (
	"encoding/hex"
	"testing"
)

func TestFingerprintIsStable(t *testing.T) {
	t.Parallel()
	first, err := Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if raw, err := hex.DecodeString(first); err != nil || len(raw) != 32 {
		t.Fatalf("fingerprint %q is not a sha256 hex digest", first)
	}
	for i := 0; i < 5; i++ {
		again, err := Fingerprint()
		if err != nil {
			t.Fatalf("Fingerprint: %v", err)
		}
		if again != first {
			t.Fatal("fingerprint changed between calls over identical tables")
		}
	}
}
