package appointments

import (
	"strings"
	"testing"
)

func TestNewReferenceCodeShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := newReferenceCode()
		if err != nil {
			t.Fatalf("newReferenceCode: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("code %q has length %d, want 8", code, len(code))
		}
		for _, r := range code {
			if !strings.ContainsRune(referenceAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
		seen[code] = true
	}
	if len(seen) < 95 {
		t.Fatalf("only %d distinct codes out of 100", len(seen))
	}
}

func TestRejectionErrorMessage(t *testing.T) {
	err := reject(ReasonCapacityFull, "no dentist is free at %s", "10:30")
	if err.Reason != ReasonCapacityFull {
		t.Fatalf("Reason = %s", err.Reason)
	}
	if !strings.Contains(err.Error(), "capacity_full") || !strings.Contains(err.Error(), "10:30") {
		t.Fatalf("Error = %q", err.Error())
	}
}
