package store

import (
	"regexp"
	"testing"
)

var shape = regexp.MustCompile(`^[a-z0-9]{16}$`)

func TestNewReferenceShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ref, err := NewReference()
		if err != nil {
			t.Fatalf("NewReference: %v", err)
		}
		if !shape.MatchString(ref) {
			t.Fatalf("reference %q does not match expected shape", ref)
		}
		if seen[ref] {
			t.Fatalf("reference %q generated twice in %d draws", ref, i)
		}
		seen[ref] = true
	}
}
