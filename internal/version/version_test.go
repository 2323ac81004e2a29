package version

import (
	"strings"
	"testing"
)

func TestVersionStringNonEmpty(t *testing.T) {
	if s := String(); s == "" {
		t.Fatalf("version string is empty")
	}
}

func TestVersionStringIncludesCommit(t *testing.T) {
	old := Commit
	t.Cleanup(func() { Commit = old })
	Commit = "abc1234"
	if s := String(); !strings.Contains(s, "abc1234") || !strings.HasPrefix(s, Version) {
		t.Fatalf("String() = %q, want version with commit", s)
	}
}
