package buildinfo

import "testing"

func TestShortPrefersVersion(t *testing.T) {
	Version, Commit = "v1.2.3", "abc"
	if got := Short(); got != "v1.2.3" {
		t.Fatalf("Short() = %q, want %q", got, "v1.2.3")
	}
	Version = ""
	if got := Short(); got != "abc" {
		t.Fatalf("Short() = %q, want %q", got, "abc")
	}
	Commit = ""
	if got := Short(); got != "dev" {
		t.Fatalf("Short() = %q, want %q", got, "dev")
	}
}
