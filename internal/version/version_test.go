package version

import "testing"

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if BuildTime == "" || GitCommit == "" {
		t.Error("build info should be initialized")
	}
}

func TestString(t *testing.T) {
	got := String()
	want := Version + " (" + GitCommit + ", built " + BuildTime + ")"
	if got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
