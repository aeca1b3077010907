package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestFailureError(t *testing.T) {
	f := NewFailure(FailureInvalidRate, "playback rate must be positive")
	if f.Error() != "playback rate must be positive" {
		t.Fatalf("unexpected message: %q", f.Error())
	}

	cause := errors.New("disk full")
	wrapped := WrapFailure(FailureIO, "write destination file", cause)
	if wrapped.Error() != "write destination file: disk full" {
		t.Fatalf("unexpected message: %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestKindOf(t *testing.T) {
	f := WrapFailure(FailureFileCreation, "create output", errors.New("permission denied"))

	kind, ok := KindOf(f)
	if !ok || kind != FailureFileCreation {
		t.Fatalf("expected file creation kind, got %v (ok=%v)", kind, ok)
	}

	deep := fmt.Errorf("bounce: %w", f)
	if !IsKind(deep, FailureFileCreation) {
		t.Fatal("expected kind to survive further wrapping")
	}
	if IsKind(deep, FailureConversion) {
		t.Fatal("did not expect conversion kind")
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("plain error should carry no kind")
	}
}

func TestFailureKindString(t *testing.T) {
	if FailureInvalidSequenceLength.String() != "invalid sequence length" {
		t.Fatalf("unexpected string: %q", FailureInvalidSequenceLength.String())
	}
	if FailureKind(99).String() != "unknown" {
		t.Fatalf("unexpected string for out-of-range kind")
	}
}
