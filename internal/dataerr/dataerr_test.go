package dataerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAndKindOf(t *testing.T) {
	err := New(NoSuchChunk, "chunk gone")
	if KindOf(err) != NoSuchChunk {
		t.Fatalf("KindOf() = %v, want %v", KindOf(err), NoSuchChunk)
	}
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	base := New(IOError, "disk read failed")
	wrapped := fmt.Errorf("context: %w", base)
	if KindOf(wrapped) != IOError {
		t.Fatalf("KindOf(wrapped) = %v, want %v", KindOf(wrapped), IOError)
	}
}

func TestKindOfUnknownForPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != Unknown {
		t.Fatal("plain error should report Unknown kind")
	}
	if KindOf(nil) != Unknown {
		t.Fatal("nil error should report Unknown kind")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(PipelineFailed, "forward failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("Wrap should preserve cause for errors.Is")
	}
	if err.Error() == "" {
		t.Fatal("Error() should not be empty")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(Unavailable, "master offline")) {
		t.Fatal("Unavailable should always be retryable")
	}
	if IsRetryable(New(NoSuchChunk, "gone")) {
		t.Fatal("NoSuchChunk should not be retryable by default")
	}
	if !IsRetryable(New(IOError, "transient").AsRetryable()) {
		t.Fatal("AsRetryable should flip IsRetryable to true")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain error should not be retryable")
	}
}

func TestKindStringKnownAndUnknown(t *testing.T) {
	if IncarnationMismatch.String() != "IncarnationMismatch" {
		t.Fatalf("String() = %q", IncarnationMismatch.String())
	}
	if Kind(999).String() != "Unknown" {
		t.Fatalf("String() for unrecognized kind = %q, want Unknown", Kind(999).String())
	}
}
