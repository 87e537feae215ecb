package errs

import (
	"errors"
	"testing"
)

func TestConsensusErrorMessage(t *testing.T) {
	e := New(KindNonceTooFarInFuture, 4003, "nonce too far in future", nil)
	if e.Kind != KindNonceTooFarInFuture {
		t.Fatalf("kind mismatch: %v", e.Kind)
	}
	want := "NonceTooFarInFuture (code 4003): nonce too far in future"
	if e.Error() != want {
		t.Fatalf("got %q want %q", e.Error(), want)
	}
}

func TestNonceAlreadyPresentInPastCarriesDelta(t *testing.T) {
	e := NonceAlreadyPresentInPast(3)
	if e.Detail["delta"] != uint64(3) {
		t.Fatalf("expected delta detail of 3, got %v", e.Detail["delta"])
	}
}

func TestFatalErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	f := Fatal(KindCorruptedDriveState, "commit cost mismatch", cause)
	if !errors.Is(f, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
	if f.Error() == "" {
		t.Fatalf("expected non-empty message")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Fatalf("expected Wrap(nil, ...) to return nil")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying")
	wrapped := Wrap(cause, "loading identity")
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected wrapped error to satisfy errors.Is against cause")
	}
}
