package kind

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	e := New(NotFound, "no catalog entry for /tmp/a.txt")
	want := "NotFound: no catalog entry for /tmp/a.txt"
	if e.Error() != want {
		t.Fatalf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestWrapMessage(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(Io, "writing catalog", cause)
	want := "Io: writing catalog: disk full"
	if e.Error() != want {
		t.Fatalf("Error() = %q, want %q", e.Error(), want)
	}
	if !errors.Is(e, cause) {
		t.Fatal("wrapped error should unwrap to cause")
	}
}

func TestIsMatchesByKindNotMessage(t *testing.T) {
	a := New(GrantMismatch, "designator mismatch for /tmp/a.txt")
	b := New(GrantMismatch, "designator mismatch for /tmp/b.txt")

	if !errors.Is(a, b) {
		t.Fatal("errors of the same kind should match regardless of message")
	}

	c := New(AuthFailed, "designator mismatch for /tmp/a.txt")
	if errors.Is(a, c) {
		t.Fatal("errors of different kinds should not match")
	}
}

func TestOfExtractsKindThroughWrapping(t *testing.T) {
	base := New(ProofTooDeep, "chain exceeds 16 elements")
	wrapped := fmt.Errorf("validating delegate op: %w", base)

	if got := Of(wrapped); got != ProofTooDeep {
		t.Fatalf("Of() = %v, want ProofTooDeep", got)
	}
}

func TestOfReturnsUnexpectedForPlainError(t *testing.T) {
	if got := Of(errors.New("boom")); got != Unexpected {
		t.Fatalf("Of() = %v, want Unexpected", got)
	}
	if got := Of(nil); got != Unexpected {
		t.Fatalf("Of(nil) = %v, want Unexpected", got)
	}
}

func TestKindStringCoversAllValues(t *testing.T) {
	kinds := []Kind{
		Unexpected, NotInitialized, FileNotFound, NotFound, NotAllowed,
		PermissionDenied, Io, IoTruncated, MalformedToken, MalformedPayload,
		BadGrant, SignatureInvalid, AuthFailed, GrantMismatch, ProofTooDeep,
		ConnectRefused,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		if s == "" {
			t.Fatalf("kind %d stringified to empty string", k)
		}
		if seen[s] && k != Unexpected {
			t.Fatalf("kind %d collides with another kind's string %q", k, s)
		}
		seen[s] = true
	}
}
