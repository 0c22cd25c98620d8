package jackerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrArgument, -22},
		{ErrResource, -28},
		{ErrState, -5},
		{ErrPeerFailure, -32},
		{ErrSelfConnect, -1},
		{ErrMapping, -12},
		{nil, 0},
		{errors.New("unrelated"), -22},
	}
	for _, c := range cases {
		if got := Errno(c.err); got != c.want {
			t.Errorf("Errno(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestWrappedErrorMatchesIs(t *testing.T) {
	wrapped := fmt.Errorf("registering port: %w", ErrResource)
	if !errors.Is(wrapped, ErrResource) {
		t.Fatalf("expected wrapped error to match ErrResource")
	}
	if errors.Is(wrapped, ErrState) {
		t.Fatalf("wrapped ErrResource should not match ErrState")
	}
	if Errno(wrapped) != -28 {
		t.Fatalf("Errno(wrapped) = %d, want -28", Errno(wrapped))
	}
}
