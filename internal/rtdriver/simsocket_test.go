package rtdriver

import (
	"context"
	"testing"
	"time"
)

// TestSimSocketRoundTripsWakeupCounter exercises the QUIC/WebTransport
// loopback wakeup channel end to end: a counter sent on one side of the
// session arrives intact on the other.
func TestSimSocketRoundTripsWakeupCounter(t *testing.T) {
	if testing.Short() {
		t.Skip("simsocket spins up a real loopback QUIC listener")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sock, err := newSimSocket(ctx, "127.0.0.1:18423")
	if err != nil {
		t.Skipf("simsocket unavailable in this sandbox: %v", err)
	}
	defer sock.Close()

	if err := sock.Send(42); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := sock.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got != 42 {
		t.Fatalf("got counter %d, want 42", got)
	}
}

// TestCycleWaitReadsWakeupCounterFromWakeupSource proves CycleWait
// actually consults an installed WakeupSource instead of wall-clock
// timing once one is set (spec.md §4.5: cycle_wait blocks on the
// client-node socket's wakeup counter, not a timer).
func TestCycleWaitReadsWakeupCounterFromWakeupSource(t *testing.T) {
	if testing.Short() {
		t.Skip("simsocket spins up a real loopback QUIC listener")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sock, err := newSimSocket(ctx, "127.0.0.1:18424")
	if err != nil {
		t.Skipf("simsocket unavailable in this sandbox: %v", err)
	}
	defer sock.Close()

	d := New(time.Hour, 256) // a period long enough that a wall-clock wait would time out the test
	d.SetWakeupSource(sock)

	done := make(chan bool, 1)
	go func() {
		done <- d.CycleWait(ctx)
	}()

	if err := sock.Send(1); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("CycleWait returned false, want true")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("CycleWait never returned after a wakeup counter was sent")
	}
}
