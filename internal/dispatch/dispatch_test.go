package dispatch

import (
	"sync/atomic"
	"testing"
	"time"

	"jackshim/internal/notifyring"
)

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	d := New(nil)
	var got atomic.Int32
	d.On(notifyring.KindXRun, func(r notifyring.Record) { got.Store(int32(r.A)) })

	d.Dispatch(notifyring.Record{Kind: notifyring.KindXRun, A: 42})
	time.Sleep(20 * time.Millisecond)

	if got.Load() != 42 {
		t.Fatalf("handler got A=%d, want 42", got.Load())
	}
}

func TestFrozenQueuesUntilThaw(t *testing.T) {
	d := New(nil)
	var calls atomic.Int32
	d.On(notifyring.KindPortRegistered, func(notifyring.Record) { calls.Add(1) })

	d.Freeze()
	d.Dispatch(notifyring.Record{Kind: notifyring.KindPortRegistered, A: 1})
	d.Dispatch(notifyring.Record{Kind: notifyring.KindPortRegistered, A: 2})
	time.Sleep(10 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("expected no delivery while frozen, got %d calls", calls.Load())
	}

	d.Thaw()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 2 {
		t.Fatalf("expected 2 deliveries after thaw (distinct A), got %d", calls.Load())
	}
}

func TestThawDedupesByRegisteredField(t *testing.T) {
	d := New(nil)
	var calls atomic.Int32
	var lastName atomic.Value
	d.On(notifyring.KindPortRenamed, func(r notifyring.Record) {
		calls.Add(1)
		lastName.Store(string(r.Str[:r.StrLen]))
	})

	d.Freeze()
	d.Dispatch(notifyring.Record{Kind: notifyring.KindPortRenamed, A: 7, Str: strRec("first"), StrLen: 5})
	d.Dispatch(notifyring.Record{Kind: notifyring.KindPortRenamed, A: 7, Str: strRec("second"), StrLen: 6})
	d.Thaw()
	time.Sleep(20 * time.Millisecond)

	if calls.Load() != 1 {
		t.Fatalf("expected dedup to collapse repeated renames of the same port to 1 call, got %d", calls.Load())
	}
	if lastName.Load().(string) != "second" {
		t.Fatalf("expected the last queued rename to win, got %q", lastName.Load())
	}
}

func strRec(s string) [notifyring.RecordSize]byte {
	var out [notifyring.RecordSize]byte
	copy(out[:], s)
	return out
}
