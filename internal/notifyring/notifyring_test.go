package notifyring

import "testing"

func TestPushPopRoundTrip(t *testing.T) {
	r := New()
	r.Push(Record{Kind: KindXRun, A: 1})
	r.Push(Record{Kind: KindPortRegistered, A: 2})

	first, ok := r.Pop()
	if !ok || first.Kind != KindXRun || first.A != 1 {
		t.Fatalf("unexpected first record: %+v ok=%v", first, ok)
	}
	second, ok := r.Pop()
	if !ok || second.Kind != KindPortRegistered || second.A != 2 {
		t.Fatalf("unexpected second record: %+v ok=%v", second, ok)
	}
	if _, ok := r.Pop(); ok {
		t.Fatalf("expected ring to be empty")
	}
}

func TestPendingInvariantNeverExceedsSize(t *testing.T) {
	r := New()
	for i := 0; i < Size*3; i++ {
		r.Push(Record{Kind: KindXRun, A: uint32(i)})
		if p := r.Pending(); p > Size {
			t.Fatalf("iteration %d: pending=%d exceeds Size=%d", i, p, Size)
		}
	}
}

func TestOverflowDropsOldestWithoutBlocking(t *testing.T) {
	r := New()
	for i := 0; i < Size+5; i++ {
		r.Push(Record{Kind: KindXRun, A: uint32(i)})
	}
	if r.Pending() != Size {
		t.Fatalf("Pending() = %d, want %d after overflow", r.Pending(), Size)
	}
	first, ok := r.Pop()
	if !ok || first.A != 5 {
		t.Fatalf("expected oldest surviving record A=5, got %+v", first)
	}
}

func TestDroppedCountsOverwrittenRecords(t *testing.T) {
	r := New()
	for i := 0; i < Size+5; i++ {
		r.Push(Record{Kind: KindXRun, A: uint32(i)})
	}
	if r.Dropped() != 5 {
		t.Fatalf("Dropped() = %d, want 5", r.Dropped())
	}
}

func TestDrainAllReturnsEverythingInOrder(t *testing.T) {
	r := New()
	for i := 0; i < 10; i++ {
		r.Push(Record{Kind: KindGraphOrder, A: uint32(i)})
	}
	drained := r.DrainAll()
	if len(drained) != 10 {
		t.Fatalf("drained %d records, want 10", len(drained))
	}
	for i, rec := range drained {
		if rec.A != uint32(i) {
			t.Fatalf("drained[%d].A = %d, want %d", i, rec.A, i)
		}
	}
	if r.Pending() != 0 {
		t.Fatalf("expected ring empty after DrainAll")
	}
}
