package registry

import "testing"

func newTestRegistry() *Registry {
	return New(NewFreePool(), nil)
}

func TestAllocAssignsIncreasingSerial(t *testing.T) {
	r := newTestRegistry()
	a := r.Alloc(KindPort)
	b := r.Alloc(KindPort)
	if a.Serial == 0 || b.Serial == 0 {
		t.Fatalf("expected nonzero serials, got %d, %d", a.Serial, b.Serial)
	}
	if b.Serial <= a.Serial {
		t.Fatalf("expected increasing serials, got %d then %d", a.Serial, b.Serial)
	}
	if a.Phase != PhaseLive {
		t.Fatalf("new object should be PhaseLive, got %v", a.Phase)
	}
}

func TestFreeTombstonesObject(t *testing.T) {
	r := newTestRegistry()
	obj := r.Alloc(KindPort)
	obj.ID = 42
	obj.Name = "in"

	r.Free(obj)

	if obj.ID != InvalidID {
		t.Errorf("ID = %d, want InvalidID", obj.ID)
	}
	if obj.Phase != PhaseRemoved {
		t.Errorf("Phase = %v, want PhaseRemoved", obj.Phase)
	}
	// The name must stay readable after removal (spec.md §4.1).
	if obj.Name != "in" {
		t.Errorf("Name = %q, want %q to remain readable after Free", obj.Name, "in")
	}
}

func TestFindByIDSkipsRemoved(t *testing.T) {
	r := newTestRegistry()
	obj := r.Alloc(KindPort)
	obj.ID = 7
	if r.FindByID(7) != obj {
		t.Fatalf("expected to find live object by id")
	}
	r.Free(obj)
	if r.FindByID(7) != nil {
		t.Fatalf("expected removed object to not be found by (now-stale) id")
	}
}

func TestRecycleThresholdInvariant(t *testing.T) {
	r := newTestRegistry()

	// 5 objects stay live throughout.
	var active []*Object
	for i := 0; i < 5; i++ {
		o := r.Alloc(KindPort)
		o.ID = uint32(i + 1000)
		active = append(active, o)
	}

	// Register/unregister 200 more, the "recycler" end-to-end scenario
	// from spec.md §8.
	for i := 0; i < 200; i++ {
		o := r.Alloc(KindPort)
		o.ID = uint32(i)
		r.Free(o)

		total, removed := r.Count()
		if total > RecycleThreshold+len(active) {
			t.Fatalf("iteration %d: total=%d exceeds RecycleThreshold+active=%d",
				i, total, RecycleThreshold+len(active))
		}
		if removed > RecycleThreshold {
			// recycleLocked runs as soon as removed > threshold, so it
			// should never be observed strictly above it from outside.
			t.Fatalf("iteration %d: removed=%d exceeds RecycleThreshold=%d", i, removed, RecycleThreshold)
		}
	}
}

func TestRecycleHalvesRemovedCount(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < RecycleThreshold+1; i++ {
		o := r.Alloc(KindPort)
		r.Free(o)
	}
	_, removed := r.Count()
	if removed > RecycleThreshold/2 {
		t.Fatalf("after recycle, removed=%d, want <= %d", removed, RecycleThreshold/2)
	}
}

func TestFreePoolReusesRecycledObjects(t *testing.T) {
	pool := NewFreePool()
	r := New(pool, nil)
	for i := 0; i < RecycleThreshold+1; i++ {
		r.Free(r.Alloc(KindPort))
	}
	// The shared pool should now hold recycled slots; a second client
	// allocating from it should not need to grow beyond them immediately.
	if len(pool.slots) == 0 {
		t.Fatalf("expected recycled objects to return to the shared free pool")
	}
}

func TestFindByNameOnlyMatchesLive(t *testing.T) {
	r := newTestRegistry()
	obj := r.Alloc(KindPort)
	obj.ID = 1
	obj.Name = "capture_1"
	if r.FindByName(KindPort, "capture_1") != obj {
		t.Fatalf("expected to find live object by name")
	}
	r.Free(obj)
	if r.FindByName(KindPort, "capture_1") != nil {
		t.Fatalf("expected removed object to not be found by name")
	}
}
