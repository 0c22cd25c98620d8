// Package registry implements the object pool and recycler described in
// spec.md §4.1: Node/Port/Link objects are allocated from a chunked free
// list, removal only tombstones an object (so a caller holding a
// jack_port_t* can still read its name after unregistration), and bulk
// recycling runs only once enough removed objects have piled up.
//
// The mutex discipline here follows channel_state.go's ChannelState: one
// sync.Mutex guards the object list, and every operation, read or write,
// takes it. Lookups return pointers to the listed objects, not copies.
package registry

import (
	"log/slog"
	"sync"
)

// Kind tags the tagged union spec.md §3 describes.
type Kind int

const (
	KindNode Kind = iota
	KindPort
	KindLink
)

// Phase is the three-state lifecycle of an Object (spec.md §3).
type Phase int

const (
	PhaseLive Phase = iota
	PhaseRemoving
	PhaseRemoved
)

// InvalidID is the sentinel written into Object.ID once an object is
// removed; JACK_PORT_ID constants are out of scope, but this invalidates
// any stale lookup by id.
const InvalidID uint32 = 0xffffffff

// ObjectChunk is the allocation granularity of the free list (spec.md §4.1).
const ObjectChunk = 8

// RecycleThreshold is the removed-object watermark that triggers a bulk
// recycle of half the oldest removed objects (spec.md §4.1).
const RecycleThreshold = 128

// Object is one allocation slot: a stable id/serial pair plus whichever
// payload is meaningful for Kind. The payload is opaque to this package —
// the packages that own the record types (portmix.Port, connect.Link)
// only reach into this package for lifecycle tracking.
type Object struct {
	Kind   Kind
	ID     uint32 // registry id; set to InvalidID once removed
	Serial uint64 // monotonically increasing, stable across removal
	Phase  Phase
	Name   string
	Payload any // e.g. *portmix.Port for KindPort — opaque here

	removedAt uint64 // recycle generation counter, for ordering the removed list
}

// Registry owns one client's object list plus the process-wide free pool
// it draws from and returns to.
type Registry struct {
	mu       sync.Mutex
	log      *slog.Logger
	nextSer  uint64
	objects  []*Object // client's full object list, live+removing+removed, in list order
	removed  int       // count of objects currently in PhaseRemoved, for the watermark
	gen      uint64

	free *FreePool // shared across clients in the same process-wide state
}

// FreePool is the process-wide free list every Registry draws from and
// recycles into — the equivalent of the teacher's shared ChannelState,
// except here the shared resource is inert memory, not live sessions.
type FreePool struct {
	mu    sync.Mutex
	slots []*Object
}

// NewFreePool constructs the process-wide free pool. One instance should
// be shared by every Registry (i.e. every client) in a process, per
// spec.md §9's "process-wide state, injected" resolution.
func NewFreePool() *FreePool {
	return &FreePool{}
}

// New creates a per-client Registry drawing from the given shared pool.
func New(pool *FreePool, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = NewFreePool()
	}
	return &Registry{log: logger, free: pool}
}

// Alloc draws an Object of the given Kind from the free pool, growing it
// by ObjectChunk zero-initialised records when empty, and appends it to
// this client's object list.
func (r *Registry) Alloc(kind Kind) *Object {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj := r.free.take()
	if obj == nil {
		obj = &Object{}
	}
	r.nextSer++
	*obj = Object{Kind: kind, Serial: r.nextSer, Phase: PhaseLive}
	r.objects = append(r.objects, obj)
	return obj
}

// take pops one Object off the shared free pool, growing it by
// ObjectChunk when empty.
func (p *FreePool) take() *Object {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.slots) == 0 {
		for i := 0; i < ObjectChunk; i++ {
			p.slots = append(p.slots, &Object{})
		}
	}
	n := len(p.slots)
	obj := p.slots[n-1]
	p.slots = p.slots[:n-1]
	return obj
}

func (p *FreePool) give(objs []*Object) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = append(p.slots, objs...)
}

// Free marks obj removed: it is not released back to the pool immediately.
// Its id is invalidated, its phase becomes PhaseRemoved, it is moved to
// the tail of the client's object list, and the removed-object watermark
// is checked — if RecycleThreshold is exceeded, half of the oldest
// removed objects are recycled to the shared free pool.
//
// This is mandatory, not an optimisation: a JACK client may call
// jack_port_name() on a jack_port_t* long after jack_port_unregister(),
// so the backing memory must stay readable until the next recycle round.
func (r *Registry) Free(obj *Object) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj.ID = InvalidID
	obj.Phase = PhaseRemoved
	r.gen++
	obj.removedAt = r.gen
	r.removed++

	// Move to tail: find and re-append. The list is small enough (bounded
	// by max-client-ports, spec.md §6) that a linear scan is fine and
	// mirrors the teacher's preference for simple list ops over a second
	// index structure (channel_state.go keeps removal O(1) via maps
	// because its keys are unique; here id reuse across recycles means
	// only the pointer identity is stable, so the list itself is the
	// source of truth).
	for i, o := range r.objects {
		if o == obj {
			r.objects = append(r.objects[:i], r.objects[i+1:]...)
			break
		}
	}
	r.objects = append(r.objects, obj)

	if r.removed > RecycleThreshold {
		r.recycleLocked()
	}
}

// recycleLocked brings the removed-object watermark back down to
// RecycleThreshold/2 by returning the oldest removed objects to the
// shared free pool. Caller holds r.mu.
//
// n is computed against the watermark, not against the current removed
// count: recycling at removed=129 must leave removed<=64, not
// ceil(129/2)=65.
func (r *Registry) recycleLocked() {
	n := r.removed - RecycleThreshold/2
	if n <= 0 {
		return
	}
	var toFree []*Object
	kept := r.objects[:0:0]
	found := 0
	for _, o := range r.objects {
		if found < n && o.Phase == PhaseRemoved {
			toFree = append(toFree, o)
			found++
			continue
		}
		kept = append(kept, o)
	}
	r.objects = kept
	r.removed -= found
	r.free.give(toFree)
	r.log.Debug("recycled objects", "count", found, "remaining_removed", r.removed)
}

// FindByID returns the live object with the given registry id, or nil.
func (r *Registry) FindByID(id uint32) *Object {
	if id == InvalidID {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.objects {
		if o.ID == id && o.Phase == PhaseLive {
			return o
		}
	}
	return nil
}

// FindBySerial returns the object (in any phase) with the given serial.
func (r *Registry) FindBySerial(serial uint64) *Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.objects {
		if o.Serial == serial {
			return o
		}
	}
	return nil
}

// FindByName returns the first live object of the given kind with the
// given name.
func (r *Registry) FindByName(kind Kind, name string) *Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.objects {
		if o.Kind == kind && o.Name == name && o.Phase == PhaseLive {
			return o
		}
	}
	return nil
}

// FindByType returns every live object of the given kind.
func (r *Registry) FindByType(kind Kind) []*Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Object
	for _, o := range r.objects {
		if o.Kind == kind && o.Phase == PhaseLive {
			out = append(out, o)
		}
	}
	return out
}

// Count returns the total number of objects tracked (any phase) and the
// number currently in PhaseRemoved, for tests asserting the recycle
// invariant.
func (r *Registry) Count() (total, removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects), r.removed
}

// MarkRemoving transitions obj from Live to Removing (un-registration
// sent, last callback still pending).
func (r *Registry) MarkRemoving(obj *Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj.Phase = PhaseRemoving
}
