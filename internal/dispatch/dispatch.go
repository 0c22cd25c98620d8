// Package dispatch implements the callback dispatcher (spec.md §4.4): it
// drains the notification ring on the control thread and fans each
// record out to the client callbacks registered for that notification
// kind, with freeze/thaw gating and coalescing of high-frequency kinds.
//
// Grounded on server/internal/core/channel_state.go's Broadcast/SendTo
// (per-subscriber buffered channel, non-blocking trySend with a timeout)
// and bep/debounce for collapsing bursts of LATENCY/graph-order/
// TOTAL_LATENCY notifications into one callback invocation.
package dispatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"jackshim/internal/notifyring"
)

// SendTimeout bounds how long delivering one notification to one
// registered callback may block before it is dropped.
const SendTimeout = 10 * time.Millisecond

// CoalesceWindow is how long LATENCY/graph-order/TOTAL_LATENCY bursts are
// collapsed before the debounced callback actually runs (spec.md §4.4).
const CoalesceWindow = 5 * time.Millisecond

// Handler is a registered callback. It must not block the control thread
// for long; Dispatcher enforces SendTimeout around every invocation.
type Handler func(notifyring.Record)

var coalescedKinds = map[notifyring.Kind]bool{
	notifyring.KindLatency:      true,
	notifyring.KindGraphOrder:   true,
	notifyring.KindTotalLatency: true,
}

// Dispatcher owns the registered handlers for one client and the
// freeze/thaw gate spec.md §4.4 requires (a frozen client must not have
// any callback invoked until it is thawed, but queued notifications are
// not lost — they are delivered, deduped, on thaw).
type Dispatcher struct {
	mu       sync.Mutex
	log      *slog.Logger
	handlers map[notifyring.Kind][]Handler
	frozen   bool
	queued   []notifyring.Record

	debouncers map[notifyring.Kind]func(func())
}

// New returns a Dispatcher with no handlers registered, logging through
// logger (nil is replaced with slog.Default()).
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		log:        logger,
		handlers:   make(map[notifyring.Kind][]Handler),
		debouncers: make(map[notifyring.Kind]func(func())),
	}
}

// On registers a callback for a notification kind.
func (d *Dispatcher) On(kind notifyring.Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], h)
	if coalescedKinds[kind] {
		if _, ok := d.debouncers[kind]; !ok {
			d.debouncers[kind] = debounce.New(CoalesceWindow)
		}
	}
}

// Freeze suspends callback delivery; notifications keep arriving via
// Dispatch and are buffered until Thaw.
func (d *Dispatcher) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = true
}

// Thaw resumes delivery and flushes everything queued while frozen,
// deduplicated by (Kind, A) so a port that was registered and then
// renamed twice while frozen only replays its final state once.
func (d *Dispatcher) Thaw() {
	d.mu.Lock()
	d.frozen = false
	pending := d.queued
	d.queued = nil
	d.mu.Unlock()

	for _, rec := range dedupeByRegisteredField(pending) {
		d.deliver(rec)
	}
}

// Dispatch routes one drained ring record to its registered handlers,
// queuing it instead if the dispatcher is currently frozen.
func (d *Dispatcher) Dispatch(rec notifyring.Record) {
	d.mu.Lock()
	if d.frozen {
		d.queued = append(d.queued, rec)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.deliver(rec)
}

func (d *Dispatcher) deliver(rec notifyring.Record) {
	d.mu.Lock()
	handlers := append([]Handler(nil), d.handlers[rec.Kind]...)
	debounced := d.debouncers[rec.Kind]
	d.mu.Unlock()

	run := func() {
		for _, h := range handlers {
			invokeWithTimeout(h, rec, d.log)
		}
	}
	if debounced != nil {
		debounced(run)
		return
	}
	run()
}

func invokeWithTimeout(h Handler, rec notifyring.Record, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h(rec)
	}()
	select {
	case <-done:
	case <-time.After(SendTimeout):
		log.Warn("callback dispatch timed out", "kind", rec.Kind)
	}
}

// dedupeByRegisteredField keeps only the last record for each (Kind, A)
// pair seen, preserving the order of last occurrence — the "registered
// field" spec.md §4.4 names for identifying which logical entity a
// notification describes (a port id, a client id, ...).
func dedupeByRegisteredField(recs []notifyring.Record) []notifyring.Record {
	type key struct {
		kind notifyring.Kind
		a    uint32
	}
	lastIndex := make(map[key]int)
	for i, r := range recs {
		lastIndex[key{r.Kind, r.A}] = i
	}
	var out []notifyring.Record
	seen := make(map[key]bool)
	for i, r := range recs {
		k := key{r.Kind, r.A}
		if lastIndex[k] != i {
			continue
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
