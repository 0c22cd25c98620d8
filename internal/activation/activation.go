// Package activation implements the activation record spec.md §3
// describes: the per-node handoff state a driver and its clients share
// across one graph cycle — awake/finished/triggered status, the three
// cycle timestamps, the timebase segment-owner slot, the reposition
// command, the xrun counter, and the pending-sync flag.
//
// On the original system this is a struct mapped onto a shared-memory
// segment every node in the graph can reach; there is no equivalent here,
// so Record is a process-local struct instead, but every field is still
// touched exclusively through atomics, never a mutex — the same
// contract a real shared-memory reader/writer pair would need. Grounded
// on transport.go's existing segment-owner CAS slot (itself atomics-only)
// generalized to the full record spec.md §3 names.
package activation

import (
	"math"
	"sync/atomic"
	"time"
)

// Status is the three-state handoff a Record cycles through once per
// graph cycle (spec.md §4.5): AWAKE when cycle_run starts it, FINISHED
// when cycle_signal completes it, TRIGGERED when an upstream link's
// cycle_signal has counted this node down to its ready threshold.
type Status int32

const (
	// StatusIdle is a Record's state before its first cycle, or once a
	// triggered downstream node has itself finished and is waiting to be
	// retriggered.
	StatusIdle Status = iota
	StatusTriggered
	StatusAwake
	StatusFinished
)

// Record is one node's activation state, normally embedded in a
// transport.Transport or an rtdriver.Driver and shared with every link
// that targets it.
type Record struct {
	status Status32

	awakeTimeNS  atomic.Int64
	finishTimeNS atomic.Int64
	signalTimeNS atomic.Int64

	segmentOwner atomic.Uint32 // 0 = no timebase master installed

	repositionFrame atomic.Uint32
	repositionOwner atomic.Uint32

	xrunCount atomic.Uint32

	pendingSync atomic.Bool

	cpuLoadBits     atomic.Uint32 // float32 bits, spec.md §3 cpu_load
	syncTimeoutUsec atomic.Uint32

	readyCount atomic.Int32 // target-link countdown; <= 0 means triggered
}

// Status32 is a thin atomic.Int32 wrapper so Record's zero value is a
// valid, already-Idle activation record with no separate Init step.
type Status32 struct{ v atomic.Int32 }

func (s *Status32) load() Status     { return Status(s.v.Load()) }
func (s *Status32) store(st Status)  { s.v.Store(int32(st)) }

// New returns an idle Record, ready to use.
func New() *Record { return &Record{} }

// Status returns the node's current handoff state.
func (r *Record) Status() Status { return r.status.load() }

// MarkAwake transitions to AWAKE and records the awake timestamp
// (spec.md §4.5: cycle_run's first step).
func (r *Record) MarkAwake(now time.Time) {
	r.awakeTimeNS.Store(now.UnixNano())
	r.status.store(StatusAwake)
}

// MarkFinished transitions to FINISHED and records the finish timestamp
// (spec.md §4.5: cycle_signal's signal_sync step).
func (r *Record) MarkFinished(now time.Time) {
	r.finishTimeNS.Store(now.UnixNano())
	r.status.store(StatusFinished)
}

// MarkTriggered transitions to TRIGGERED and records the signal
// timestamp — an upstream link has counted this node down to its ready
// threshold (spec.md §4.5).
func (r *Record) MarkTriggered(now time.Time) {
	r.signalTimeNS.Store(now.UnixNano())
	r.status.store(StatusTriggered)
}

// AwakeTime, FinishTime, and SignalTime report the three cycle
// timestamps spec.md §3 names.
func (r *Record) AwakeTime() time.Time  { return time.Unix(0, r.awakeTimeNS.Load()) }
func (r *Record) FinishTime() time.Time { return time.Unix(0, r.finishTimeNS.Load()) }
func (r *Record) SignalTime() time.Time { return time.Unix(0, r.signalTimeNS.Load()) }

// SegmentOwnerLoad, SegmentOwnerCAS, and SegmentOwnerStore expose the
// timebase master slot spec.md §4.6 elects into via compare-and-swap
// (conditional install) or an unconditional overwrite.
func (r *Record) SegmentOwnerLoad() uint32 { return r.segmentOwner.Load() }
func (r *Record) SegmentOwnerCAS(old, new uint32) bool {
	return r.segmentOwner.CompareAndSwap(old, new)
}
func (r *Record) SegmentOwnerStore(nodeID uint32) { r.segmentOwner.Store(nodeID) }

// SetReposition atomically publishes a reposition command: the target
// frame and the node id that requested it (spec.md §4.6: "Reposition
// writes target frame into the activation's reposition record and
// atomically publishes the reposition-owner id").
func (r *Record) SetReposition(frame uint32, ownerNodeID uint32) {
	r.repositionFrame.Store(frame)
	r.repositionOwner.Store(ownerNodeID)
}

// Reposition reads back the last published reposition command.
func (r *Record) Reposition() (frame uint32, ownerNodeID uint32) {
	return r.repositionFrame.Load(), r.repositionOwner.Load()
}

// XRunCount and SetXRunCount track the cycle's xrun counter (spec.md §3).
func (r *Record) XRunCount() uint32        { return r.xrunCount.Load() }
func (r *Record) SetXRunCount(n uint32)    { r.xrunCount.Store(n) }
func (r *Record) IncrementXRun() uint32    { return r.xrunCount.Add(1) }

// PendingSync and SetPendingSync track whether a transport sync-ack is
// still owed before cycle_run may clear it (spec.md §3, §4.5).
func (r *Record) PendingSync() bool      { return r.pendingSync.Load() }
func (r *Record) SetPendingSync(v bool)  { r.pendingSync.Store(v) }

// CPULoad and SetCPULoad expose the rolling CPU load estimate (spec.md §3).
func (r *Record) CPULoad() float32 {
	return math.Float32frombits(r.cpuLoadBits.Load())
}
func (r *Record) SetCPULoad(v float32) {
	r.cpuLoadBits.Store(math.Float32bits(v))
}

// SyncTimeoutUsec and SetSyncTimeoutUsec expose the configured sync
// timeout (spec.md §3).
func (r *Record) SyncTimeoutUsec() uint32     { return r.syncTimeoutUsec.Load() }
func (r *Record) SetSyncTimeoutUsec(v uint32) { r.syncTimeoutUsec.Store(v) }

// SetReadyCount (re)arms the target-link countdown: the number of
// upstream producers cycle_signal must hear from before this node is
// marked TRIGGERED.
func (r *Record) SetReadyCount(n int32) { r.readyCount.Store(n) }

// DecrementReady atomically counts one upstream producer's cycle_signal
// down and returns the remaining count; callers mark TRIGGERED once it
// reaches zero or below (spec.md §4.5).
func (r *Record) DecrementReady() int32 { return r.readyCount.Add(-1) }

// ReadyCount reports the current countdown value without mutating it.
func (r *Record) ReadyCount() int32 { return r.readyCount.Load() }
