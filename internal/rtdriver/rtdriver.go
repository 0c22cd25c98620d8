// Package rtdriver implements the real-time cycle driver state machine
// (spec.md §4.5): cycle_wait / cycle_run / cycle_signal against a shared
// activation record, xrun and freewheel detection, and the rolling
// cycle-time statistics surface.
//
// Grounded on client/internal/jitter.Buffer's fixed-depth timing window
// and client/audio.go's callback-driven process loop (a driver thread
// that waits for a period boundary, invokes the registered process
// callback, then signals completion back to the graph); the wakeup
// counter cycle_wait reads from simsocket.go stands in for the socket
// read client/transport.go's SendAudio/ReceiveDatagram pair performs.
package rtdriver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"jackshim/internal/activation"
	"jackshim/internal/notifyring"
	"jackshim/internal/transport"
)

// State is the driver's current position in the cycle state machine
// (spec.md §4.5).
type State int

const (
	StateWait State = iota
	StateRun
	StateSignal
)

// StatsWindow bounds how many recent cycle times CycleTimes reports over
// (spec.md §4.5: min/max/avg over the last 1024 cycles).
const StatsWindow = 1024

// ProcessFunc is the registered real-time callback invoked once per
// cycle; it returns false to request the driver stop.
type ProcessFunc func(frames uint32) bool

// WakeupSource is the 8-byte-wakeup-counter socket cycle_wait reads from
// (spec.md §4.5). simSocket implements it; tests and freewheel mode can
// leave it unset and fall back to wall-clock timing.
type WakeupSource interface {
	Recv(ctx context.Context) (uint64, error)
}

// TargetLink is one downstream node this driver's cycle_signal fans out
// to: its activation record and the signalfd-equivalent callback that
// wakes it once every upstream producer has finished (spec.md §4.5).
type TargetLink struct {
	Activation *activation.Record
	Signal     func()
}

// Driver runs the cycle_wait/cycle_run/cycle_signal loop against a fixed
// period, marking a shared activation record each cycle and tracking
// xruns and freewheel mode.
type Driver struct {
	mu  sync.Mutex
	log *slog.Logger

	period     time.Duration
	bufferSize uint32
	sampleRate uint32
	state      State
	freewheel  bool
	process    ProcessFunc

	rec         *activation.Record
	nodeID      uint32
	wakeup      WakeupSource
	lastWakeup  uint64
	ring        *notifyring.Ring
	transp      *transport.Transport
	timebaseFn  func(transport.Position) transport.Position
	syncFn      func() bool
	xrunCallback func()
	xrunSource   func() uint32
	lastXrunSeen uint32

	liveBufferSize uint32
	liveSampleRate uint32
	segment        transport.Segment
	jackPosition   transport.Position

	targetLinks []TargetLink

	xrunCount   uint64
	cycleTimes  [StatsWindow]time.Duration
	cycleIdx    int
	cycleFilled int

	lastDeadline time.Time
}

// New creates a Driver for a fixed period and buffer size, both
// recomputed by the caller whenever jack_set_buffer_size changes them
// (spec.md §4.6 ties buffer size to period length at a given sample rate).
// It owns a fresh activation record, reachable via Activation.
func New(period time.Duration, bufferSize uint32) *Driver {
	return &Driver{
		period:     period,
		bufferSize: bufferSize,
		state:      StateWait,
		rec:        activation.New(),
		log:        slog.Default(),
	}
}

// Activation returns the driver's own activation record — AWAKE at the
// start of every cycle_run, FINISHED at the end of every cycle_signal.
func (d *Driver) Activation() *activation.Record {
	return d.rec
}

// SetLogger overrides the default slog.Default() logger.
func (d *Driver) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = l
}

// SetProcess installs the real-time callback.
func (d *Driver) SetProcess(fn ProcessFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.process = fn
}

// SetFreewheel toggles freewheel mode: the driver stops waiting on the
// wall clock and runs cycles back-to-back as fast as the process
// callback returns (spec.md §4.5, §5).
func (d *Driver) SetFreewheel(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freewheel = on
}

// Freewheeling reports the current freewheel state.
func (d *Driver) Freewheeling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freewheel
}

// State reports the driver's current cycle-machine state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetWakeupSource installs the socket cycle_wait reads its 8-byte wakeup
// counter from. When unset, cycle_wait falls back to wall-clock timing.
func (d *Driver) SetWakeupSource(w WakeupSource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wakeup = w
}

// SetNotifyRing installs the ring cycle_run pushes BUFFER_FRAMES /
// SAMPLE_RATE notifications into when the live driver values diverge
// from the cached pair.
func (d *Driver) SetNotifyRing(r *notifyring.Ring) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ring = r
}

// SetTransport installs the transport cycle_run copies into
// jack_position each cycle, and the timebase ownership cycle_signal
// checks nodeID against before invoking the timebase callback.
func (d *Driver) SetTransport(t *transport.Transport, nodeID uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transp = t
	d.nodeID = nodeID
}

// SetSegment installs the shared transport segment cycle_run translates
// into jack_position via transport.PositionToJack.
func (d *Driver) SetSegment(seg transport.Segment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segment = seg
}

// JackPosition returns the jack_position_t-equivalent snapshot the most
// recent cycle_run copied the transport into.
func (d *Driver) JackPosition() transport.Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jackPosition
}

// SetTimebaseCallback installs the per-cycle timebase callback
// cycle_signal invokes when status is 0 and this node owns the timebase
// (spec.md §4.6). The transport state is not consulted: the callback runs
// every such cycle, whether the transport is stopped, rolling or looping,
// and whether or not a reposition is pending. It returns the updated jack_position to fold back into the
// shared segment.
func (d *Driver) SetTimebaseCallback(fn func(transport.Position) transport.Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timebaseFn = fn
}

// SetSyncCallback installs the JackSyncCallback cycle_run polls once a
// pending_sync is outstanding; returning true clears it (spec.md §4.5).
func (d *Driver) SetSyncCallback(fn func() bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncFn = fn
}

// SetXRunSource installs a function reporting the driver's live,
// monotonically increasing xrun count; cycle_run copies its growth into
// the activation record and invokes the xrun callback when it grows.
func (d *Driver) SetXRunSource(fn func() uint32, onXRun func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.xrunSource = fn
	d.xrunCallback = onXRun
}

// SetLiveBufferFrames and SetLiveSampleRate record what the underlying
// driver is currently actually running at; cycle_run compares these
// against the cached buffer_frames/sample_rate pair every cycle and
// pushes a BUFFER_FRAMES/SAMPLE_RATE notification (skipping the cycle)
// on mismatch (spec.md §4.5). A zero value disables the corresponding
// check — the default, so existing fixed-configuration callers are
// unaffected.
func (d *Driver) SetLiveBufferFrames(frames uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.liveBufferSize = frames
}

func (d *Driver) SetLiveSampleRate(rate uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.liveSampleRate = rate
}

// SetSampleRate records the cached sample rate cycle_run verifies the
// live value against.
func (d *Driver) SetSampleRate(rate uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sampleRate = rate
}

// AddTargetLink registers a downstream node cycle_signal counts down and
// triggers once every upstream producer targeting it has finished.
func (d *Driver) AddTargetLink(link TargetLink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targetLinks = append(d.targetLinks, link)
}

// Run drives cycles until ctx is cancelled or the process callback
// returns false. Each iteration is CycleWait (block for the period
// boundary or the next wakeup counter, unless freewheeling) -> CycleRun
// (mark the activation AWAKE, invoke process) -> CycleSignal (mark the
// activation FINISHED, fan out to target links, publish statistics).
func (d *Driver) Run(ctx context.Context) {
	d.mu.Lock()
	d.lastDeadline = time.Now()
	d.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return
		}
		if !d.CycleWait(ctx) {
			return
		}
		elapsed, ok := d.CycleRun()
		if !ok {
			return
		}
		d.CycleSignal(elapsed, 0)
	}
}

// CycleWait blocks until the next cycle boundary: the next 8-byte
// wakeup counter off the installed WakeupSource if one is set, otherwise
// the wall-clock period deadline. Freewheeling skips waiting entirely
// (spec.md §4.5, §5).
func (d *Driver) CycleWait(ctx context.Context) bool {
	d.mu.Lock()
	d.state = StateWait
	freewheel := d.freewheel
	wakeup := d.wakeup
	lastCounter := d.lastWakeup
	deadline := d.lastDeadline.Add(d.period)
	log := d.log
	d.mu.Unlock()

	if freewheel {
		return true
	}

	if wakeup != nil {
		counter, err := wakeup.Recv(ctx)
		if err != nil {
			return false
		}
		if lastCounter != 0 && counter > lastCounter+1 {
			log.Warn("skipped wakeups", "count", counter-lastCounter-1)
		}
		d.mu.Lock()
		d.lastWakeup = counter
		d.lastDeadline = time.Now()
		d.mu.Unlock()
		return true
	}

	wait := time.Until(deadline)
	if wait <= 0 {
		// Missed the deadline: this cycle is an xrun, but we still run it
		// immediately rather than compounding the lateness.
		d.mu.Lock()
		d.xrunCount++
		d.lastDeadline = time.Now()
		d.mu.Unlock()
		return true
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		d.mu.Lock()
		d.lastDeadline = deadline
		d.mu.Unlock()
		return true
	}
}

// CycleRun implements cycle_run (spec.md §4.5): mark the activation
// AWAKE, verify the cached buffer_frames/sample_rate pair against the
// driver's live values (pushing BUFFER_FRAMES/SAMPLE_RATE notifications
// and skipping the cycle on mismatch), copy the transport into
// jack_position, clear pending_sync once the sync callback acknowledges
// it, fold in any xrun growth reported by the driver, then invoke the
// process callback.
func (d *Driver) CycleRun() (time.Duration, bool) {
	d.mu.Lock()
	d.state = StateRun
	now := time.Now()
	d.rec.MarkAwake(now)

	if mismatch := d.checkConfigMismatchLocked(); mismatch {
		d.mu.Unlock()
		return 0, true
	}

	if d.transp != nil {
		_, pos := d.transp.PositionToJack(d.clockStateLocked(now), d.segment)
		d.jackPosition = pos
	}

	if d.rec.PendingSync() && d.syncFn != nil {
		if d.syncFn() {
			d.rec.SetPendingSync(false)
		}
	}

	if d.xrunSource != nil {
		if total := d.xrunSource(); total > d.lastXrunSeen {
			d.lastXrunSeen = total
			d.rec.SetXRunCount(total)
			cb := d.xrunCallback
			if cb != nil {
				d.mu.Unlock()
				cb()
				d.mu.Lock()
			}
		}
	}

	fn := d.process
	bufSize := d.bufferSize
	d.mu.Unlock()

	if fn == nil {
		return 0, true
	}
	start := time.Now()
	ok := fn(bufSize)
	return time.Since(start), ok
}

// checkConfigMismatchLocked compares the driver's live buffer_frames/
// sample_rate (when tracked) against the cached pair, pushing a
// notification for whichever diverges. Caller holds d.mu.
func (d *Driver) checkConfigMismatchLocked() bool {
	mismatch := false
	if d.liveBufferSize != 0 && d.liveBufferSize != d.bufferSize {
		d.pushNotifyLocked(notifyring.KindBufferFrames, d.liveBufferSize)
		mismatch = true
	}
	if d.liveSampleRate != 0 && d.liveSampleRate != d.sampleRate {
		d.pushNotifyLocked(notifyring.KindSampleRate, d.liveSampleRate)
		mismatch = true
	}
	return mismatch
}

func (d *Driver) pushNotifyLocked(kind notifyring.Kind, value uint32) {
	if d.ring == nil {
		return
	}
	d.ring.Push(notifyring.Record{Kind: kind, A: value})
}

func (d *Driver) clockStateLocked(now time.Time) transport.ClockState {
	return transport.ClockState{
		NSec:        uint64(now.UnixNano()),
		RateDenom:   d.sampleRate,
		EngineState: transport.StateRolling,
	}
}

// CycleSignal implements cycle_signal (spec.md §4.5): when status is 0
// and this node owns the timebase, invoke the timebase callback and fold
// its updated jack_position back into the shared segment; then always
// call signal_sync — mark the activation FINISHED with the finish time,
// and for every target link atomically decrement its ready count,
// marking the peer TRIGGERED and invoking its signalfd callback once the
// countdown reaches the ready threshold.
func (d *Driver) CycleSignal(elapsed time.Duration, status int) {
	d.mu.Lock()
	d.state = StateSignal
	d.cycleTimes[d.cycleIdx] = elapsed
	d.cycleIdx = (d.cycleIdx + 1) % StatsWindow
	if d.cycleFilled < StatsWindow {
		d.cycleFilled++
	}
	if elapsed > d.period {
		d.xrunCount++
	}

	now := time.Now()
	if status == 0 && d.transp != nil && d.nodeID != 0 && d.transp.TimebaseOwner() == d.nodeID && d.timebaseFn != nil {
		updated := d.timebaseFn(d.jackPosition)
		d.segment = transport.JackToPosition(updated)
	}

	d.signalSyncLocked(now)
	d.mu.Unlock()
}

// signalSyncLocked marks this driver's activation FINISHED and fans out
// to every registered target link. Caller holds d.mu.
func (d *Driver) signalSyncLocked(now time.Time) {
	d.rec.MarkFinished(now)
	for _, link := range d.targetLinks {
		if link.Activation == nil {
			continue
		}
		if remaining := link.Activation.DecrementReady(); remaining <= 0 {
			link.Activation.MarkTriggered(now)
			if link.Signal != nil {
				link.Signal()
			}
		}
	}
}

// Stats is the cycle-time statistics surface (spec.md §4.5).
type Stats struct {
	Min, Max, Avg time.Duration
	XRuns         uint64
	Samples       int
}

// CycleTimes reports min/max/avg over the last StatsWindow cycles.
func (d *Driver) CycleTimes() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{XRuns: d.xrunCount, Samples: d.cycleFilled}
	if d.cycleFilled == 0 {
		return s
	}
	var total time.Duration
	s.Min = d.cycleTimes[0]
	for i := 0; i < d.cycleFilled; i++ {
		v := d.cycleTimes[i]
		total += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Avg = total / time.Duration(d.cycleFilled)
	return s
}

// XRunCount returns the cumulative number of detected xruns.
func (d *Driver) XRunCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.xrunCount
}
