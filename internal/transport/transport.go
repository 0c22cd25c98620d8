// Package transport implements JACK transport state and BBT timebase
// translation (spec.md §4.6): start/stop/reposition, the single timebase
// master election via compare-and-swap on a shared segment owner slot,
// and the position_to_jack / jack_to_position frame<->BBT arithmetic.
//
// Grounded on original_source/pipewire-jack/src/pipewire-jack.c:1547-1634
// (position_to_jack/jack_to_position, reproduced with the same bar/beat/
// tick arithmetic and ticks_per_beat=1920 constant) and :1917-1946
// (install_timeowner's conditional-vs-unconditional CAS election).
package transport

import (
	"sync/atomic"

	"jackshim/internal/activation"
	"jackshim/internal/jackerr"
)

// State mirrors jack_transport_state_t.
type State int

const (
	StateStopped State = iota
	StateRolling
	StateStarting
	StateLooping
)

// TicksPerBeat is the fixed BBT tick resolution (spec.md §4.6).
const TicksPerBeat = 1920.0

// BBT is the decoded bar/beat/tick position (spec.md §3).
type BBT struct {
	Bar             int32
	Beat            int32
	Tick            int32
	BarStartTick    float64
	BeatsPerBar     float32
	BeatType        float32
	TicksPerBeat    float64
	BeatsPerMinute  float64
	BBTOffsetValid  bool
	BBTOffsetFrames uint32
}

// Position is the transport position snapshot jack_transport_query
// returns — the frame counter plus an optional BBT decode.
type Position struct {
	Unique1   uint64
	Unique2   uint64
	USecs     uint64
	FrameRate uint32
	Frame     uint64
	Valid     bool // has BBT
	BBT       BBT
}

// Segment is the shared per-cycle transport segment a driver publishes
// (spa_io_segment / spa_io_position, reduced to the fields the BBT
// translation needs).
type Segment struct {
	Start          uint64
	Duration       uint64
	Position       uint64
	Rate           float64
	BarValid       bool
	BarOffset      uint32
	BeatsPerBar    float32
	BeatType       float32
	BeatsPerMinute float64
	AbsBeat        float64
	Looping        bool
}

// ClockState is the raw driver clock sample position_to_jack reads.
type ClockState struct {
	NSec       uint64
	RateDenom  uint32
	Position   int64
	Offset     int64
	EngineState State // SPA_IO_POSITION_STATE_*
}

// Transport owns the shared activation record — whose segment-owner and
// reposition fields it elects and publishes into — plus the running
// unique counter used to detect a position read racing a writer.
type Transport struct {
	rec    *activation.Record
	unique atomic.Uint64
}

// New returns an unowned Transport backed by a fresh activation record.
func New() *Transport { return NewWithActivation(activation.New()) }

// NewWithActivation returns a Transport whose timebase election and
// reposition commands are published into rec — the same record the RT
// cycle driver marks AWAKE/FINISHED each cycle (spec.md §4.5, §4.6).
func NewWithActivation(rec *activation.Record) *Transport {
	if rec == nil {
		rec = activation.New()
	}
	return &Transport{rec: rec}
}

// Activation returns the activation record this Transport publishes
// timebase and reposition state into.
func (t *Transport) Activation() *activation.Record { return t.rec }

// InstallTimebase attempts to become the timebase master for node nodeID
// (spec.md §4.6). When conditional is true it only succeeds if no master
// is currently installed (the CAS(0, nodeID) path); when false it
// unconditionally overwrites any existing owner.
func (t *Transport) InstallTimebase(nodeID uint32, conditional bool) error {
	if owner := t.rec.SegmentOwnerLoad(); owner == nodeID {
		return nil
	}
	if conditional {
		if !t.rec.SegmentOwnerCAS(0, nodeID) {
			return jackerr.ErrResource
		}
		return nil
	}
	t.rec.SegmentOwnerStore(nodeID)
	return nil
}

// ReleaseTimebase drops nodeID's ownership, if it currently holds it.
func (t *Transport) ReleaseTimebase(nodeID uint32) error {
	if !t.rec.SegmentOwnerCAS(nodeID, 0) {
		return jackerr.ErrState
	}
	return nil
}

// TimebaseOwner returns the current timebase master's node id, or 0 if
// none is installed.
func (t *Transport) TimebaseOwner() uint32 {
	return t.rec.SegmentOwnerLoad()
}

// Locate implements jack_transport_locate/jack_transport_reposition
// (spec.md §4.6): it writes the requested target frame into the
// activation record's reposition command and atomically publishes
// nodeID as the reposition owner, where Reposition reads them back.
func (t *Transport) Locate(nodeID uint32, frame uint32) {
	t.rec.SetReposition(frame, nodeID)
}

// Reposition reads back the last published reposition command: the
// target frame and the node id that requested it.
func (t *Transport) Reposition() (frame uint32, ownerNodeID uint32) {
	return t.rec.Reposition()
}

// PositionToJack translates a driver clock sample and segment into a
// jack_position_t-equivalent snapshot (position_to_jack).
func (t *Transport) PositionToJack(clock ClockState, seg Segment) (State, Position) {
	var state State
	switch clock.EngineState {
	case StateStopped:
		state = StateStopped
	case StateStarting:
		state = StateStarting
	default:
		if seg.Looping {
			state = StateLooping
		} else {
			state = StateRolling
		}
	}

	u1 := t.unique.Add(1)

	pos := Position{
		Unique1:   u1,
		USecs:     clock.NSec / 1000,
		FrameRate: clock.RateDenom,
	}

	if clock.Position < clock.Offset {
		pos.Frame = seg.Position
	} else {
		running := uint64(clock.Position) - uint64(clock.Offset)
		if running >= seg.Start && (seg.Duration == 0 || running < seg.Start+seg.Duration) {
			pos.Frame = uint64(float64(running-seg.Start)*seg.Rate) + seg.Position
		} else {
			pos.Frame = seg.Position
		}
	}

	if t.rec.SegmentOwnerLoad() != 0 && seg.BarValid {
		pos.Valid = true
		pos.BBT = decodeBBT(seg)
	}

	pos.Unique2 = pos.Unique1
	return state, pos
}

// decodeBBT reproduces the bar/beat/tick split of
// original_source/pipewire-jack/src/pipewire-jack.c:1609-1634 exactly:
// absolute beat count divided into whole bars, then whole beats, then a
// tick remainder, all against the fixed 1920 ticks-per-beat constant.
func decodeBBT(seg Segment) BBT {
	b := BBT{
		BeatsPerBar:    seg.BeatsPerBar,
		BeatType:       seg.BeatType,
		TicksPerBeat:   TicksPerBeat,
		BeatsPerMinute: seg.BeatsPerMinute,
	}
	if seg.BarOffset != 0 {
		b.BBTOffsetValid = true
		b.BBTOffsetFrames = seg.BarOffset
	}

	absBeat := seg.AbsBeat
	bar := absBeat / float64(seg.BeatsPerBar)
	bars := float64(int64(bar)) * float64(seg.BeatsPerBar)
	barStartTick := bars * TicksPerBeat
	beat := absBeat - bars
	beatsWhole := bars + float64(int64(beat))
	tick := (absBeat - beatsWhole) * TicksPerBeat

	b.Bar = int32(bar) + 1
	b.Beat = int32(beat) + 1
	b.Tick = int32(tick)
	b.BarStartTick = barStartTick
	return b
}

// JackToPosition folds a caller-supplied BBT back into the shared segment
// (jack_to_position): recomputing seg.AbsBeat from bar/beat/tick so a
// reposition request round-trips through the same arithmetic.
func JackToPosition(p Position) Segment {
	var seg Segment
	if !p.Valid {
		return seg
	}
	b := p.BBT
	seg.BarValid = true
	if b.BBTOffsetValid {
		seg.BarOffset = b.BBTOffsetFrames
	}
	seg.BeatsPerBar = b.BeatsPerBar
	seg.BeatType = b.BeatType
	seg.BeatsPerMinute = b.BeatsPerMinute
	seg.AbsBeat = float64(b.Bar-1)*float64(b.BeatsPerBar) + float64(b.Beat-1) + float64(b.Tick)/b.TicksPerBeat
	return seg
}
