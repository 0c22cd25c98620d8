// Package portmix implements the port and mix manager (spec.md §4.2): per
// port mixing slots, buffer arrays, and direction/type-aware buffer
// dispatch. A Mix is one (port, peer) pairing plus the distinguished
// global mix (PeerID = InvalidPeerID); buffers cycle through a small
// per-mix queue the producer dequeues from and the consumer refills.
//
// Grounded on client/audio.go's AudioEngine (channel-fed buffer pipeline
// with a bounded queue depth) and client/internal/jitter.Buffer (fixed
// ring/queue discipline, one reader).
package portmix

import (
	"sync"

	"jackshim/internal/jackerr"
)

// Direction mirrors spa_direction.
type Direction int

const (
	DirectionOutput Direction = iota
	DirectionInput
)

// Type is the port data type (spec.md §3: audio/midi/video/other).
type Type int

const (
	TypeAudio Type = iota
	TypeMIDI
	TypeVideo
	TypeOther
)

// InvalidPeerID marks the distinguished global mix (spec.md §3).
const InvalidPeerID uint32 = 0xffffffff

// MaxBuffers bounds the buffer descriptors held per mix (spec.md §3).
const MaxBuffers = 8

// MaxMix is the silent truncation point for upstream producers feeding
// one input port (spec.md §9 Open Questions — preserved as policy, not
// treated as a bug).
const MaxMix = 1024

// MaxBufferFrames bounds the inline empty buffer's frame capacity.
const MaxBufferFrames = 8192

// alignFloats is the alignment (in float32 elements) emptyptr is aligned to;
// 16 bytes / 4 bytes-per-float32 = 4 elements.
const alignFloats = 4

// LatencyInfo is the per-direction latency range (spec.md §3).
type LatencyInfo struct {
	MinFrames uint32
	MaxFrames uint32
}

// Flags are the port flags from spec.md §3.
type Flags int

const (
	FlagInput Flags = 1 << iota
	FlagOutput
	FlagPhysical
	FlagTerminal
	FlagCanMonitor
)

// IOStatus is spa_io_buffers.status (spec.md §4.2).
type IOStatus int

const (
	IONeedData IOStatus = iota
	IOHaveData
)

// Port is one JACK port, owned by this client or mirroring a remote one.
type Port struct {
	mu sync.Mutex

	ID         uint32 // unique port id, assigned by Manager.AllocPort
	Name       string // fully qualified "client:port"
	Aliases    [2]string
	NAliases   int
	SystemName string // "system:<kind>_<n>"
	NodeID     uint32
	Type       Type
	Direction  Direction
	Flags      Flags
	MonitorCnt int
	Latency    [2]LatencyInfo // indexed by Direction

	GlobalMix *Mix
	Mixes     []*Mix // per-peer mixes, excluding GlobalMix

	Tied     *Port
	EmptyOut bool
	Zeroed   bool

	FixNoteOnZeroVelocity bool

	empty    []float32 // backing array, MaxBufferFrames+alignFloats long
	emptyptr []float32 // 16-byte-aligned view into empty
	mixBuf   []float32 // scratch accumulator for multi-producer audio sums
	midiMix  []byte    // scratch midi_buffer for merged MIDI input

	outScratch []byte // backing array for outBuf, reused across cycles
	outBuf     []byte // this cycle's prepared output buffer, nil if unprepared

	io IOStatus

	getBuffer func(p *Port, frames uint32) []byte
}

// NewPort allocates a Port with its inline empty buffer sized and
// 16-byte-aligned (spec.md §3): "an inline empty buffer (>= max-frames x
// 4 bytes, aligned to 16) used as a silent source".
func NewPort(name string, direction Direction, typ Type, flags Flags) *Port {
	p := &Port{
		Name:      name,
		Direction: direction,
		Type:      typ,
		Flags:     flags,
		empty:     make([]float32, MaxBufferFrames+alignFloats),
	}
	p.emptyptr = alignEmpty(p.empty)
	p.getBuffer = selectGetBuffer(direction, typ)
	return p
}

// alignEmpty returns the MaxBufferFrames-long view of buf used as
// emptyptr. The start offset is derived from len(buf) modulo alignFloats,
// not from buf's address: for the MaxBufferFrames+alignFloats-long buffer
// NewPort allocates, that offset is 0. The 16-byte alignment of emptyptr
// therefore rests on the Go allocator's alignment of that allocation; the
// address itself is not checked here.
func alignEmpty(buf []float32) []float32 {
	const mask = alignFloats - 1
	off := 0
	if rem := len(buf) & mask; rem != 0 {
		off = alignFloats - rem
	}
	return buf[off : off+MaxBufferFrames]
}

// GetBuffer dispatches to the direction/type-specific accessor chosen at
// construction (spec.md §4.2): the sum-type-over-function-pointer pattern
// spec.md §9 calls out, modeled here as a plain field set once at Alloc
// time rather than re-dispatched on every call.
func (p *Port) GetBuffer(frames uint32) []byte {
	return p.getBuffer(p, frames)
}

// EmptyPtr returns the port's 16-byte-aligned silent buffer.
func (p *Port) EmptyPtr() []float32 { return p.emptyptr }

// SetAlias installs an additional name for the port (jack_port_set_alias,
// spec.md §8 scenario #3): up to two slots are available; a third call
// is rejected with ErrResource rather than silently overwriting one.
func (p *Port) SetAlias(alias string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NAliases >= len(p.Aliases) {
		return jackerr.ErrResource
	}
	p.Aliases[p.NAliases] = alias
	p.NAliases++
	return nil
}

// GetAliases returns the port's currently installed aliases
// (jack_port_get_aliases).
func (p *Port) GetAliases() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, p.NAliases)
	copy(out, p.Aliases[:p.NAliases])
	return out
}

// UnsetAlias removes a previously installed alias (jack_port_unset_alias),
// compacting the remaining slot down to index 0.
func (p *Port) UnsetAlias(alias string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < p.NAliases; i++ {
		if p.Aliases[i] != alias {
			continue
		}
		for j := i; j < p.NAliases-1; j++ {
			p.Aliases[j] = p.Aliases[j+1]
		}
		p.Aliases[p.NAliases-1] = ""
		p.NAliases--
		return nil
	}
	return jackerr.ErrArgument
}

// Manager owns every port and mix belonging to one client, plus the
// shared free lists for mixes (spec.md §3's "Client" owns these).
type Manager struct {
	mu       sync.Mutex
	maxPorts int
	nextPort uint32

	freeMixes []*Mix
	allMixes  []*Mix // global list across all ports, for iteration at cycle boundaries

	ports [2][]*Port // indexed by Direction
}

// NewManager creates a Manager capped at maxPorts total ports
// (jack.max-client-ports, spec.md §6, default 768).
func NewManager(maxPorts int) *Manager {
	if maxPorts <= 0 {
		maxPorts = 768
	}
	return &Manager{maxPorts: maxPorts}
}

// AllocPort registers a new port, failing with ErrResource once maxPorts
// is reached (spec.md §8 boundary: registering a 769th port on a
// max_ports=768 client returns ENOSPC).
func (m *Manager) AllocPort(name string, direction Direction, typ Type, flags Flags) (*Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := len(m.ports[DirectionInput]) + len(m.ports[DirectionOutput])
	if total >= m.maxPorts {
		return nil, jackerr.ErrResource
	}
	p := NewPort(name, direction, typ, flags)
	m.nextPort++
	p.ID = m.nextPort
	m.ports[direction] = append(m.ports[direction], p)
	return p, nil
}

// RemovePort drops p from its direction's slot map.
func (m *Manager) RemovePort(p *Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.ports[p.Direction]
	for i, q := range list {
		if q == p {
			m.ports[p.Direction] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// PortCount returns the number of ports currently registered, by direction.
func (m *Manager) PortCount(direction Direction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ports[direction])
}

func selectGetBuffer(direction Direction, typ Type) func(*Port, uint32) []byte {
	switch {
	case typ == TypeAudio && direction == DirectionInput:
		return getBufferAudioInput
	case typ == TypeAudio && direction == DirectionOutput:
		return getBufferOutputDispatch
	case typ == TypeMIDI && direction == DirectionInput:
		return getBufferMIDIInput
	case typ == TypeMIDI && direction == DirectionOutput:
		return getBufferOutputDispatch
	case typ == TypeVideo:
		return getBufferVideo
	default:
		return getBufferEmpty
	}
}

func getBufferEmpty(p *Port, frames uint32) []byte {
	return float32BytesView(p.emptyptr[:frames])
}

func getBufferVideo(p *Port, frames uint32) []byte {
	if p.Direction == DirectionOutput {
		return getBufferOutputDispatch(p, frames)
	}
	return getBufferEmpty(p, frames)
}
