// Package latency implements per-direction latency ranges and their
// quantum/rate split, and the full-graph latency propagation pass
// (spec.md §4.10).
//
// Grounded verbatim on original_source/pipewire-jack/src/pipewire-jack.c:
// jack_port_set_latency_range (lines 5851-5884) and
// jack_port_get_latency_range (lines 5808-5834), including the
// quantum/rate split's guard condition preserved exactly as upstream
// writes it: min_quantum/min_rate (and max_quantum/max_rate) are only
// recomputed when the raw value is >= nframes, so a latency value
// smaller than one buffer period is stored entirely in *_rate and never
// contributes a quantum term — this is upstream's actual behavior, kept
// rather than "fixed".
package latency

// CallbackMode mirrors jack_latency_callback_mode_t.
type CallbackMode int

const (
	CaptureLatency CallbackMode = iota
	PlaybackLatency
)

// Range is a jack_latency_range_t: an inclusive [Min, Max] frame count.
type Range struct {
	Min, Max uint32
}

// Info is the internal spa_latency_info-equivalent quantum/rate/ns split
// for one direction, the actual values stored and recomputed from.
type Info struct {
	MinQuantum, MaxQuantum uint32
	MinRate, MaxRate       uint32
	MinNS, MaxNS           uint64
}

// Port holds per-direction latency Info, indexed the same way the
// portmix package indexes by direction (0 = output/capture side,
// 1 = input/playback side).
type Port struct {
	Info [2]Info
}

// direction maps a CallbackMode to the Info slot it reads/writes:
// capture latency describes the output side of a port's signal path,
// playback latency the input side (spec.md §4.10, matching the upstream
// SPA_DIRECTION_OUTPUT/INPUT mapping).
func direction(mode CallbackMode) int {
	if mode == CaptureLatency {
		return 0
	}
	return 1
}

// SetLatencyRange stores range for mode, splitting it into a
// quantum/rate pair scaled against the current buffer size (nframes),
// exactly as jack_port_set_latency_range does. nframes is clamped to at
// least 1, matching the upstream guard against a divide-by-zero before
// the engine has negotiated a buffer size.
func (p *Port) SetLatencyRange(mode CallbackMode, r Range, nframes uint32) {
	if nframes == 0 {
		nframes = 1
	}
	d := direction(mode)
	info := Info{}

	info.MinRate = r.Min
	if info.MinRate >= nframes {
		info.MinQuantum = info.MinRate / nframes
		info.MinRate = info.MinRate % nframes
	}
	info.MaxRate = r.Max
	if info.MaxRate >= nframes {
		info.MaxQuantum = info.MaxRate / nframes
		info.MaxRate = info.MaxRate % nframes
	}
	p.Info[d] = info
}

// GetLatencyRange reconstructs a Range from the stored Info for mode,
// scaled back up against nframes/rate (jack_port_get_latency_range).
func (p *Port) GetLatencyRange(mode CallbackMode, nframes, sampleRate uint32) Range {
	d := direction(mode)
	info := p.Info[d]
	return Range{
		Min: info.MinQuantum*nframes + info.MinRate + uint32(info.MinNS*uint64(sampleRate)/1_000_000_000),
		Max: info.MaxQuantum*nframes + info.MaxRate + uint32(info.MaxNS*uint64(sampleRate)/1_000_000_000),
	}
}

// SetLatency is the single-value convenience wrapper (jack_port_set_latency):
// it sets both Min and Max of one range to the same value, choosing
// CaptureLatency for an output-flagged port and PlaybackLatency for an
// input-flagged port (a port can be only one of the two; spec.md §3).
func (p *Port) SetLatency(frames uint32, isOutput, isInput bool, nframes uint32) {
	r := Range{Min: frames, Max: frames}
	if isOutput {
		p.SetLatencyRange(CaptureLatency, r, nframes)
	}
	if isInput {
		p.SetLatencyRange(PlaybackLatency, r, nframes)
	}
}

// TotalLatency is (min+max)/2 averaged over the port's single relevant
// direction, matching port_get_latency's return value.
func (p *Port) TotalLatency(isOutput bool, nframes, sampleRate uint32) uint32 {
	mode := PlaybackLatency
	if isOutput {
		mode = CaptureLatency
	}
	r := p.GetLatencyRange(mode, nframes, sampleRate)
	return (r.Min + r.Max) / 2
}

// Edge is one link in the propagation graph: a connection from an
// upstream port to a downstream port, carrying the link's own added
// latency range (spec.md §4.10).
type Edge struct {
	Upstream, Downstream *Port
	LinkRange            Range
}

// Propagate recomputes every downstream port's capture-latency range as
// the sum of its upstream port's capture range plus the link's own range
// (spec.md §4.10: the propagation pass JACK_LATENCY_CALLBACK_CAPTURE
// graph walk), returning once no edge's result changed (fixed point).
func Propagate(edges []Edge, nframes uint32) {
	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			up := e.Upstream.GetLatencyRange(CaptureLatency, nframes, 48000)
			want := Range{
				Min: up.Min + e.LinkRange.Min,
				Max: up.Max + e.LinkRange.Max,
			}
			cur := e.Downstream.GetLatencyRange(CaptureLatency, nframes, 48000)
			if cur != want {
				e.Downstream.SetLatencyRange(CaptureLatency, want, nframes)
				changed = true
			}
		}
	}
}
