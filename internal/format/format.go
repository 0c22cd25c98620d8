// Package format negotiates the SPA parameter objects exchanged between
// a client node and its driver during port connection setup: EnumFormat,
// Format, Buffers, IO and Latency (spec.md §4.2's use_buffers/port_use_io
// plumbing references these by name without detailing their structure).
//
// Grounded on client/audio.go's format negotiation against PortAudio
// (enumerate supported sample formats/rates, pick one, request buffers
// sized to match).
package format

import "jackshim/internal/jackerr"

// MediaType is the SPA media type a port format negotiates over.
type MediaType int

const (
	MediaTypeAudio MediaType = iota
	MediaTypeVideo
	MediaTypeMIDI
)

// SampleFormat lists the sample encodings a port may advertise.
type SampleFormat int

const (
	SampleF32 SampleFormat = iota
	SampleS16
	SampleS32
)

// AudioFormat is the negotiated Format parameter for an audio port.
type AudioFormat struct {
	MediaType  MediaType
	Sample     SampleFormat
	Rate       uint32
	Channels   uint32
}

// EnumFormat is the candidate set a port advertises before negotiation.
type EnumFormat struct {
	MediaType MediaType
	Samples   []SampleFormat
	Rates     []uint32
}

// Negotiate picks the first sample format and rate both EnumFormats
// share, preferring the requesting side's own rate if it is present on
// both (spec.md §4.2: the engine's rate always wins when compatible).
func Negotiate(local, remote EnumFormat, engineRate uint32) (AudioFormat, error) {
	if local.MediaType != remote.MediaType {
		return AudioFormat{}, jackerr.ErrArgument
	}

	sample, ok := firstCommon(local.Samples, remote.Samples)
	if !ok {
		return AudioFormat{}, jackerr.ErrArgument
	}

	rate := engineRate
	if !containsRate(local.Rates, rate) || !containsRate(remote.Rates, rate) {
		rate, ok = firstCommonRate(local.Rates, remote.Rates)
		if !ok {
			return AudioFormat{}, jackerr.ErrArgument
		}
	}

	return AudioFormat{MediaType: local.MediaType, Sample: sample, Rate: rate, Channels: 1}, nil
}

func firstCommon(a, b []SampleFormat) (SampleFormat, bool) {
	set := make(map[SampleFormat]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	for _, s := range a {
		if set[s] {
			return s, true
		}
	}
	return 0, false
}

func containsRate(rates []uint32, r uint32) bool {
	for _, v := range rates {
		if v == r {
			return true
		}
	}
	return false
}

func firstCommonRate(a, b []uint32) (uint32, bool) {
	set := make(map[uint32]bool, len(b))
	for _, r := range b {
		set[r] = true
	}
	for _, r := range a {
		if set[r] {
			return r, true
		}
	}
	return 0, false
}

// Buffers is the negotiated Buffers parameter: how many buffers of what
// size a port's mix queue should hold (spec.md §4.2 use_buffers).
type Buffers struct {
	NBuffers uint32
	Size     uint32 // bytes per buffer
	Stride   uint32
}

// NegotiateBuffers derives a Buffers parameter from the negotiated
// format and the engine's buffer size in frames.
func NegotiateBuffers(f AudioFormat, nframes, maxBuffers uint32) Buffers {
	bytesPerSample := uint32(4)
	if f.Sample == SampleS16 {
		bytesPerSample = 2
	}
	size := nframes * bytesPerSample * f.Channels
	return Buffers{NBuffers: maxBuffers, Size: size, Stride: bytesPerSample * f.Channels}
}

// IO is the negotiated IO parameter: which spa_io_buffers slot the port
// reads/writes its per-cycle status through (spec.md §4.2).
type IO struct {
	ID   uint32
	Size uint32
}

// Latency is the negotiated Latency parameter exchanged so both ends of
// a link agree on the link's own contribution to the total chain
// (spec.md §4.10 reads this during propagation).
type Latency struct {
	MinFrames, MaxFrames uint32
}
