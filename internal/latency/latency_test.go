package latency

import "testing"

func TestSetAndGetLatencyRangeRoundTrips(t *testing.T) {
	p := &Port{}
	p.SetLatencyRange(CaptureLatency, Range{Min: 256, Max: 512}, 128)
	got := p.GetLatencyRange(CaptureLatency, 128, 48000)
	if got.Min != 256 || got.Max != 512 {
		t.Fatalf("got %+v, want Min=256 Max=512", got)
	}
}

func TestSubBufferLatencyStaysInRateNotQuantum(t *testing.T) {
	p := &Port{}
	// 100 < nframes(128): must live entirely in min_rate, quantum stays 0
	// (the upstream behavior this package preserves verbatim).
	p.SetLatencyRange(CaptureLatency, Range{Min: 100, Max: 100}, 128)
	info := p.Info[0]
	if info.MinQuantum != 0 || info.MinRate != 100 {
		t.Fatalf("expected quantum=0 rate=100 for a sub-period latency, got %+v", info)
	}
}

func TestMultiBufferLatencySplitsIntoQuantumAndRemainder(t *testing.T) {
	p := &Port{}
	p.SetLatencyRange(CaptureLatency, Range{Min: 300, Max: 300}, 128)
	info := p.Info[0]
	if info.MinQuantum != 2 || info.MinRate != 44 {
		t.Fatalf("300 / 128 = 2 remainder 44, got quantum=%d rate=%d", info.MinQuantum, info.MinRate)
	}
}

func TestSetLatencyAppliesToCorrectDirectionByFlags(t *testing.T) {
	p := &Port{}
	p.SetLatency(64, true, false, 128)
	if p.Info[0].MinRate != 64 {
		t.Fatalf("expected output port latency to land on the capture (index 0) side")
	}
	if p.Info[1] != (Info{}) {
		t.Fatalf("expected playback side untouched for an output-only port")
	}
}

func TestPropagateSumsAcrossOneLink(t *testing.T) {
	up := &Port{}
	up.SetLatencyRange(CaptureLatency, Range{Min: 100, Max: 100}, 128)
	down := &Port{}

	Propagate([]Edge{{Upstream: up, Downstream: down, LinkRange: Range{Min: 10, Max: 10}}}, 128)

	got := down.GetLatencyRange(CaptureLatency, 128, 48000)
	if got.Min != 110 || got.Max != 110 {
		t.Fatalf("got %+v, want 110/110", got)
	}
}
