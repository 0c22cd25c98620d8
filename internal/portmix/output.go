package portmix

import "jackshim/internal/midicodec"

// getBufferOutputDispatch returns the buffer a client writes its output
// into for this cycle: its own mix buffer if one was prepared via
// PrepareOutput, otherwise the port's empty buffer so an unconnected or
// not-yet-prepared output port never hands back a nil/garbage pointer.
func getBufferOutputDispatch(p *Port, frames uint32) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outBuf != nil {
		return p.outBuf
	}
	return float32BytesView(p.emptyptr[:frames])
}

// PrepareOutput allocates (or reuses) this output port's per-cycle
// scratch buffer ahead of the client callback writing into it (spec.md
// §4.2 prepare_output).
func (p *Port) PrepareOutput(frames uint32) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	size := int(frames) * 4
	if p.Type == TypeMIDI {
		size = midiBufferSize(frames)
	}
	if cap(p.outScratch) < size {
		p.outScratch = make([]byte, size)
	}
	p.outBuf = p.outScratch[:size]
	if p.Type == TypeMIDI {
		midicodec.NewBuffer(p.outBuf, frames)
	}
	return p.outBuf
}

// CompleteProcess publishes this cycle's finished output buffer to every
// mix attached to the port (one per connected peer, plus the global mix),
// so downstream input ports can pick it up via activeAudioProducers /
// mixedMIDI, and then clears the port's own scratch state so a port that
// isn't re-prepared next cycle reads back as "no data" rather than stale
// data (spec.md §4.2 complete_process).
func (p *Port) CompleteProcess() {
	p.mu.Lock()
	buf := p.outBuf
	mixes := append([]*Mix(nil), p.Mixes...)
	global := p.GlobalMix
	p.outBuf = nil
	p.mu.Unlock()

	for _, m := range mixes {
		m.SetCurrent(buf)
	}
	if global != nil {
		global.SetCurrent(buf)
	}
}
