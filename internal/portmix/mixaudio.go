package portmix

import "unsafe"

// float32BytesView reinterprets a []float32 as a []byte of the same
// backing array, the same view a JACK client's jack_default_audio_sample_t*
// buffer pointer gives it.
func float32BytesView(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4)
}

func bytesFloat32View(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// getBufferAudioInput implements spec.md §4.2/§8's audio-input mixing
// rule: zero producers -> silence (the port's aligned empty buffer, no
// copy); exactly one producer -> passthrough its buffer pointer directly,
// no summation; two or more producers -> scalar-sum into the port's own
// mix buffer.
//
// Grounded on client/audio.go's AudioEngine.mixBuffers, which applies the
// same single-producer-passthrough / multi-producer-sum split to avoid a
// redundant copy in the common single-peer case.
func getBufferAudioInput(p *Port, frames uint32) []byte {
	producers := p.activeAudioProducers()
	switch len(producers) {
	case 0:
		p.Zeroed = true
		return float32BytesView(p.emptyptr[:frames])
	case 1:
		p.Zeroed = false
		return producers[0]
	default:
		p.Zeroed = false
		return sumAudioBuffers(p, producers, frames)
	}
}

// activeAudioProducers returns the current-cycle output buffer of every
// connected mix, in connection order, skipping any that produced nothing
// this cycle (spec.md §8 scenario #1).
func (p *Port) activeAudioProducers() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [][]byte
	for _, m := range p.Mixes {
		if buf := m.current; buf != nil {
			out = append(out, buf)
		}
	}
	return out
}

// sumAudioBuffers accumulates every producer buffer into p's own mix
// buffer using plain scalar addition — no SIMD, matching spec.md §9's
// decision to keep the reference summation path scalar-only.
func sumAudioBuffers(p *Port, producers [][]byte, frames uint32) []byte {
	if cap(p.mixBuf) < int(frames) {
		p.mixBuf = make([]float32, frames)
	}
	out := p.mixBuf[:frames]
	for i := range out {
		out[i] = 0
	}
	for _, buf := range producers {
		src := bytesFloat32View(buf)
		n := int(frames)
		if len(src) < n {
			n = len(src)
		}
		for i := 0; i < n; i++ {
			out[i] += src[i]
		}
	}
	return float32BytesView(out)
}

func getBufferMIDIInput(p *Port, frames uint32) []byte {
	return p.mixedMIDI(frames)
}
