package portmix

import "jackshim/internal/midicodec"

// mixedMIDI merges every connected producer's MIDI sequence into one
// midi_buffer sized for frames (spec.md §4.2), applying the
// jack.fix-midi-events Note-On-zero-velocity rewrite when the owning
// client enabled it.
func (p *Port) mixedMIDI(frames uint32) []byte {
	p.mu.Lock()
	var seqs []midicodec.Sequence
	for _, m := range p.Mixes {
		if m.current == nil {
			continue
		}
		seqs = append(seqs, midicodec.ConvertFromMIDI(midicodec.Wrap(m.current)))
	}
	fix := p.FixNoteOnZeroVelocity
	p.mu.Unlock()

	needed := midiBufferSize(frames)
	if cap(p.midiMix) < needed {
		p.midiMix = make([]byte, needed)
	}
	buf := p.midiMix[:needed]
	out := midicodec.NewBuffer(buf, frames)
	if len(seqs) == 0 {
		return buf
	}

	merged := midicodec.Merge(seqs, fix)
	midicodec.ConvertToMIDI(out, merged)
	return buf
}

// midiBufferSize is a generous allocation: the 24-byte header, room for
// 64 event records, plus one byte per frame, and never less than 512
// bytes.
func midiBufferSize(frames uint32) int {
	const headerAndSlack = 24 + 64*8
	size := headerAndSlack + int(frames)
	if size < 512 {
		size = 512
	}
	return size
}
