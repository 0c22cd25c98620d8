package midicodec

// statusPriority orders channel-voice messages for events landing on the
// same offset and the same MIDI channel (spec.md §4.2): controller before
// program-change before note-off before note-on before aftertouch before
// channel-pressure before pitch-bend. Status nibbles per the MIDI spec:
// 0x80 note-off, 0x90 note-on, 0xA0 poly aftertouch, 0xB0 controller,
// 0xC0 program change, 0xD0 channel pressure, 0xE0 pitch bend.
func statusPriority(status byte) int {
	switch status & 0xf0 {
	case 0xb0:
		return 0 // controller
	case 0xc0:
		return 1 // program change
	case 0x80:
		return 2 // note-off
	case 0x90:
		return 3 // note-on
	case 0xa0:
		return 4 // aftertouch
	case 0xd0:
		return 5 // channel pressure
	case 0xe0:
		return 6 // pitch bend
	default:
		return 7 // system / unclassified, stays after channel-voice events
	}
}

func channelOf(data []byte) (ch byte, ok bool) {
	if len(data) == 0 {
		return 0, false
	}
	status := data[0]
	if status&0xf0 == 0xf0 {
		return 0, false // system message, no channel
	}
	return status & 0x0f, true
}

// Merge combines multiple input Sequences into one, ordered by offset
// ascending; events at the same offset and the same MIDI channel are
// ordered by the channel-voice precedence table above. Events on
// different channels, or with no channel (system messages), keep their
// relative arrival order (stable sort).
//
// When fixNoteOnZeroVelocity is true, a Note On with velocity 0 is
// rewritten as a Note Off with velocity 0x40, the jack.fix-midi-events
// policy from spec.md §4.2.
func Merge(inputs []Sequence, fixNoteOnZeroVelocity bool) Sequence {
	var all []SeqEvent
	for _, seq := range inputs {
		all = append(all, seq.Events...)
	}

	if fixNoteOnZeroVelocity {
		for i := range all {
			all[i].Data = fixNoteOn(all[i].Data)
		}
	}

	stableSortEvents(all)
	return Sequence{Events: all}
}

// fixNoteOn rewrites [0x9n, note, 0x00] to [0x8n, note, 0x40].
func fixNoteOn(data []byte) []byte {
	if len(data) != 3 || data[0]&0xf0 != 0x90 || data[2] != 0x00 {
		return data
	}
	out := make([]byte, 3)
	out[0] = 0x80 | (data[0] & 0x0f)
	out[1] = data[1]
	out[2] = 0x40
	return out
}

// stableSortEvents performs an insertion sort (event counts per cycle are
// small — a few hundred at most) ordering by offset, then by the
// channel-voice precedence table for same-offset/same-channel events,
// preserving arrival order otherwise.
func stableSortEvents(events []SeqEvent) {
	less := func(a, b SeqEvent) bool {
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		chA, okA := channelOf(a.Data)
		chB, okB := channelOf(b.Data)
		if okA && okB && chA == chB {
			pa, pb := statusPriority(a.Data[0]), statusPriority(b.Data[0])
			if pa != pb {
				return pa < pb
			}
		}
		return false // equal precedence: keep arrival order
	}
	for i := 1; i < len(events); i++ {
		j := i
		for j > 0 && less(events[j], events[j-1]) {
			events[j], events[j-1] = events[j-1], events[j]
			j--
		}
	}
}
