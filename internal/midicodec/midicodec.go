// Package midicodec implements the JACK midi_buffer wire layout (spec.md
// §4.3, §6) and its conversion to/from a time-ordered Sequence used by the
// port mixer when merging multiple MIDI producers into one input.
//
// Grounded on original_source/pipewire-jack/src/pipewire-jack.c:6740-6889
// (jack_midi_event_reserve / jack_midi_event_get / jack_midi_max_event_size),
// reproduced here with the exact same rejection rules and buffer math, since
// this is a wire format a real JACK application reads byte-for-byte.
package midicodec

import (
	"encoding/binary"
)

// Magic is the midi_buffer header magic (spec.md §6).
const Magic uint32 = 0x900df00d

// headerSize is sizeof(struct midi_buffer): magic, buffer_size, nframes,
// write_pos, event_count, lost_events — six uint32 fields.
const headerSize = 24

// eventRecSize is sizeof(struct midi_event): time(2) + size(2) + union(4).
const eventRecSize = 8

// inlineMax is MIDI_INLINE_MAX.
const inlineMax = 4

var order = binary.LittleEndian

// Buffer is a JACK midi_buffer backed by a flat byte slice, exactly the
// layout a linked JACK application dereferences directly.
type Buffer struct {
	data []byte
}

// NewBuffer wraps buf (which must be at least headerSize bytes) as a
// midi_buffer sized for nframes, initialising the header.
func NewBuffer(buf []byte, nframes uint32) *Buffer {
	b := &Buffer{data: buf}
	order.PutUint32(buf[0:4], Magic)
	order.PutUint32(buf[4:8], uint32(len(buf)))
	order.PutUint32(buf[8:12], nframes)
	order.PutUint32(buf[12:16], 0) // write_pos
	order.PutUint32(buf[16:20], 0) // event_count
	order.PutUint32(buf[20:24], 0) // lost_events
	return b
}

// Wrap interprets an already-initialised byte slice as a midi_buffer,
// without touching its header.
func Wrap(buf []byte) *Buffer { return &Buffer{data: buf} }

func (b *Buffer) valid() bool {
	return b.data != nil && len(b.data) >= headerSize && order.Uint32(b.data[0:4]) == Magic
}

func (b *Buffer) bufferSize() int32  { return int32(order.Uint32(b.data[4:8])) }
func (b *Buffer) nframes() uint32    { return order.Uint32(b.data[8:12]) }
func (b *Buffer) writePos() int32    { return int32(order.Uint32(b.data[12:16])) }
func (b *Buffer) setWritePos(v int32) { order.PutUint32(b.data[12:16], uint32(v)) }
func (b *Buffer) eventCount() uint32  { return order.Uint32(b.data[16:20]) }
func (b *Buffer) setEventCount(v uint32) { order.PutUint32(b.data[16:20], v) }
func (b *Buffer) lostEvents() uint32  { return order.Uint32(b.data[20:24]) }
func (b *Buffer) setLostEvents(v uint32) { order.PutUint32(b.data[20:24], v) }

func (b *Buffer) eventOffset(i uint32) int { return headerSize + int(i)*eventRecSize }

// EventCount returns the number of events currently written.
func (b *Buffer) EventCount() uint32 {
	if !b.valid() {
		return 0
	}
	return b.eventCount()
}

// LostEventCount returns how many jack_midi_event_reserve calls failed.
func (b *Buffer) LostEventCount() uint32 {
	if !b.valid() {
		return 0
	}
	return b.lostEvents()
}

// ClearBuffer resets event_count, write_pos and lost_events to zero,
// without touching nframes/buffer_size (jack_midi_clear_buffer /
// jack_midi_reset_buffer are the same operation upstream).
func (b *Buffer) ClearBuffer() {
	if !b.valid() {
		return
	}
	b.setEventCount(0)
	b.setWritePos(0)
	b.setLostEvents(0)
}

// MaxEventSize returns the largest payload jack_midi_event_reserve could
// still accept, accounting for the *next* event's own record (spec.md §4.3).
func (b *Buffer) MaxEventSize() int {
	if !b.valid() {
		return 0
	}
	bufferSize := int(b.bufferSize())
	used := headerSize + int(b.writePos()) + int(b.eventCount()+1)*eventRecSize
	if used > bufferSize {
		return 0
	}
	if bufferSize-used < inlineMax {
		return inlineMax
	}
	return bufferSize - used
}

// Event is the decoded view jack_midi_event_get returns: a time, and the
// raw payload bytes (inline or pointing into the back of the buffer).
type Event struct {
	Time uint16
	Data []byte
}

// EventReserve allocates space for one event of dataSize bytes at the
// given time and returns a byte slice the caller writes the payload into.
// It returns nil (and increments lost_events) when:
//   - time >= nframes
//   - time is less than the previous event's time (non-monotonic)
//   - dataSize == 0
//   - the buffer cannot hold the event
func (b *Buffer) EventReserve(time uint16, dataSize int) []byte {
	if !b.valid() {
		return nil
	}
	nframes := b.nframes()
	count := b.eventCount()

	if uint32(time) >= nframes {
		b.setLostEvents(b.lostEvents() + 1)
		return nil
	}
	if count > 0 {
		prev := order.Uint16(b.data[b.eventOffset(count-1):])
		if time < prev {
			b.setLostEvents(b.lostEvents() + 1)
			return nil
		}
	}
	if dataSize <= 0 {
		b.setLostEvents(b.lostEvents() + 1)
		return nil
	}
	if b.MaxEventSize() < dataSize {
		b.setLostEvents(b.lostEvents() + 1)
		return nil
	}

	off := b.eventOffset(count)
	order.PutUint16(b.data[off:], time)
	order.PutUint16(b.data[off+2:], uint16(dataSize))

	var payload []byte
	if dataSize <= inlineMax {
		payload = b.data[off+4 : off+4+dataSize]
	} else {
		newWritePos := b.writePos() + int32(dataSize)
		byteOffset := b.bufferSize() - 1 - newWritePos
		b.setWritePos(newWritePos)
		order.PutUint32(b.data[off+4:], uint32(byteOffset))
		payload = b.data[int(byteOffset) : int(byteOffset)+dataSize]
	}
	b.setEventCount(count + 1)
	return payload
}

// EventWrite is EventReserve followed by a copy of data into the reserved
// space; it reports whether the event was accepted.
func (b *Buffer) EventWrite(time uint16, data []byte) bool {
	dst := b.EventReserve(time, len(data))
	if dst == nil {
		return false
	}
	copy(dst, data)
	return true
}

// EventGet decodes the event at index, or reports ok=false if index is out
// of range (jack_midi_event_get returning -ENOBUFS upstream).
func (b *Buffer) EventGet(index uint32) (Event, bool) {
	if !b.valid() || index >= b.eventCount() {
		return Event{}, false
	}
	off := b.eventOffset(index)
	time := order.Uint16(b.data[off:])
	size := order.Uint16(b.data[off+2:])
	var payload []byte
	if size <= inlineMax {
		payload = b.data[off+4 : off+4+int(size)]
	} else {
		byteOffset := order.Uint32(b.data[off+4:])
		payload = b.data[int(byteOffset) : int(byteOffset)+int(size)]
	}
	return Event{Time: time, Data: payload}, true
}

// Sequence is the time-stamped event list convert_from_midi/
// convert_to_midi translate a midi_buffer into and out of (spec.md §4.3),
// used by the port mixer to merge multiple producers before writing a
// single output midi_buffer.
type Sequence struct {
	Events []SeqEvent
}

// SeqEvent is one event in a Sequence: its frame offset and raw MIDI
// bytes. It carries no producer tag; Merge keeps arrival order for events
// its priority ordering ranks equal.
type SeqEvent struct {
	Offset uint16
	Data   []byte
}

// ConvertFromMIDI linearises a midi_buffer into a Sequence.
func ConvertFromMIDI(b *Buffer) Sequence {
	var seq Sequence
	n := b.EventCount()
	seq.Events = make([]SeqEvent, 0, n)
	for i := uint32(0); i < n; i++ {
		ev, ok := b.EventGet(i)
		if !ok {
			break
		}
		cp := make([]byte, len(ev.Data))
		copy(cp, ev.Data)
		seq.Events = append(seq.Events, SeqEvent{Offset: ev.Time, Data: cp})
	}
	return seq
}

// ConvertToMIDI writes a Sequence's events into buf (already sized and
// initialised via NewBuffer), in order, via EventWrite. It returns the
// number of events successfully written; short writes mean the events ran
// out of room and were counted in lost_events by EventReserve.
func ConvertToMIDI(buf *Buffer, seq Sequence) int {
	n := 0
	for _, e := range seq.Events {
		if buf.EventWrite(e.Offset, e.Data) {
			n++
		}
	}
	return n
}
