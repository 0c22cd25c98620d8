package midicodec

import "testing"

func newBuf(size int, nframes uint32) *Buffer {
	return NewBuffer(make([]byte, size), nframes)
}

func TestEventReserveAndGetRoundTrip(t *testing.T) {
	b := newBuf(256, 64)
	if !b.EventWrite(0, []byte{0x90, 0x3c, 0x40}) {
		t.Fatalf("expected EventWrite to succeed")
	}
	if !b.EventWrite(10, []byte{0x80, 0x3c, 0x00}) {
		t.Fatalf("expected EventWrite to succeed")
	}
	if b.EventCount() != 2 {
		t.Fatalf("EventCount = %d, want 2", b.EventCount())
	}
	ev0, ok := b.EventGet(0)
	if !ok || ev0.Time != 0 || len(ev0.Data) != 3 || ev0.Data[0] != 0x90 {
		t.Fatalf("EventGet(0) = %+v, ok=%v", ev0, ok)
	}
	ev1, ok := b.EventGet(1)
	if !ok || ev1.Time != 10 {
		t.Fatalf("EventGet(1) = %+v, ok=%v", ev1, ok)
	}
}

func TestEventReserveRejectsTimeAtOrAboveNFrames(t *testing.T) {
	b := newBuf(256, 64)
	if b.EventReserve(64, 3) != nil {
		t.Fatalf("expected rejection for time >= nframes")
	}
	if b.LostEventCount() != 1 {
		t.Fatalf("LostEventCount = %d, want 1", b.LostEventCount())
	}
}

func TestEventReserveRejectsDecreasingTime(t *testing.T) {
	b := newBuf(256, 64)
	b.EventWrite(10, []byte{0x90, 1, 1})
	if b.EventReserve(5, 3) != nil {
		t.Fatalf("expected rejection for decreasing time")
	}
	if b.LostEventCount() != 1 {
		t.Fatalf("LostEventCount = %d, want 1", b.LostEventCount())
	}
}

func TestEventReserveRejectsZeroSize(t *testing.T) {
	b := newBuf(256, 64)
	if b.EventReserve(0, 0) != nil {
		t.Fatalf("expected rejection for data_size=0")
	}
	if b.LostEventCount() != 1 {
		t.Fatalf("LostEventCount = %d, want 1", b.LostEventCount())
	}
}

func TestEventReserveRejectsWhenBufferFull(t *testing.T) {
	b := newBuf(headerSize+eventRecSize+4, 64) // room for exactly one small event
	if !b.EventWrite(0, []byte{1, 2, 3, 4}) {
		t.Fatalf("expected first small event to fit")
	}
	if b.EventReserve(1, 4) != nil {
		t.Fatalf("expected second event to be rejected: no room left")
	}
}

func TestLargePayloadWrittenFromBackOfBuffer(t *testing.T) {
	b := newBuf(512, 64)
	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}
	if !b.EventWrite(0, payload) {
		t.Fatalf("expected large event to be written")
	}
	ev, ok := b.EventGet(0)
	if !ok {
		t.Fatalf("expected to read back event")
	}
	if len(ev.Data) != len(payload) {
		t.Fatalf("got %d bytes, want %d", len(ev.Data), len(payload))
	}
	for i := range payload {
		if ev.Data[i] != payload[i] {
			t.Fatalf("payload[%d] = %d, want %d", i, ev.Data[i], payload[i])
		}
	}
}

func TestClearBufferResetsCounters(t *testing.T) {
	b := newBuf(256, 64)
	b.EventWrite(0, []byte{1, 2, 3})
	b.EventReserve(64, 1) // force a lost event
	b.ClearBuffer()
	if b.EventCount() != 0 || b.LostEventCount() != 0 {
		t.Fatalf("expected counters reset, got count=%d lost=%d", b.EventCount(), b.LostEventCount())
	}
}

func TestConvertFromAndToMIDIRoundTrip(t *testing.T) {
	src := newBuf(256, 64)
	src.EventWrite(0, []byte{0x90, 60, 100})
	src.EventWrite(5, []byte{0x80, 60, 0})

	seq := ConvertFromMIDI(src)
	if len(seq.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(seq.Events))
	}

	dst := newBuf(256, 64)
	n := ConvertToMIDI(dst, seq)
	if n != 2 {
		t.Fatalf("ConvertToMIDI wrote %d events, want 2", n)
	}
	if dst.EventCount() != 2 {
		t.Fatalf("dst.EventCount() = %d, want 2", dst.EventCount())
	}
}

func TestMergeOrdersByOffsetThenPriority(t *testing.T) {
	// Two sequences producing events at the same offset, same channel:
	// note-on should sort after note-off per the precedence table.
	a := Sequence{Events: []SeqEvent{{Offset: 0, Data: []byte{0x90, 1, 1}}}}
	b := Sequence{Events: []SeqEvent{{Offset: 0, Data: []byte{0x80, 1, 0}}}}

	merged := Merge([]Sequence{a, b}, false)
	if len(merged.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(merged.Events))
	}
	if merged.Events[0].Data[0]&0xf0 != 0x80 {
		t.Fatalf("expected note-off first, got status %#x", merged.Events[0].Data[0])
	}
}

func TestMergeOrdersByOffsetAcrossSequences(t *testing.T) {
	a := Sequence{Events: []SeqEvent{{Offset: 10, Data: []byte{0x90, 1, 1}}}}
	b := Sequence{Events: []SeqEvent{{Offset: 2, Data: []byte{0x90, 2, 1}}}}

	merged := Merge([]Sequence{a, b}, false)
	if merged.Events[0].Offset != 2 || merged.Events[1].Offset != 10 {
		t.Fatalf("events not ordered by offset: %+v", merged.Events)
	}
}

func TestMergeFixesNoteOnZeroVelocity(t *testing.T) {
	seq := Sequence{Events: []SeqEvent{{Offset: 0, Data: []byte{0x90, 0x3c, 0x00}}}}
	merged := Merge([]Sequence{seq}, true)
	got := merged.Events[0].Data
	want := []byte{0x80, 0x3c, 0x40}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("fixNoteOn: got %v, want %v", got, want)
	}
}

func TestMergeLeavesOtherChannelsEventsInArrivalOrder(t *testing.T) {
	a := Sequence{Events: []SeqEvent{{Offset: 0, Data: []byte{0x90, 1, 1}}}} // channel 0
	b := Sequence{Events: []SeqEvent{{Offset: 0, Data: []byte{0x91, 1, 1}}}} // channel 1
	merged := Merge([]Sequence{a, b}, false)
	if len(merged.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(merged.Events))
	}
	// Different channels: arrival order preserved (a before b).
	if merged.Events[0].Data[0] != 0x90 {
		t.Fatalf("expected arrival order preserved across channels")
	}
}
