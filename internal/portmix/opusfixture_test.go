package portmix

import (
	"testing"

	"gopkg.in/hraban/opus.v2"
)

// TestAudioInputSumsOpusDecodedProducers builds its two producer buffers by
// round-tripping a PCM tone through a real Opus encoder/decoder rather than
// literal constants, then checks the mixer still sums them sample-for-sample.
// This never runs on the RT path (mixing only ever sees raw float32 PCM);
// it exists to build a realistic multi-producer fixture the way the teacher's
// audio pipeline exercises its own codec in client/audio_test.go.
func TestAudioInputSumsOpusDecodedProducers(t *testing.T) {
	const sampleRate = 48000
	const channels = 1
	const frames = 240 // 5ms frame at 48kHz, a valid Opus frame size

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	pcmA := make([]int16, frames)
	pcmB := make([]int16, frames)
	for i := range pcmA {
		pcmA[i] = 1000
		pcmB[i] = 2000
	}

	data := make([]byte, 4000)
	n, err := enc.Encode(pcmA, data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decodedA := make([]int16, frames)
	if _, err := dec.Decode(data[:n], decodedA); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	n, err = enc.Encode(pcmB, data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decodedB := make([]int16, frames)
	if _, err := dec.Decode(data[:n], decodedB); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	toFloat := func(in []int16) []float32 {
		out := make([]float32, len(in))
		for i, v := range in {
			out[i] = float32(v) / 32768.0
		}
		return out
	}

	out := NewPort("mixer:in", DirectionInput, TypeAudio, FlagInput)
	srcA := NewPort("gen_a:out", DirectionOutput, TypeAudio, FlagOutput)
	srcB := NewPort("gen_b:out", DirectionOutput, TypeAudio, FlagOutput)

	mixA := srcA.CreateMix(out, 1)
	mixB := srcB.CreateMix(out, 2)
	out.Mixes = append(out.Mixes, mixA, mixB)

	bufA := srcA.PrepareOutput(uint32(frames))
	writeF32(bufA, toFloat(decodedA))
	srcA.CompleteProcess()

	bufB := srcB.PrepareOutput(uint32(frames))
	writeF32(bufB, toFloat(decodedB))
	srcB.CompleteProcess()

	got := bytesFloat32View(out.GetBuffer(uint32(frames)))
	wantA := toFloat(decodedA)
	wantB := toFloat(decodedB)
	for i := range got {
		want := wantA[i] + wantB[i]
		diff := got[i] - want
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-6 {
			t.Fatalf("sample %d: got %v want %v", i, got[i], want)
		}
	}
}

func writeF32(dst []byte, src []float32) {
	view := bytesFloat32View(dst)
	copy(view, src)
}
