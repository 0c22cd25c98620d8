package main

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// portaudioSource drives the demo's output port from a real input device
// instead of silence, when JACKSHIM_DEMO_AUDIO=1. Grounded on
// client/audio.go's capture-stream setup (device resolution, per-frame
// []float32 buffer, Start/Stop/Close lifecycle).
type portaudioSource struct {
	stream *portaudio.Stream
	buf    []float32
}

// openPortaudioSource opens the default input device at the given sample
// rate, reading frames-sized chunks into an internal buffer on each Read.
func openPortaudioSource(sampleRate float64, frames int) (*portaudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	buf := make([]float32, frames)
	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, frames, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio start: %w", err)
	}
	return &portaudioSource{stream: stream, buf: buf}, nil
}

// Read blocks for the next frames-sized chunk of captured audio.
func (s *portaudioSource) Read() ([]float32, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	return s.buf, nil
}

// Close stops the stream and releases PortAudio's global state.
func (s *portaudioSource) Close() {
	s.stream.Stop()
	s.stream.Close()
	portaudio.Terminate()
}

func maybeOpenPortaudioSource(logger *slog.Logger, enabled bool, sampleRate float64, frames int) *portaudioSource {
	if !enabled {
		return nil
	}
	src, err := openPortaudioSource(sampleRate, frames)
	if err != nil {
		logger.Warn("portaudio source unavailable, falling back to silence", "error", err)
		return nil
	}
	return src
}
