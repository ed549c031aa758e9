package audio

import (
	"context"
	"encoding/binary"
	"sync"
)

// Source abstracts where capture samples come from so the analyzer, VAD and
// session logic stay portable across capture backends (websocket ingest, file
// playback in tests, a native capture device).
type Source interface {
	// Open prepares the source. It must fail rather than degrade when the
	// backend is unavailable.
	Open(ctx context.Context) error
	// Samples copies the most recent mono samples into buf, newest last, and
	// returns how many were written. Fewer than len(buf) means the source has
	// not accumulated a full window yet.
	Samples(buf []float64) int
	// SampleRate reports the source's fixed sample rate.
	SampleRate() int
	// Close releases the capture resources. Safe to call more than once,
	// and Open may be called again afterwards to begin a new capture.
	Close() error
}

// PCMSource is a push-based Source fed by a transport: the websocket handler
// decodes incoming chunks to 16-bit PCM and pushes them here while the
// analyzer pulls windows at its own cadence.
type PCMSource struct {
	mu         sync.Mutex
	ring       []float64
	write      int
	filled     int
	sampleRate int
	opened     bool
	closed     bool
}

// NewPCMSource creates a source buffering up to bufferSamples of audio.
func NewPCMSource(sampleRate, bufferSamples int) *PCMSource {
	if bufferSamples <= 0 {
		bufferSamples = sampleRate // one second
	}
	return &PCMSource{
		ring:       make([]float64, bufferSamples),
		sampleRate: sampleRate,
	}
}

// Open readies the source for a capture. Reopening after Close starts a
// fresh capture with an empty buffer.
func (s *PCMSource) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	s.closed = false
	return nil
}

// Push appends little-endian 16-bit PCM bytes to the ring buffer.
func (s *PCMSource) Push(pcm []byte) {
	samples := PCMBytesToFloat64(pcm)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, sample := range samples {
		s.ring[s.write] = sample
		s.write = (s.write + 1) % len(s.ring)
		if s.filled < len(s.ring) {
			s.filled++
		}
	}
}

func (s *PCMSource) Samples(buf []float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(buf)
	if n > s.filled {
		n = s.filled
	}
	// Copy the newest n samples, oldest first.
	start := (s.write - n + len(s.ring)) % len(s.ring)
	for i := 0; i < n; i++ {
		buf[len(buf)-n+i] = s.ring[(start+i)%len(s.ring)]
	}
	return n
}

func (s *PCMSource) SampleRate() int {
	return s.sampleRate
}

// Close drops any buffered audio and rejects pushes until the next Open.
func (s *PCMSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.opened = false
	s.filled = 0
	s.write = 0
	return nil
}

// PCMBytesToFloat64 converts little-endian 16-bit PCM to samples in [-1, 1].
func PCMBytesToFloat64(pcm []byte) []float64 {
	samples := make([]float64, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		samples[i/2] = float64(v) / 32767.0
	}
	return samples
}

// Float64ToPCMBytes converts samples in [-1, 1] to little-endian 16-bit PCM.
func Float64ToPCMBytes(samples []float64) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		var v int16
		switch {
		case sample > 1.0:
			v = 32767
		case sample < -1.0:
			v = -32768
		default:
			v = int16(sample * 32767)
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}
