package adaptive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicetask-server-go/internal/domain/audio"
	"voicetask-server-go/internal/domain/vad/inter"
)

// speechFrame builds a frame whose energy is concentrated in the speech band.
func speechFrame(volume float64) audio.Frame {
	bins := make([]float64, 512)
	// bin width 15.625 Hz at 16 kHz / 1024 window, so bins 20..200 sit
	// inside 300..3400 Hz.
	for i := 20; i <= 200; i++ {
		bins[i] = volume
	}
	return audio.Frame{Volume: volume, FrequencyBins: bins, BinWidth: 15.625}
}

// silenceFrame spreads low energy outside the speech band.
func silenceFrame(volume float64) audio.Frame {
	bins := make([]float64, 512)
	for i := 300; i < 512; i++ {
		bins[i] = volume
	}
	return audio.Frame{Volume: volume, FrequencyBins: bins, BinWidth: 15.625}
}

type recordingListener struct {
	starts []inter.State
	ends   []inter.State
}

func (r *recordingListener) OnSpeechStart(s inter.State) { r.starts = append(r.starts, s) }
func (r *recordingListener) OnSpeechEnd(s inter.State)   { r.ends = append(r.ends, s) }

func TestNewNormalizesConfig(t *testing.T) {
	e := New(inter.Config{Sensitivity: 9, NoiseWindow: -1, HistoryWindow: 0})
	cfg := e.GetConfig()
	def := inter.DefaultConfig()
	assert.Equal(t, def.Sensitivity, cfg.Sensitivity)
	assert.Equal(t, def.NoiseWindow, cfg.NoiseWindow)
	assert.Equal(t, def.HistoryWindow, cfg.HistoryWindow)
	assert.Equal(t, def.SpeechBandLow, cfg.SpeechBandLow)
}

func TestMissingSpectrumIsSilence(t *testing.T) {
	e := New(inter.DefaultConfig())
	now := time.Now()
	state := e.Process(audio.Frame{Volume: 0.9}, now)
	assert.False(t, state.Speaking)
	state = e.Process(audio.Frame{Volume: 0.9, FrequencyBins: []float64{1, 1}, BinWidth: 0}, now.Add(20*time.Millisecond))
	assert.False(t, state.Speaking)
}

func TestSpeechDetectionAndTransitions(t *testing.T) {
	e := New(inter.DefaultConfig())
	listener := &recordingListener{}
	e.SetEventListener(listener)

	now := time.Now()
	for i := 0; i < 10; i++ {
		state := e.Process(silenceFrame(0.002), now)
		assert.False(t, state.Speaking)
		now = now.Add(20 * time.Millisecond)
	}

	var state inter.State
	for i := 0; i < 10; i++ {
		state = e.Process(speechFrame(0.5), now)
		now = now.Add(20 * time.Millisecond)
	}
	assert.True(t, state.Speaking)
	require.Len(t, listener.starts, 1)
	assert.Zero(t, state.SilenceDuration)
	assert.Equal(t, 180*time.Millisecond, state.SpeechDuration)
	assert.Equal(t, 200*time.Millisecond, listener.starts[0].SilenceDuration,
		"start event carries the ended silence phase at its final length")

	for i := 0; i < 5; i++ {
		state = e.Process(silenceFrame(0.002), now)
		now = now.Add(20 * time.Millisecond)
	}
	assert.False(t, state.Speaking)
	require.Len(t, listener.ends, 1)
	assert.Zero(t, state.SpeechDuration)
	assert.Equal(t, 80*time.Millisecond, state.SilenceDuration)
	assert.Equal(t, 200*time.Millisecond, listener.ends[0].SpeechDuration,
		"end event carries the ended speech phase at its final length")
}

// Exactly one of the two phase durations may be nonzero regardless of the
// frame sequence.
func TestDurationExclusivity(t *testing.T) {
	e := New(inter.DefaultConfig())
	now := time.Now()
	frames := []audio.Frame{
		silenceFrame(0.001), speechFrame(0.6), speechFrame(0.6),
		silenceFrame(0.001), speechFrame(0.7), silenceFrame(0.002),
		silenceFrame(0.001), speechFrame(0.5), speechFrame(0.5),
	}
	for round := 0; round < 20; round++ {
		for _, f := range frames {
			state := e.Process(f, now)
			now = now.Add(20 * time.Millisecond)
			if state.SpeechDuration > 0 {
				assert.Zero(t, state.SilenceDuration)
			}
			if state.SilenceDuration > 0 {
				assert.Zero(t, state.SpeechDuration)
			}
		}
	}
}

func TestNoiseFloorIgnoresSpeech(t *testing.T) {
	e := New(inter.DefaultConfig())
	now := time.Now()
	for i := 0; i < 50; i++ {
		e.Process(silenceFrame(0.002), now)
		now = now.Add(20 * time.Millisecond)
	}
	quietFloor := e.noiseFloor()

	for i := 0; i < 50; i++ {
		e.Process(speechFrame(0.8), now)
		now = now.Add(20 * time.Millisecond)
	}
	assert.Equal(t, quietFloor, e.noiseFloor(), "loud speech must not raise the floor")
}

func TestThresholdBounds(t *testing.T) {
	for sensitivity := 1; sensitivity <= 5; sensitivity++ {
		cfg := inter.DefaultConfig()
		cfg.Sensitivity = sensitivity
		e := New(cfg)
		threshold := e.Threshold()
		assert.GreaterOrEqual(t, threshold, baseThresholdFloor)
		assert.LessOrEqual(t, threshold, maxThreshold)
	}

	// Pathological noise still caps the threshold.
	e := New(inter.Config{Sensitivity: 1, NoiseWindow: 10, HistoryWindow: 20, SpeechBandLow: 300, SpeechBandHigh: 3400})
	now := time.Now()
	for i := 0; i < 20; i++ {
		e.pushNoise(10.0)
		_ = now
	}
	assert.Equal(t, maxThreshold, e.Threshold())
}

func TestConfidenceSmoothing(t *testing.T) {
	e := New(inter.DefaultConfig())
	now := time.Now()

	state := e.Process(speechFrame(0.5), now)
	assert.LessOrEqual(t, state.Confidence, 1.0)

	for i := 0; i < 30; i++ {
		now = now.Add(20 * time.Millisecond)
		state = e.Process(speechFrame(0.5), now)
	}
	assert.Equal(t, 1.0, state.Confidence, "sustained speech saturates confidence")

	// One stray silence frame must not collapse confidence.
	now = now.Add(20 * time.Millisecond)
	state = e.Process(silenceFrame(0.001), now)
	assert.Greater(t, state.Confidence, 0.8)
}

func TestResetClearsState(t *testing.T) {
	e := New(inter.DefaultConfig())
	now := time.Now()
	for i := 0; i < 30; i++ {
		e.Process(speechFrame(0.5), now)
		now = now.Add(20 * time.Millisecond)
	}
	e.Reset()
	state := e.Process(silenceFrame(0.001), now)
	assert.False(t, state.Speaking)
	assert.Zero(t, state.SpeechDuration)
	assert.Zero(t, state.Confidence)
}
