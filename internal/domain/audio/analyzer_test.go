package audio

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformerrors "voicetask-server-go/internal/platform/errors"
)

func sineSamples(freq float64, sampleRate, n int, amplitude float64) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return samples
}

func pushSamples(s *PCMSource, samples []float64) {
	s.Push(Float64ToPCMBytes(samples))
}

func TestNewAnalyzer_NilSource(t *testing.T) {
	_, err := NewAnalyzer(context.Background(), nil, AnalyzerConfig{Window: 1024})
	require.Error(t, err)
	assert.True(t, errors.Is(err, platformerrors.ErrAudioUnavailable))
}

func TestNewAnalyzer_BadWindow(t *testing.T) {
	source := NewPCMSource(16000, 16000)
	_, err := NewAnalyzer(context.Background(), source, AnalyzerConfig{Window: 1000})
	assert.Error(t, err)
}

func TestPCMSource_ReopenAfterClose(t *testing.T) {
	source := NewPCMSource(16000, 16000)
	require.NoError(t, source.Open(context.Background()))
	pushSamples(source, []float64{0.5, 0.5, 0.5, 0.5})

	require.NoError(t, source.Close())
	pushSamples(source, []float64{0.9, 0.9}) // dropped while closed

	require.NoError(t, source.Open(context.Background()))
	buf := make([]float64, 4)
	assert.Zero(t, source.Samples(buf), "reopen starts with an empty buffer")

	pushSamples(source, []float64{0.25, 0.75})
	require.Equal(t, 2, source.Samples(buf))
	assert.InDelta(t, 0.25, buf[2], 0.001)
	assert.InDelta(t, 0.75, buf[3], 0.001)
}

func TestAnalyzerReopensSource(t *testing.T) {
	source := NewPCMSource(16000, 16000)
	first, err := NewAnalyzer(context.Background(), source, AnalyzerConfig{Window: 1024})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewAnalyzer(context.Background(), source, AnalyzerConfig{Window: 1024})
	require.NoError(t, err, "a closed source must accept a new capture")
	defer second.Close()

	pushSamples(source, sineSamples(440, 16000, 2048, 0.5))
	frame := second.AnalyzeFrame()
	assert.Greater(t, frame.Volume, 0.1)
}

func TestAnalyzeFrame_EmptySourceIsSilent(t *testing.T) {
	source := NewPCMSource(16000, 16000)
	analyzer, err := NewAnalyzer(context.Background(), source, AnalyzerConfig{Window: 1024})
	require.NoError(t, err)
	defer analyzer.Close()

	frame := analyzer.AnalyzeFrame()
	assert.Zero(t, frame.Volume)
	assert.Nil(t, frame.FrequencyBins)
}

func TestAnalyzeFrame_Volume(t *testing.T) {
	source := NewPCMSource(16000, 16000)
	analyzer, err := NewAnalyzer(context.Background(), source, AnalyzerConfig{Window: 1024})
	require.NoError(t, err)
	defer analyzer.Close()

	pushSamples(source, sineSamples(440, 16000, 2048, 0.5))
	frame := analyzer.AnalyzeFrame()

	// RMS of a 0.5-amplitude sine is 0.5/sqrt(2).
	assert.InDelta(t, 0.5/math.Sqrt2, frame.Volume, 0.02)
	assert.Len(t, frame.FrequencyBins, 512)
	assert.InDelta(t, 16000.0/1024.0, frame.BinWidth, 1e-9)
}

func TestAnalyzeFrame_SpectralPeak(t *testing.T) {
	const sampleRate = 16000
	const window = 1024
	source := NewPCMSource(sampleRate, sampleRate)
	analyzer, err := NewAnalyzer(context.Background(), source, AnalyzerConfig{Window: window})
	require.NoError(t, err)
	defer analyzer.Close()

	// 1 kHz tone lands in bin 1000/binWidth = 64.
	pushSamples(source, sineSamples(1000, sampleRate, window*2, 0.8))
	frame := analyzer.AnalyzeFrame()
	require.Len(t, frame.FrequencyBins, window/2)

	peak := 0
	for i, magnitude := range frame.FrequencyBins {
		if magnitude > frame.FrequencyBins[peak] {
			peak = i
		}
	}
	expected := int(1000 / frame.BinWidth)
	assert.InDelta(t, expected, peak, 2)
}

func TestAnalyzeFrame_Smoothing(t *testing.T) {
	const window = 1024
	source := NewPCMSource(16000, 16000)
	analyzer, err := NewAnalyzer(context.Background(), source,
		AnalyzerConfig{Window: window, Smoothing: 0.9})
	require.NoError(t, err)
	defer analyzer.Close()

	pushSamples(source, sineSamples(1000, 16000, window*2, 0.8))
	first := analyzer.AnalyzeFrame()

	// Feed silence; heavy smoothing keeps the old spectrum mostly intact.
	pushSamples(source, make([]float64, window*2))
	second := analyzer.AnalyzeFrame()

	peak := 0
	for i, magnitude := range first.FrequencyBins {
		if magnitude > first.FrequencyBins[peak] {
			peak = i
		}
	}
	assert.Greater(t, second.FrequencyBins[peak], first.FrequencyBins[peak]*0.5)
}

func TestPCMRoundTrip(t *testing.T) {
	samples := []float64{0, 0.5, -0.5, 1.0, -1.0}
	got := PCMBytesToFloat64(Float64ToPCMBytes(samples))
	require.Len(t, got, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], got[i], 0.001)
	}
}

func TestPCMSource_KeepsNewestSamples(t *testing.T) {
	source := NewPCMSource(16000, 8)
	pushSamples(source, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0})

	buf := make([]float64, 4)
	n := source.Samples(buf)
	require.Equal(t, 4, n)
	assert.InDelta(t, 0.7, buf[0], 0.001)
	assert.InDelta(t, 1.0, buf[3], 0.001)
}
