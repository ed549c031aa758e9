package audio

import (
	"context"
	"math"

	platformerrors "voicetask-server-go/internal/platform/errors"
)

// Frame is one analysis tick: RMS volume plus frequency-bin magnitudes for
// the first half of the spectrum. Frames are ephemeral; consumers must not
// hold on to FrequencyBins across ticks.
type Frame struct {
	Volume        float64
	FrequencyBins []float64
	// BinWidth is the frequency width of one bin in Hz.
	BinWidth float64
}

// AnalyzerConfig tunes the spectral analysis. Window must be a power of two;
// the observed defaults (2048 samples, 0.3 smoothing) are a starting
// calibration, not a contract.
type AnalyzerConfig struct {
	Window    int
	Smoothing float64
}

// Analyzer computes per-tick volume and spectrum frames from a Source.
type Analyzer struct {
	source   Source
	window   int
	smooth   float64
	buf      []float64
	hann     []float64
	smoothed []float64
	binWidth float64
}

// NewAnalyzer opens the source and prepares the analysis window. Construction
// fails with ErrAudioUnavailable when the source cannot be opened; there is
// no degraded mode.
func NewAnalyzer(ctx context.Context, source Source, cfg AnalyzerConfig) (*Analyzer, error) {
	if source == nil {
		return nil, platformerrors.Wrap(platformerrors.KindAudio, "analyzer.new",
			"nil audio source", platformerrors.ErrAudioUnavailable)
	}
	window := cfg.Window
	if window <= 0 {
		window = 2048
	}
	if window&(window-1) != 0 {
		return nil, platformerrors.New(platformerrors.KindAudio, "analyzer.new",
			"analysis window must be a power of two")
	}
	if err := source.Open(ctx); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindAudio, "analyzer.new",
			"failed to open audio source", platformerrors.ErrAudioUnavailable)
	}

	hann := make([]float64, window)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(window-1)))
	}

	return &Analyzer{
		source:   source,
		window:   window,
		smooth:   cfg.Smoothing,
		buf:      make([]float64, window),
		hann:     hann,
		binWidth: float64(source.SampleRate()) / float64(window),
	}, nil
}

// AnalyzeFrame reads the latest window from the source and produces a frame.
// Until a full window has accumulated it reports volume over what is there
// and nil bins, which downstream VAD treats as silence.
func (a *Analyzer) AnalyzeFrame() Frame {
	for i := range a.buf {
		a.buf[i] = 0
	}
	n := a.source.Samples(a.buf)

	frame := Frame{BinWidth: a.binWidth}
	if n == 0 {
		return frame
	}

	// RMS over the valid tail of the window.
	var sum float64
	for _, s := range a.buf[a.window-n:] {
		sum += s * s
	}
	frame.Volume = math.Sqrt(sum / float64(n))

	if n < a.window {
		return frame
	}

	re := make([]float64, a.window)
	im := make([]float64, a.window)
	for i, s := range a.buf {
		re[i] = s * a.hann[i]
	}
	fft(re, im)

	bins := make([]float64, a.window/2)
	for i := range bins {
		bins[i] = math.Hypot(re[i], im[i]) / float64(a.window)
	}

	if a.smooth > 0 {
		if a.smoothed == nil {
			a.smoothed = make([]float64, len(bins))
			copy(a.smoothed, bins)
		} else {
			for i := range bins {
				a.smoothed[i] = a.smooth*a.smoothed[i] + (1-a.smooth)*bins[i]
			}
		}
		out := make([]float64, len(bins))
		copy(out, a.smoothed)
		frame.FrequencyBins = out
	} else {
		frame.FrequencyBins = bins
	}
	return frame
}

// Close releases the underlying source.
func (a *Analyzer) Close() error {
	a.smoothed = nil
	return a.source.Close()
}

// fft performs an in-place iterative radix-2 Cooley-Tukey transform.
func fft(re, im []float64) {
	n := len(re)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wRe, wIm := math.Cos(angle), math.Sin(angle)
		for start := 0; start < n; start += length {
			curRe, curIm := 1.0, 0.0
			half := length / 2
			for k := 0; k < half; k++ {
				evenRe, evenIm := re[start+k], im[start+k]
				oddRe := re[start+k+half]*curRe - im[start+k+half]*curIm
				oddIm := re[start+k+half]*curIm + im[start+k+half]*curRe
				re[start+k], im[start+k] = evenRe+oddRe, evenIm+oddIm
				re[start+k+half], im[start+k+half] = evenRe-oddRe, evenIm-oddIm
				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
}
