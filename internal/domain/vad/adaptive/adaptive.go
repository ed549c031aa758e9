// Package adaptive implements voice activity detection with a noise-tracking
// threshold: the speech threshold follows the estimated background level so
// the detector works in quiet rooms and noisy cafes without retuning.
package adaptive

import (
	"sort"
	"time"

	"voicetask-server-go/internal/domain/audio"
	"voicetask-server-go/internal/domain/vad/inter"
)

const (
	baseThresholdFloor = 0.01
	thresholdStep      = 0.005
	noiseFloorWeight   = 2.0
	minNoiseTerm       = 0.005
	maxThreshold       = 0.08
	bandRatioThreshold = 0.3
	bandNoiseMultiple  = 3.0
	noiseQuantile      = 0.2
)

// Engine is the adaptive detector. Not safe for concurrent use; the session
// controller processes frames from a single loop.
type Engine struct {
	cfg      inter.Config
	listener inter.EventListener

	state      inter.State
	phaseStart time.Time
	started    bool

	noise      []float64
	noiseIdx   int
	noiseFull  bool
	history    []bool
	historyIdx int
	histCount  int
}

// New creates an Engine, normalizing out-of-range config values to defaults.
func New(cfg inter.Config) *Engine {
	def := inter.DefaultConfig()
	if cfg.Sensitivity < 1 || cfg.Sensitivity > 5 {
		cfg.Sensitivity = def.Sensitivity
	}
	if cfg.NoiseWindow <= 0 {
		cfg.NoiseWindow = def.NoiseWindow
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.SpeechBandHigh <= cfg.SpeechBandLow {
		cfg.SpeechBandLow = def.SpeechBandLow
		cfg.SpeechBandHigh = def.SpeechBandHigh
	}
	return &Engine{
		cfg:     cfg,
		noise:   make([]float64, cfg.NoiseWindow),
		history: make([]bool, cfg.HistoryWindow),
	}
}

func (e *Engine) SetEventListener(listener inter.EventListener) {
	e.listener = listener
}

func (e *Engine) GetConfig() inter.Config {
	return e.cfg
}

// Reset zeroes all detector state, including the noise floor estimate.
func (e *Engine) Reset() {
	e.state = inter.State{}
	e.started = false
	e.noiseIdx, e.noiseFull = 0, false
	e.historyIdx, e.histCount = 0, 0
	for i := range e.history {
		e.history[i] = false
	}
}

// Process classifies one frame. Frames with nil FrequencyBins (spectral
// analysis unavailable or window not yet filled) are classified as silence.
func (e *Engine) Process(frame audio.Frame, now time.Time) inter.State {
	speech := e.classify(frame)

	e.pushHistory(speech)
	e.state.Volume = frame.Volume
	e.state.Confidence = e.confidence()

	// Only frames judged as silence feed the noise window, so the speaker's
	// own voice never raises the floor.
	if !speech {
		e.pushNoise(frame.Volume)
	}
	e.state.NoiseFloor = e.noiseFloor()

	if !e.started {
		e.started = true
		e.phaseStart = now
		e.state.Speaking = speech
		if speech && e.listener != nil {
			e.listener.OnSpeechStart(e.state)
		}
		return e.state
	}

	switch {
	case speech && !e.state.Speaking:
		// Freeze the ended silence phase at its final length for the
		// listener, then start the speech phase from zero.
		e.state.Speaking = true
		e.state.SilenceDuration = now.Sub(e.phaseStart)
		e.state.SpeechDuration = 0
		if e.listener != nil {
			e.listener.OnSpeechStart(e.state)
		}
		e.state.SilenceDuration = 0
		e.phaseStart = now
	case !speech && e.state.Speaking:
		e.state.Speaking = false
		e.state.SpeechDuration = now.Sub(e.phaseStart)
		e.state.SilenceDuration = 0
		if e.listener != nil {
			e.listener.OnSpeechEnd(e.state)
		}
		e.state.SpeechDuration = 0
		e.phaseStart = now
	default:
		elapsed := now.Sub(e.phaseStart)
		if e.state.Speaking {
			e.state.SpeechDuration = elapsed
		} else {
			e.state.SilenceDuration = elapsed
		}
	}
	return e.state
}

// Threshold exposes the current adaptive volume threshold.
func (e *Engine) Threshold() float64 {
	base := baseThresholdFloor + float64(5-e.cfg.Sensitivity)*thresholdStep
	noiseTerm := noiseFloorWeight * e.noiseFloor()
	if noiseTerm < minNoiseTerm {
		noiseTerm = minNoiseTerm
	}
	threshold := base + noiseTerm
	if threshold > maxThreshold {
		threshold = maxThreshold
	}
	return threshold
}

func (e *Engine) classify(frame audio.Frame) bool {
	if frame.FrequencyBins == nil || frame.BinWidth <= 0 {
		return false
	}
	if frame.Volume < e.Threshold() {
		return false
	}

	lowBin := int(float64(e.cfg.SpeechBandLow) / frame.BinWidth)
	highBin := int(float64(e.cfg.SpeechBandHigh) / frame.BinWidth)
	if highBin >= len(frame.FrequencyBins) {
		highBin = len(frame.FrequencyBins) - 1
	}

	var bandEnergy, totalEnergy float64
	for i, magnitude := range frame.FrequencyBins {
		energy := magnitude * magnitude
		totalEnergy += energy
		if i >= lowBin && i <= highBin {
			bandEnergy += energy
		}
	}
	if totalEnergy == 0 {
		return false
	}

	ratio := bandEnergy / totalEnergy
	floor := e.noiseFloor()
	return ratio > bandRatioThreshold || (floor > 0 && bandEnergy > bandNoiseMultiple*floor)
}

func (e *Engine) pushNoise(volume float64) {
	e.noise[e.noiseIdx] = volume
	e.noiseIdx = (e.noiseIdx + 1) % len(e.noise)
	if e.noiseIdx == 0 {
		e.noiseFull = true
	}
}

// noiseFloor is the mean of the lowest 20% of the recorded silence volumes.
func (e *Engine) noiseFloor() float64 {
	n := e.noiseIdx
	if e.noiseFull {
		n = len(e.noise)
	}
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, e.noise[:n])
	sort.Float64s(sorted)

	take := int(float64(n) * noiseQuantile)
	if take < 1 {
		take = 1
	}
	var sum float64
	for _, v := range sorted[:take] {
		sum += v
	}
	return sum / float64(take)
}

func (e *Engine) pushHistory(speech bool) {
	e.history[e.historyIdx] = speech
	e.historyIdx = (e.historyIdx + 1) % len(e.history)
	if e.histCount < len(e.history) {
		e.histCount++
	}
}

// confidence smooths the recent classification history so single-frame
// flickers at speech boundaries do not swing the UI.
func (e *Engine) confidence() float64 {
	if e.histCount == 0 {
		return 0
	}
	speechFrames := 0
	for i := 0; i < e.histCount; i++ {
		if e.history[i] {
			speechFrames++
		}
	}
	confidence := 2 * float64(speechFrames) / float64(e.histCount)
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
