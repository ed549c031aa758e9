package inter

import (
	"time"

	"voicetask-server-go/internal/domain/audio"
)

// Detector classifies analysis frames as speech or silence.
type Detector interface {
	// Process classifies one frame at the given instant and returns the
	// updated state. It never fails; when spectral data is missing it
	// degrades to reporting silence.
	Process(frame audio.Frame, now time.Time) State

	// SetEventListener registers the transition listener. Pass nil to clear.
	SetEventListener(listener EventListener)

	// Reset returns the detector to its zero state.
	Reset()

	// GetConfig returns the detector configuration.
	GetConfig() Config
}

// EventListener receives speech boundary transitions, in frame order.
type EventListener interface {
	OnSpeechStart(state State)
	OnSpeechEnd(state State)
}

// Config tunes the adaptive detector.
type Config struct {
	// Sensitivity is 1-5; higher lowers the speech threshold. Default 3.
	Sensitivity int `json:"sensitivity"`
	// NoiseWindow is how many silence volume samples feed the noise floor.
	NoiseWindow int `json:"noise_window"`
	// HistoryWindow is how many recent classifications feed the confidence.
	HistoryWindow int `json:"history_window"`
	// SpeechBandLow/High bound the human speech band in Hz.
	SpeechBandLow  int `json:"speech_band_low"`
	SpeechBandHigh int `json:"speech_band_high"`
}

// DefaultConfig returns the calibration the detector ships with.
func DefaultConfig() Config {
	return Config{
		Sensitivity:    3,
		NoiseWindow:    100,
		HistoryWindow:  20,
		SpeechBandLow:  300,
		SpeechBandHigh: 3400,
	}
}

// State is the detector's continuously updated view of the stream. Exactly
// one of SpeechDuration/SilenceDuration advances at any time; the other was
// zeroed when its phase ended.
type State struct {
	Speaking        bool          `json:"speaking"`
	Volume          float64       `json:"volume"`
	Confidence      float64       `json:"confidence"`
	NoiseFloor      float64       `json:"noise_floor"`
	SpeechDuration  time.Duration `json:"speech_duration"`
	SilenceDuration time.Duration `json:"silence_duration"`
}
