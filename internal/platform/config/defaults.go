package config

import "time"

// DefaultConfig returns the configuration used when no file overrides a value.
// The audio and session numbers are calibration defaults, not contracts; see
// the corresponding yaml keys to tune them per deployment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			Port:      8080,
			StaticDir: "./web",
			Websocket: "ws://localhost:8000/voice",
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			FFTWindow:     2048,
			Smoothing:     0.3,
			FrameInterval: 16 * time.Millisecond,
		},
		VAD: VADConfig{
			Sensitivity:    3,
			NoiseWindow:    100,
			HistoryWindow:  20,
			SpeechBandLow:  300,
			SpeechBandHigh: 3400,
		},
		Session: SessionConfig{
			BasePauseDelay:   1500 * time.Millisecond,
			ShortPauseDelay:  800 * time.Millisecond,
			LongPauseDelay:   2500 * time.Millisecond,
			MinPauseDelay:    500 * time.Millisecond,
			ThinkingDisplay:  500 * time.Millisecond,
			ErrorDisplay:     500 * time.Millisecond,
			MaxSessionLength: 2 * time.Minute,
		},
		Transcription: TranscriptionConfig{
			Provider:      "openai",
			Model:         "whisper-1",
			Language:      "en",
			ChunkInterval: 800 * time.Millisecond,
			Timeout:       30 * time.Second,
		},
		Assistant: AssistantConfig{
			Enabled:     true,
			Model:       "gpt-4o-mini",
			MaxTokens:   500,
			Temperature: 0.7,
		},
		Storage: StorageConfig{
			Path: "data/voicetask.db",
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTL:     30 * time.Second,
		},
	}
}
