package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Web           WebConfig           `yaml:"web"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Session       SessionConfig       `yaml:"session"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
	Websocket string `yaml:"websocket"`
}

type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	// FFTWindow is the spectral analysis window in samples. Power of two.
	FFTWindow int `yaml:"fft_window"`
	// Smoothing is the exponential smoothing constant applied to frequency
	// bins between analysis ticks, 0 disables smoothing.
	Smoothing float64 `yaml:"smoothing"`
	// FrameInterval is the analysis tick cadence.
	FrameInterval time.Duration `yaml:"frame_interval"`
}

type VADConfig struct {
	// Sensitivity 1-5, higher means a lower speech threshold.
	Sensitivity    int `yaml:"sensitivity"`
	NoiseWindow    int `yaml:"noise_window"`
	HistoryWindow  int `yaml:"history_window"`
	SpeechBandLow  int `yaml:"speech_band_low"`
	SpeechBandHigh int `yaml:"speech_band_high"`
}

type SessionConfig struct {
	BasePauseDelay   time.Duration `yaml:"base_pause_delay"`
	ShortPauseDelay  time.Duration `yaml:"short_pause_delay"`
	LongPauseDelay   time.Duration `yaml:"long_pause_delay"`
	MinPauseDelay    time.Duration `yaml:"min_pause_delay"`
	ThinkingDisplay  time.Duration `yaml:"thinking_display"`
	ErrorDisplay     time.Duration `yaml:"error_display"`
	MaxSessionLength time.Duration `yaml:"max_session_length"`
}

type TranscriptionConfig struct {
	Provider      string        `yaml:"provider"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	Language      string        `yaml:"language"`
	ChunkInterval time.Duration `yaml:"chunk_interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

type AssistantConfig struct {
	Enabled     bool    `yaml:"enabled"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// yaml.v3 does not decode duration strings into time.Duration, so the
// duration-bearing sections unmarshal through a shadow struct pre-seeded
// with the current values. Keys absent from the file keep their defaults.

func parseDuration(raw string, out *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*out = d
	return nil
}

func (a *AudioConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		SampleRate    int     `yaml:"sample_rate"`
		Channels      int     `yaml:"channels"`
		FFTWindow     int     `yaml:"fft_window"`
		Smoothing     float64 `yaml:"smoothing"`
		FrameInterval string  `yaml:"frame_interval"`
	}{
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
		FFTWindow:  a.FFTWindow,
		Smoothing:  a.Smoothing,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	a.SampleRate = raw.SampleRate
	a.Channels = raw.Channels
	a.FFTWindow = raw.FFTWindow
	a.Smoothing = raw.Smoothing
	return parseDuration(raw.FrameInterval, &a.FrameInterval)
}

func (s *SessionConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BasePauseDelay   string `yaml:"base_pause_delay"`
		ShortPauseDelay  string `yaml:"short_pause_delay"`
		LongPauseDelay   string `yaml:"long_pause_delay"`
		MinPauseDelay    string `yaml:"min_pause_delay"`
		ThinkingDisplay  string `yaml:"thinking_display"`
		ErrorDisplay     string `yaml:"error_display"`
		MaxSessionLength string `yaml:"max_session_length"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for _, field := range []struct {
		raw string
		out *time.Duration
	}{
		{raw.BasePauseDelay, &s.BasePauseDelay},
		{raw.ShortPauseDelay, &s.ShortPauseDelay},
		{raw.LongPauseDelay, &s.LongPauseDelay},
		{raw.MinPauseDelay, &s.MinPauseDelay},
		{raw.ThinkingDisplay, &s.ThinkingDisplay},
		{raw.ErrorDisplay, &s.ErrorDisplay},
		{raw.MaxSessionLength, &s.MaxSessionLength},
	} {
		if err := parseDuration(field.raw, field.out); err != nil {
			return err
		}
	}
	return nil
}

func (t *TranscriptionConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Provider      string `yaml:"provider"`
		APIKey        string `yaml:"api_key"`
		BaseURL       string `yaml:"base_url"`
		Model         string `yaml:"model"`
		Language      string `yaml:"language"`
		ChunkInterval string `yaml:"chunk_interval"`
		Timeout       string `yaml:"timeout"`
	}{
		Provider: t.Provider,
		APIKey:   t.APIKey,
		BaseURL:  t.BaseURL,
		Model:    t.Model,
		Language: t.Language,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	t.Provider = raw.Provider
	t.APIKey = raw.APIKey
	t.BaseURL = raw.BaseURL
	t.Model = raw.Model
	t.Language = raw.Language
	if err := parseDuration(raw.ChunkInterval, &t.ChunkInterval); err != nil {
		return err
	}
	return parseDuration(raw.Timeout, &t.Timeout)
}

func (c *CacheConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	}{
		Enabled:  c.Enabled,
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Enabled = raw.Enabled
	c.Addr = raw.Addr
	c.Password = raw.Password
	c.DB = raw.DB
	return parseDuration(raw.TTL, &c.TTL)
}
