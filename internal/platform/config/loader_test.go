package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 9000
log:
  log_level: "debug"
audio:
  sample_rate: 8000
vad:
  sensitivity: 5
session:
  base_pause_delay: 2s
transcription:
  chunk_interval: 1s
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false).WithPath(configFile)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.IP != "127.0.0.1" {
		t.Errorf("expected server IP 127.0.0.1, got %s", cfg.Server.IP)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected server port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Audio.SampleRate != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.VAD.Sensitivity != 5 {
		t.Errorf("expected sensitivity 5, got %d", cfg.VAD.Sensitivity)
	}
	if cfg.Transcription.ChunkInterval != time.Second {
		t.Errorf("expected 1s chunk interval, got %v", cfg.Transcription.ChunkInterval)
	}
	if cfg.Session.BasePauseDelay != 2*time.Second {
		t.Errorf("expected 2s base pause, got %v", cfg.Session.BasePauseDelay)
	}
	// Session keys not in the file keep their defaults.
	if cfg.Session.MinPauseDelay != 500*time.Millisecond {
		t.Errorf("expected default min pause 500ms, got %v", cfg.Session.MinPauseDelay)
	}
	// Untouched sections keep their defaults.
	if cfg.Audio.FFTWindow != 2048 {
		t.Errorf("expected default fft window 2048, got %d", cfg.Audio.FFTWindow)
	}
}

func TestLoader_NoFileUsesDefaults(t *testing.T) {
	oldWd, _ := os.Getwd()
	os.Chdir(t.TempDir())
	defer os.Chdir(oldWd)

	cfg, err := NewLoader().WithDotEnv(false).Load()
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	if cfg.Session.BasePauseDelay != 1500*time.Millisecond {
		t.Errorf("expected default base pause 1500ms, got %v", cfg.Session.BasePauseDelay)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	oldWd, _ := os.Getwd()
	os.Chdir(t.TempDir())
	defer os.Chdir(oldWd)

	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := NewLoader().WithDotEnv(false).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Transcription.APIKey != "sk-test" {
		t.Errorf("expected transcription api key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Assistant.APIKey != "sk-test" {
		t.Errorf("expected assistant api key from env, got %q", cfg.Assistant.APIKey)
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "fft window not power of two",
			mutate:  func(c *Config) { c.Audio.FFTWindow = 1000 },
			wantErr: true,
		},
		{
			name:    "sensitivity out of range",
			mutate:  func(c *Config) { c.VAD.Sensitivity = 9 },
			wantErr: true,
		},
		{
			name:    "zero chunk interval",
			mutate:  func(c *Config) { c.Transcription.ChunkInterval = 0 },
			wantErr: true,
		},
		{
			name:    "chunk interval too long",
			mutate:  func(c *Config) { c.Transcription.ChunkInterval = 5 * time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := loader.Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
