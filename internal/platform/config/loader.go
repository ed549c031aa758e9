package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "voicetask-server-go/internal/platform/errors"
)

var configCandidates = []string{".config.yaml", "config.yaml"}

// Loader reads configuration from yaml with .env and environment overlays.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader with the default search behaviour.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the loader to one config file instead of the search list.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// Load produces the effective configuration: defaults, then the yaml file if
// one exists, then environment variables for secrets.
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		// Missing .env is fine, the process environment still applies.
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	path := l.path
	if path == "" {
		for _, candidate := range configCandidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "loader.read",
				fmt.Sprintf("failed to read %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "loader.parse",
				fmt.Sprintf("failed to parse %s", path), err)
		}
	}

	applyEnvOverrides(cfg)

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (l *Loader) Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate",
			fmt.Sprintf("invalid server port: %d", cfg.Server.Port))
	}
	if cfg.Web.Enabled && (cfg.Web.Port <= 0 || cfg.Web.Port > 65535) {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate",
			fmt.Sprintf("invalid web port: %d", cfg.Web.Port))
	}
	if cfg.Audio.SampleRate <= 0 {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate",
			fmt.Sprintf("invalid sample rate: %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FFTWindow <= 0 || cfg.Audio.FFTWindow&(cfg.Audio.FFTWindow-1) != 0 {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate",
			fmt.Sprintf("fft window must be a power of two, got %d", cfg.Audio.FFTWindow))
	}
	if cfg.VAD.Sensitivity < 1 || cfg.VAD.Sensitivity > 5 {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate",
			fmt.Sprintf("vad sensitivity must be 1-5, got %d", cfg.VAD.Sensitivity))
	}
	if cfg.Transcription.ChunkInterval < 500*time.Millisecond || cfg.Transcription.ChunkInterval > 2*time.Second {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate",
			fmt.Sprintf("transcription chunk interval must be between 500ms and 2s, got %v", cfg.Transcription.ChunkInterval))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRANSCRIPTION_API_KEY"); v != "" {
		cfg.Transcription.APIKey = v
	}
	if v := os.Getenv("ASSISTANT_API_KEY"); v != "" {
		cfg.Assistant.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Transcription.APIKey == "" {
			cfg.Transcription.APIKey = v
		}
		if cfg.Assistant.APIKey == "" {
			cfg.Assistant.APIKey = v
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
}
