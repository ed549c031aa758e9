// Package openai adapts the OpenAI audio transcription API to the engine
// contract used by the chunk scheduler.
package openai

import (
	"bytes"
	"context"
	"math"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"voicetask-server-go/internal/platform/errors"
	"voicetask-server-go/internal/platform/logging"

	"voicetask-server-go/internal/domain/transcription/inter"
)

const defaultModel = "whisper-1"

// Config configures the Whisper engine.
type Config struct {
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model" yaml:"model"`
	Temperature float32       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// Engine implements inter.Engine against the OpenAI transcription endpoint.
type Engine struct {
	cfg    Config
	logger *logging.Logger

	mu          sync.Mutex
	client      *goopenai.Client
	initialized bool
}

// New creates an uninitialized engine. Initialize must be called before use.
func New(cfg Config, logger *logging.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

func (e *Engine) Initialize(ctx context.Context) error {
	const op = "transcription.openai.Initialize"

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}
	if e.cfg.APIKey == "" {
		return errors.New(errors.KindTranscription, op, "api_key is required")
	}
	if e.cfg.Model == "" {
		e.cfg.Model = defaultModel
	}
	if e.cfg.Timeout <= 0 {
		e.cfg.Timeout = 30 * time.Second
	}

	clientConfig := goopenai.DefaultConfig(e.cfg.APIKey)
	if e.cfg.BaseURL != "" {
		clientConfig.BaseURL = e.cfg.BaseURL
	}
	e.client = goopenai.NewClientWithConfig(clientConfig)
	e.initialized = true

	if e.logger != nil {
		e.logger.InfoTag("ASR", "whisper engine ready, model=%s", e.cfg.Model)
	}
	return nil
}

// Transcribe sends one audio chunk and maps the verbose response, deriving
// per-segment confidence from the model's average log probabilities.
func (e *Engine) Transcribe(ctx context.Context, chunk []byte, opts inter.Options) (*inter.Result, error) {
	const op = "transcription.openai.Transcribe"

	e.mu.Lock()
	client := e.client
	initialized := e.initialized
	timeout := e.cfg.Timeout
	model := e.cfg.Model
	e.mu.Unlock()

	if !initialized {
		return nil, errors.New(errors.KindTranscription, op, "engine not initialized")
	}
	if len(chunk) == 0 {
		return nil, errors.New(errors.KindTranscription, op, "empty audio chunk")
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := goopenai.AudioRequest{
		Model:    model,
		FilePath: "chunk." + chunkExtension(opts.Format),
		Reader:   bytes.NewReader(chunk),
		Prompt:   opts.Prompt,
		Language: opts.Language,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []goopenai.TranscriptionTimestampGranularity{
			goopenai.TranscriptionTimestampGranularitySegment,
			goopenai.TranscriptionTimestampGranularityWord,
		},
	}

	resp, err := client.CreateTranscription(reqCtx, req)
	if err != nil {
		return nil, errors.Wrap(errors.KindTranscription, op, "transcription request failed", err)
	}

	result := &inter.Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
	}
	var logprobSum float64
	for _, seg := range resp.Segments {
		confidence := math.Exp(seg.AvgLogprob)
		logprobSum += confidence
		result.Segments = append(result.Segments, inter.Segment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       strings.TrimSpace(seg.Text),
			Confidence: confidence,
		})
	}
	if n := len(resp.Segments); n > 0 {
		result.Confidence = logprobSum / float64(n)
	} else if result.Text != "" {
		// Plain responses carry no probability data.
		result.Confidence = 0.9
	}

	attachWords(result, resp)
	return result, nil
}

// attachWords folds the response's flat word list into the segment whose
// span contains each word. Word-only responses get a single synthesized
// segment so the timings are not lost.
func attachWords(result *inter.Result, resp goopenai.AudioResponse) {
	if len(resp.Words) == 0 {
		return
	}

	if len(result.Segments) == 0 {
		segment := inter.Segment{
			Start:      resp.Words[0].Start,
			End:        resp.Words[len(resp.Words)-1].End,
			Text:       result.Text,
			Confidence: result.Confidence,
		}
		for _, w := range resp.Words {
			segment.Words = append(segment.Words, inter.Word{Word: w.Word, Start: w.Start, End: w.End})
		}
		result.Segments = []inter.Segment{segment}
		return
	}

	idx := 0
	for _, w := range resp.Words {
		for idx < len(result.Segments)-1 && w.Start >= result.Segments[idx].End {
			idx++
		}
		result.Segments[idx].Words = append(result.Segments[idx].Words,
			inter.Word{Word: w.Word, Start: w.Start, End: w.End})
	}
}

func (e *Engine) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.client = nil
	e.initialized = false
	return nil
}

func chunkExtension(format string) string {
	switch format {
	case "", "wav", "pcm":
		return "wav"
	default:
		return format
	}
}
