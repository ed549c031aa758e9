// Package inter defines the transcription engine contract. Engines are
// constructed explicitly and injected into the scheduler so tests can swap in
// fakes without touching global state.
package inter

import "context"

// Engine turns an audio chunk into text. Implementations must be safe to
// call from a single goroutine; the scheduler guarantees no concurrent
// Transcribe calls.
type Engine interface {
	// Initialize prepares the engine for use. Must be called before
	// Transcribe and is idempotent.
	Initialize(ctx context.Context) error

	// Transcribe blocks until the chunk is transcribed or ctx is done.
	Transcribe(ctx context.Context, chunk []byte, opts Options) (*Result, error)

	// Cleanup releases engine resources. After Cleanup the engine must be
	// re-initialized before use.
	Cleanup() error
}

// Options carries per-request parameters.
type Options struct {
	// Format names the container of the chunk bytes ("wav", "mp3", "pcm").
	Format string `json:"format"`

	// Language is a BCP-47 hint, empty for auto-detect.
	Language string `json:"language"`

	// Prompt primes the engine with preceding context, improving
	// continuity across chunk boundaries.
	Prompt string `json:"prompt"`

	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// Result is one transcription outcome.
type Result struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Language   string    `json:"language"`
	Segments   []Segment `json:"segments,omitempty"`
}

// Segment is a timed span within the transcribed audio.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	// Words holds per-word timings when the engine provides them.
	Words []Word `json:"words,omitempty"`
}

// Word is one word with its timing inside a segment.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
