// Package transcription serializes audio chunks through a single engine.
// At most one engine call is in flight at any time; chunks queue in FIFO
// order and are never dropped or reordered. Partial results therefore arrive
// in submission order.
package transcription

import (
	"context"
	"sync"
	"time"

	"voicetask-server-go/internal/platform/errors"
	"voicetask-server-go/internal/platform/logging"

	"voicetask-server-go/internal/domain/audio"
	"voicetask-server-go/internal/domain/eventbus"
	"voicetask-server-go/internal/domain/transcription/inter"
)

// Config tunes the scheduler for one capture session.
type Config struct {
	SessionID     string
	ChunkInterval time.Duration
	Options       inter.Options
	QueueDepth    int
}

// Scheduler owns the chunk queue and the single worker draining it.
type Scheduler struct {
	cfg    Config
	engine inter.Engine
	bus    *eventbus.Bus
	logger *logging.Logger

	mu         sync.Mutex
	submitters sync.WaitGroup
	started    bool
	stopping   bool
	buffered   [][]byte
	lastText   string
	lastConf   float64

	queue  chan queued
	done   chan struct{}
	cancel context.CancelFunc
}

type queued struct {
	sequence int
	audio    []byte
}

// NewScheduler wires a scheduler to an injected engine. The engine's
// lifecycle belongs to the caller; Start initializes it, Stop cleans it up.
func NewScheduler(cfg Config, engine inter.Engine, bus *eventbus.Bus, logger *logging.Logger) *Scheduler {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = 800 * time.Millisecond
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		bus:    bus,
		logger: logger,
	}
}

// Start initializes the engine and launches the drain worker.
func (s *Scheduler) Start(ctx context.Context) error {
	const op = "transcription.Scheduler.Start"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New(errors.KindTranscription, op, "scheduler already started")
	}
	if s.engine == nil {
		return errors.New(errors.KindTranscription, op, "no engine configured")
	}
	if err := s.engine.Initialize(ctx); err != nil {
		return errors.Wrap(errors.KindTranscription, op, "engine initialization failed", err)
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = make(chan queued, s.cfg.QueueDepth)
	s.done = make(chan struct{})
	s.started = true
	s.stopping = false
	s.buffered = nil
	s.lastText = ""
	s.lastConf = 0

	go s.drain(workerCtx)
	return nil
}

// Submit appends one chunk to the queue. The chunk is also buffered for the
// final combined pass, so callers may reuse their slice after Submit returns.
func (s *Scheduler) Submit(chunk []byte) error {
	const op = "transcription.Scheduler.Submit"

	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return errors.New(errors.KindTranscription, op, "scheduler not accepting chunks")
	}
	owned := make([]byte, len(chunk))
	copy(owned, chunk)
	s.buffered = append(s.buffered, owned)
	sequence := len(s.buffered) - 1
	queue := s.queue
	s.submitters.Add(1)
	s.mu.Unlock()

	defer s.submitters.Done()
	queue <- queued{sequence: sequence, audio: owned}
	return nil
}

// drain is the single worker. Running it alone is what enforces the
// one-in-flight policy.
func (s *Scheduler) drain(ctx context.Context) {
	defer close(s.done)
	for item := range s.queue {
		s.transcribeChunk(ctx, item)
	}
}

func (s *Scheduler) transcribeChunk(ctx context.Context, item queued) {
	opts := s.chunkOptions()
	payload, opts := s.packageAudio(item.audio, opts)
	result, err := s.engine.Transcribe(ctx, payload, opts)
	if err != nil {
		chunkErr := &errors.TranscriptionError{Sequence: item.sequence, Cause: err}
		if s.logger != nil {
			s.logger.WarnTag("ASR", "chunk %d failed: %v", item.sequence, err)
		}
		if s.bus != nil {
			s.bus.Publish(eventbus.EventTranscriptionError, eventbus.ErrorEventData{
				SessionID: s.cfg.SessionID,
				Op:        "transcribe_chunk",
				Message:   chunkErr.Error(),
			})
		}
		return
	}

	s.mu.Lock()
	s.lastText = result.Text
	s.lastConf = result.Confidence
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(eventbus.EventPartialResult, eventbus.TranscriptEventData{
			SessionID:  s.cfg.SessionID,
			Text:       result.Text,
			Confidence: result.Confidence,
			Sequence:   item.sequence,
		})
	}
}

// chunkOptions primes each request with the running transcript so the engine
// keeps vocabulary and casing consistent across chunk boundaries.
func (s *Scheduler) chunkOptions() inter.Options {
	opts := s.cfg.Options
	s.mu.Lock()
	opts.Prompt = s.lastText
	s.mu.Unlock()
	return opts
}

// LastPartial returns the text and confidence of the most recent successful
// chunk. The session controller feeds both into its pause heuristics.
func (s *Scheduler) LastPartial() (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastText, s.lastConf
}

// Stop closes intake, blocks until every queued chunk has drained, then runs
// one final pass over the concatenated session audio. The final pass exists
// because a single transcription of the whole utterance beats stitched chunk
// fragments. A final-pass failure returns a nil result and the error; the
// scheduler is torn down either way.
func (s *Scheduler) Stop(ctx context.Context) (*inter.Result, error) {
	const op = "transcription.Scheduler.Stop"

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, nil
	}
	if s.stopping {
		done := s.done
		s.mu.Unlock()
		<-done
		return nil, nil
	}
	s.stopping = true
	queue := s.queue
	s.mu.Unlock()

	// New Submit calls are rejected from this point; wait out any caller
	// already past the check before closing the channel.
	s.submitters.Wait()
	close(queue)
	select {
	case <-s.done:
	case <-ctx.Done():
		s.teardown()
		return nil, errors.Wrap(errors.KindTranscription, op, "drain interrupted", ctx.Err())
	}

	s.mu.Lock()
	combined := concat(s.buffered)
	s.mu.Unlock()

	defer s.teardown()

	if len(combined) == 0 {
		return &inter.Result{}, nil
	}

	payload, opts := s.packageAudio(combined, s.cfg.Options)
	result, err := s.engine.Transcribe(ctx, payload, opts)
	if err != nil {
		finalErr := &errors.TranscriptionError{Final: true, Cause: err}
		if s.bus != nil {
			s.bus.Publish(eventbus.EventTranscriptionError, eventbus.ErrorEventData{
				SessionID: s.cfg.SessionID,
				Op:        "transcribe_final",
				Message:   finalErr.Error(),
			})
		}
		return nil, finalErr
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.EventFinalResult, eventbus.TranscriptEventData{
			SessionID:  s.cfg.SessionID,
			Text:       result.Text,
			Confidence: result.Confidence,
			Sequence:   len(s.buffered),
			IsFinal:    true,
		})
	}
	return result, nil
}

// Discard drains the queue and tears the scheduler down without the final
// combined pass. Used when a session is aborted and no transcript is wanted.
func (s *Scheduler) Discard(ctx context.Context) error {
	const op = "transcription.Scheduler.Discard"

	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	queue := s.queue
	s.mu.Unlock()

	s.submitters.Wait()
	close(queue)
	select {
	case <-s.done:
	case <-ctx.Done():
		s.teardown()
		return errors.Wrap(errors.KindTranscription, op, "drain interrupted", ctx.Err())
	}
	s.teardown()
	return nil
}

func (s *Scheduler) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.stopping = false
	s.buffered = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err := s.engine.Cleanup(); err != nil && s.logger != nil {
		s.logger.WarnTag("ASR", "engine cleanup: %v", err)
	}
}

// packageAudio wraps raw PCM in a WAV container before it goes to the
// engine. Raw chunks concatenate cleanly for the final pass; containers
// would not, so wrapping happens per call rather than at submit time.
func (s *Scheduler) packageAudio(pcm []byte, opts inter.Options) ([]byte, inter.Options) {
	if opts.Format != "" && opts.Format != "pcm" {
		return pcm, opts
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := opts.Channels
	if channels <= 0 {
		channels = 1
	}
	opts.Format = "wav"
	return audio.EncodeWAV(pcm, sampleRate, channels), opts
}

func concat(chunks [][]byte) []byte {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
