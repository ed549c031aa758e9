// Package session orchestrates one voice capture at a time: it drives the
// analyzer and VAD from a frame ticker, feeds audio to the transcription
// scheduler in fixed chunks, and decides when a natural pause ends the
// utterance.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicetask-server-go/internal/platform/errors"
	"voicetask-server-go/internal/platform/logging"
	"voicetask-server-go/internal/utils"

	"voicetask-server-go/internal/domain/audio"
	"voicetask-server-go/internal/domain/completion"
	"voicetask-server-go/internal/domain/eventbus"
	"voicetask-server-go/internal/domain/transcription"
	"voicetask-server-go/internal/domain/transcription/inter"
	vadinter "voicetask-server-go/internal/domain/vad/inter"
)

// State is the controller's lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateError     State = "error"
)

// Result is the finalized outcome of one capture session.
type Result struct {
	SessionID  string        `json:"session_id"`
	Transcript string        `json:"transcript"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
}

// Config tunes the controller's timing behavior.
type Config struct {
	FrameInterval time.Duration
	ChunkInterval time.Duration
	SampleRate    int
	Channels      int
	// Language hints the transcription engine, empty means auto-detect.
	Language string

	AnalyzerWindow    int
	AnalyzerSmoothing float64

	// Natural pause delays. The base delay shortens when the completion
	// heuristic is confident the speaker finished and lengthens when it is
	// not; long observed silence claws back up to ExtendedSilenceCredit
	// more, never below MinPauseDelay.
	BasePauseDelay  time.Duration
	ShortPauseDelay time.Duration
	LongPauseDelay  time.Duration
	MinPauseDelay   time.Duration

	ThinkingDisplay  time.Duration
	ErrorDisplay     time.Duration
	MaxSessionLength time.Duration
}

const (
	highConfidence         = 0.8
	lowConfidence          = 0.5
	extendedSilenceAfter   = 2 * time.Second
	extendedSilenceCredit  = 500 * time.Millisecond
	defaultFrameInterval   = 20 * time.Millisecond
	defaultChunkInterval   = 800 * time.Millisecond
	defaultThinkingDisplay = 500 * time.Millisecond
	defaultErrorDisplay    = 500 * time.Millisecond
)

func (c *Config) applyDefaults() {
	if c.FrameInterval <= 0 {
		c.FrameInterval = defaultFrameInterval
	}
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = defaultChunkInterval
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.BasePauseDelay <= 0 {
		c.BasePauseDelay = 1500 * time.Millisecond
	}
	if c.ShortPauseDelay <= 0 {
		c.ShortPauseDelay = 800 * time.Millisecond
	}
	if c.LongPauseDelay <= 0 {
		c.LongPauseDelay = 2500 * time.Millisecond
	}
	if c.MinPauseDelay <= 0 {
		c.MinPauseDelay = 500 * time.Millisecond
	}
	if c.ThinkingDisplay <= 0 {
		c.ThinkingDisplay = defaultThinkingDisplay
	}
	if c.ErrorDisplay <= 0 {
		c.ErrorDisplay = defaultErrorDisplay
	}
}

// EngineFactory builds a fresh transcription engine for each capture
// session. Injecting the factory keeps engine lifetime in the controller's
// hands and lets tests substitute fakes.
type EngineFactory func() inter.Engine

// Controller runs at most one active capture session. All blocking entry
// points take a context; frame processing happens on an internal goroutine.
type Controller struct {
	cfg           Config
	source        audio.Source
	detector      vadinter.Detector
	engineFactory EngineFactory
	bus           *eventbus.Bus
	logger        *logging.Logger

	mu        sync.Mutex
	state     State
	sessionID string
	analyzer  *audio.Analyzer
	scheduler *transcription.Scheduler
	cancel    context.CancelFunc
	loopDone  chan struct{}
	startedAt time.Time
	spoke     bool
	finishing bool
	chunkBuf  []byte
	recovery  *time.Timer
}

// NewController wires the capture pipeline. The source and detector are
// reused across sessions; the transcription engine is rebuilt per session via
// the factory.
func NewController(cfg Config, source audio.Source, detector vadinter.Detector, factory EngineFactory, bus *eventbus.Bus, logger *logging.Logger) *Controller {
	cfg.applyDefaults()
	c := &Controller{
		cfg:           cfg,
		source:        source,
		detector:      detector,
		engineFactory: factory,
		bus:           bus,
		logger:        logger,
		state:         StateIdle,
	}
	if detector != nil {
		detector.SetEventListener(c)
	}
	return c
}

// State reports the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID reports the identifier of the active (or last) session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start begins a capture session. If one is already active it is stopped
// first; two sessions never capture concurrently. Acquisition failures move
// the controller to the error state, which recovers to idle on its own.
func (c *Controller) Start(ctx context.Context) error {
	const op = "session.Controller.Start"

	c.mu.Lock()
	active := c.state == StateListening || c.state == StateThinking
	c.mu.Unlock()
	if active {
		if _, err := c.Stop(ctx); err != nil && c.logger != nil {
			c.logger.WarnTag("SESSION", "stop before restart: %v", err)
		}
	}

	analyzer, err := audio.NewAnalyzer(ctx, c.source, audio.AnalyzerConfig{
		Window:    c.cfg.AnalyzerWindow,
		Smoothing: c.cfg.AnalyzerSmoothing,
	})
	if err != nil {
		c.enterError(op, err)
		return errors.Wrap(errors.KindSession, op, "could not start capture", err)
	}

	sessionID := uuid.NewString()
	scheduler := transcription.NewScheduler(transcription.Config{
		SessionID:     sessionID,
		ChunkInterval: c.cfg.ChunkInterval,
		Options: inter.Options{
			Format:     "pcm",
			Language:   c.cfg.Language,
			SampleRate: c.cfg.SampleRate,
			Channels:   c.cfg.Channels,
		},
	}, c.engineFactory(), c.bus, c.logger)
	if err := scheduler.Start(ctx); err != nil {
		_ = analyzer.Close()
		c.enterError(op, err)
		return errors.Wrap(errors.KindSession, op, "could not start transcription", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	if c.recovery != nil {
		c.recovery.Stop()
		c.recovery = nil
	}
	c.sessionID = sessionID
	c.analyzer = analyzer
	c.scheduler = scheduler
	c.cancel = cancel
	c.loopDone = done
	c.startedAt = time.Now()
	c.spoke = false
	c.finishing = false
	c.chunkBuf = nil
	c.detector.Reset()
	c.setStateLocked(StateListening)
	c.mu.Unlock()
	c.announceState(sessionID, StateListening)

	if c.logger != nil {
		c.logger.InfoTag("SESSION", "capture started, session=%s", sessionID)
	}
	go c.run(loopCtx, done)
	return nil
}

// Feed accepts little-endian 16-bit PCM from the transport. Audio arriving
// outside a listening session is dropped.
func (c *Controller) Feed(pcm []byte) {
	c.mu.Lock()
	if c.state != StateListening {
		c.mu.Unlock()
		return
	}
	c.chunkBuf = append(c.chunkBuf, pcm...)
	flush := c.takeFullChunksLocked()
	scheduler := c.scheduler
	c.mu.Unlock()

	if pusher, ok := c.source.(interface{ Push([]byte) }); ok {
		pusher.Push(pcm)
	}
	for _, chunk := range flush {
		if err := scheduler.Submit(chunk); err != nil && c.logger != nil {
			c.logger.WarnTag("SESSION", "chunk submit: %v", err)
		}
	}
}

// takeFullChunksLocked slices completed fixed-duration chunks off the front
// of the buffer. Caller holds c.mu.
func (c *Controller) takeFullChunksLocked() [][]byte {
	chunkBytes := int(c.cfg.ChunkInterval.Seconds() * float64(c.cfg.SampleRate) * 2)
	if chunkBytes <= 0 {
		return nil
	}
	var out [][]byte
	for len(c.chunkBuf) >= chunkBytes {
		chunk := make([]byte, chunkBytes)
		copy(chunk, c.chunkBuf[:chunkBytes])
		c.chunkBuf = c.chunkBuf[chunkBytes:]
		out = append(out, chunk)
	}
	return out
}

// run is the frame loop. Each tick analyzes the newest audio window, updates
// the VAD, and checks the natural pause and session length limits.
func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

func (c *Controller) tick(now time.Time) {
	c.mu.Lock()
	if c.state != StateListening || c.finishing {
		c.mu.Unlock()
		return
	}
	analyzer := c.analyzer
	scheduler := c.scheduler
	sessionID := c.sessionID
	startedAt := c.startedAt
	spoke := c.spoke
	c.mu.Unlock()

	frame := analyzer.AnalyzeFrame()
	vadState := c.detector.Process(frame, now)

	if c.bus != nil {
		c.bus.PublishAsync(eventbus.EventVolume, eventbus.VolumeEventData{
			SessionID:  sessionID,
			Volume:     vadState.Volume,
			Confidence: vadState.Confidence,
		})
	}

	if c.cfg.MaxSessionLength > 0 && now.Sub(startedAt) >= c.cfg.MaxSessionLength {
		c.finishAsync()
		return
	}

	// The natural pause only fires during uninterrupted silence after the
	// speaker has actually said something. SilenceDuration resets on every
	// speech start, which is what restarts the timer.
	if spoke && !vadState.Speaking && vadState.SilenceDuration > 0 {
		text, conf := scheduler.LastPartial()
		confidence := completion.Confidence(text, conf)
		if vadState.SilenceDuration >= c.pauseDelay(confidence, vadState.SilenceDuration) {
			c.finishAsync()
		}
	}
}

// pauseDelay computes how much silence must pass before the utterance is
// considered finished.
func (c *Controller) pauseDelay(confidence float64, silence time.Duration) time.Duration {
	delay := c.cfg.BasePauseDelay
	switch {
	case confidence > highConfidence:
		delay = c.cfg.ShortPauseDelay
	case confidence < lowConfidence:
		delay = c.cfg.LongPauseDelay
	}
	if silence > extendedSilenceAfter {
		delay -= utils.MinDuration(silence-extendedSilenceAfter, extendedSilenceCredit)
	}
	if delay < c.cfg.MinPauseDelay {
		delay = c.cfg.MinPauseDelay
	}
	return delay
}

// finishAsync triggers finalization off the frame loop goroutine so Stop's
// drain never blocks a tick.
func (c *Controller) finishAsync() {
	c.mu.Lock()
	if c.finishing || c.state != StateListening {
		c.mu.Unlock()
		return
	}
	c.finishing = true
	c.mu.Unlock()

	go func() {
		if _, err := c.stop(context.Background(), false); err != nil && c.logger != nil {
			c.logger.WarnTag("SESSION", "natural pause finalize: %v", err)
		}
	}()
}

// Stop finalizes the active session: it halts the frame loop, drains queued
// transcription work, runs the final combined pass, and releases capture
// resources. Stopping an idle controller is a no-op, and a second Stop during
// teardown waits for the first rather than racing it.
func (c *Controller) Stop(ctx context.Context) (*Result, error) {
	return c.stop(ctx, false)
}

// Abort ends the session without producing a transcript. Resources are
// released the same way as Stop.
func (c *Controller) Abort(ctx context.Context) error {
	_, err := c.stop(ctx, true)
	return err
}

func (c *Controller) stop(ctx context.Context, discard bool) (*Result, error) {
	const op = "session.Controller.Stop"

	c.mu.Lock()
	if c.state != StateListening {
		done := c.loopDone
		c.mu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return nil, nil
	}
	c.finishing = true
	c.setStateLocked(StateThinking)
	cancel := c.cancel
	done := c.loopDone
	scheduler := c.scheduler
	analyzer := c.analyzer
	sessionID := c.sessionID
	startedAt := c.startedAt
	remainder := c.chunkBuf
	c.chunkBuf = nil
	c.mu.Unlock()
	c.announceState(sessionID, StateThinking)

	cancel()
	<-done

	// Ship whatever partial chunk was still accumulating so the final pass
	// covers the whole utterance.
	if !discard && len(remainder) > 0 {
		if err := scheduler.Submit(remainder); err != nil && c.logger != nil {
			c.logger.WarnTag("SESSION", "final chunk submit: %v", err)
		}
	}

	var result *Result
	var finalErr error
	if discard {
		if err := scheduler.Discard(ctx); err != nil && c.logger != nil {
			c.logger.WarnTag("SESSION", "abort drain: %v", err)
		}
	} else {
		final, err := scheduler.Stop(ctx)
		switch {
		case err != nil:
			finalErr = errors.Wrap(errors.KindSession, op, "final transcription failed", err)
			c.publishError(sessionID, op, finalErr)
		case final != nil:
			result = &Result{
				SessionID:  sessionID,
				Transcript: final.Text,
				Confidence: final.Confidence,
				Duration:   time.Since(startedAt),
			}
		}
	}

	if err := analyzer.Close(); err != nil && c.logger != nil {
		c.logger.WarnTag("SESSION", "analyzer close: %v", err)
	}
	c.detector.Reset()

	c.mu.Lock()
	c.analyzer = nil
	c.scheduler = nil
	c.cancel = nil
	c.loopDone = nil
	c.finishing = false
	c.mu.Unlock()

	// Hold the thinking state briefly for UI feedback, then settle to idle.
	time.AfterFunc(c.cfg.ThinkingDisplay, func() {
		c.mu.Lock()
		changed := c.state == StateThinking && c.setStateLocked(StateIdle)
		c.mu.Unlock()
		if changed {
			c.announceState(sessionID, StateIdle)
		}
	})

	if c.logger != nil {
		c.logger.InfoTag("SESSION", "capture finished, session=%s, err=%v", sessionID, finalErr)
	}
	return result, finalErr
}

// OnSpeechStart implements the VAD event listener. Called from the frame
// loop goroutine.
func (c *Controller) OnSpeechStart(state vadinter.State) {
	c.mu.Lock()
	c.spoke = true
	sessionID := c.sessionID
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(eventbus.EventSpeechStart, eventbus.SpeechEventData{
			SessionID: sessionID,
			Speaking:  true,
			Volume:    state.Volume,
		})
	}
}

// OnSpeechEnd implements the VAD event listener.
func (c *Controller) OnSpeechEnd(state vadinter.State) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(eventbus.EventSpeechEnd, eventbus.SpeechEventData{
			SessionID: sessionID,
			Speaking:  false,
			Volume:    state.Volume,
			Duration:  state.SpeechDuration,
		})
	}
}

func (c *Controller) enterError(op string, cause error) {
	c.mu.Lock()
	c.setStateLocked(StateError)
	sessionID := c.sessionID
	if c.recovery != nil {
		c.recovery.Stop()
	}
	c.recovery = time.AfterFunc(c.cfg.ErrorDisplay, func() {
		c.mu.Lock()
		changed := c.state == StateError && c.setStateLocked(StateIdle)
		c.mu.Unlock()
		if changed {
			c.announceState(sessionID, StateIdle)
		}
	})
	c.mu.Unlock()

	c.announceState(sessionID, StateError)
	c.publishError(sessionID, op, cause)
	if c.logger != nil {
		c.logger.ErrorTag("SESSION", "%s: %v", op, cause)
	}
}

func (c *Controller) publishError(sessionID, op string, err error) {
	if c.bus == nil || err == nil {
		return
	}
	c.bus.Publish(eventbus.EventSessionError, eventbus.ErrorEventData{
		SessionID: sessionID,
		Op:        op,
		Message:   err.Error(),
	})
}

// setStateLocked transitions state and reports whether it changed. Caller
// holds c.mu; the announcement happens after the lock is released because
// bus subscribers may call back into the controller.
func (c *Controller) setStateLocked(next State) bool {
	if c.state == next {
		return false
	}
	c.state = next
	return true
}

func (c *Controller) announceState(sessionID string, state State) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.EventSessionState, eventbus.SessionStateData{
		SessionID: sessionID,
		State:     string(state),
	})
}
