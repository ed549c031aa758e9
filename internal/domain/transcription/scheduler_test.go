package transcription

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicetask-server-go/internal/platform/errors"

	"voicetask-server-go/internal/domain/audio"
	"voicetask-server-go/internal/domain/eventbus"
	"voicetask-server-go/internal/domain/transcription/inter"
)

// fakeEngine counts in-flight calls and records the order chunks arrive in.
type fakeEngine struct {
	delay    time.Duration
	failSeqs map[int]bool
	failAll  bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu          sync.Mutex
	calls       [][]byte
	initialized bool
	cleanedUp   bool
	seq         int
}

func (f *fakeEngine) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = true
	return nil
}

func (f *fakeEngine) Transcribe(ctx context.Context, chunk []byte, opts inter.Options) (*inter.Result, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if current <= max || f.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, chunk)
	seq := f.seq
	f.seq++
	f.mu.Unlock()

	if f.failAll || f.failSeqs[seq] {
		return nil, fmt.Errorf("engine failure on call %d", seq)
	}
	return &inter.Result{Text: fmt.Sprintf("text-%d", seq), Confidence: 0.8}, nil
}

func (f *fakeEngine) Cleanup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanedUp = true
	return nil
}

func newTestScheduler(t *testing.T, engine inter.Engine, bus *eventbus.Bus) *Scheduler {
	t.Helper()
	s := NewScheduler(Config{
		SessionID: "test-session",
		Options:   inter.Options{Format: "pcm", SampleRate: 16000, Channels: 1},
	}, engine, bus, nil)
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestPartialsDeliveredInSubmissionOrder(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Shutdown()

	var mu sync.Mutex
	var partials []eventbus.TranscriptEventData
	require.NoError(t, bus.Subscribe(eventbus.EventPartialResult, func(data eventbus.TranscriptEventData) {
		mu.Lock()
		partials = append(partials, data)
		mu.Unlock()
	}))

	engine := &fakeEngine{delay: 5 * time.Millisecond}
	s := newTestScheduler(t, engine, bus)

	for i := 0; i < 8; i++ {
		require.NoError(t, s.Submit([]byte{byte(i), 0}))
	}
	result, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, partials, 8)
	for i, p := range partials {
		assert.Equal(t, i, p.Sequence)
		assert.False(t, p.IsFinal)
	}
	assert.Equal(t, int32(1), engine.maxInFlight.Load(), "no concurrent engine calls")
}

func TestChunkErrorDoesNotStopDrain(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Shutdown()

	var mu sync.Mutex
	var partials []int
	var errs []eventbus.ErrorEventData
	require.NoError(t, bus.Subscribe(eventbus.EventPartialResult, func(data eventbus.TranscriptEventData) {
		mu.Lock()
		partials = append(partials, data.Sequence)
		mu.Unlock()
	}))
	require.NoError(t, bus.Subscribe(eventbus.EventTranscriptionError, func(data eventbus.ErrorEventData) {
		mu.Lock()
		errs = append(errs, data)
		mu.Unlock()
	}))

	engine := &fakeEngine{failSeqs: map[int]bool{1: true}}
	s := newTestScheduler(t, engine, bus)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Submit([]byte{byte(i), 0}))
	}
	_, err := s.Stop(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 2, 3}, partials, "later chunks still drain after a failure")
	require.Len(t, errs, 1)
	assert.Equal(t, "transcribe_chunk", errs[0].Op)
}

func TestStopRunsFinalCombinedPass(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestScheduler(t, engine, nil)

	require.NoError(t, s.Submit([]byte{1, 0}))
	require.NoError(t, s.Submit([]byte{2, 0}))
	result, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.calls, 3, "two chunk passes plus one final pass")
	final := engine.calls[2]
	assert.Equal(t, []byte{1, 0, 2, 0}, audio.StripWAVHeader(final), "final pass sees all buffered audio")
	assert.True(t, engine.cleanedUp)
}

func TestFinalPassErrorReturnsNilResult(t *testing.T) {
	engine := &fakeEngine{failSeqs: map[int]bool{1: true}}
	s := newTestScheduler(t, engine, nil)

	require.NoError(t, s.Submit([]byte{1, 0}))
	result, err := s.Stop(context.Background())
	assert.Nil(t, result)
	require.Error(t, err)

	var terr *errors.TranscriptionError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Final)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.True(t, engine.cleanedUp, "teardown still happens on final-pass failure")
}

func TestStopIsIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestScheduler(t, engine, nil)

	require.NoError(t, s.Submit([]byte{1, 0}))
	_, err := s.Stop(context.Background())
	require.NoError(t, err)

	result, err := s.Stop(context.Background())
	assert.Nil(t, result)
	assert.NoError(t, err)
}

func TestSubmitAfterStopRejected(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestScheduler(t, engine, nil)

	_, err := s.Stop(context.Background())
	require.NoError(t, err)

	err = s.Submit([]byte{1, 0})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTranscription))
}

func TestEmptySessionStopsClean(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestScheduler(t, engine, nil)

	result, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Text)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Empty(t, engine.calls, "no engine call for an empty session")
}
