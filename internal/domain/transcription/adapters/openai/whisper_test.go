package openai

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicetask-server-go/internal/domain/transcription/inter"
)

func newFakeWhisper(t *testing.T, body string) *Engine {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	engine := New(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, engine.Initialize(context.Background()))
	return engine
}

func TestTranscribeMapsSegmentsAndWords(t *testing.T) {
	engine := newFakeWhisper(t, `{
		"task": "transcribe",
		"language": "en",
		"duration": 1.2,
		"text": "buy milk tomorrow",
		"segments": [
			{"id": 0, "start": 0, "end": 0.6, "text": " buy milk", "avg_logprob": -0.2},
			{"id": 1, "start": 0.6, "end": 1.2, "text": " tomorrow", "avg_logprob": -0.1}
		],
		"words": [
			{"word": "buy", "start": 0, "end": 0.2},
			{"word": "milk", "start": 0.25, "end": 0.55},
			{"word": "tomorrow", "start": 0.65, "end": 1.1}
		]
	}`)

	result, err := engine.Transcribe(context.Background(), make([]byte, 1600), inter.Options{Format: "pcm"})
	require.NoError(t, err)

	assert.Equal(t, "buy milk tomorrow", result.Text)
	assert.Equal(t, "en", result.Language)
	assert.InDelta(t, (math.Exp(-0.2)+math.Exp(-0.1))/2, result.Confidence, 1e-9)

	require.Len(t, result.Segments, 2)
	assert.Equal(t, "buy milk", result.Segments[0].Text)
	require.Len(t, result.Segments[0].Words, 2)
	assert.Equal(t, "buy", result.Segments[0].Words[0].Word)
	assert.Equal(t, "milk", result.Segments[0].Words[1].Word)
	require.Len(t, result.Segments[1].Words, 1)
	assert.Equal(t, "tomorrow", result.Segments[1].Words[0].Word)
	assert.InDelta(t, 0.65, result.Segments[1].Words[0].Start, 1e-9)
}

func TestTranscribeSynthesizesSegmentFromWords(t *testing.T) {
	engine := newFakeWhisper(t, `{
		"task": "transcribe",
		"language": "en",
		"duration": 0.9,
		"text": "call mom",
		"words": [
			{"word": "call", "start": 0.1, "end": 0.4},
			{"word": "mom", "start": 0.45, "end": 0.8}
		]
	}`)

	result, err := engine.Transcribe(context.Background(), make([]byte, 1600), inter.Options{Format: "pcm"})
	require.NoError(t, err)

	require.Len(t, result.Segments, 1)
	assert.Equal(t, "call mom", result.Segments[0].Text)
	assert.InDelta(t, 0.1, result.Segments[0].Start, 1e-9)
	assert.InDelta(t, 0.8, result.Segments[0].End, 1e-9)
	require.Len(t, result.Segments[0].Words, 2)
	assert.Equal(t, "mom", result.Segments[0].Words[1].Word)
}

func TestTranscribeRequiresInitialize(t *testing.T) {
	engine := New(Config{APIKey: "test-key"}, nil)
	_, err := engine.Transcribe(context.Background(), make([]byte, 16), inter.Options{})
	assert.Error(t, err)
}
