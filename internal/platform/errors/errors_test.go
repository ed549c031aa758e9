package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	withCause := Wrap(KindConfig, "load", "failed to load config", errors.New("file not found"))
	assert.Contains(t, withCause.Error(), "[config:load]")
	assert.Contains(t, withCause.Error(), "file not found")

	bare := New(KindVAD, "process", "no frame data")
	assert.Equal(t, "[vad:process] no frame data", bare.Error())
}

func TestWrapKeepsOriginalClassification(t *testing.T) {
	inner := New(KindTranscription, "submit", "engine rejected chunk")
	outer := Wrap(KindSession, "feed", "pipeline failed", fmt.Errorf("scheduler: %w", inner))

	assert.True(t, IsKind(outer, KindTranscription), "inner kind should win over the outer wrap")
	assert.False(t, IsKind(outer, KindSession))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindStorage, "save", "insert failed", nil))
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("disk full")
	require.ErrorIs(t, Wrap(KindStorage, "save", "insert failed", cause), cause)
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(New(KindConfig, "validate", "bad cadence"), KindConfig))
	assert.False(t, IsKind(New(KindConfig, "validate", "bad cadence"), KindAudio))
	assert.False(t, IsKind(errors.New("plain error"), KindConfig))
	assert.False(t, IsKind(nil, KindConfig))
}

func TestTranscriptionError(t *testing.T) {
	cause := errors.New("engine busy")

	chunkErr := &TranscriptionError{Sequence: 3, Cause: cause}
	assert.Contains(t, chunkErr.Error(), "chunk 3")
	assert.ErrorIs(t, chunkErr, cause)

	finalErr := &TranscriptionError{Final: true, Cause: cause}
	assert.Contains(t, finalErr.Error(), "final")
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	wrapped := Wrap(KindAudio, "analyzer.new", "open source", ErrAudioUnavailable)
	assert.ErrorIs(t, wrapped, ErrAudioUnavailable)
}
