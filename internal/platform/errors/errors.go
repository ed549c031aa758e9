// Package errors carries the classified error type used across the pipeline.
// Every failing layer wraps its cause with a Kind so transports can map
// errors to status codes without string matching.
package errors

import (
	"errors"
	"fmt"
)

// Kind labels which layer of the system produced an error.
type Kind string

const (
	KindConfig        Kind = "config"
	KindAudio         Kind = "audio"
	KindVAD           Kind = "vad"
	KindTranscription Kind = "transcription"
	KindSession       Kind = "session"
	KindParser        Kind = "parser"
	KindStorage       Kind = "storage"
	KindTransport     Kind = "transport"
	KindBootstrap     Kind = "bootstrap"
	KindUnknown       Kind = "unknown"
)

// Sentinel errors for capture-acquisition failures. Callers match on these with
// errors.Is to decide whether a session start can be retried or needs user action.
var (
	// ErrPermissionDenied means the client refused (or revoked) microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no capture device could be opened.
	ErrDeviceUnavailable = errors.New("audio capture device unavailable")
	// ErrUnsupportedEnvironment means the client runtime lacks the spectral
	// analysis capability the pipeline needs.
	ErrUnsupportedEnvironment = errors.New("audio environment unsupported")
	// ErrAudioUnavailable means the audio subsystem failed during analyzer
	// construction. There is no degraded analyzer mode.
	ErrAudioUnavailable = errors.New("audio subsystem unavailable")
)

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error with no underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. A nil err wraps to nil so call sites can wrap
// unconditionally. An already classified error keeps its original kind
// rather than being relabeled by an outer layer.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Kind: kind, Op: op, Message: message, Cause: err}
}

// IsKind reports whether the nearest classified error in the chain carries
// the given kind.
func IsKind(err error, kind Kind) bool {
	var typed *Error
	if !errors.As(err, &typed) {
		return false
	}
	return typed.Kind == kind
}

// TranscriptionError reports a failed transcription call. Per-chunk failures are
// delivered to error listeners while the stream keeps draining; only the caller
// decides whether a final-pass failure is fatal.
type TranscriptionError struct {
	Sequence int
	Final    bool
	Cause    error
}

func (e *TranscriptionError) Error() string {
	if e.Final {
		return fmt.Sprintf("final transcription pass failed: %v", e.Cause)
	}
	return fmt.Sprintf("transcription of chunk %d failed: %v", e.Sequence, e.Cause)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Cause
}
