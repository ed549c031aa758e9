package eventbus

import "time"

// Topic constants for the voice pipeline. Ordering-sensitive topics (partials,
// session state) must be published on the synchronous bus; see Bus.Publish.
const (
	// VAD events
	EventSpeechStart = "voice:speech_start"
	EventSpeechEnd   = "voice:speech_end"
	EventVolume      = "voice:volume"

	// Transcription events
	EventPartialResult      = "transcription:partial"
	EventFinalResult        = "transcription:final"
	EventTranscriptionError = "transcription:error"

	// Session events
	EventSessionState = "session:state"
	EventSessionError = "session:error"

	// Task events
	EventTaskCreated = "task:created"
	EventTaskDue     = "task:due"
)

// SpeechEventData is published on speech start/end transitions.
type SpeechEventData struct {
	SessionID string        `json:"session_id"`
	Speaking  bool          `json:"speaking"`
	Volume    float64       `json:"volume"`
	Duration  time.Duration `json:"duration"`
}

// VolumeEventData carries the per-tick volume for UI level meters.
type VolumeEventData struct {
	SessionID  string  `json:"session_id"`
	Volume     float64 `json:"volume"`
	Confidence float64 `json:"confidence"`
}

// TranscriptEventData is published for each partial and the final transcript.
// A partial supersedes the previous partial; it is never appended.
type TranscriptEventData struct {
	SessionID  string  `json:"session_id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Sequence   int     `json:"sequence"`
	IsFinal    bool    `json:"is_final"`
}

// SessionStateData announces controller state changes.
type SessionStateData struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

// ErrorEventData reports recoverable pipeline errors.
type ErrorEventData struct {
	SessionID string `json:"session_id"`
	Op        string `json:"op"`
	Message   string `json:"message"`
}

// TaskEventData announces a created or due task.
type TaskEventData struct {
	SessionID string     `json:"session_id,omitempty"`
	TaskID    string     `json:"task_id"`
	Title     string     `json:"title"`
	Due       *time.Time `json:"due,omitempty"`
}
