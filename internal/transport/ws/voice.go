package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"voicetask-server-go/internal/platform/logging"

	"voicetask-server-go/internal/domain/audio"
	"voicetask-server-go/internal/domain/eventbus"
	"voicetask-server-go/internal/domain/session"
	"voicetask-server-go/internal/domain/vad/adaptive"
	vadinter "voicetask-server-go/internal/domain/vad/inter"
)

// VoiceDeps carries the shared pieces every voice connection needs. One
// controller pipeline is built per connection; the bus and engine factory are
// shared.
type VoiceDeps struct {
	Bus           *eventbus.Bus
	Logger        *logging.Logger
	SessionConfig session.Config
	VADConfig     vadinter.Config
	EngineFactory session.EngineFactory
}

// VoiceHandlerBuilder returns a HandlerBuilder producing voice handlers.
func VoiceHandlerBuilder(deps VoiceDeps) HandlerBuilder {
	return func(conn *Connection, _ *http.Request) (SessionHandler, error) {
		return NewVoiceHandler(conn, deps)
	}
}

// controlMessage is what the client sends as text frames. Audio arrives as
// binary frames, little-endian 16-bit PCM unless start declares another
// format.
type controlMessage struct {
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

type outboundMessage struct {
	Type       string     `json:"type"`
	SessionID  string     `json:"session_id,omitempty"`
	State      string     `json:"state,omitempty"`
	Speaking   bool       `json:"speaking,omitempty"`
	Volume     float64    `json:"volume,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Text       string     `json:"text,omitempty"`
	Sequence   int        `json:"sequence,omitempty"`
	TaskID     string     `json:"task_id,omitempty"`
	Title      string     `json:"title,omitempty"`
	Due        *time.Time `json:"due,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// VoiceHandler speaks the voice capture protocol on one websocket: binary
// PCM in, JSON pipeline events out, with start/stop/abort control frames.
type VoiceHandler struct {
	conn       *Connection
	deps       VoiceDeps
	controller *session.Controller

	// format of incoming binary frames, declared by the start message.
	// Only touched from the read loop goroutine.
	format audio.Format

	// Subscription closures are kept so they can be unsubscribed on Close.
	onState   func(eventbus.SessionStateData)
	onSpeech  func(eventbus.SpeechEventData)
	onVolume  func(eventbus.VolumeEventData)
	onPartial func(eventbus.TranscriptEventData)
	onFinal   func(eventbus.TranscriptEventData)
	onError   func(eventbus.ErrorEventData)
	onTask    func(eventbus.TaskEventData)
}

// NewVoiceHandler builds the per-connection capture pipeline and subscribes
// it to the event bus.
func NewVoiceHandler(conn *Connection, deps VoiceDeps) (*VoiceHandler, error) {
	cfg := deps.SessionConfig
	source := audio.NewPCMSource(cfg.SampleRate, cfg.SampleRate*2)
	detector := adaptive.New(deps.VADConfig)
	controller := session.NewController(cfg, source, detector, deps.EngineFactory, deps.Bus, deps.Logger)

	h := &VoiceHandler{
		conn:       conn,
		deps:       deps,
		controller: controller,
	}
	if err := h.subscribe(); err != nil {
		return nil, err
	}
	return h, nil
}

// GetSessionID implements SessionHandler using the connection identity; the
// capture session ID rotates per Start and rides inside each event payload.
func (h *VoiceHandler) GetSessionID() string {
	return h.conn.GetID()
}

// Handle runs the read loop until the client goes away.
func (h *VoiceHandler) Handle() {
	for {
		messageType, payload, err := h.conn.ReadMessage()
		if err != nil {
			return
		}
		switch messageType {
		case websocket.BinaryMessage:
			pcm, err := audio.DecodeToPCM(payload, h.format)
			if err != nil {
				h.send(outboundMessage{Type: "error", Message: err.Error()})
				continue
			}
			h.controller.Feed(pcm)
		case websocket.TextMessage:
			h.handleControl(payload)
		}
	}
}

func (h *VoiceHandler) handleControl(payload []byte) {
	var msg controlMessage
	if err := sonic.Unmarshal(payload, &msg); err != nil {
		h.send(outboundMessage{Type: "error", Message: "malformed control message"})
		return
	}

	ctx := context.Background()
	switch msg.Type {
	case "start":
		h.format = audio.Format(msg.Format)
		if err := h.controller.Start(ctx); err != nil {
			h.send(outboundMessage{Type: "error", Message: err.Error()})
		}
	case "stop":
		if _, err := h.controller.Stop(ctx); err != nil {
			h.send(outboundMessage{Type: "error", Message: err.Error()})
		}
	case "abort":
		if err := h.controller.Abort(ctx); err != nil {
			h.send(outboundMessage{Type: "error", Message: err.Error()})
		}
	case "ping":
		h.send(outboundMessage{Type: "pong"})
	default:
		h.send(outboundMessage{Type: "error", Message: "unknown control type: " + msg.Type})
	}
}

// Close aborts any active capture and detaches from the bus.
func (h *VoiceHandler) Close() {
	h.unsubscribe()
	if err := h.controller.Abort(context.Background()); err != nil && h.deps.Logger != nil {
		h.deps.Logger.WarnTag("WS", "abort on close: %v", err)
	}
}

// mine reports whether an event belongs to this connection's capture session.
func (h *VoiceHandler) mine(sessionID string) bool {
	return sessionID != "" && sessionID == h.controller.SessionID()
}

func (h *VoiceHandler) subscribe() error {
	bus := h.deps.Bus

	h.onState = func(data eventbus.SessionStateData) {
		if h.mine(data.SessionID) {
			h.send(outboundMessage{Type: "state", SessionID: data.SessionID, State: data.State})
		}
	}
	h.onSpeech = func(data eventbus.SpeechEventData) {
		if h.mine(data.SessionID) {
			h.send(outboundMessage{Type: "speech", SessionID: data.SessionID, Speaking: data.Speaking, Volume: data.Volume})
		}
	}
	h.onVolume = func(data eventbus.VolumeEventData) {
		if h.mine(data.SessionID) {
			h.send(outboundMessage{Type: "volume", SessionID: data.SessionID, Volume: data.Volume, Confidence: data.Confidence})
		}
	}
	h.onPartial = func(data eventbus.TranscriptEventData) {
		if h.mine(data.SessionID) {
			h.send(outboundMessage{Type: "partial", SessionID: data.SessionID, Text: data.Text, Confidence: data.Confidence, Sequence: data.Sequence})
		}
	}
	h.onFinal = func(data eventbus.TranscriptEventData) {
		if h.mine(data.SessionID) {
			h.send(outboundMessage{Type: "final", SessionID: data.SessionID, Text: data.Text, Confidence: data.Confidence})
		}
	}
	h.onError = func(data eventbus.ErrorEventData) {
		if data.SessionID == "" || h.mine(data.SessionID) {
			h.send(outboundMessage{Type: "error", SessionID: data.SessionID, Message: data.Message})
		}
	}
	h.onTask = func(data eventbus.TaskEventData) {
		if h.mine(data.SessionID) {
			h.send(outboundMessage{Type: "task", SessionID: data.SessionID, TaskID: data.TaskID, Title: data.Title, Due: data.Due})
		}
	}

	subs := []struct {
		topic string
		fn    any
		async bool
	}{
		{eventbus.EventSessionState, h.onState, false},
		{eventbus.EventSpeechStart, h.onSpeech, false},
		{eventbus.EventSpeechEnd, h.onSpeech, false},
		{eventbus.EventVolume, h.onVolume, true},
		{eventbus.EventPartialResult, h.onPartial, false},
		{eventbus.EventFinalResult, h.onFinal, false},
		{eventbus.EventSessionError, h.onError, false},
		{eventbus.EventTranscriptionError, h.onError, false},
		{eventbus.EventTaskCreated, h.onTask, true},
	}
	for _, sub := range subs {
		var err error
		if sub.async {
			err = bus.SubscribeAsync(sub.topic, sub.fn)
		} else {
			err = bus.Subscribe(sub.topic, sub.fn)
		}
		if err != nil {
			h.unsubscribe()
			return err
		}
	}
	return nil
}

func (h *VoiceHandler) unsubscribe() {
	bus := h.deps.Bus
	_ = bus.Unsubscribe(eventbus.EventSessionState, h.onState)
	_ = bus.Unsubscribe(eventbus.EventSpeechStart, h.onSpeech)
	_ = bus.Unsubscribe(eventbus.EventSpeechEnd, h.onSpeech)
	_ = bus.Unsubscribe(eventbus.EventPartialResult, h.onPartial)
	_ = bus.Unsubscribe(eventbus.EventFinalResult, h.onFinal)
	_ = bus.Unsubscribe(eventbus.EventSessionError, h.onError)
	_ = bus.Unsubscribe(eventbus.EventTranscriptionError, h.onError)
	_ = bus.UnsubscribeAsync(eventbus.EventVolume, h.onVolume)
	_ = bus.UnsubscribeAsync(eventbus.EventTaskCreated, h.onTask)
}

func (h *VoiceHandler) send(msg outboundMessage) {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return
	}
	if err := h.conn.WriteMessage(websocket.TextMessage, payload); err != nil && h.deps.Logger != nil && !h.conn.IsClosed() {
		h.deps.Logger.DebugTag("WS", "write to %s: %v", h.conn.GetID(), err)
	}
}
