package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicetask-server-go/internal/domain/audio"
	"voicetask-server-go/internal/domain/eventbus"
	"voicetask-server-go/internal/domain/session"
	"voicetask-server-go/internal/domain/transcription/inter"
	vadinter "voicetask-server-go/internal/domain/vad/inter"
)

type cannedEngine struct{ text string }

func (e *cannedEngine) Initialize(ctx context.Context) error { return nil }

func (e *cannedEngine) Transcribe(ctx context.Context, chunk []byte, opts inter.Options) (*inter.Result, error) {
	return &inter.Result{Text: e.text, Confidence: 0.9}, nil
}

func (e *cannedEngine) Cleanup() error { return nil }

func dialTestServer(t *testing.T, bus *eventbus.Bus) *websocket.Conn {
	t.Helper()

	hub := NewHub(nil)
	router := NewRouter(hub, nil, RouterOptions{})
	router.SetHandlerBuilder(VoiceHandlerBuilder(VoiceDeps{
		Bus: bus,
		SessionConfig: session.Config{
			FrameInterval:   5 * time.Millisecond,
			ChunkInterval:   50 * time.Millisecond,
			SampleRate:      16000,
			AnalyzerWindow:  256,
			ThinkingDisplay: 10 * time.Millisecond,
			ErrorDisplay:    10 * time.Millisecond,
		},
		VADConfig:     vadinter.DefaultConfig(),
		EngineFactory: func() inter.Engine { return &cannedEngine{text: "remind me to call mom tomorrow"} },
	}))

	srv := httptest.NewServer(http.HandlerFunc(router.Handle))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { hub.CloseAll(nil) })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Client-Id": []string{"test-client"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendControl(t *testing.T, conn *websocket.Conn, msgType string) {
	t.Helper()
	payload, err := sonic.Marshal(controlMessage{Type: msgType})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// readUntil collects messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) outboundMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", wantType)
		var msg outboundMessage
		require.NoError(t, sonic.Unmarshal(payload, &msg))
		if msg.Type == wantType {
			return msg
		}
	}
}

func TestVoiceProtocolRoundTrip(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Shutdown()
	conn := dialTestServer(t, bus)

	sendControl(t, conn, "start")
	state := readUntil(t, conn, "state")
	assert.Equal(t, "listening", state.State)

	// One chunk of audio, then stop.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 1600)))
	time.Sleep(30 * time.Millisecond)
	sendControl(t, conn, "stop")

	final := readUntil(t, conn, "final")
	assert.Equal(t, "remind me to call mom tomorrow", final.Text)
	assert.InDelta(t, 0.9, final.Confidence, 1e-9)
}

func TestVoiceAcceptsWAVFrames(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Shutdown()
	conn := dialTestServer(t, bus)

	payload, err := sonic.Marshal(controlMessage{Type: "start", Format: "wav"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	readUntil(t, conn, "state")

	frame := audio.EncodeWAV(make([]byte, 1600), 16000, 1)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	time.Sleep(30 * time.Millisecond)
	sendControl(t, conn, "stop")

	final := readUntil(t, conn, "final")
	assert.Equal(t, "remind me to call mom tomorrow", final.Text)
}

func TestVoiceRejectsUnsupportedFormat(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Shutdown()
	conn := dialTestServer(t, bus)

	payload, err := sonic.Marshal(controlMessage{Type: "start", Format: "ogg"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	readUntil(t, conn, "state")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 1600)))
	msg := readUntil(t, conn, "error")
	assert.Contains(t, msg.Message, "unsupported audio format")
}

func TestVoiceRejectsMalformedControl(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Shutdown()
	conn := dialTestServer(t, bus)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := readUntil(t, conn, "error")
	assert.Contains(t, msg.Message, "malformed")

	sendControl(t, conn, "rewind")
	msg = readUntil(t, conn, "error")
	assert.Contains(t, msg.Message, "unknown control type")
}

func TestVoicePing(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Shutdown()
	conn := dialTestServer(t, bus)

	sendControl(t, conn, "ping")
	readUntil(t, conn, "pong")
}
