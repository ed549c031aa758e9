// Package assistant relays chat turns to an OpenAI-compatible completions
// backend. The voice pipeline only supplies transcript strings; everything
// conversational lives on the other side of this relay.
package assistant

import (
	"context"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"voicetask-server-go/internal/platform/errors"
	"voicetask-server-go/internal/platform/logging"
)

const systemPrompt = "You are a concise productivity assistant. Help the user " +
	"plan, prioritize, and reflect on their tasks. Keep answers short."

// Config mirrors the assistant section of the server configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	// History caps how many prior turns are kept per conversation.
	History int
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Relay holds per-conversation history and forwards turns to the backend.
type Relay struct {
	cfg    Config
	client *goopenai.Client
	logger *logging.Logger

	mu      sync.Mutex
	history map[string][]Message
}

// NewRelay validates the config and builds the API client.
func NewRelay(cfg Config, logger *logging.Logger) (*Relay, error) {
	const op = "assistant.NewRelay"

	if cfg.APIKey == "" {
		return nil, errors.New(errors.KindConfig, op, "assistant api_key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.History <= 0 {
		cfg.History = 20
	}

	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Relay{
		cfg:     cfg,
		client:  goopenai.NewClientWithConfig(clientConfig),
		logger:  logger,
		history: make(map[string][]Message),
	}, nil
}

// Chat sends one user turn for the given conversation and returns the reply.
func (r *Relay) Chat(ctx context.Context, conversationID, content string) (string, error) {
	const op = "assistant.Relay.Chat"

	if content == "" {
		return "", errors.New(errors.KindParser, op, "empty message")
	}

	messages := r.buildMessages(conversationID, content)

	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(reqCtx, goopenai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, op, "chat request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(errors.KindTransport, op, "empty completion response")
	}

	reply := resp.Choices[0].Message.Content
	r.remember(conversationID, content, reply)
	if r.logger != nil {
		r.logger.DebugTag("CHAT", "conversation %s: %d prompt tokens", conversationID, resp.Usage.PromptTokens)
	}
	return reply, nil
}

// buildMessages assembles system prompt, retained history, and the new turn.
func (r *Relay) buildMessages(conversationID, content string) []goopenai.ChatCompletionMessage {
	r.mu.Lock()
	past := r.history[conversationID]
	r.mu.Unlock()

	messages := make([]goopenai.ChatCompletionMessage, 0, len(past)+2)
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range past {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: content,
	})
}

func (r *Relay) remember(conversationID, content, reply string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := append(r.history[conversationID],
		Message{Role: goopenai.ChatMessageRoleUser, Content: content},
		Message{Role: goopenai.ChatMessageRoleAssistant, Content: reply},
	)
	if len(h) > r.cfg.History {
		h = h[len(h)-r.cfg.History:]
	}
	r.history[conversationID] = h
}

// Forget drops a conversation's history.
func (r *Relay) Forget(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.history, conversationID)
}

// History returns a copy of a conversation's retained turns.
func (r *Relay) History(conversationID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.history[conversationID]))
	copy(out, r.history[conversationID])
	return out
}
