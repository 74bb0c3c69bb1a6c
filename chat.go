package knowledge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/teilomillet/gollm"
)

// ChatRequest is one turn sent to a chat model.
type ChatRequest struct {
	SystemPrompt string
	Message      string
	// History holds earlier turns of the conversation, oldest first.
	History []gollm.MemoryMessage
}

// ChatModel generates a reply to a ChatRequest.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// ChatConfig configures GollmChat.
type ChatConfig struct {
	Provider   string
	Model      string
	APIKey     string
	MaxTokens  int
	MaxRetries int
	RetryDelay time.Duration
}

// ChatOption configures GollmChat.
type ChatOption func(*ChatConfig)

// WithChatProvider sets the gollm provider name.
func WithChatProvider(provider string) ChatOption {
	return func(c *ChatConfig) {
		c.Provider = provider
	}
}

// WithChatModel sets the model name.
func WithChatModel(model string) ChatOption {
	return func(c *ChatConfig) {
		c.Model = model
	}
}

// WithChatAPIKey sets the provider API key.
func WithChatAPIKey(key string) ChatOption {
	return func(c *ChatConfig) {
		c.APIKey = key
	}
}

// WithChatMaxTokens limits the length of replies.
func WithChatMaxTokens(n int) ChatOption {
	return func(c *ChatConfig) {
		c.MaxTokens = n
	}
}

// WithChatRetries sets how often and how far apart failed calls are retried.
func WithChatRetries(maxRetries int, delay time.Duration) ChatOption {
	return func(c *ChatConfig) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// GollmChat is a ChatModel backed by gollm.
type GollmChat struct {
	llm gollm.LLM
}

// NewGollmChat creates a chat model talking to OpenAI gpt-4 by default.
func NewGollmChat(opts ...ChatOption) (*GollmChat, error) {
	cfg := &ChatConfig{
		Provider:   "openai",
		Model:      "gpt-4",
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		MaxTokens:  1024,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for provider %s", cfg.Provider)
	}

	llm, err := gollm.NewLLM(
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(cfg.Model),
		gollm.SetAPIKey(cfg.APIKey),
		gollm.SetMaxTokens(cfg.MaxTokens),
		gollm.SetMaxRetries(cfg.MaxRetries),
		gollm.SetRetryDelay(cfg.RetryDelay),
		gollm.SetLogLevel(gollm.LogLevelInfo),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM: %w", err)
	}
	return NewGollmChatFromLLM(llm), nil
}

// NewGollmChatFromLLM wraps an existing gollm.LLM.
func NewGollmChatFromLLM(llm gollm.LLM) *GollmChat {
	return &GollmChat{llm: llm}
}

// Chat sends the message with the system prompt; earlier turns are passed
// as prompt context.
func (g *GollmChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	system := gollm.WithSystemPrompt(req.SystemPrompt, gollm.CacheTypeEphemeral)
	prompt := gollm.NewPrompt(req.Message, system)
	if len(req.History) > 0 {
		prompt = gollm.NewPrompt(req.Message, system, gollm.WithContext(FormatHistory(req.History)))
	}

	resp, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	return resp, nil
}

// FormatHistory renders turns as "role: content" lines.
func FormatHistory(history []gollm.MemoryMessage) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
