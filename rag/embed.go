package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/teilomillet/knowledge/rag/providers"
	"golang.org/x/time/rate"
)

// EmbedderConfig holds the configuration for creating an Embedder
type EmbedderConfig struct {
	Provider string
	Options  map[string]interface{}
}

// EmbedderOption is a function type for configuring the EmbedderConfig
type EmbedderOption func(*EmbedderConfig)

// SetProvider sets the provider for the Embedder
func SetProvider(provider string) EmbedderOption {
	return func(c *EmbedderConfig) {
		c.Provider = provider
	}
}

// SetModel sets the model for the Embedder
func SetModel(model string) EmbedderOption {
	return func(c *EmbedderConfig) {
		c.Options["model"] = model
	}
}

// SetAPIKey sets the API key for the Embedder
func SetAPIKey(apiKey string) EmbedderOption {
	return func(c *EmbedderConfig) {
		c.Options["api_key"] = apiKey
	}
}

// SetOption sets a custom option for the Embedder
func SetOption(key string, value interface{}) EmbedderOption {
	return func(c *EmbedderConfig) {
		c.Options[key] = value
	}
}

// NewEmbedder creates a new Embedder instance based on the provided options
func NewEmbedder(opts ...EmbedderOption) (providers.Embedder, error) {
	config := &EmbedderConfig{
		Options: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.Provider == "" {
		return nil, fmt.Errorf("provider must be specified")
	}
	factory, err := providers.GetEmbedderFactory(config.Provider)
	if err != nil {
		return nil, err
	}
	return factory(config.Options)
}

// EmbeddedChunk represents a chunk of text with its embeddings and metadata
type EmbeddedChunk struct {
	Text       string               `json:"text"`
	Embeddings map[string][]float64 `json:"embeddings"`
	Metadata   map[string]string    `json:"metadata"`
	TokenSize  int                  `json:"token_size"`
}

// Embedding returns the default embedding of the chunk.
func (c EmbeddedChunk) Embedding() []float64 {
	return c.Embeddings["default"]
}

// EmbeddingService embeds chunks in batches. Each request to the embedder,
// batched or not, waits on a rate limiter first.
type EmbeddingService struct {
	embedder  providers.Embedder
	batchSize int
	limiter   *rate.Limiter
	logger    Logger
}

// EmbeddingServiceOption configures an EmbeddingService.
type EmbeddingServiceOption func(*EmbeddingService)

// WithBatchSize sets how many chunks go into one embedder request.
func WithBatchSize(n int) EmbeddingServiceOption {
	return func(s *EmbeddingService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRequestsPerMinute throttles embedder requests. Zero or less disables
// throttling.
func WithRequestsPerMinute(rpm int) EmbeddingServiceOption {
	return func(s *EmbeddingService) {
		if rpm <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
}

// WithEmbeddingLogger sets the logger for progress messages.
func WithEmbeddingLogger(logger Logger) EmbeddingServiceOption {
	return func(s *EmbeddingService) {
		s.logger = logger
	}
}

// NewEmbeddingService creates an embedding service with batches of 64 and a
// limit of 3000 requests per minute.
func NewEmbeddingService(embedder providers.Embedder, opts ...EmbeddingServiceOption) *EmbeddingService {
	s := &EmbeddingService{
		embedder:  embedder,
		batchSize: 64,
		logger:    GlobalLogger,
	}
	WithRequestsPerMinute(3000)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EmbedText embeds a single text, typically a query.
func (s *EmbeddingService) EmbedText(ctx context.Context, text string) ([]float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	return vec, nil
}

// EmbedChunks embeds a slice of chunks, keeping their order and metadata.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, chunks []Chunk) ([]EmbeddedChunk, error) {
	s.logger.Debug("Embedding chunks", "count", len(chunks), "batchSize", s.batchSize)
	out := make([]EmbeddedChunk, 0, len(chunks))

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := s.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("error embedding chunks %d-%d: %w", start+1, end, err)
		}
		for i, c := range batch {
			out = append(out, EmbeddedChunk{
				Text:       c.Text,
				Embeddings: map[string][]float64{"default": vectors[i]},
				Metadata:   c.Metadata,
				TokenSize:  c.TokenSize,
			})
		}
		s.logger.Debug("Embedded batch", "done", end, "total", len(chunks))
	}
	return out, nil
}

func (s *EmbeddingService) embedBatch(ctx context.Context, batch []Chunk) ([][]float64, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	if be, ok := s.embedder.(providers.BatchEmbedder); ok {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return be.EmbedBatch(ctx, texts)
	}

	vectors := make([][]float64, len(texts))
	for i, t := range texts {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		v, err := s.embedder.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}
