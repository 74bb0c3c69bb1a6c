package knowledge

import (
	"github.com/teilomillet/knowledge/rag"
	"github.com/teilomillet/knowledge/rag/providers"
)

// Embedder turns text into vectors.
type Embedder = providers.Embedder

// EmbeddedChunk is a chunk paired with its embedding.
type EmbeddedChunk = rag.EmbeddedChunk

// EmbedderOption configures NewEmbedder.
type EmbedderOption = rag.EmbedderOption

// SetEmbedderProvider selects a registered provider, "openai" or "local".
func SetEmbedderProvider(provider string) EmbedderOption {
	return rag.SetProvider(provider)
}

// SetEmbedderModel sets the embedding model.
func SetEmbedderModel(model string) EmbedderOption {
	return rag.SetModel(model)
}

// SetEmbedderAPIKey sets the API key for hosted providers.
func SetEmbedderAPIKey(apiKey string) EmbedderOption {
	return rag.SetAPIKey(apiKey)
}

// SetEmbedderOption sets a provider specific option such as "base_url" or
// "dimension".
func SetEmbedderOption(key string, value interface{}) EmbedderOption {
	return rag.SetOption(key, value)
}

// NewEmbedder creates an Embedder from the provider registry.
func NewEmbedder(opts ...EmbedderOption) (Embedder, error) {
	return rag.NewEmbedder(opts...)
}

func newEmbedderFrom(provider, model, key string, extra map[string]interface{}) (Embedder, error) {
	opts := []EmbedderOption{SetEmbedderProvider(provider)}
	if model != "" {
		opts = append(opts, SetEmbedderModel(model))
	}
	if key != "" {
		opts = append(opts, SetEmbedderAPIKey(key))
	}
	for k, v := range extra {
		opts = append(opts, SetEmbedderOption(k, v))
	}
	return NewEmbedder(opts...)
}
