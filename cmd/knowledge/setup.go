package main

import (
	"fmt"

	"github.com/teilomillet/knowledge"
	"github.com/teilomillet/knowledge/config"
)

// registerOptions maps the configuration onto the indexing pipeline.
func registerOptions(c *config.Config) []knowledge.RegisterOption {
	opts := []knowledge.RegisterOption{
		knowledge.WithVectorDB(c.DBType, c.DBAddress),
		knowledge.WithCollection(c.Collection),
		knowledge.WithChunking(c.Chunker, c.ChunkSize, c.ChunkOverlap),
		knowledge.WithTokenEncoding(c.TokenEncoding),
		knowledge.WithEmbedding(c.EmbeddingProvider, c.EmbeddingModel, c.APIKey),
		knowledge.WithEmbeddingOption("timeout", c.Timeout),
		knowledge.WithBatching(c.BatchSize, c.RequestsPerMinute),
		knowledge.WithConcurrency(c.Concurrency),
		knowledge.WithProcessedTexts(c.ProcessedTexts),
		knowledge.WithIncludeText(c.IncludeText),
	}
	if c.BaseURL != "" {
		opts = append(opts, knowledge.WithEmbeddingOption("base_url", c.BaseURL))
	}
	return opts
}

// retrieverOptions maps the configuration onto the retriever.
func retrieverOptions(c *config.Config) []knowledge.RetrieverOption {
	opts := []knowledge.RetrieverOption{
		knowledge.WithRetrieveDB(c.DBType, c.DBAddress),
		knowledge.WithRetrieveCollection(c.Collection),
		knowledge.WithTopK(c.TopK),
		knowledge.WithMinScore(c.MinScore),
		knowledge.WithHybrid(c.Hybrid),
		knowledge.WithRetrieveEmbedding(c.EmbeddingProvider, c.EmbeddingModel, c.APIKey),
		knowledge.WithRetrieveEmbedderOption("timeout", c.Timeout),
	}
	if c.BaseURL != "" {
		opts = append(opts, knowledge.WithRetrieveEmbedderOption("base_url", c.BaseURL))
	}
	return opts
}

// newSummarizer returns nil when summarization is off.
func newSummarizer(c *config.Config) (knowledge.Summarizer, error) {
	switch c.Summarizer {
	case "goal":
		return knowledge.NewGoalSummarizer(c.ChatProvider, c.ChatModel, c.APIKey)
	case "extractive":
		return knowledge.NewExtractiveSummarizer(3), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown summarizer %q", c.Summarizer)
	}
}

// newAssistant opens the index and connects the chat model. The returned
// close func releases the index.
func newAssistant(c *config.Config) (*knowledge.Assistant, func() error, error) {
	retriever, err := knowledge.NewRetriever(retrieverOptions(c)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}

	chat, err := knowledge.NewGollmChat(
		knowledge.WithChatProvider(c.ChatProvider),
		knowledge.WithChatModel(c.ChatModel),
		knowledge.WithChatAPIKey(c.APIKey),
		knowledge.WithChatMaxTokens(c.ChatMaxTokens),
	)
	if err != nil {
		retriever.Close()
		return nil, nil, err
	}

	opts := []knowledge.AssistantOption{
		knowledge.WithSessionStore(knowledge.NewSessionStore(c.MaxHistory)),
	}
	summarizer, err := newSummarizer(c)
	if err != nil {
		retriever.Close()
		return nil, nil, err
	}
	if summarizer != nil {
		opts = append(opts, knowledge.WithSummarizer(summarizer))
	}

	assistant, err := knowledge.NewAssistant(retriever, chat, opts...)
	if err != nil {
		retriever.Close()
		return nil, nil, err
	}
	return assistant, retriever.Close, nil
}
