package knowledge

import (
	"context"
	"fmt"

	"github.com/teilomillet/knowledge/rag"
)

// Extract parses every supported file of source, which may be a folder, a
// single file or an http(s) URL, and returns the normalized text per file.
// Files that fail to parse are reported through OnError and skipped.
func Extract(ctx context.Context, source string, opts ...RegisterOption) ([]ExtractedText, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newExtractor(cfg).ExtractSource(ctx, source)
}

func newExtractor(cfg *RegisterConfig) *rag.Extractor {
	extractorOpts := []rag.ExtractorOption{
		rag.WithParserManager(NewParser(cfg.IncludeText)),
		rag.WithExtractConcurrency(cfg.MaxConcurrency),
		rag.WithExtractLoader(rag.NewLoader(rag.WithTimeout(cfg.Timeout))),
	}
	if cfg.OnError != nil {
		onError := cfg.OnError
		extractorOpts = append(extractorOpts, rag.WithExtractErrorHandler(func(path string, err error) {
			onError(fmt.Errorf("failed to process %s: %w", path, err))
		}))
	}
	return rag.NewExtractor(extractorOpts...)
}

// Ingest runs the whole indexing pipeline on source: extract, save the
// processed texts (unless the path is empty) and register them.
func Ingest(ctx context.Context, source string, opts ...RegisterOption) (*RegisterStats, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	texts, err := newExtractor(cfg).ExtractSource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", source, err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: nothing extracted from %s", ErrNoDocuments, source)
	}

	if cfg.ProcessedTextsPath != "" {
		if err := rag.SaveProcessedTexts(cfg.ProcessedTextsPath, texts); err != nil {
			return nil, err
		}
		Info("Saved processed texts", "path", cfg.ProcessedTextsPath, "files", len(texts))
	}

	return RegisterDocuments(ctx, TextsToDocuments(texts), opts...)
}

// TextsToDocuments converts extraction results into documents with their
// path in Metadata["source"].
func TextsToDocuments(texts []ExtractedText) []Document {
	docs := make([]Document, len(texts))
	for i, t := range texts {
		docs[i] = Document{
			Content:  t.Text,
			Metadata: map[string]string{"source": t.File},
		}
	}
	return docs
}
