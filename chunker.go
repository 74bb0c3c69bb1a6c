package knowledge

import (
	"fmt"

	"github.com/teilomillet/knowledge/rag"
)

// Chunk represents a piece of text with associated metadata
type Chunk = rag.Chunk

// Chunker splits text into chunks.
type Chunker = rag.Chunker

// TokenCounter counts tokens in a string.
type TokenCounter = rag.TokenCounter

// Chunker kinds accepted by NewChunker.
const (
	ChunkerRecursive = "recursive"
	ChunkerSentence  = "sentence"
)

// NewChunker builds the chunker named by kind. Recursive chunks are sized in
// characters, sentence chunks in tokens. Token sizes are counted with the
// tiktoken encoding when it loads and by whitespace otherwise.
func NewChunker(kind string, size, overlap int, encoding string) (Chunker, error) {
	counter := newTokenCounter(encoding)
	switch kind {
	case ChunkerRecursive, "":
		return rag.NewRecursiveCharacterSplitter(
			rag.WithSplitSize(size, overlap),
			rag.WithSplitTokenCounter(counter),
		)
	case ChunkerSentence:
		return rag.NewTextChunker(
			rag.WithChunkSize(size),
			rag.WithChunkOverlap(overlap),
			rag.WithTokenCounter(counter),
			rag.WithSentenceSplitter(rag.SmartSentenceSplitter),
		)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", kind)
	}
}

func newTokenCounter(encoding string) TokenCounter {
	if encoding == "" {
		return &rag.DefaultTokenCounter{}
	}
	counter, err := rag.NewTikTokenCounter(encoding)
	if err != nil {
		Warn("Falling back to word counts", "encoding", encoding, "error", err)
		return &rag.DefaultTokenCounter{}
	}
	return counter
}
