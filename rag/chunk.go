package rag

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk represents a piece of text with associated metadata for tracking its position
// and size within the original document.
type Chunk struct {
	// Text contains the actual content of the chunk
	Text string
	// TokenSize represents the number of tokens in this chunk
	TokenSize int
	// StartSentence is the index of the first sentence in this chunk
	StartSentence int
	// EndSentence is the index of the last sentence in this chunk (exclusive)
	EndSentence int
	// Metadata is inherited from the source document by SplitDocuments
	Metadata map[string]string
}

// Chunker defines the interface for text chunking implementations.
// Different implementations can provide various strategies for splitting text
// while maintaining context and semantic meaning.
type Chunker interface {
	// Chunk splits the input text into a slice of Chunks according to the
	// implementation's strategy.
	Chunk(text string) []Chunk
}

// TokenCounter defines the interface for counting tokens in a string.
// This abstraction allows for different tokenization strategies (e.g., words, subwords).
type TokenCounter interface {
	// Count returns the number of tokens in the given text according to the
	// implementation's tokenization strategy.
	Count(text string) int
}

// TextChunker packs whole sentences into chunks of at most ChunkSize tokens.
// A sentence longer than ChunkSize, which is the normal case for normalized
// text that has lost its punctuation, is cut into word windows first, so
// every chunk stays within ChunkSize unless a single word exceeds it.
// Consecutive chunks repeat trailing units worth up to ChunkOverlap tokens.
type TextChunker struct {
	ChunkSize        int
	ChunkOverlap     int
	TokenCounter     TokenCounter
	SentenceSplitter func(string) []string
}

// NewTextChunker creates a TextChunker. Defaults: 200 tokens, 50 overlap,
// word counts, DefaultSentenceSplitter.
func NewTextChunker(options ...TextChunkerOption) (*TextChunker, error) {
	tc := &TextChunker{
		ChunkSize:        200,
		ChunkOverlap:     50,
		TokenCounter:     &DefaultTokenCounter{},
		SentenceSplitter: DefaultSentenceSplitter,
	}
	for _, option := range options {
		option(tc)
	}

	if tc.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", tc.ChunkSize)
	}
	if tc.ChunkOverlap < 0 || tc.ChunkOverlap >= tc.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", tc.ChunkSize, tc.ChunkOverlap)
	}
	return tc, nil
}

// TextChunkerOption configures a TextChunker.
type TextChunkerOption func(*TextChunker)

// Chunk splits text into chunks. StartSentence and EndSentence index the
// units the chunk was built from: sentences, or windows of an oversized
// sentence.
func (tc *TextChunker) Chunk(text string) []Chunk {
	units, sizes := tc.units(text)

	var chunks []Chunk
	for start := 0; start < len(units); {
		end, size := start, 0
		for end < len(units) && (end == start || size+sizes[end] <= tc.ChunkSize) {
			size += sizes[end]
			end++
		}
		chunks = append(chunks, Chunk{
			Text:          strings.Join(units[start:end], " "),
			TokenSize:     size,
			StartSentence: start,
			EndSentence:   end,
		})
		if end == len(units) {
			break
		}

		next, carried := end, 0
		for next-1 > start && carried+sizes[next-1] <= tc.ChunkOverlap {
			next--
			carried += sizes[next]
		}
		start = next
	}
	return chunks
}

// units splits text into trimmed sentences and breaks the ones above
// ChunkSize into word windows. sizes holds the token count of each unit.
func (tc *TextChunker) units(text string) (units []string, sizes []int) {
	for _, sentence := range tc.SentenceSplitter(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if n := tc.TokenCounter.Count(sentence); n <= tc.ChunkSize {
			units = append(units, sentence)
			sizes = append(sizes, n)
			continue
		}

		var (
			window []string
			size   int
		)
		for _, word := range strings.Fields(sentence) {
			n := tc.TokenCounter.Count(word)
			if size+n > tc.ChunkSize && len(window) > 0 {
				units = append(units, strings.Join(window, " "))
				sizes = append(sizes, size)
				window, size = nil, 0
			}
			window = append(window, word)
			size += n
		}
		if len(window) > 0 {
			units = append(units, strings.Join(window, " "))
			sizes = append(sizes, size)
		}
	}
	return units, sizes
}

// DefaultSentenceSplitter provides a basic implementation for splitting text into sentences.
// It uses common punctuation marks (., !, ?) as sentence boundaries.
func DefaultSentenceSplitter(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}

// SmartSentenceSplitter provides an advanced sentence splitting implementation that handles:
// - Multiple punctuation marks (., !, ?)
// - Common abbreviations
// - Quoted sentences
// - Parenthetical sentences
// - Lists and enumerations
func SmartSentenceSplitter(text string) []string {
	var sentences []string
	var currentSentence strings.Builder
	inQuote := false

	for _, r := range text {
		currentSentence.WriteRune(r)

		if r == '"' {
			inQuote = !inQuote
		}

		if (r == '.' || r == '!' || r == '?') && !inQuote {
			// Check if it's really the end of a sentence
			if len(sentences) > 0 || currentSentence.Len() > 1 {
				sentences = append(sentences, strings.TrimSpace(currentSentence.String()))
				currentSentence.Reset()
			}
		}
	}

	// Add any remaining text as a sentence
	if currentSentence.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(currentSentence.String()))
	}

	return sentences
}

// DefaultTokenCounter provides a simple word-based token counting implementation.
// It splits text on whitespace to approximate token counts. This is suitable
// for basic use cases but may not accurately reflect subword tokenization
// used by language models.
type DefaultTokenCounter struct{}

// Count returns the number of words in the text, using whitespace as a delimiter.
func (dtc *DefaultTokenCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TikTokenCounter provides accurate token counting using the tiktoken library,
// which implements the tokenization schemes used by OpenAI models.
type TikTokenCounter struct {
	tke *tiktoken.Tiktoken
}

// NewTikTokenCounter creates a new TikTokenCounter using the specified encoding.
// Common encodings include:
// - "cl100k_base" (GPT-4, ChatGPT)
// - "p50k_base" (GPT-3)
// - "r50k_base" (Codex)
func NewTikTokenCounter(encoding string) (*TikTokenCounter, error) {
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding: %w", err)
	}
	return &TikTokenCounter{tke: tke}, nil
}

// Count returns the exact number of tokens in the text according to the
// specified tiktoken encoding.
func (ttc *TikTokenCounter) Count(text string) int {
	return len(ttc.tke.Encode(text, nil, nil))
}

// WithChunkSize sets the target chunk size in tokens.
func WithChunkSize(size int) TextChunkerOption {
	return func(tc *TextChunker) {
		tc.ChunkSize = size
	}
}

// WithChunkOverlap sets the token overlap between adjacent chunks.
func WithChunkOverlap(overlap int) TextChunkerOption {
	return func(tc *TextChunker) {
		tc.ChunkOverlap = overlap
	}
}

// WithTokenCounter sets the TokenCounter used to size chunks.
func WithTokenCounter(counter TokenCounter) TextChunkerOption {
	return func(tc *TextChunker) {
		tc.TokenCounter = counter
	}
}

// WithSentenceSplitter sets the function used to split text into sentences.
func WithSentenceSplitter(splitter func(string) []string) TextChunkerOption {
	return func(tc *TextChunker) {
		tc.SentenceSplitter = splitter
	}
}

// DefaultSeparators are tried in order by RecursiveCharacterSplitter.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveCharacterSplitter splits text on the first separator that occurs
// in it, recursing into pieces that are still too long with the remaining
// separators, then greedily merges pieces back up to ChunkSize characters.
// Consecutive chunks share up to ChunkOverlap characters. Separators stay
// attached to the start of the piece that follows them. Sizes count runes.
type RecursiveCharacterSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	// TokenCounter fills Chunk.TokenSize. Nil falls back to DefaultTokenCounter.
	TokenCounter TokenCounter
}

// RecursiveSplitterOption configures a RecursiveCharacterSplitter.
type RecursiveSplitterOption func(*RecursiveCharacterSplitter)

// WithSplitSize sets ChunkSize and ChunkOverlap.
func WithSplitSize(size, overlap int) RecursiveSplitterOption {
	return func(s *RecursiveCharacterSplitter) {
		s.ChunkSize = size
		s.ChunkOverlap = overlap
	}
}

// WithSeparators replaces DefaultSeparators.
func WithSeparators(separators ...string) RecursiveSplitterOption {
	return func(s *RecursiveCharacterSplitter) {
		s.Separators = separators
	}
}

// WithSplitTokenCounter sets the counter reported in Chunk.TokenSize.
func WithSplitTokenCounter(counter TokenCounter) RecursiveSplitterOption {
	return func(s *RecursiveCharacterSplitter) {
		s.TokenCounter = counter
	}
}

// NewRecursiveCharacterSplitter creates a splitter with 500 character chunks,
// 100 characters of overlap and DefaultSeparators.
func NewRecursiveCharacterSplitter(opts ...RecursiveSplitterOption) (*RecursiveCharacterSplitter, error) {
	s := &RecursiveCharacterSplitter{
		ChunkSize:    500,
		ChunkOverlap: 100,
		Separators:   DefaultSeparators,
		TokenCounter: &DefaultTokenCounter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", s.ChunkSize)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", s.ChunkOverlap, s.ChunkSize)
	}
	if len(s.Separators) == 0 {
		s.Separators = DefaultSeparators
	}
	return s, nil
}

// Split returns the chunk texts for text.
func (s *RecursiveCharacterSplitter) Split(text string) []string {
	return s.split(text, s.Separators)
}

// Chunk implements Chunker.
func (s *RecursiveCharacterSplitter) Chunk(text string) []Chunk {
	counter := s.TokenCounter
	if counter == nil {
		counter = &DefaultTokenCounter{}
	}
	texts := s.Split(text)
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{
			Text:          t,
			TokenSize:     counter.Count(t),
			StartSentence: i,
			EndSentence:   i + 1,
		}
	}
	return chunks
}

func (s *RecursiveCharacterSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge joins pieces greedily. When the next piece does not fit, the current
// window is emitted and pieces are dropped from its front until what remains
// is within the overlap and leaves room for the next piece.
func (s *RecursiveCharacterSplitter) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// splitKeepSeparator splits text on sep and prefixes every piece after the
// first with the separator that preceded it. Empty pieces are dropped. An
// empty separator splits into runes.
func splitKeepSeparator(text, sep string) []string {
	var parts []string
	if sep == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	raw := strings.Split(text, sep)
	if raw[0] != "" {
		parts = append(parts, raw[0])
	}
	for _, r := range raw[1:] {
		parts = append(parts, sep+r)
	}
	return parts
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// SplitDocuments chunks every document with chunker. Each chunk copies the
// document metadata and adds "chunk" (index within the document) and "total"
// (number of chunks of the document).
func SplitDocuments(chunker Chunker, docs []Document) []Chunk {
	var out []Chunk
	for _, doc := range docs {
		chunks := chunker.Chunk(doc.Content)
		for i, c := range chunks {
			md := make(map[string]string, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				md[k] = v
			}
			md["chunk"] = strconv.Itoa(i)
			md["total"] = strconv.Itoa(len(chunks))
			c.Metadata = md
			out = append(out, c)
		}
	}
	return out
}
