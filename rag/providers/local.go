package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

func init() {
	RegisterEmbedder("local", NewLocalEmbedder)
}

const defaultLocalDimension = 256

// LocalEmbedder maps text to vectors without a network call by hashing each
// lowercase word into one of Dimension buckets with a hash-derived sign, then
// scaling the result to unit length. Texts sharing words get a positive
// cosine similarity, which is enough for offline runs and tests.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder creates a feature hashing embedder. Recognized keys:
//   - dimension: vector size, defaults to 256
func NewLocalEmbedder(config map[string]interface{}) (Embedder, error) {
	dim := intOption(config, "dimension", defaultLocalDimension)
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return &LocalEmbedder{dimension: dim}, nil
}

// Embed hashes the words of text into a unit vector. Text without words
// yields the zero vector.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, e.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimension))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}

// EmbedBatch embeds each text in turn.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// GetDimension returns the configured vector size.
func (e *LocalEmbedder) GetDimension() (int, error) {
	return e.dimension, nil
}
