package rag

import (
	"context"
	"math"
	"sort"
	"sync"
)

// BM25Parameters tunes term saturation (K1) and length normalization (B).
type BM25Parameters struct {
	K1 float64
	B  float64
}

// DefaultBM25Parameters returns K1 1.5 and B 0.75.
func DefaultBM25Parameters() BM25Parameters {
	return BM25Parameters{K1: 1.5, B: 0.75}
}

type bm25Doc struct {
	content  string
	metadata map[string]string
	terms    map[string]int
	length   int
}

// BM25Index is a small in-memory inverted index scored with Okapi BM25.
// The retriever fills one per query with the dense candidates and uses its
// ranking for fusion.
type BM25Index struct {
	mu       sync.RWMutex
	docs     map[int64]*bm25Doc
	postings map[string]map[int64]int // term -> doc id -> term frequency
	totalLen int
	params   BM25Parameters
	tokenize func(string) []string
}

// NewBM25Index creates an empty index tokenizing with Tokenize.
func NewBM25Index() *BM25Index {
	return &BM25Index{
		docs:     make(map[int64]*bm25Doc),
		postings: make(map[string]map[int64]int),
		params:   DefaultBM25Parameters(),
		tokenize: Tokenize,
	}
}

// Add indexes a document, replacing any document with the same id.
func (idx *BM25Index) Add(ctx context.Context, id int64, content string, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.remove(id)

	tokens := idx.tokenize(content)
	doc := &bm25Doc{
		content:  content,
		metadata: metadata,
		terms:    make(map[string]int),
		length:   len(tokens),
	}
	for _, t := range tokens {
		doc.terms[t]++
	}
	for term, tf := range doc.terms {
		p, ok := idx.postings[term]
		if !ok {
			p = make(map[int64]int)
			idx.postings[term] = p
		}
		p[id] = tf
	}
	idx.docs[id] = doc
	idx.totalLen += doc.length
	return nil
}

// Remove drops a document. Unknown ids are ignored.
func (idx *BM25Index) Remove(ctx context.Context, id int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.remove(id)
	return nil
}

func (idx *BM25Index) remove(id int64) {
	doc, ok := idx.docs[id]
	if !ok {
		return
	}
	for term := range doc.terms {
		p := idx.postings[term]
		delete(p, id)
		if len(p) == 0 {
			delete(idx.postings, term)
		}
	}
	idx.totalLen -= doc.length
	delete(idx.docs, id)
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search returns up to topK documents sharing at least one term with query,
// best first. Repeated query terms count once; equal scores are ordered by
// id. A negative topK returns every match.
func (idx *BM25Index) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := float64(len(idx.docs))
	if n == 0 {
		return nil, nil
	}
	avgLen := float64(idx.totalLen) / n
	if avgLen == 0 {
		avgLen = 1
	}
	k1, b := idx.params.K1, idx.params.B

	scores := make(map[int64]float64)
	seen := make(map[string]bool)
	for _, term := range idx.tokenize(query) {
		if seen[term] {
			continue
		}
		seen[term] = true
		postings := idx.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for id, tf := range postings {
			norm := k1 * (1 - b + b*float64(idx.docs[id].length)/avgLen)
			scores[id] += idf * float64(tf) * (k1 + 1) / (float64(tf) + norm)
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		doc := idx.docs[id]
		results = append(results, SearchResult{
			ID:    id,
			Score: score,
			Fields: map[string]interface{}{
				FieldText:     doc.content,
				FieldMetadata: doc.metadata,
			},
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SetParameters replaces the BM25 parameters.
func (idx *BM25Index) SetParameters(params BM25Parameters) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.params = params
}

// SetTokenizer replaces Tokenize. It only affects documents added
// afterwards and later queries.
func (idx *BM25Index) SetTokenizer(tokenize func(string) []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tokenize = tokenize
}
