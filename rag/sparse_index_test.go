package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBM25Search(t *testing.T) {
	ctx := context.Background()
	idx := NewBM25Index()
	require.NoError(t, idx.Add(ctx, 1, "the quarterly sales report for europe", map[string]string{"source": "/a.pdf"}))
	require.NoError(t, idx.Add(ctx, 2, "holiday schedule and office hours", nil))
	require.NoError(t, idx.Add(ctx, 3, "sales sales sales targets", nil))
	assert.Equal(t, 3, idx.Len())

	results, err := idx.Search(ctx, "Sales report", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, resultIDs(results))
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, "/a.pdf", results[0].Metadata()["source"])

	results, err = idx.Search(ctx, "sales", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, resultIDs(results))

	results, err = idx.Search(ctx, "unrelated words", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBM25RepeatedQueryTermsCountOnce(t *testing.T) {
	ctx := context.Background()
	idx := NewBM25Index()
	require.NoError(t, idx.Add(ctx, 1, "alpha beta", nil))
	require.NoError(t, idx.Add(ctx, 2, "gamma delta", nil))

	once, err := idx.Search(ctx, "alpha", 1)
	require.NoError(t, err)
	twice, err := idx.Search(ctx, "alpha alpha", 1)
	require.NoError(t, err)
	assert.Equal(t, once[0].Score, twice[0].Score)
}

func TestBM25ReplaceAndRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewBM25Index()
	require.NoError(t, idx.Add(ctx, 1, "alpha beta", nil))
	require.NoError(t, idx.Add(ctx, 1, "gamma delta", nil))
	assert.Equal(t, 1, idx.Len())

	results, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, idx.Remove(ctx, 1))
	require.NoError(t, idx.Remove(ctx, 42))
	assert.Equal(t, 0, idx.Len())
	results, err = idx.Search(ctx, "gamma", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRRFReranker(t *testing.T) {
	dense := []SearchResult{{ID: 1}, {ID: 2}, {ID: 3}}
	sparse := []SearchResult{{ID: 3}, {ID: 4}}

	fused, err := NewRRFReranker(60).Rerank(context.Background(), "q", dense, sparse, 1, 1)
	require.NoError(t, err)
	// 3 appears in both lists. 2 and 4 tie on score and rank and are ordered by id.
	assert.Equal(t, []int64{3, 1, 2, 4}, resultIDs(fused))
	assert.InDelta(t, 0.5/63+0.5/61, fused[0].Score, 1e-12)
}

func TestRRFRerankerTies(t *testing.T) {
	dense := []SearchResult{{ID: 7}, {ID: 5}}
	sparse := []SearchResult{{ID: 5}, {ID: 7}}

	fused, err := NewRRFReranker(0).Rerank(context.Background(), "q", dense, sparse, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7}, resultIDs(fused))
}

func TestBM25CustomTokenizer(t *testing.T) {
	ctx := context.Background()
	idx := NewBM25Index()
	idx.SetTokenizer(strings.Fields)
	idx.SetParameters(BM25Parameters{K1: 1.2, B: 0})
	require.NoError(t, idx.Add(ctx, 1, "C++ templates", nil))
	require.NoError(t, idx.Add(ctx, 2, "Go generics", nil))

	results, err := idx.Search(ctx, "C++", -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, resultIDs(results))
}

func TestRRFFuseLists(t *testing.T) {
	r := NewRRFReranker(1)
	fused := r.Fuse(
		RankedList{Results: []SearchResult{{ID: 1, Fields: map[string]interface{}{FieldText: "first"}}, {ID: 2}}, Weight: 2},
		RankedList{Results: []SearchResult{{ID: 2}, {ID: 3}}, Weight: 1},
		RankedList{Results: []SearchResult{{ID: 1, Fields: map[string]interface{}{FieldText: "second"}}}, Weight: 1},
	)
	// 1: 0.5/2 + 0.25/2, 2: 0.5/3 + 0.25/2, 3: 0.25/3
	assert.Equal(t, []int64{1, 2, 3}, resultIDs(fused))
	assert.InDelta(t, 0.375, fused[0].Score, 1e-12)
	assert.Equal(t, "first", fused[0].Text())
	assert.Empty(t, r.Fuse())
}
