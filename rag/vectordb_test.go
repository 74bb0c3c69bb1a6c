package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	return []Record{
		ChunkRecord(1, EmbeddedChunk{Text: "east", Embeddings: map[string][]float64{"default": {1, 0}}, Metadata: map[string]string{"source": "/a.pdf", "chunk": "0"}}),
		ChunkRecord(2, EmbeddedChunk{Text: "north", Embeddings: map[string][]float64{"default": {0, 1}}, Metadata: map[string]string{"source": "/b.pdf", "chunk": "0"}}),
		ChunkRecord(3, EmbeddedChunk{Text: "north east", Embeddings: map[string][]float64{"default": {1, 1}}}),
	}
}

func resultIDs(results []SearchResult) []int64 {
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func setupCollection(t *testing.T, db VectorDB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.Connect(ctx))
	require.NoError(t, db.CreateCollection(ctx, "docs", ChunkSchema("docs", 2)))
	require.NoError(t, db.CreateIndex(ctx, "docs", FieldEmbedding, Index{Type: "HNSW", Metric: MetricCosine}))
	require.NoError(t, db.Insert(ctx, "docs", sampleRecords()))
	require.NoError(t, db.Flush(ctx, "docs"))
	require.NoError(t, db.LoadCollection(ctx, "docs"))
}

func TestMemoryDBSearch(t *testing.T) {
	db, err := NewVectorDB(&Config{Type: "memory"})
	require.NoError(t, err)
	setupCollection(t, db)
	ctx := context.Background()

	n, err := db.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	query := map[string]Vector{FieldEmbedding: {1, 0}}

	results, err := db.Search(ctx, "docs", query, 3, MetricCosine, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2}, resultIDs(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.7071, results[1].Score, 1e-4)
	assert.Equal(t, "east", results[0].Text())
	assert.Equal(t, "/a.pdf", results[0].Metadata()["source"])

	results, err = db.Search(ctx, "docs", query, 2, MetricL2, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, resultIDs(results))
	assert.InDelta(t, 0.0, results[0].Score, 1e-9)

	results, err = db.Search(ctx, "docs", query, 10, MetricIP, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2}, resultIDs(results))
}

func TestMemoryDBColumns(t *testing.T) {
	db := NewMemoryDB()
	setupCollection(t, db)

	db.SetColumnNames([]string{FieldText})
	results, err := db.Search(context.Background(), "docs", map[string]Vector{FieldEmbedding: {0, 1}}, 1, MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, map[string]interface{}{FieldText: "north"}, results[0].Fields)
	assert.Nil(t, results[0].Metadata())
}

func TestMemoryDBMissingCollection(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()

	_, err := db.Count(ctx, "missing")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.ErrorIs(t, db.LoadCollection(ctx, "missing"), ErrCollectionNotFound)
	assert.ErrorIs(t, db.Insert(ctx, "missing", sampleRecords()), ErrCollectionNotFound)
	_, err = db.Search(ctx, "missing", map[string]Vector{FieldEmbedding: {1, 0}}, 1, MetricCosine, nil)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	require.NoError(t, db.CreateCollection(ctx, "docs", ChunkSchema("docs", 2)))
	assert.Error(t, db.CreateCollection(ctx, "docs", ChunkSchema("docs", 2)))
	require.NoError(t, db.DropCollection(ctx, "docs"))
	exists, err := db.HasCollection(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemDBInMemory(t *testing.T) {
	db, err := NewVectorDB(&Config{Type: "chromem"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, db.CreateCollection(ctx, "docs", ChunkSchema("docs", 2)))
	results, err := db.Search(ctx, "docs", map[string]Vector{FieldEmbedding: {1, 0}}, 3, MetricCosine, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, db.Insert(ctx, "docs", sampleRecords()))

	// topK above the collection size is clamped.
	results, err = db.Search(ctx, "docs", map[string]Vector{FieldEmbedding: {1, 0}}, 10, MetricCosine, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2}, resultIDs(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, "east", results[0].Text())
	assert.Equal(t, map[string]string{"source": "/a.pdf", "chunk": "0"}, results[0].Metadata())

	_, err = db.Search(ctx, "docs", map[string]Vector{FieldEmbedding: {1, 0}}, 1, MetricL2, nil)
	assert.Error(t, err)

	require.NoError(t, db.DropCollection(ctx, "docs"))
	_, err = db.Count(ctx, "docs")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestChromemDBPersistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewVectorDB(&Config{Type: "chromem", Address: dir})
	require.NoError(t, err)
	setupCollection(t, db)
	require.NoError(t, db.Close())

	reopened, err := NewVectorDB(&Config{Type: "chromem", Address: dir})
	require.NoError(t, err)
	exists, err := reopened.HasCollection(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := reopened.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := reopened.Search(ctx, "docs", map[string]Vector{FieldEmbedding: {0, 1}}, 1, MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ID)
	assert.Equal(t, "north", results[0].Text())
}

func TestNewVectorDBUnknownType(t *testing.T) {
	_, err := NewVectorDB(&Config{Type: "faiss"})
	assert.Error(t, err)
}

func TestMilvusRequiresAddress(t *testing.T) {
	_, err := NewVectorDB(&Config{Type: "milvus"})
	assert.Error(t, err)
}
