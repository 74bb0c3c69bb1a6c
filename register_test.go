package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/knowledge/rag"
)

func TestRegisterDocuments(t *testing.T) {
	ctx := context.Background()
	db := rag.NewMemoryDB()
	embedder := newKeywordEmbedder()

	var progress []int
	opts := append(testRegisterOptions(db, embedder), WithProgress(func(processed, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, processed)
	}))
	stats, err := RegisterDocuments(ctx, sampleDocuments(), opts...)
	require.NoError(t, err)
	assert.Equal(t, "test", stats.Collection)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, []int{2, 3}, progress)

	count, err := db.Count(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	t.Run("rebuild replaces the collection", func(t *testing.T) {
		_, err := RegisterDocuments(ctx, sampleDocuments()[:1], testRegisterOptions(db, embedder)...)
		require.NoError(t, err)
		count, err := db.Count(ctx, "test")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("append continues ids", func(t *testing.T) {
		opts := append(testRegisterOptions(db, embedder), WithRebuild(false))
		_, err := RegisterDocuments(ctx, sampleDocuments()[1:], opts...)
		require.NoError(t, err)

		results, err := db.Search(ctx, "test", map[string]Vector{rag.FieldEmbedding: {1, 1, 1}}, 10, rag.MetricCosine, nil)
		require.NoError(t, err)
		var ids []int64
		for _, r := range results {
			ids = append(ids, r.ID)
		}
		assert.ElementsMatch(t, []int64{0, 1, 2}, ids)
	})
}

func TestRegisterDocumentsErrors(t *testing.T) {
	ctx := context.Background()
	db := rag.NewMemoryDB()

	_, err := RegisterDocuments(ctx, nil, testRegisterOptions(db, newKeywordEmbedder())...)
	assert.ErrorIs(t, err, ErrNoDocuments)

	opts := append(testRegisterOptions(db, newKeywordEmbedder()), WithChunking("paragraph", 100, 10))
	_, err = RegisterDocuments(ctx, sampleDocuments(), opts...)
	assert.ErrorContains(t, err, "unknown chunker")
}

func TestRegisterProcessedTexts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "processed_texts.txt")
	require.NoError(t, rag.SaveProcessedTexts(path, []ExtractedText{
		{File: "/docs/billing.pdf", Text: "invoice due in thirty days"},
		{File: "/docs/hr.docx", Text: "holiday requests go to hr"},
	}))

	db := rag.NewMemoryDB()
	stats, err := Register(ctx, path, testRegisterOptions(db, newKeywordEmbedder())...)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)

	_, err = Register(ctx, filepath.Join(t.TempDir(), "missing.txt"), testRegisterOptions(db, newKeywordEmbedder())...)
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "servers.csv"), []byte("host,role\nalpha,invoice server\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("holiday"), 0o644))
	output := filepath.Join(t.TempDir(), "out", "processed.txt")

	db := rag.NewMemoryDB()
	opts := append(testRegisterOptions(db, newKeywordEmbedder()), WithProcessedTexts(output))
	stats, err := Ingest(ctx, dir, opts...)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)

	saved, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(saved), "--- File: "))
	assert.Contains(t, string(saved), "servers.csv")
	assert.NotContains(t, string(saved), "notes.txt")

	t.Run("include text", func(t *testing.T) {
		opts := append(testRegisterOptions(rag.NewMemoryDB(), newKeywordEmbedder()),
			WithProcessedTexts(""), WithIncludeText(true))
		stats, err := Ingest(ctx, dir, opts...)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Documents)
	})

	t.Run("missing folder", func(t *testing.T) {
		_, err := Ingest(ctx, filepath.Join(dir, "nope"), testRegisterOptions(rag.NewMemoryDB(), newKeywordEmbedder())...)
		assert.ErrorIs(t, err, ErrFolderNotFound)
	})

	t.Run("nothing extracted", func(t *testing.T) {
		empty := t.TempDir()
		_, err := Ingest(ctx, empty, testRegisterOptions(rag.NewMemoryDB(), newKeywordEmbedder())...)
		assert.ErrorIs(t, err, ErrNoDocuments)
	})
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("Café,Total\n"), 0o644))

	texts, err := Extract(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Equal(t, "cafe total", texts[0].Text)
}
