// Package knowledge answers questions about a folder of office documents.
// Documents are extracted to normalized text, split into chunks, embedded
// and stored in a vector index; questions are answered by retrieving the
// closest chunks and handing them to a chat model together with the
// conversation so far.
//
// The building blocks live in the rag package. This package wires them
// together: Ingest and Register build the index, Retriever searches it and
// Assistant produces answers.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teilomillet/knowledge/rag"
)

// Retriever searches the document index with a reusable configuration. It
// owns the vector store connection unless one was supplied with
// WithRetrieveVectorDB.
type Retriever struct {
	config   *RetrieverConfig
	vectorDB VectorDB
	embedder Embedder
	ownsDB   bool
	ready    bool
}

// RetrieverConfig holds settings for the retrieval process.
type RetrieverConfig struct {
	// Core settings define the basic search behavior
	Collection string   // Name of the vector collection to search
	TopK       int      // Maximum number of results to return
	MinScore   float64  // Minimum similarity for COSINE and IP; 0 keeps everything
	UseHybrid  bool     // Rerank dense candidates with BM25 and RRF
	Columns    []string // Columns to retrieve from the database
	RRFK       float64  // RRF constant used in hybrid mode

	// Vector DB settings configure the database connection
	DBType    string // "chromem", "memory" or "milvus"
	DBAddress string // chromem directory or milvus address
	Dimension int    // Embedding vector dimension

	// Embedding settings configure the embedding service
	Provider        string
	Model           string
	APIKey          string
	EmbedderOptions map[string]interface{}

	// Advanced settings provide additional control
	MetricType   string
	Timeout      time.Duration
	SearchParams map[string]interface{}
	OnResult     func(SearchResult)
	OnError      func(error)

	// Prebuilt dependencies take precedence over the settings above.
	VectorDB VectorDB
	Embedder Embedder
}

// RetrieverResult represents a single retrieved chunk.
// Score is the dense similarity (or distance for L2) of the chunk, also in
// hybrid mode where the order comes from rank fusion.
type RetrieverResult struct {
	ID         int64             `json:"id"`
	Content    string            `json:"content"`
	Score      float64           `json:"score"`
	Metadata   map[string]string `json:"metadata"`
	Source     string            `json:"source"`
	ChunkIndex int               `json:"chunk_index"`
}

// RetrieverOption configures the retriever using the functional options pattern.
type RetrieverOption func(*RetrieverConfig)

// NewRetriever creates a new Retriever with the given options.
//
// Example:
//
//	retriever, err := NewRetriever(
//	    WithRetrieveCollection("knowledge"),
//	    WithTopK(3),
//	    WithRetrieveDB("chromem", "knowledge_index"),
//	    WithRetrieveEmbedding("openai", "text-embedding-3-small", os.Getenv("OPENAI_API_KEY")),
//	)
func NewRetriever(opts ...RetrieverOption) (*Retriever, error) {
	cfg := defaultRetrieverConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	r := &Retriever{config: cfg}
	if err := r.initialize(); err != nil {
		return nil, err
	}
	return r, nil
}

// Retrieve embeds the query and returns up to TopK chunks, best first. An
// empty collection yields no results; a missing one returns an error
// wrapping ErrCollectionNotFound.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]RetrieverResult, error) {
	if !r.ready {
		return nil, fmt.Errorf("retriever not properly initialized")
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	count, err := r.vectorDB.Count(ctx, r.config.Collection)
	if err != nil {
		return nil, r.fail(fmt.Errorf("failed to inspect collection %s: %w", r.config.Collection, err))
	}
	if count == 0 {
		Warn("Collection is empty, returning no results", "collection", r.config.Collection)
		return []RetrieverResult{}, nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, r.fail(fmt.Errorf("failed to create query embedding: %w", err))
	}

	limit := r.config.TopK
	if r.config.UseHybrid {
		limit = 4 * r.config.TopK
	}
	limit = min(limit, count)

	r.vectorDB.SetColumnNames(r.config.Columns)
	vectors := map[string]Vector{rag.FieldEmbedding: queryEmbedding}
	searchResults, err := r.vectorDB.Search(ctx, r.config.Collection, vectors, limit, r.config.MetricType, r.config.SearchParams)
	if err != nil {
		return nil, r.fail(fmt.Errorf("failed to search collection %s: %w", r.config.Collection, err))
	}

	searchResults = r.filterByScore(searchResults)
	if r.config.UseHybrid && len(searchResults) > 0 {
		searchResults, err = r.rerank(ctx, query, searchResults)
		if err != nil {
			return nil, r.fail(err)
		}
	}
	if len(searchResults) > r.config.TopK {
		searchResults = searchResults[:r.config.TopK]
	}

	results := make([]RetrieverResult, 0, len(searchResults))
	for _, result := range searchResults {
		metadata := result.Metadata()
		match := RetrieverResult{
			ID:       result.ID,
			Content:  result.Text(),
			Score:    result.Score,
			Metadata: metadata,
		}
		if metadata != nil {
			match.Source = metadata["source"]
			match.ChunkIndex, _ = strconv.Atoi(metadata["chunk"])
		}

		if r.config.OnResult != nil {
			r.config.OnResult(result)
		}
		results = append(results, match)
	}

	Debug("Retrieved chunks", "query", query, "results", len(results), "hybrid", r.config.UseHybrid)
	return results, nil
}

// filterByScore drops results under MinScore. Distances (L2) are not
// filtered.
func (r *Retriever) filterByScore(results []SearchResult) []SearchResult {
	if r.config.MinScore <= 0 || r.config.MetricType == rag.MetricL2 {
		return results
	}
	kept := results[:0]
	for _, res := range results {
		if res.Score >= r.config.MinScore {
			kept = append(kept, res)
		}
	}
	return kept
}

// rerank fuses the dense ranking with a BM25 ranking of the same candidates.
// Fusion only decides the order; each result keeps its dense similarity as
// Score.
func (r *Retriever) rerank(ctx context.Context, query string, dense []SearchResult) ([]SearchResult, error) {
	idx := rag.NewBM25Index()
	for _, res := range dense {
		if err := idx.Add(ctx, res.ID, res.Text(), res.Metadata()); err != nil {
			return nil, fmt.Errorf("failed to index candidate %d: %w", res.ID, err)
		}
	}
	sparse, err := idx.Search(ctx, query, len(dense))
	if err != nil {
		return nil, fmt.Errorf("failed to rank candidates: %w", err)
	}

	// Sparse hits carry the BM25 view of the fields; fused results keep the
	// dense copy since RRF takes the first occurrence.
	fused, err := rag.NewRRFReranker(r.config.RRFK).Rerank(ctx, query, dense, sparse, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fuse rankings: %w", err)
	}

	similarity := make(map[int64]float64, len(dense))
	for _, res := range dense {
		similarity[res.ID] = res.Score
	}
	for i := range fused {
		fused[i].Score = similarity[fused[i].ID]
	}
	return fused, nil
}

func (r *Retriever) fail(err error) error {
	if r.config.OnError != nil {
		r.config.OnError(err)
	}
	return err
}

// GetVectorDB returns the underlying vector database instance.
func (r *Retriever) GetVectorDB() VectorDB {
	return r.vectorDB
}

// Config returns a copy of the retriever configuration.
func (r *Retriever) Config() RetrieverConfig {
	return *r.config
}

// WithRetrieveCollection sets the collection name for retrieval operations.
func WithRetrieveCollection(name string) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.Collection = name
	}
}

// WithTopK sets the maximum number of results to return.
func WithTopK(k int) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.TopK = k
	}
}

// WithMinScore sets the minimum similarity score threshold.
func WithMinScore(score float64) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.MinScore = score
	}
}

// WithRetrieveDB configures the vector database connection.
func WithRetrieveDB(dbType, address string) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.DBType = dbType
		c.DBAddress = address
	}
}

// WithRetrieveVectorDB uses an existing, connected vector store. The
// retriever does not close it.
func WithRetrieveVectorDB(db VectorDB) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.VectorDB = db
	}
}

// WithRetrieveEmbedding configures the embedding service.
func WithRetrieveEmbedding(provider, model, key string) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.Provider = provider
		c.Model = model
		c.APIKey = key
	}
}

// WithRetrieveEmbedder uses an existing embedder.
func WithRetrieveEmbedder(e Embedder) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.Embedder = e
	}
}

// WithRetrieveEmbedderOption sets a provider specific embedder option.
func WithRetrieveEmbedderOption(key string, value interface{}) RetrieverOption {
	return func(c *RetrieverConfig) {
		if c.EmbedderOptions == nil {
			c.EmbedderOptions = make(map[string]interface{})
		}
		c.EmbedderOptions[key] = value
	}
}

// WithHybrid enables or disables BM25 reranking of dense candidates.
func WithHybrid(enabled bool) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.UseHybrid = enabled
	}
}

// WithMetric sets the similarity metric: COSINE, IP or L2.
func WithMetric(metric string) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.MetricType = metric
	}
}

// WithColumns specifies which columns to retrieve from the database.
func WithColumns(columns ...string) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.Columns = columns
	}
}

// WithRetrieveDimension sets the embedding vector dimension.
func WithRetrieveDimension(dimension int) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.Dimension = dimension
	}
}

// WithRetrieveCallbacks sets result and error handling callbacks.
func WithRetrieveCallbacks(onResult func(SearchResult), onError func(error)) RetrieverOption {
	return func(c *RetrieverConfig) {
		c.OnResult = onResult
		c.OnError = onError
	}
}

// defaultRetrieverConfig searches the local chromem index for the three
// closest chunks by cosine similarity.
func defaultRetrieverConfig() *RetrieverConfig {
	return &RetrieverConfig{
		Collection: DefaultCollection,
		TopK:       3,
		MinScore:   0,
		UseHybrid:  false,
		Columns:    []string{rag.FieldText, rag.FieldMetadata},
		RRFK:       60,
		DBType:     "chromem",
		DBAddress:  DefaultIndexPath,
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		MetricType: rag.MetricCosine,
		Timeout:    30 * time.Second,
	}
}

func (r *Retriever) initialize() error {
	if r.config.TopK <= 0 {
		return fmt.Errorf("top k must be positive, got %d", r.config.TopK)
	}

	if r.config.VectorDB != nil {
		r.vectorDB = r.config.VectorDB
	} else {
		db, err := NewVectorDB(
			WithType(r.config.DBType),
			WithAddress(r.config.DBAddress),
			WithTimeout(r.config.Timeout),
			WithDimension(r.config.Dimension),
		)
		if err != nil {
			return fmt.Errorf("failed to create vector store: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
		defer cancel()
		if err := db.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to vector store: %w", err)
		}
		r.vectorDB = db
		r.ownsDB = true
	}

	if r.config.Embedder != nil {
		r.embedder = r.config.Embedder
	} else {
		e, err := newEmbedderFrom(r.config.Provider, r.config.Model, r.config.APIKey, r.config.EmbedderOptions)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to create embedder: %w", err), r.Close())
		}
		r.embedder = e
	}

	r.ready = true
	return nil
}

// Close releases the vector store if the retriever opened it.
func (r *Retriever) Close() error {
	if r.vectorDB != nil && r.ownsDB {
		return r.vectorDB.Close()
	}
	return nil
}
