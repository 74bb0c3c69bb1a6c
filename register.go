package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/teilomillet/knowledge/rag"
)

// Index defaults shared by Register and NewRetriever.
const (
	DefaultCollection = "knowledge"
	DefaultIndexPath  = "knowledge_index"
)

// RegisterConfig holds all configuration for building the index.
type RegisterConfig struct {
	// Storage settings
	VectorDBType    string // "chromem", "memory" or "milvus"
	VectorDBAddress string // chromem directory or milvus address
	CollectionName  string
	Rebuild         bool // Drop an existing collection instead of appending to it

	// Processing settings
	Chunker           string // ChunkerRecursive or ChunkerSentence
	ChunkSize         int
	ChunkOverlap      int
	TokenEncoding     string
	BatchSize         int
	RequestsPerMinute int
	Timeout           time.Duration

	// Extraction settings used by Ingest
	ProcessedTextsPath string
	MaxConcurrency     int
	IncludeText        bool

	// Embedding settings
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingKey      string
	EmbeddingOptions  map[string]interface{}

	// Prebuilt dependencies take precedence over the settings above.
	VectorDB VectorDB
	Embedder Embedder

	// Callbacks
	OnProgress func(processed, total int)
	OnError    func(error)
}

// RegisterStats summarizes an indexing run.
type RegisterStats struct {
	Collection string
	Documents  int
	Chunks     int
	Dimension  int
	Duration   time.Duration
}

// defaultConfig splits into 500 character chunks overlapping by 100 and
// replaces any existing index.
func defaultConfig() *RegisterConfig {
	return &RegisterConfig{
		VectorDBType:       "chromem",
		VectorDBAddress:    DefaultIndexPath,
		CollectionName:     DefaultCollection,
		Rebuild:            true,
		Chunker:            ChunkerRecursive,
		ChunkSize:          500,
		ChunkOverlap:       100,
		TokenEncoding:      "cl100k_base",
		BatchSize:          64,
		RequestsPerMinute:  3000,
		Timeout:            30 * time.Second,
		ProcessedTextsPath: rag.DefaultProcessedTextsFile,
		MaxConcurrency:     4,
		EmbeddingProvider:  "openai",
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingKey:       os.Getenv("OPENAI_API_KEY"),
		OnProgress: func(processed, total int) {
			Debug(fmt.Sprintf("Progress: %d/%d", processed, total))
		},
	}
}

// RegisterOption is a function that modifies RegisterConfig
type RegisterOption func(*RegisterConfig)

// Register indexes a processed texts file written by SaveProcessedTexts.
func Register(ctx context.Context, processedTextsPath string, opts ...RegisterOption) (*RegisterStats, error) {
	docs, err := rag.LoadProcessedTexts(processedTextsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read processed texts: %w", err)
	}
	return RegisterDocuments(ctx, docs, opts...)
}

// RegisterDocuments chunks, embeds and stores docs. Chunk ids continue after
// the records already in the collection when Rebuild is off.
func RegisterDocuments(ctx context.Context, docs []Document, opts ...RegisterOption) (stats *RegisterStats, err error) {
	start := time.Now()
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	chunker, err := NewChunker(cfg.Chunker, cfg.ChunkSize, cfg.ChunkOverlap, cfg.TokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}
	chunks := rag.SplitDocuments(chunker, docs)
	if len(chunks) == 0 {
		return nil, ErrNoDocuments
	}
	Info("Split documents", "documents", len(docs), "chunks", len(chunks))

	embedder := cfg.Embedder
	if embedder == nil {
		embedder, err = newEmbedderFrom(cfg.EmbeddingProvider, cfg.EmbeddingModel, cfg.EmbeddingKey, cfg.EmbeddingOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	service := rag.NewEmbeddingService(embedder,
		rag.WithBatchSize(cfg.BatchSize),
		rag.WithRequestsPerMinute(cfg.RequestsPerMinute),
	)
	embedded := make([]EmbeddedChunk, 0, len(chunks))
	for i := 0; i < len(chunks); i += cfg.BatchSize {
		end := min(i+cfg.BatchSize, len(chunks))
		batch, err := service.EmbedChunks(ctx, chunks[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		embedded = append(embedded, batch...)
		if cfg.OnProgress != nil {
			cfg.OnProgress(end, len(chunks))
		}
	}

	dimension, dimErr := embedder.GetDimension()
	if got := len(embedded[0].Embedding()); dimErr != nil || dimension != got {
		dimension = got
	}

	db := cfg.VectorDB
	if db == nil {
		db, err = NewVectorDB(
			WithType(cfg.VectorDBType),
			WithAddress(cfg.VectorDBAddress),
			WithTimeout(cfg.Timeout),
			WithDimension(dimension),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
		if err := db.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to vector store: %w", err)
		}
		defer func() {
			err = errors.Join(err, db.Close())
		}()
	}

	firstID, err := prepareCollection(ctx, db, cfg, dimension)
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(embedded))
	for i, chunk := range embedded {
		records[i] = rag.ChunkRecord(firstID+int64(i), chunk)
	}
	if err := db.Insert(ctx, cfg.CollectionName, records); err != nil {
		return nil, fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := db.Flush(ctx, cfg.CollectionName); err != nil {
		return nil, fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := db.LoadCollection(ctx, cfg.CollectionName); err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	stats = &RegisterStats{
		Collection: cfg.CollectionName,
		Documents:  len(docs),
		Chunks:     len(records),
		Dimension:  dimension,
		Duration:   time.Since(start),
	}
	Info("Indexed chunks", "collection", stats.Collection, "chunks", stats.Chunks, "duration", stats.Duration)
	return stats, nil
}

// prepareCollection makes sure the collection exists and returns the id to
// assign to the first new record.
func prepareCollection(ctx context.Context, db VectorDB, cfg *RegisterConfig, dimension int) (int64, error) {
	exists, err := db.HasCollection(ctx, cfg.CollectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection: %w", err)
	}
	if exists && cfg.Rebuild {
		Debug("Dropping existing collection", "collection", cfg.CollectionName)
		if err := db.DropCollection(ctx, cfg.CollectionName); err != nil {
			return 0, fmt.Errorf("failed to drop collection: %w", err)
		}
		exists = false
	}
	if exists {
		if err := db.LoadCollection(ctx, cfg.CollectionName); err != nil {
			return 0, fmt.Errorf("failed to load collection: %w", err)
		}
		n, err := db.Count(ctx, cfg.CollectionName)
		if err != nil {
			return 0, fmt.Errorf("failed to count collection: %w", err)
		}
		return int64(n), nil
	}

	if err := db.CreateCollection(ctx, cfg.CollectionName, rag.ChunkSchema(cfg.CollectionName, dimension)); err != nil {
		return 0, fmt.Errorf("failed to create collection: %w", err)
	}
	index := Index{
		Type:   "HNSW",
		Metric: rag.MetricCosine,
		Parameters: map[string]interface{}{
			"M":              16,
			"efConstruction": 256,
		},
	}
	if err := db.CreateIndex(ctx, cfg.CollectionName, rag.FieldEmbedding, index); err != nil {
		return 0, fmt.Errorf("failed to create index: %w", err)
	}
	return 0, nil
}

// WithVectorDB selects the vector store backend and its address.
func WithVectorDB(dbType, address string) RegisterOption {
	return func(c *RegisterConfig) {
		c.VectorDBType = dbType
		c.VectorDBAddress = address
	}
}

// WithStore uses an existing, connected vector store. It is not closed.
func WithStore(db VectorDB) RegisterOption {
	return func(c *RegisterConfig) {
		c.VectorDB = db
	}
}

// WithCollection sets the target collection.
func WithCollection(name string) RegisterOption {
	return func(c *RegisterConfig) {
		c.CollectionName = name
	}
}

// WithRebuild controls whether an existing collection is dropped first.
func WithRebuild(rebuild bool) RegisterOption {
	return func(c *RegisterConfig) {
		c.Rebuild = rebuild
	}
}

// WithChunking sets the chunker kind, size and overlap.
func WithChunking(kind string, size, overlap int) RegisterOption {
	return func(c *RegisterConfig) {
		c.Chunker = kind
		c.ChunkSize = size
		c.ChunkOverlap = overlap
	}
}

// WithTokenEncoding sets the tiktoken encoding used for token counts. An
// empty encoding counts words.
func WithTokenEncoding(encoding string) RegisterOption {
	return func(c *RegisterConfig) {
		c.TokenEncoding = encoding
	}
}

// WithEmbedding configures the embedding provider.
func WithEmbedding(provider, model, key string) RegisterOption {
	return func(c *RegisterConfig) {
		c.EmbeddingProvider = provider
		c.EmbeddingModel = model
		c.EmbeddingKey = key
	}
}

// WithEmbeddingOption sets a provider specific option.
func WithEmbeddingOption(key string, value interface{}) RegisterOption {
	return func(c *RegisterConfig) {
		if c.EmbeddingOptions == nil {
			c.EmbeddingOptions = make(map[string]interface{})
		}
		c.EmbeddingOptions[key] = value
	}
}

// WithEmbedder uses an existing embedder.
func WithEmbedder(e Embedder) RegisterOption {
	return func(c *RegisterConfig) {
		c.Embedder = e
	}
}

// WithBatching sets the embedding batch size and request rate limit.
func WithBatching(batchSize, requestsPerMinute int) RegisterOption {
	return func(c *RegisterConfig) {
		if batchSize > 0 {
			c.BatchSize = batchSize
		}
		c.RequestsPerMinute = requestsPerMinute
	}
}

// WithConcurrency bounds how many files are parsed at once.
func WithConcurrency(max int) RegisterOption {
	return func(c *RegisterConfig) {
		c.MaxConcurrency = max
	}
}

// WithProcessedTexts sets where Ingest saves extracted text. An empty path
// skips saving.
func WithProcessedTexts(path string) RegisterOption {
	return func(c *RegisterConfig) {
		c.ProcessedTextsPath = path
	}
}

// WithIncludeText makes extraction parse .txt files as well.
func WithIncludeText(include bool) RegisterOption {
	return func(c *RegisterConfig) {
		c.IncludeText = include
	}
}

// WithProgress sets the callback invoked after each embedded batch.
func WithProgress(fn func(processed, total int)) RegisterOption {
	return func(c *RegisterConfig) {
		c.OnProgress = fn
	}
}

// WithErrorHandler sets the callback for per-file extraction errors.
func WithErrorHandler(fn func(error)) RegisterOption {
	return func(c *RegisterConfig) {
		c.OnError = fn
	}
}
