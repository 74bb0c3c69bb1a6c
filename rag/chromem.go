package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemDB stores collections with chromem-go. With an Address it persists
// to that directory and reopens existing collections on the next run;
// without one it lives in memory. Embeddings are always computed by the
// caller, so collections get an embedding function that refuses to run.
type ChromemDB struct {
	db          *chromem.DB
	path        string
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
	columnNames []string
}

var errExternalEmbeddings = errors.New("chromem collections expect precomputed embeddings")

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errExternalEmbeddings
}

func newChromemDB(cfg *Config) (*ChromemDB, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Address != "" {
		GlobalLogger.Debug("Opening persistent chromem database", "path", cfg.Address)
		db, err = chromem.NewPersistentDB(cfg.Address, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database at %s: %w", cfg.Address, err)
		}
	} else {
		GlobalLogger.Debug("Creating in-memory chromem database")
		db = chromem.NewDB()
	}

	return &ChromemDB{
		db:          db,
		path:        cfg.Address,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (c *ChromemDB) Connect(ctx context.Context) error {
	return nil
}

// Close is a no-op: persistent chromem databases write through on every
// insert.
func (c *ChromemDB) Close() error {
	return nil
}

func (c *ChromemDB) collection(name string) *chromem.Collection {
	if col, ok := c.collections[name]; ok {
		return col
	}
	col := c.db.GetCollection(name, noEmbedding)
	if col != nil {
		c.collections[name] = col
	}
	return col
}

func (c *ChromemDB) HasCollection(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection(name) != nil, nil
}

func (c *ChromemDB) DropCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.collections, name)
	if err := c.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

// CreateCollection creates the collection, or reuses it when it already
// exists. Chromem has no schema, so schema is only recorded as metadata.
func (c *ChromemDB) CreateCollection(ctx context.Context, name string, schema Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.collection(name) != nil {
		GlobalLogger.Debug("Collection already exists", "collection", name)
		return nil
	}

	md := map[string]string{}
	if schema.Description != "" {
		md["description"] = schema.Description
	}
	col, err := c.db.CreateCollection(name, md, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	c.collections[name] = col
	GlobalLogger.Debug("Created collection", "collection", name, "path", c.path)
	return nil
}

func (c *ChromemDB) Insert(ctx context.Context, collectionName string, data []Record) error {
	c.mu.Lock()
	col := c.collection(collectionName)
	c.mu.Unlock()
	if col == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionName)
	}

	docs := make([]chromem.Document, 0, len(data))
	for i, record := range data {
		content, ok := record.Fields[FieldText].(string)
		if !ok {
			GlobalLogger.Warn("Skipping record without text", "index", i)
			continue
		}
		vec, ok := record.Fields[FieldEmbedding].(Vector)
		if !ok || len(vec) == 0 {
			GlobalLogger.Warn("Skipping record without embedding", "index", i)
			continue
		}
		id, ok := record.Fields[FieldID].(int64)
		if !ok {
			id = int64(i)
		}

		docs = append(docs, chromem.Document{
			ID:        strconv.FormatInt(id, 10),
			Content:   content,
			Metadata:  recordMetadata(record),
			Embedding: toFloat32Slice(vec),
		})
	}
	if len(docs) == 0 {
		GlobalLogger.Warn("No valid documents to insert", "collection", collectionName)
		return nil
	}

	for _, doc := range docs {
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
	}
	GlobalLogger.Debug("Inserted documents", "collection", collectionName, "count", len(docs))
	return nil
}

func recordMetadata(record Record) map[string]string {
	md := make(map[string]string)
	switch m := record.Fields[FieldMetadata].(type) {
	case map[string]string:
		for k, v := range m {
			md[k] = v
		}
	case map[string]interface{}:
		for k, v := range m {
			md[k] = fmt.Sprint(v)
		}
	}
	return md
}

func (c *ChromemDB) Flush(ctx context.Context, collectionName string) error {
	return nil
}

func (c *ChromemDB) CreateIndex(ctx context.Context, collectionName, field string, index Index) error {
	return nil
}

func (c *ChromemDB) LoadCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collection(name) == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return nil
}

func (c *ChromemDB) Count(ctx context.Context, collectionName string) (int, error) {
	c.mu.Lock()
	col := c.collection(collectionName)
	c.mu.Unlock()
	if col == nil {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionName)
	}
	return col.Count(), nil
}

// Search runs a cosine similarity query. Chromem rejects a topK larger than
// the collection, so it is clamped; an empty collection yields no results.
func (c *ChromemDB) Search(ctx context.Context, collectionName string, vectors map[string]Vector, topK int, metricType string, searchParams map[string]interface{}) ([]SearchResult, error) {
	if metricType != "" && metricType != MetricCosine {
		return nil, fmt.Errorf("chromem only supports %s, got %s", MetricCosine, metricType)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("chromem only supports single vector search")
	}
	var query Vector
	for _, v := range vectors {
		query = v
	}

	c.mu.Lock()
	col := c.collection(collectionName)
	c.mu.Unlock()
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionName)
	}

	n := min(topK, col.Count())
	if n <= 0 {
		return []SearchResult{}, nil
	}

	results, err := col.QueryEmbedding(ctx, toFloat32Slice(query), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, result := range results {
		id, err := strconv.ParseInt(result.ID, 10, 64)
		if err != nil {
			id = int64(i)
		}
		fields := map[string]interface{}{
			FieldText:     result.Content,
			FieldMetadata: result.Metadata,
		}
		searchResults[i] = SearchResult{
			ID:     id,
			Score:  float64(result.Similarity),
			Fields: c.filterFields(fields),
		}
	}
	return searchResults, nil
}

func (c *ChromemDB) filterFields(fields map[string]interface{}) map[string]interface{} {
	c.mu.RLock()
	names := c.columnNames
	c.mu.RUnlock()
	if len(names) == 0 {
		return fields
	}
	out := make(map[string]interface{}, len(names))
	for _, name := range names {
		if v, ok := fields[name]; ok {
			out[name] = v
		}
	}
	return out
}

// HybridSearch falls back to Search; chromem keeps one embedding per
// document.
func (c *ChromemDB) HybridSearch(ctx context.Context, collectionName string, vectors map[string]Vector, topK int, metricType string, searchParams map[string]interface{}, reranker interface{}) ([]SearchResult, error) {
	return c.Search(ctx, collectionName, vectors, topK, metricType, searchParams)
}

func (c *ChromemDB) SetColumnNames(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.columnNames = names
}

func toFloat32Slice(v Vector) []float32 {
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(val)
	}
	return result
}
