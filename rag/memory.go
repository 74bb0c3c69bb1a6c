package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// MemoryDB implements the VectorDB interface using in-memory storage.
// Search is brute force over every record, which is fine for tests and small
// document sets. Nothing is persisted.
type MemoryDB struct {
	// collections stores all vector collections in memory
	collections map[string]*Collection
	// mu provides thread-safety for concurrent operations
	mu sync.RWMutex
	// columnNames specifies which fields to include in search results
	columnNames []string
}

// Collection represents a named set of records with a defined schema.
type Collection struct {
	Schema Schema
	Data   []Record
}

func newMemoryDB(cfg *Config) (*MemoryDB, error) {
	return &MemoryDB{
		collections: make(map[string]*Collection),
	}, nil
}

// NewMemoryDB creates an empty in-memory database.
func NewMemoryDB() *MemoryDB {
	db, _ := newMemoryDB(nil)
	return db
}

func (m *MemoryDB) Connect(ctx context.Context) error {
	return nil
}

func (m *MemoryDB) Close() error {
	return nil
}

func (m *MemoryDB) HasCollection(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.collections[name]
	return exists, nil
}

func (m *MemoryDB) DropCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

// CreateCollection returns an error if a collection with the same name
// already exists.
func (m *MemoryDB) CreateCollection(ctx context.Context, name string, schema Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.collections[name]; exists {
		return fmt.Errorf("collection %s already exists", name)
	}
	m.collections[name] = &Collection{Schema: schema}
	return nil
}

func (m *MemoryDB) Insert(ctx context.Context, collectionName string, data []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	collection, exists := m.collections[collectionName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionName)
	}
	collection.Data = append(collection.Data, data...)
	return nil
}

func (m *MemoryDB) Flush(ctx context.Context, collectionName string) error {
	return nil
}

func (m *MemoryDB) CreateIndex(ctx context.Context, collectionName, field string, index Index) error {
	return nil
}

func (m *MemoryDB) LoadCollection(ctx context.Context, name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, exists := m.collections[name]; !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return nil
}

func (m *MemoryDB) Count(ctx context.Context, collectionName string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	collection, exists := m.collections[collectionName]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionName)
	}
	return len(collection.Data), nil
}

// Search scores every record against the query vector and returns the topK
// best. Ties keep insertion order.
func (m *MemoryDB) Search(ctx context.Context, collectionName string, vectors map[string]Vector, topK int, metricType string, searchParams map[string]interface{}) ([]SearchResult, error) {
	return m.HybridSearch(ctx, collectionName, vectors, topK, metricType, searchParams, nil)
}

// HybridSearch averages the score of each query vector over its field. Only
// records carrying every queried field are considered. The reranker argument
// is ignored; reranking happens in the retriever.
func (m *MemoryDB) HybridSearch(ctx context.Context, collectionName string, vectors map[string]Vector, topK int, metricType string, searchParams map[string]interface{}, reranker interface{}) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	collection, exists := m.collections[collectionName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionName)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no query vectors")
	}

	var results []SearchResult
	for i, record := range collection.Data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var total float64
		matched := 0
		for fieldName, query := range vectors {
			v, ok := record.Fields[fieldName].(Vector)
			if !ok || len(v) != len(query) {
				break
			}
			total += score(query, v, metricType)
			matched++
		}
		if matched != len(vectors) {
			continue
		}

		id, ok := record.Fields[FieldID].(int64)
		if !ok {
			id = int64(i)
		}
		results = append(results, SearchResult{
			ID:     id,
			Score:  total / float64(matched),
			Fields: m.selectFields(record),
		})
	}

	lowerIsBetter := metricType == MetricL2
	sort.SliceStable(results, func(i, j int) bool {
		if lowerIsBetter {
			return results[i].Score < results[j].Score
		}
		return results[i].Score > results[j].Score
	})

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryDB) selectFields(record Record) map[string]interface{} {
	names := m.columnNames
	if len(names) == 0 {
		names = []string{FieldText, FieldMetadata}
	}
	fields := make(map[string]interface{}, len(names))
	for _, name := range names {
		if value, exists := record.Fields[name]; exists {
			fields[name] = value
		}
	}
	return fields
}

// score compares two vectors of equal length. COSINE (the default) and IP
// return similarities, L2 returns the Euclidean distance.
func score(a, b Vector, metricType string) float64 {
	switch metricType {
	case MetricL2:
		return floats.Distance(a, b, 2)
	case MetricIP:
		return floats.Dot(a, b)
	default:
		return cosineSimilarity(a, b)
	}
}

func cosineSimilarity(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	s := floats.Dot(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, s))
}

// SetColumnNames configures which fields are returned with search results.
// The default is Text and Metadata.
func (m *MemoryDB) SetColumnNames(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columnNames = names
}
