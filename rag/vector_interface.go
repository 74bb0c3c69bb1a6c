// File: vector_interface.go

package rag

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// VectorDB is the storage side of the index: collections of records holding
// a chunk's text, metadata and embedding, searchable by vector similarity.
type VectorDB interface {
	Connect(ctx context.Context) error
	Close() error
	HasCollection(ctx context.Context, name string) (bool, error)
	DropCollection(ctx context.Context, name string) error
	CreateCollection(ctx context.Context, name string, schema Schema) error
	Insert(ctx context.Context, collectionName string, data []Record) error
	Flush(ctx context.Context, collectionName string) error
	CreateIndex(ctx context.Context, collectionName, field string, index Index) error
	LoadCollection(ctx context.Context, name string) error
	Search(ctx context.Context, collectionName string, vectors map[string]Vector, topK int, metricType string, searchParams map[string]interface{}) ([]SearchResult, error)
	HybridSearch(ctx context.Context, collectionName string, vectors map[string]Vector, topK int, metricType string, searchParams map[string]interface{}, reranker interface{}) ([]SearchResult, error)
	SetColumnNames(names []string)
	// Count returns the number of records stored in the collection.
	Count(ctx context.Context, collectionName string) (int, error)
}

// ErrCollectionNotFound is returned when an operation targets a collection
// that does not exist.
var ErrCollectionNotFound = errors.New("collection not found")

// Record field names shared by all backends.
const (
	FieldID        = "ID"
	FieldText      = "Text"
	FieldEmbedding = "Embedding"
	FieldMetadata  = "Metadata"
)

// Supported metric types. Scores are similarities for COSINE and IP and
// distances for L2.
const (
	MetricCosine = "COSINE"
	MetricIP     = "IP"
	MetricL2     = "L2"
)

type SearchParam struct {
	MetricType string
	Params     map[string]interface{}
}

type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

type Field struct {
	Name       string
	DataType   string
	PrimaryKey bool
	AutoID     bool
	Dimension  int
	MaxLength  int
}

// ChunkSchema describes the collection layout used for document chunks.
func ChunkSchema(name string, dimension int) Schema {
	return Schema{
		Name:        name,
		Description: "document chunks",
		Fields: []Field{
			{Name: FieldID, DataType: "int64", PrimaryKey: true, AutoID: false},
			{Name: FieldEmbedding, DataType: "float_vector", Dimension: dimension},
			{Name: FieldText, DataType: "varchar", MaxLength: 65535},
			{Name: FieldMetadata, DataType: "varchar", MaxLength: 65535},
		},
	}
}

type Record struct {
	Fields map[string]interface{}
}

// ChunkRecord builds the record stored for an embedded chunk.
func ChunkRecord(id int64, chunk EmbeddedChunk) Record {
	md := chunk.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return Record{Fields: map[string]interface{}{
		FieldID:        id,
		FieldText:      chunk.Text,
		FieldEmbedding: Vector(chunk.Embedding()),
		FieldMetadata:  md,
	}}
}

type Vector []float64

type Index struct {
	Type       string
	Metric     string
	Parameters map[string]interface{}
}

type SearchResult struct {
	ID     int64
	Score  float64
	Fields map[string]interface{}
}

// Text returns the stored chunk text.
func (r SearchResult) Text() string {
	s, _ := r.Fields[FieldText].(string)
	return s
}

// Metadata returns the stored chunk metadata.
func (r SearchResult) Metadata() map[string]string {
	switch md := r.Fields[FieldMetadata].(type) {
	case map[string]string:
		return md
	case map[string]interface{}:
		out := make(map[string]string, len(md))
		for k, v := range md {
			out[k] = fmt.Sprint(v)
		}
		return out
	}
	return nil
}

// Config selects and configures a VectorDB backend.
type Config struct {
	Type        string
	Address     string
	MaxPoolSize int
	Timeout     time.Duration
	Parameters  map[string]interface{}
}

func (c *Config) SetType(dbType string) *Config {
	c.Type = dbType
	return c
}

func (c *Config) SetAddress(address string) *Config {
	c.Address = address
	return c
}

func (c *Config) SetMaxPoolSize(size int) *Config {
	c.MaxPoolSize = size
	return c
}

func (c *Config) SetTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// SetParameter sets a backend specific parameter such as "dimension".
func (c *Config) SetParameter(key string, value interface{}) *Config {
	if c.Parameters == nil {
		c.Parameters = make(map[string]interface{})
	}
	c.Parameters[key] = value
	return c
}

// NewVectorDB creates the backend named by cfg.Type: "chromem", "memory" or
// "milvus".
func NewVectorDB(cfg *Config) (VectorDB, error) {
	switch cfg.Type {
	case "milvus":
		return newMilvusDB(cfg)
	case "memory":
		return newMemoryDB(cfg)
	case "chromem":
		return newChromemDB(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
