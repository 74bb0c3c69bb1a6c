package knowledge

import (
	"time"

	"github.com/teilomillet/knowledge/rag"
)

// VectorDB is the vector store used for the document index.
type VectorDB = rag.VectorDB

// SearchResult represents a single search result
type SearchResult = rag.SearchResult

// Schema, Field, Index and Record describe collections and their contents.
type (
	Schema = rag.Schema
	Field  = rag.Field
	Index  = rag.Index
	Record = rag.Record
	Vector = rag.Vector
)

// VectorDBOption configures NewVectorDB.
type VectorDBOption func(*rag.Config)

// WithType selects the backend: "chromem", "memory" or "milvus".
func WithType(dbType string) VectorDBOption {
	return func(c *rag.Config) {
		c.Type = dbType
	}
}

// WithAddress sets the chromem directory or the milvus address.
func WithAddress(address string) VectorDBOption {
	return func(c *rag.Config) {
		c.Address = address
	}
}

// WithTimeout bounds connection attempts.
func WithTimeout(timeout time.Duration) VectorDBOption {
	return func(c *rag.Config) {
		c.Timeout = timeout
	}
}

// WithDimension records the embedding dimension.
func WithDimension(dimension int) VectorDBOption {
	return func(c *rag.Config) {
		c.SetParameter("dimension", dimension)
	}
}

// NewVectorDB creates a vector store. It is not connected yet.
func NewVectorDB(opts ...VectorDBOption) (VectorDB, error) {
	cfg := &rag.Config{Type: "chromem", Parameters: make(map[string]interface{})}
	for _, opt := range opts {
		opt(cfg)
	}
	return rag.NewVectorDB(cfg)
}
