package knowledge

import (
	"errors"

	"github.com/teilomillet/knowledge/rag"
)

var (
	// ErrFolderNotFound is returned when a source folder does not exist.
	ErrFolderNotFound = rag.ErrFolderNotFound
	// ErrCollectionNotFound is returned when the index has not been built.
	ErrCollectionNotFound = rag.ErrCollectionNotFound
	// ErrNoRelevantDocuments is returned by Ask when retrieval finds nothing.
	ErrNoRelevantDocuments = errors.New("no relevant documents found")
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrNoDocuments is returned when there is nothing to index.
	ErrNoDocuments = errors.New("no documents to index")
)
