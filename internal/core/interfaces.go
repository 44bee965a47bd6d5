package core

import (
	"context"
	"io"
)

// EmbedService generates embeddings for ordered batches of text. The result
// is aligned with the input: same length, same order. Implementations must
// fail rather than pad or truncate on a count mismatch.
type EmbedService interface {
	// EmbedTexts embeds every text in order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the fixed width of the vectors this service produces.
	Dimension() int
}

// VectorStore owns the persisted chunk records and the similarity index.
type VectorStore interface {
	// EnsureSchema idempotently creates the index schema. An already existing
	// schema is a successful no-op, never an error.
	EnsureSchema(ctx context.Context) error
	// Upsert writes each record keyed by chunk id; re-submitting a chunk id
	// replaces the prior record. One failing record does not abort the rest.
	Upsert(ctx context.Context, records []IndexRecord) ([]ChunkStatus, error)
	// Search runs a filtered similarity query and returns ranked results.
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	// DeleteByDocument removes every chunk of the document and returns the
	// deleted chunk ids. Zero matches is success, not an error.
	DeleteByDocument(ctx context.Context, documentID string) ([]string, error)
}

// DocumentSource lists and fetches candidate documents from external storage.
// Both operations are injected dependencies; the coordinator never talks to a
// concrete backend directly.
type DocumentSource interface {
	// List enumerates up to max objects under prefix.
	List(ctx context.Context, prefix string, max int) ([]SourceObject, error)
	// Fetch opens the object's content for reading.
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}
