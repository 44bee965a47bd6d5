package core

import "time"

// DefaultEmbeddingDim is the fixed dimension every indexed vector must have.
const DefaultEmbeddingDim = 1536

// DefaultEmbeddingVersion tags records with the embedding model generation
// they were written under. Records of different versions never share an index.
const DefaultEmbeddingVersion = "embed-1536-v1"

// Document is a source document handed to the pipeline. Identity is ID,
// assigned once at creation and immutable thereafter. A document arrives
// either already split into chunks or as raw content to be chunked.
type Document struct {
	ID               string                 `json:"id"`
	Title            string                 `json:"title"`
	Authors          []string               `json:"authors"`
	PublicationDate  *time.Time             `json:"publication_date,omitempty"`
	Content          string                 `json:"content"`
	Chunks           []DocumentChunk        `json:"chunks,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	EmbeddingVersion string                 `json:"embedding_version,omitempty"`
}

// DocumentChunk is the unit of embedding and retrieval. Positions are byte
// offsets into the parent document's content, so the excerpt can always be
// regenerated losslessly. Invariants: StartPosition < EndPosition, chunk ids
// are globally unique, and Embedding has the configured model dimension.
type DocumentChunk struct {
	ChunkID       string    `json:"chunk_id"`
	DocumentID    string    `json:"document_id"`
	Content       string    `json:"content"`
	StartPosition int       `json:"start_position"`
	EndPosition   int       `json:"end_position"`
	Embedding     []float32 `json:"embedding,omitempty"`
}

// IndexRecord is the persisted representation: document-level fields are
// duplicated per chunk so filtering and display need no join at query time.
// CreatedAt is assigned by the store at write time.
type IndexRecord struct {
	ChunkID          string
	DocumentID       string
	Title            string
	Authors          []string
	PublicationDate  *time.Time
	Content          string
	ChunkContent     string
	StartPosition    int
	EndPosition      int
	Embedding        []float32
	Metadata         map[string]interface{}
	EmbeddingVersion string
	CreatedAt        time.Time
}

// ChunkStatus reports the outcome of indexing a single chunk. A failed chunk
// does not abort its siblings.
type ChunkStatus struct {
	ChunkID string `json:"chunk_id"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Chunk statuses.
const (
	ChunkIndexed = "indexed"
	ChunkFailed  = "failed"
)

// SearchRequest describes a similarity query. Exactly one of QueryText or
// QueryEmbedding is usually set; with neither, the store matches everything
// and the filters alone decide the result set.
type SearchRequest struct {
	QueryText      string                 `json:"query_text,omitempty"`
	QueryEmbedding []float32              `json:"query_embedding,omitempty"`
	Size           int                    `json:"size,omitempty"`
	MinScore       float32                `json:"min_score,omitempty"`
	Filters        map[string]interface{} `json:"filters,omitempty"`
}

// SearchResult is one ranked hit. The stored embedding is never included.
type SearchResult struct {
	ChunkID       string                 `json:"chunk_id"`
	Score         float32                `json:"score"`
	DocumentID    string                 `json:"document_id"`
	Title         string                 `json:"title"`
	Authors       []string               `json:"authors"`
	ChunkContent  string                 `json:"chunk_content"`
	StartPosition int                    `json:"start_position"`
	EndPosition   int                    `json:"end_position"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResponse is the ranked, score-thresholded result list.
type SearchResponse struct {
	TotalHits int            `json:"total_hits"`
	MaxScore  float32        `json:"max_score"`
	Results   []SearchResult `json:"results"`
}

// DocumentResult is the per-document outcome of one unit of ingestion work.
// SourceKey traces the result back to the listing entry that produced it.
type DocumentResult struct {
	DocumentID    string `json:"document_id,omitempty"`
	SourceKey     string `json:"source_key,omitempty"`
	Success       bool   `json:"success"`
	ChunksIndexed int    `json:"chunks_indexed,omitempty"`
	Error         string `json:"error,omitempty"`
}

// BatchResult aggregates a batch run. Processed == Successful + Failed holds
// for every run.
type BatchResult struct {
	RunID      string           `json:"run_id,omitempty"`
	Processed  int              `json:"processed"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []DocumentResult `json:"results"`
}

// SourceObject is one candidate entry from a document source listing.
type SourceObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	FileType     string    `json:"file_type"`
}
