package ops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentscholar/kindex/internal/core"
	kberrors "github.com/agentscholar/kindex/internal/errors"
	"github.com/agentscholar/kindex/internal/logger"
	"github.com/agentscholar/kindex/internal/rag"
)

// Operation names accepted by the router.
const (
	OpIndexDocument  = "index_document"
	OpSearch         = "search"
	OpDeleteDocument = "delete_document"
)

// DefaultMinScore filters out weakly similar chunks unless the caller asks
// for a different threshold.
const DefaultMinScore = 0.7

// Request is one operation invocation: a name plus a JSON payload.
type Request struct {
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
}

// Response is the envelope every operation returns.
type Response struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// DocumentPayload describes one document to index. Raw content is chunked
// and embedded server-side; callers may instead supply prepared chunks, with
// or without vectors, and missing vectors are embedded before writing.
type DocumentPayload struct {
	DocumentID      string                 `json:"document_id,omitempty"`
	Title           string                 `json:"title"`
	Authors         []string               `json:"authors,omitempty"`
	PublicationDate string                 `json:"publication_date,omitempty"`
	Content         string                 `json:"content,omitempty"`
	Chunks          []ChunkPayload         `json:"chunks,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// IndexPayload is the index operation's payload: either a single document
// given inline, or several under "documents". Multi-document requests get a
// per-document result list; one document's failure never aborts the rest.
type IndexPayload struct {
	DocumentPayload
	Documents []DocumentPayload `json:"documents,omitempty"`
}

// ChunkPayload is one pre-split chunk in an index request.
type ChunkPayload struct {
	ChunkID       string    `json:"chunk_id,omitempty"`
	Content       string    `json:"content"`
	StartPosition int       `json:"start_position"`
	EndPosition   int       `json:"end_position"`
	Embedding     []float32 `json:"embedding,omitempty"`
}

// SearchPayload describes a retrieval query. Callers give query text, an
// already computed embedding, or filters alone.
type SearchPayload struct {
	Query          string                 `json:"query,omitempty"`
	QueryEmbedding []float32              `json:"query_embedding,omitempty"`
	Size           int                    `json:"size,omitempty"`
	MinScore       *float32               `json:"min_score,omitempty"`
	Filters        map[string]interface{} `json:"filters,omitempty"`
}

// DeletePayload names the document whose chunks are removed.
type DeletePayload struct {
	DocumentID string `json:"document_id"`
}

// DeleteResult reports which chunks a delete removed.
type DeleteResult struct {
	DocumentID    string   `json:"document_id"`
	ChunksDeleted int      `json:"chunks_deleted"`
	ChunkIDs      []string `json:"chunk_ids"`
}

// Router dispatches operation requests onto the indexing pipeline and the
// vector store.
type Router struct {
	store   core.VectorStore
	indexer *rag.DocumentIndexer
}

// NewRouter builds an operation router.
func NewRouter(store core.VectorStore, indexer *rag.DocumentIndexer) *Router {
	return &Router{store: store, indexer: indexer}
}

// Execute routes one request. Failures come back inside the response
// envelope; an unknown operation is an error response, never a panic.
func (r *Router) Execute(ctx context.Context, req *Request) *Response {
	logger.Debug("Executing operation %q", req.Operation)

	var result interface{}
	var err error
	switch req.Operation {
	case OpIndexDocument:
		result, err = r.indexDocuments(ctx, req.Payload)
	case OpSearch:
		result, err = r.search(ctx, req.Payload)
	case OpDeleteDocument:
		result, err = r.deleteDocument(ctx, req.Payload)
	default:
		err = fmt.Errorf("unknown operation %q", req.Operation)
	}

	if err != nil {
		logger.Error("Operation %q failed: %v", req.Operation, err)
		return &Response{Success: false, Error: err.Error()}
	}
	return &Response{Success: true, Result: result}
}

func (r *Router) indexDocuments(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var args IndexPayload
	if err := json.Unmarshal(payload, &args); err != nil {
		return nil, fmt.Errorf("failed to parse index payload: %w", err)
	}

	// Single inline document keeps the simple summary result.
	if len(args.Documents) == 0 {
		doc, err := buildDocument(&args.DocumentPayload)
		if err != nil {
			return nil, err
		}
		return r.indexer.IndexDocument(ctx, doc)
	}

	results := make([]core.DocumentResult, 0, len(args.Documents))
	for i := range args.Documents {
		dp := &args.Documents[i]
		res := core.DocumentResult{DocumentID: dp.DocumentID}

		doc, err := buildDocument(dp)
		if err == nil {
			res.DocumentID = doc.ID
			var summary *rag.IndexSummary
			summary, err = r.indexer.IndexDocument(ctx, doc)
			if err == nil {
				res.Success = true
				res.ChunksIndexed = summary.ChunksIndexed
			}
		}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// buildDocument validates one document payload and converts it to the core
// model, deriving a stable id when none is given.
func buildDocument(args *DocumentPayload) (*core.Document, error) {
	if strings.TrimSpace(args.Content) == "" && len(args.Chunks) == 0 {
		return nil, kberrors.Newf(kberrors.KindIndexWrite,
			"content or chunks are required to index a document")
	}

	docID := args.DocumentID
	if docID == "" {
		docID = deriveDocumentID(args.Title, args.Authors)
	}

	doc := &core.Document{
		ID:       docID,
		Title:    args.Title,
		Authors:  args.Authors,
		Content:  args.Content,
		Metadata: args.Metadata,
	}
	for i, c := range args.Chunks {
		chunkID := c.ChunkID
		if chunkID == "" {
			chunkID = rag.ChunkID(docID, i)
		}
		doc.Chunks = append(doc.Chunks, core.DocumentChunk{
			ChunkID:       chunkID,
			DocumentID:    docID,
			Content:       c.Content,
			StartPosition: c.StartPosition,
			EndPosition:   c.EndPosition,
			Embedding:     c.Embedding,
		})
	}
	if args.PublicationDate != "" {
		t, err := parseDate(args.PublicationDate)
		if err != nil {
			return nil, kberrors.Newf(kberrors.KindIndexWrite,
				"cannot parse publication_date %q", args.PublicationDate)
		}
		doc.PublicationDate = &t
	}
	return doc, nil
}

func (r *Router) search(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var args SearchPayload
	if err := json.Unmarshal(payload, &args); err != nil {
		return nil, fmt.Errorf("failed to parse search payload: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" && len(args.QueryEmbedding) == 0 && len(args.Filters) == 0 {
		return nil, kberrors.Newf(kberrors.KindIndexRead,
			"search needs a query, an embedding or at least one filter")
	}

	minScore := float32(DefaultMinScore)
	if args.MinScore != nil {
		minScore = *args.MinScore
	}
	return r.store.Search(ctx, core.SearchRequest{
		QueryText:      args.Query,
		QueryEmbedding: args.QueryEmbedding,
		Size:           args.Size,
		MinScore:       minScore,
		Filters:        args.Filters,
	})
}

func (r *Router) deleteDocument(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var args DeletePayload
	if err := json.Unmarshal(payload, &args); err != nil {
		return nil, fmt.Errorf("failed to parse delete_document payload: %w", err)
	}
	if args.DocumentID == "" {
		return nil, kberrors.Newf(kberrors.KindIndexWrite, "document_id is required for delete_document")
	}

	ids, err := r.store.DeleteByDocument(ctx, args.DocumentID)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{
		DocumentID:    args.DocumentID,
		ChunksDeleted: len(ids),
		ChunkIDs:      ids,
	}, nil
}

// deriveDocumentID hashes title and authors so resubmitting the same work
// lands on the same document.
func deriveDocumentID(title string, authors []string) string {
	seed := strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.Join(authors, ","))
	digest := sha256.Sum256([]byte(seed))
	return "doc_" + hex.EncodeToString(digest[:])[:12]
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
