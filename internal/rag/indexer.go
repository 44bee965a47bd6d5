package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"

	"github.com/agentscholar/kindex/internal/chunk"
	"github.com/agentscholar/kindex/internal/core"
	kberrors "github.com/agentscholar/kindex/internal/errors"
	"github.com/agentscholar/kindex/internal/logger"
)

// DocumentIDFromKey derives a stable document id from a source key. Repeated
// runs over the same key always reference the same document, which keeps
// re-ingestion idempotent.
func DocumentIDFromKey(key string) string {
	digest := sha256.Sum256([]byte(key))
	return "doc_" + hex.EncodeToString(digest[:])[:12]
}

// ChunkID names a chunk by its parent document and position index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%04d", documentID, index)
}

// IndexSummary reports the outcome of indexing one document.
type IndexSummary struct {
	DocumentID    string             `json:"document_id"`
	ChunksIndexed int                `json:"chunks_indexed"`
	Chunks        []core.ChunkStatus `json:"chunks"`
}

// DocumentIndexer runs the per-document pipeline: chunk the content if the
// document arrived unchunked, embed chunks that lack vectors, and upsert the
// resulting records.
type DocumentIndexer struct {
	store      core.VectorStore
	embedder   core.EmbedService
	targetSize int
	overlap    int
}

// NewDocumentIndexer wires an indexer over the given store and embedder.
func NewDocumentIndexer(store core.VectorStore, embedder core.EmbedService) *DocumentIndexer {
	return &DocumentIndexer{
		store:      store,
		embedder:   embedder,
		targetSize: chunk.DefaultTargetSize,
		overlap:    chunk.DefaultOverlap,
	}
}

// WithChunking overrides the chunker's target size and overlap.
func (ix *DocumentIndexer) WithChunking(targetSize, overlap int) *DocumentIndexer {
	ix.targetSize = targetSize
	ix.overlap = overlap
	return ix
}

// IndexDocument chunks, embeds and upserts one document. Embedding failures
// abort the document; a single chunk's write failure only marks that chunk.
func (ix *DocumentIndexer) IndexDocument(ctx context.Context, doc *core.Document) (*IndexSummary, error) {
	if doc.ID == "" {
		return nil, kberrors.Newf(kberrors.KindIndexWrite, "document id is empty")
	}
	if doc.EmbeddingVersion == "" {
		doc.EmbeddingVersion = core.DefaultEmbeddingVersion
	}

	if len(doc.Chunks) == 0 {
		spans := chunk.Split(doc.Content, ix.targetSize, ix.overlap)
		doc.Chunks = make([]core.DocumentChunk, len(spans))
		for i, span := range spans {
			doc.Chunks[i] = core.DocumentChunk{
				ChunkID:       ChunkID(doc.ID, i),
				DocumentID:    doc.ID,
				Content:       span.Content,
				StartPosition: span.Start,
				EndPosition:   span.End,
			}
		}
	}
	if len(doc.Chunks) == 0 {
		return &IndexSummary{DocumentID: doc.ID}, nil
	}

	if err := ix.embedMissing(ctx, doc); err != nil {
		return nil, err
	}

	records := make([]core.IndexRecord, len(doc.Chunks))
	for i, c := range doc.Chunks {
		records[i] = core.IndexRecord{
			ChunkID:          c.ChunkID,
			DocumentID:       doc.ID,
			Title:            doc.Title,
			Authors:          doc.Authors,
			PublicationDate:  doc.PublicationDate,
			Content:          doc.Content,
			ChunkContent:     c.Content,
			StartPosition:    c.StartPosition,
			EndPosition:      c.EndPosition,
			Embedding:        c.Embedding,
			Metadata:         doc.Metadata,
			EmbeddingVersion: doc.EmbeddingVersion,
		}
	}

	statuses, err := ix.store.Upsert(ctx, records)
	if err != nil {
		return nil, err
	}

	indexed := 0
	for _, st := range statuses {
		if st.Status == core.ChunkIndexed {
			indexed++
		}
	}
	if indexed == 0 && len(statuses) > 0 {
		return nil, kberrors.Newf(kberrors.KindIndexWrite,
			"all %d chunks failed to index", len(statuses)).WithDocument(doc.ID)
	}

	logger.Info("Indexed document %s (%d/%d chunks)", doc.ID, indexed, len(statuses))
	return &IndexSummary{
		DocumentID:    doc.ID,
		ChunksIndexed: indexed,
		Chunks:        statuses,
	}, nil
}

// embedMissing fills in vectors for every chunk that lacks one, in a single
// embedding call so the result stays aligned with the input order.
func (ix *DocumentIndexer) embedMissing(ctx context.Context, doc *core.Document) error {
	var texts []string
	var missing []int
	for i, c := range doc.Chunks {
		if len(c.Embedding) == 0 {
			texts = append(texts, c.Content)
			missing = append(missing, i)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		var pe *kberrors.Error
		if stderrors.As(err, &pe) {
			pe.WithDocument(doc.ID)
			return err
		}
		return kberrors.New(kberrors.KindEmbeddingUnavailable, "embedding", err).WithDocument(doc.ID)
	}
	if len(vectors) != len(texts) {
		return kberrors.Newf(kberrors.KindEmbeddingUnavailable,
			"embedding count mismatch: %d texts, %d vectors", len(texts), len(vectors)).WithDocument(doc.ID)
	}

	for i, idx := range missing {
		doc.Chunks[idx].Embedding = vectors[i]
	}
	return nil
}
