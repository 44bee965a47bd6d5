package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentscholar/kindex/internal/core"
	kberrors "github.com/agentscholar/kindex/internal/errors"
)

func TestDocumentIDFromKey(t *testing.T) {
	id := DocumentIDFromKey("papers/attention.pdf")
	assert.True(t, strings.HasPrefix(id, "doc_"))
	assert.Len(t, id, len("doc_")+12)

	// Same key, same id; different key, different id.
	assert.Equal(t, id, DocumentIDFromKey("papers/attention.pdf"))
	assert.NotEqual(t, id, DocumentIDFromKey("papers/bert.pdf"))
}

func TestChunkIDFormat(t *testing.T) {
	assert.Equal(t, "doc_ab12_chunk_0000", ChunkID("doc_ab12", 0))
	assert.Equal(t, "doc_ab12_chunk_0042", ChunkID("doc_ab12", 42))
}

func TestIndexDocumentChunksEmbedsAndStores(t *testing.T) {
	store, embedder := newTestStore(t)
	ix := NewDocumentIndexer(store, embedder).WithChunking(200, 40)
	ctx := context.Background()

	doc := &core.Document{
		ID:      "doc_test",
		Title:   "Long Document",
		Content: strings.Repeat("Sentences about retrieval pipelines. ", 30),
	}
	summary, err := ix.IndexDocument(ctx, doc)
	require.NoError(t, err)

	assert.Equal(t, "doc_test", summary.DocumentID)
	assert.Greater(t, summary.ChunksIndexed, 1)
	assert.Equal(t, summary.ChunksIndexed, store.Len())
	for i, st := range summary.Chunks {
		assert.Equal(t, ChunkID("doc_test", i), st.ChunkID)
		assert.Equal(t, core.ChunkIndexed, st.Status)
	}
}

func TestIndexDocumentPreservesPositions(t *testing.T) {
	store, embedder := newTestStore(t)
	ix := NewDocumentIndexer(store, embedder).WithChunking(150, 30)
	ctx := context.Background()

	content := strings.Repeat("Position tracking matters for citation. ", 20)
	doc := &core.Document{ID: "doc_pos", Content: content}
	_, err := ix.IndexDocument(ctx, doc)
	require.NoError(t, err)

	// Every stored chunk's positions slice back to its content.
	for _, c := range doc.Chunks {
		assert.Equal(t, content[c.StartPosition:c.EndPosition], c.Content)
	}
}

func TestIndexDocumentEmbeddingFailureAbortsDocument(t *testing.T) {
	store, embedder := newTestStore(t)
	embedder.FailSubstring = "poison"
	ix := NewDocumentIndexer(store, embedder)
	ctx := context.Background()

	doc := &core.Document{ID: "doc_fail", Content: "this text contains poison somewhere"}
	_, err := ix.IndexDocument(ctx, doc)
	require.Error(t, err)
	assert.True(t, kberrors.IsKind(err, kberrors.KindEmbeddingUnavailable))
	assert.Zero(t, store.Len())
}

func TestIndexDocumentEmptyIDRejected(t *testing.T) {
	store, embedder := newTestStore(t)
	ix := NewDocumentIndexer(store, embedder)

	_, err := ix.IndexDocument(context.Background(), &core.Document{Content: "no id"})
	require.Error(t, err)
	assert.True(t, kberrors.IsKind(err, kberrors.KindIndexWrite))
}

func TestIndexDocumentEmptyContentNoChunks(t *testing.T) {
	store, embedder := newTestStore(t)
	ix := NewDocumentIndexer(store, embedder)

	summary, err := ix.IndexDocument(context.Background(), &core.Document{ID: "doc_empty"})
	require.NoError(t, err)
	assert.Zero(t, summary.ChunksIndexed)
	assert.Zero(t, store.Len())
}

func TestIndexDocumentReindexReplacesChunks(t *testing.T) {
	store, embedder := newTestStore(t)
	ix := NewDocumentIndexer(store, embedder).WithChunking(200, 40)
	ctx := context.Background()

	content := strings.Repeat("Original content for this document. ", 20)
	doc := &core.Document{ID: "doc_re", Content: content}
	first, err := ix.IndexDocument(ctx, doc)
	require.NoError(t, err)

	// Reindexing the same document with the same content keeps the chunk
	// count stable instead of duplicating.
	doc2 := &core.Document{ID: "doc_re", Content: content}
	second, err := ix.IndexDocument(ctx, doc2)
	require.NoError(t, err)
	assert.Equal(t, first.ChunksIndexed, second.ChunksIndexed)
	assert.Equal(t, first.ChunksIndexed, store.Len())
}

func TestIndexDocumentKeepsProvidedChunks(t *testing.T) {
	store, embedder := newTestStore(t)
	ix := NewDocumentIndexer(store, embedder)
	ctx := context.Background()

	doc := &core.Document{
		ID: "doc_pre",
		Chunks: []core.DocumentChunk{
			{ChunkID: ChunkID("doc_pre", 0), DocumentID: "doc_pre", Content: "preset chunk", StartPosition: 0, EndPosition: 12},
		},
	}
	summary, err := ix.IndexDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ChunksIndexed)
	// The missing embedding was filled in.
	assert.Len(t, doc.Chunks[0].Embedding, testDim)
}
