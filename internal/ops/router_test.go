package ops

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentscholar/kindex/internal/core"
	"github.com/agentscholar/kindex/internal/embed"
	"github.com/agentscholar/kindex/internal/rag"
)

func newTestRouter(t *testing.T) (*Router, *rag.MemoryStore) {
	t.Helper()
	embedder := embed.NewMockEmbedder(32)
	store := rag.NewMemoryStore(embedder, 32)
	indexer := rag.NewDocumentIndexer(store, embedder)
	return NewRouter(store, indexer), store
}

func execute(t *testing.T, r *Router, operation string, payload interface{}) *Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return r.Execute(context.Background(), &Request{Operation: operation, Payload: raw})
}

func TestUnknownOperation(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := router.Execute(context.Background(), &Request{Operation: "reticulate_splines"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown operation")
}

func TestIndexDocumentOperation(t *testing.T) {
	router, store := newTestRouter(t)

	resp := execute(t, router, OpIndexDocument, DocumentPayload{
		Title:   "Attention Is All You Need",
		Authors: []string{"Vaswani"},
		Content: strings.Repeat("Self-attention replaces recurrence. ", 10),
	})
	require.True(t, resp.Success, resp.Error)

	summary, ok := resp.Result.(*rag.IndexSummary)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(summary.DocumentID, "doc_"))
	assert.Greater(t, summary.ChunksIndexed, 0)
	assert.Equal(t, summary.ChunksIndexed, store.Len())
}

func TestIndexDocumentDerivedIDIsStable(t *testing.T) {
	router, _ := newTestRouter(t)

	payload := DocumentPayload{Title: "Same Work", Authors: []string{"A", "B"}, Content: "body"}
	first := execute(t, router, OpIndexDocument, payload)
	second := execute(t, router, OpIndexDocument, payload)
	require.True(t, first.Success)
	require.True(t, second.Success)

	assert.Equal(t,
		first.Result.(*rag.IndexSummary).DocumentID,
		second.Result.(*rag.IndexSummary).DocumentID)
}

func TestIndexDocumentRequiresContentOrChunks(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := execute(t, router, OpIndexDocument, DocumentPayload{Title: "Empty"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "content or chunks")
}

func TestIndexDocumentAcceptsPreparedChunks(t *testing.T) {
	router, store := newTestRouter(t)

	resp := execute(t, router, OpIndexDocument, DocumentPayload{
		DocumentID: "doc_pre",
		Title:      "Pre-chunked",
		Chunks: []ChunkPayload{
			{Content: "first prepared chunk", StartPosition: 0, EndPosition: 20},
			{Content: "second prepared chunk", StartPosition: 20, EndPosition: 41},
		},
	})
	require.True(t, resp.Success, resp.Error)

	summary := resp.Result.(*rag.IndexSummary)
	assert.Equal(t, 2, summary.ChunksIndexed)
	assert.Equal(t, rag.ChunkID("doc_pre", 0), summary.Chunks[0].ChunkID)
	assert.Equal(t, 2, store.Len())
}

func TestIndexMultipleDocumentsIsolatesFailures(t *testing.T) {
	router, store := newTestRouter(t)

	resp := execute(t, router, OpIndexDocument, IndexPayload{
		Documents: []DocumentPayload{
			{DocumentID: "doc_a", Title: "First", Content: "first document body"},
			{DocumentID: "doc_b", Title: "Broken"},
			{DocumentID: "doc_c", Title: "Third", Content: "third document body"},
		},
	})
	require.True(t, resp.Success, resp.Error)

	results, ok := resp.Result.([]core.DocumentResult)
	require.True(t, ok)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "content or chunks")
	assert.True(t, results[2].Success)
	assert.Equal(t, 2, store.Len())
}

func TestIndexDocumentBadDate(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := execute(t, router, OpIndexDocument, DocumentPayload{
		Title:           "Dated",
		Content:         "text",
		PublicationDate: "someday",
	})
	assert.False(t, resp.Success)
}

func TestSearchOperation(t *testing.T) {
	router, _ := newTestRouter(t)

	indexResp := execute(t, router, OpIndexDocument, DocumentPayload{
		Title:   "Chunking Strategies",
		Content: "Overlapping chunks preserve context across boundaries.",
	})
	require.True(t, indexResp.Success)

	resp := execute(t, router, OpSearch, SearchPayload{
		Query: "Overlapping chunks preserve context across boundaries.",
	})
	require.True(t, resp.Success, resp.Error)

	result, ok := resp.Result.(*core.SearchResponse)
	require.True(t, ok)
	require.NotEmpty(t, result.Results)
	assert.InDelta(t, 1.0, float64(result.MaxScore), 1e-5)
}

func TestSearchAppliesDefaultMinScore(t *testing.T) {
	router, _ := newTestRouter(t)

	require.True(t, execute(t, router, OpIndexDocument, DocumentPayload{
		Title:   "Unrelated",
		Content: "Completely different topic about gardening.",
	}).Success)

	// The mock embedder makes unrelated texts nearly orthogonal, so the
	// 0.7 default threshold drops them.
	resp := execute(t, router, OpSearch, SearchPayload{Query: "quantum chromodynamics"})
	require.True(t, resp.Success, resp.Error)
	assert.Empty(t, resp.Result.(*core.SearchResponse).Results)

	// An explicit zero threshold lets them through.
	zero := float32(0)
	resp = execute(t, router, OpSearch, SearchPayload{Query: "quantum chromodynamics", MinScore: &zero})
	require.True(t, resp.Success)
	assert.NotEmpty(t, resp.Result.(*core.SearchResponse).Results)
}

func TestSearchFilterOnly(t *testing.T) {
	router, _ := newTestRouter(t)

	require.True(t, execute(t, router, OpIndexDocument, DocumentPayload{
		DocumentID: "doc_known",
		Title:      "Filter Target",
		Content:    "findable by filter",
	}).Success)

	resp := execute(t, router, OpSearch, SearchPayload{
		Filters: map[string]interface{}{"document_id": "doc_known"},
	})
	require.True(t, resp.Success, resp.Error)
	assert.NotEmpty(t, resp.Result.(*core.SearchResponse).Results)
}

func TestSearchRequiresQueryOrFilters(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := execute(t, router, OpSearch, SearchPayload{})
	assert.False(t, resp.Success)
}

func TestSearchInvalidFilter(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := execute(t, router, OpSearch, SearchPayload{
		Query:   "anything",
		Filters: map[string]interface{}{"f": map[string]interface{}{"bogus": 1}},
	})
	assert.False(t, resp.Success)
}

func TestDeleteDocumentOperation(t *testing.T) {
	router, store := newTestRouter(t)

	require.True(t, execute(t, router, OpIndexDocument, DocumentPayload{
		DocumentID: "doc_del",
		Title:      "Doomed",
		Content:    "short-lived content",
	}).Success)
	require.Greater(t, store.Len(), 0)

	resp := execute(t, router, OpDeleteDocument, DeletePayload{DocumentID: "doc_del"})
	require.True(t, resp.Success, resp.Error)

	result, ok := resp.Result.(*DeleteResult)
	require.True(t, ok)
	assert.Equal(t, "doc_del", result.DocumentID)
	assert.Greater(t, result.ChunksDeleted, 0)
	assert.Len(t, result.ChunkIDs, result.ChunksDeleted)
	assert.Zero(t, store.Len())
}

func TestDeleteUnknownDocument(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := execute(t, router, OpDeleteDocument, DeletePayload{DocumentID: "doc_missing"})
	require.True(t, resp.Success)
	assert.Zero(t, resp.Result.(*DeleteResult).ChunksDeleted)
}

func TestDeleteRequiresDocumentID(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := execute(t, router, OpDeleteDocument, DeletePayload{})
	assert.False(t, resp.Success)
}

func TestMalformedPayload(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := router.Execute(context.Background(), &Request{
		Operation: OpSearch,
		Payload:   json.RawMessage(`{"query": 42`),
	})
	assert.False(t, resp.Success)
}
