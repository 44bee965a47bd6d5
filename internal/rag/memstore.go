package rag

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/agentscholar/kindex/internal/core"
	kberrors "github.com/agentscholar/kindex/internal/errors"
)

// MemoryStore implements core.VectorStore in process memory with the same
// semantics as the Milvus store: upserts keyed by chunk id, cosine-scored
// search composed with filter clauses, and document-scoped deletion. It backs
// offline runs (wired with --memory) and the contract tests.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]core.IndexRecord
	embedder core.EmbedService
	dim      int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(embedder core.EmbedService, dim int) *MemoryStore {
	if dim <= 0 {
		dim = core.DefaultEmbeddingDim
	}
	return &MemoryStore{
		records:  make(map[string]core.IndexRecord),
		embedder: embedder,
		dim:      dim,
	}
}

// EnsureSchema is trivially idempotent for the in-memory representation.
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return nil
}

// Upsert stores each record keyed by chunk id, replacing prior versions.
func (s *MemoryStore) Upsert(ctx context.Context, records []core.IndexRecord) ([]core.ChunkStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]core.ChunkStatus, 0, len(records))
	for i := range records {
		rec := records[i]
		if err := validateRecord(&rec, s.dim); err != nil {
			statuses = append(statuses, core.ChunkStatus{
				ChunkID: rec.ChunkID,
				Status:  core.ChunkFailed,
				Error:   err.Error(),
			})
			continue
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		if rec.EmbeddingVersion == "" {
			rec.EmbeddingVersion = core.DefaultEmbeddingVersion
		}
		s.records[rec.ChunkID] = rec
		statuses = append(statuses, core.ChunkStatus{ChunkID: rec.ChunkID, Status: core.ChunkIndexed})
	}
	return statuses, nil
}

// Search scores every matching record against the query vector and returns
// the ranked, thresholded top results.
func (s *MemoryStore) Search(ctx context.Context, req core.SearchRequest) (*core.SearchResponse, error) {
	clauses, err := ParseFilters(req.Filters)
	if err != nil {
		return nil, err
	}

	size := req.Size
	if size <= 0 {
		size = defaultSearchSize
	}

	vector := req.QueryEmbedding
	if vector == nil && req.QueryText != "" {
		if s.embedder == nil {
			return nil, kberrors.Newf(kberrors.KindEmbeddingUnavailable,
				"no embedder configured to resolve query text")
		}
		vectors, err := s.embedder.EmbedTexts(ctx, []string{req.QueryText})
		if err != nil {
			return nil, err
		}
		vector = vectors[0]
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []core.SearchResult
	for id := range s.records {
		rec := s.records[id]
		if !matchesAll(&rec, clauses) {
			continue
		}
		score := float32(1.0)
		if vector != nil {
			score = cosineSimilarity(vector, rec.Embedding)
		}
		if score < req.MinScore {
			continue
		}
		results = append(results, core.SearchResult{
			ChunkID:       rec.ChunkID,
			Score:         score,
			DocumentID:    rec.DocumentID,
			Title:         rec.Title,
			Authors:       rec.Authors,
			ChunkContent:  rec.ChunkContent,
			StartPosition: rec.StartPosition,
			EndPosition:   rec.EndPosition,
			Metadata:      rec.Metadata,
		})
	}

	// Descending by score; ties keep whatever order the scan produced.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > size {
		results = results[:size]
	}

	resp := &core.SearchResponse{
		TotalHits: len(results),
		Results:   results,
	}
	if len(results) > 0 {
		resp.MaxScore = results[0].Score
	}
	return resp, nil
}

// DeleteByDocument removes all chunks of the document and returns their ids.
func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := []string{}
	for id, rec := range s.records {
		if rec.DocumentID == documentID {
			deleted = append(deleted, id)
		}
	}
	sort.Strings(deleted)
	for _, id := range deleted {
		delete(s.records, id)
	}
	return deleted, nil
}

// Len reports the number of stored chunk records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matchesAll(rec *core.IndexRecord, clauses []Clause) bool {
	for _, clause := range clauses {
		if !clause.Matches(rec) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
