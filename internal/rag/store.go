// Package rag owns the vector index: schema management, idempotent chunk
// upserts, filtered similarity search, and document-scoped deletion.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/agentscholar/kindex/internal/core"
	kberrors "github.com/agentscholar/kindex/internal/errors"
	"github.com/agentscholar/kindex/internal/logger"
)

// Field names in the chunk collection.
const (
	fieldChunkID          = "chunk_id"
	fieldDocumentID       = "document_id"
	fieldTitle            = "title"
	fieldAuthors          = "authors"
	fieldPublicationDate  = "publication_date"
	fieldContent          = "content"
	fieldChunkContent     = "chunk_content"
	fieldStartPosition    = "start_position"
	fieldEndPosition      = "end_position"
	fieldEmbedding        = "embedding"
	fieldMetadata         = "metadata"
	fieldCreatedAt        = "created_at"
	fieldEmbeddingVersion = "embedding_version"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "document_chunks"

// HNSW parameters. Changing M or efConstruction after records exist requires
// recreating the collection; EnsureSchema never mutates an existing one.
const (
	hnswM              = 24
	hnswEfConstruction = 128
	hnswEfSearch       = 100
)

// maxChunksPerDocument bounds the id lookup during document deletion.
const maxChunksPerDocument = 1000

// defaultSearchSize is used when a search request does not set a size.
const defaultSearchSize = 10

// searchOutputFields are returned to callers. The embedding and the full
// document content are never included in results.
var searchOutputFields = []string{
	fieldChunkID, fieldDocumentID, fieldTitle, fieldAuthors,
	fieldChunkContent, fieldStartPosition, fieldEndPosition, fieldMetadata,
}

// MilvusStore implements core.VectorStore on a Milvus collection. Queries
// given as text are resolved through the injected embedder before searching.
type MilvusStore struct {
	client     *milvusclient.Client
	embedder   core.EmbedService
	collection string
	dim        int
}

// NewMilvusStore connects to Milvus and wraps the given collection.
func NewMilvusStore(ctx context.Context, addr string, embedder core.EmbedService, collection string, dim int) (*MilvusStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if dim <= 0 {
		dim = core.DefaultEmbeddingDim
	}

	logger.Info("Connecting to Milvus at %s (collection %s, dim %d)", addr, collection, dim)
	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}

	return &MilvusStore{
		client:     c,
		embedder:   embedder,
		collection: collection,
		dim:        dim,
	}, nil
}

// EnsureSchema creates the chunk collection, its HNSW index and loads it.
// An existing collection is left untouched and reported as success.
func (s *MilvusStore) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return kberrors.New(kberrors.KindIndexWrite, "ensure_schema", err)
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "Document chunks with embeddings for similarity search",
			Fields: []*entity.Field{
				{
					Name:       fieldChunkID,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "255"},
				},
				{
					Name:       fieldDocumentID,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "255"},
				},
				{
					Name:       fieldTitle,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "1024"},
				},
				{
					Name:        fieldAuthors,
					DataType:    entity.FieldTypeArray,
					ElementType: entity.FieldTypeVarChar,
					TypeParams:  map[string]string{"max_capacity": "64", "max_length": "255"},
				},
				{
					Name:     fieldPublicationDate,
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:       fieldContent,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "65535"},
				},
				{
					Name:       fieldChunkContent,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "65535"},
				},
				{
					Name:     fieldStartPosition,
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     fieldEndPosition,
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     fieldEmbedding,
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", s.dim),
					},
				},
				{
					Name:     fieldMetadata,
					DataType: entity.FieldTypeJSON,
				},
				{
					Name:     fieldCreatedAt,
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:       fieldEmbeddingVersion,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "64"},
				},
			},
		}

		createOpt := milvusclient.NewCreateCollectionOption(s.collection, schema)
		if err := s.client.CreateCollection(ctx, createOpt); err != nil {
			return kberrors.New(kberrors.KindIndexWrite, "ensure_schema", err)
		}

		vectorIdx := index.NewHNSWIndex(entity.COSINE, hnswM, hnswEfConstruction)
		indexOpt := milvusclient.NewCreateIndexOption(s.collection, fieldEmbedding, vectorIdx)
		if _, err := s.client.CreateIndex(ctx, indexOpt); err != nil {
			return kberrors.New(kberrors.KindIndexWrite, "ensure_schema", err)
		}

		logger.Info("Created collection %s with HNSW index (M=%d, efConstruction=%d)",
			s.collection, hnswM, hnswEfConstruction)
	}

	// Milvus requires the collection in memory before searching. Loading an
	// already loaded collection is harmless.
	if _, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection)); err != nil {
		return kberrors.New(kberrors.KindIndexWrite, "ensure_schema", err)
	}
	return nil
}

// Upsert writes each record keyed by its chunk id. A failing record is
// reported in its status and does not abort the remaining records.
func (s *MilvusStore) Upsert(ctx context.Context, records []core.IndexRecord) ([]core.ChunkStatus, error) {
	statuses := make([]core.ChunkStatus, 0, len(records))
	for i := range records {
		rec := &records[i]
		if err := validateRecord(rec, s.dim); err != nil {
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

		cols, err := recordColumns(rec, s.dim)
		if err == nil {
			_, err = s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection, cols...))
		}
		if err != nil {
			werr := kberrors.New(kberrors.KindIndexWrite, "upsert", err).WithChunk(rec.ChunkID).WithDocument(rec.DocumentID)
			logger.Error("Failed to upsert chunk %s: %v", rec.ChunkID, err)
			statuses = append(statuses, core.ChunkStatus{
				ChunkID: rec.ChunkID,
				Status:  core.ChunkFailed,
				Error:   werr.Error(),
			})
			continue
		}
		statuses = append(statuses, core.ChunkStatus{ChunkID: rec.ChunkID, Status: core.ChunkIndexed})
	}
	return statuses, nil
}

// validateRecord enforces the record invariants before anything is written.
func validateRecord(rec *core.IndexRecord, dim int) error {
	if rec.ChunkID == "" {
		return fmt.Errorf("chunk id is empty")
	}
	if rec.StartPosition >= rec.EndPosition {
		return fmt.Errorf("chunk %s: start position %d is not before end position %d",
			rec.ChunkID, rec.StartPosition, rec.EndPosition)
	}
	if len(rec.Embedding) != dim {
		return fmt.Errorf("chunk %s: embedding has dimension %d, expected %d",
			rec.ChunkID, len(rec.Embedding), dim)
	}
	return nil
}

// recordColumns converts a record into Milvus columns.
func recordColumns(rec *core.IndexRecord, dim int) ([]column.Column, error) {
	metadataJSON := []byte("{}")
	if rec.Metadata != nil {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadataJSON = b
	}

	authors := rec.Authors
	if authors == nil {
		authors = []string{}
	}

	var pubMs int64
	if rec.PublicationDate != nil {
		pubMs = rec.PublicationDate.UnixMilli()
	}

	return []column.Column{
		column.NewColumnVarChar(fieldChunkID, []string{rec.ChunkID}),
		column.NewColumnVarChar(fieldDocumentID, []string{rec.DocumentID}),
		column.NewColumnVarChar(fieldTitle, []string{rec.Title}),
		column.NewColumnVarCharArray(fieldAuthors, [][]string{authors}),
		column.NewColumnInt64(fieldPublicationDate, []int64{pubMs}),
		column.NewColumnVarChar(fieldContent, []string{rec.Content}),
		column.NewColumnVarChar(fieldChunkContent, []string{rec.ChunkContent}),
		column.NewColumnInt64(fieldStartPosition, []int64{int64(rec.StartPosition)}),
		column.NewColumnInt64(fieldEndPosition, []int64{int64(rec.EndPosition)}),
		column.NewColumnFloatVector(fieldEmbedding, dim, [][]float32{rec.Embedding}),
		column.NewColumnJSONBytes(fieldMetadata, [][]byte{metadataJSON}),
		column.NewColumnInt64(fieldCreatedAt, []int64{rec.CreatedAt.UnixMilli()}),
		column.NewColumnVarChar(fieldEmbeddingVersion, []string{rec.EmbeddingVersion}),
	}, nil
}

// Search runs a filtered similarity query. With a vector (or text resolved
// into one) it performs ANN search restricted by the filter expression; with
// filters alone it falls back to a scalar query where every hit scores 1.0.
func (s *MilvusStore) Search(ctx context.Context, req core.SearchRequest) (*core.SearchResponse, error) {
	clauses, err := ParseFilters(req.Filters)
	if err != nil {
		return nil, err
	}
	expr := BuildExpr(clauses)

	size := req.Size
	if size <= 0 {
		size = defaultSearchSize
	}

	vector := req.QueryEmbedding
	if vector == nil && req.QueryText != "" {
		vectors, err := s.embedder.EmbedTexts(ctx, []string{req.QueryText})
		if err != nil {
			return nil, err
		}
		vector = vectors[0]
	}

	var results []core.SearchResult
	if vector != nil {
		results, err = s.vectorSearch(ctx, vector, size, expr)
	} else {
		results, err = s.scalarQuery(ctx, size, expr)
	}
	if err != nil {
		return nil, err
	}

	ranked := make([]core.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= req.MinScore {
			ranked = append(ranked, r)
		}
	}

	resp := &core.SearchResponse{
		TotalHits: len(ranked),
		Results:   ranked,
	}
	if len(ranked) > 0 {
		resp.MaxScore = ranked[0].Score
	}
	return resp, nil
}

func (s *MilvusStore) vectorSearch(ctx context.Context, vector []float32, size int, expr string) ([]core.SearchResult, error) {
	searchOpt := milvusclient.NewSearchOption(s.collection, size, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(fieldEmbedding).
		WithOutputFields(searchOutputFields...).
		WithAnnParam(index.NewHNSWAnnParam(hnswEfSearch))
	if expr != "" {
		searchOpt = searchOpt.WithFilter(expr)
	}

	resultSets, err := s.client.Search(ctx, searchOpt)
	if err != nil {
		return nil, kberrors.New(kberrors.KindIndexRead, "search", err)
	}
	if len(resultSets) == 0 {
		return nil, nil
	}

	rs := resultSets[0]
	results := make([]core.SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hit := decodeHit(&rs, i)
		if i < len(rs.Scores) {
			hit.Score = rs.Scores[i]
		}
		results = append(results, hit)
	}
	return results, nil
}

func (s *MilvusStore) scalarQuery(ctx context.Context, size int, expr string) ([]core.SearchResult, error) {
	queryOpt := milvusclient.NewQueryOption(s.collection).
		WithOutputFields(searchOutputFields...).
		WithLimit(size)
	if expr != "" {
		queryOpt = queryOpt.WithFilter(expr)
	}

	rs, err := s.client.Query(ctx, queryOpt)
	if err != nil {
		return nil, kberrors.New(kberrors.KindIndexRead, "search", err)
	}

	results := make([]core.SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hit := decodeHit(&rs, i)
		// Scalar matches carry no similarity; score 1.0 keeps them above
		// any sensible threshold, matching match-all semantics.
		hit.Score = 1.0
		results = append(results, hit)
	}
	return results, nil
}

// decodeHit reads one row's output fields from a result set.
func decodeHit(rs *milvusclient.ResultSet, i int) core.SearchResult {
	hit := core.SearchResult{
		ChunkID:       columnString(rs.GetColumn(fieldChunkID), i),
		DocumentID:    columnString(rs.GetColumn(fieldDocumentID), i),
		Title:         columnString(rs.GetColumn(fieldTitle), i),
		ChunkContent:  columnString(rs.GetColumn(fieldChunkContent), i),
		StartPosition: int(columnInt64(rs.GetColumn(fieldStartPosition), i)),
		EndPosition:   int(columnInt64(rs.GetColumn(fieldEndPosition), i)),
	}

	if authorsCol, ok := rs.GetColumn(fieldAuthors).(*column.ColumnVarCharArray); ok {
		data := authorsCol.Data()
		if i < len(data) {
			hit.Authors = data[i]
		}
	}

	if metadataCol, ok := rs.GetColumn(fieldMetadata).(*column.ColumnJSONBytes); ok {
		data := metadataCol.Data()
		if i < len(data) {
			var metadata map[string]interface{}
			if err := json.Unmarshal(data[i], &metadata); err == nil {
				hit.Metadata = metadata
			}
		}
	}
	return hit
}

func columnString(col column.Column, i int) string {
	if col == nil {
		return ""
	}
	v, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return v
}

func columnInt64(col column.Column, i int) int64 {
	if col == nil {
		return 0
	}
	v, err := col.GetAsInt64(i)
	if err != nil {
		return 0
	}
	return v
}

// DeleteByDocument removes every chunk whose document_id matches and returns
// the deleted chunk ids. Zero matches is a successful empty result.
func (s *MilvusStore) DeleteByDocument(ctx context.Context, documentID string) ([]string, error) {
	expr := fmt.Sprintf("%s == %s", fieldDocumentID, quoteString(documentID))

	queryOpt := milvusclient.NewQueryOption(s.collection).
		WithFilter(expr).
		WithOutputFields(fieldChunkID).
		WithLimit(maxChunksPerDocument)
	rs, err := s.client.Query(ctx, queryOpt)
	if err != nil {
		return nil, kberrors.New(kberrors.KindIndexRead, "delete", err).WithDocument(documentID)
	}

	chunkIDs := make([]string, 0, rs.ResultCount)
	idCol := rs.GetColumn(fieldChunkID)
	if idCol != nil {
		for i := 0; i < idCol.Len(); i++ {
			if id, err := idCol.GetAsString(i); err == nil && id != "" {
				chunkIDs = append(chunkIDs, id)
			}
		}
	}
	if len(chunkIDs) == 0 {
		return []string{}, nil
	}

	if _, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithExpr(expr)); err != nil {
		return nil, kberrors.New(kberrors.KindIndexWrite, "delete", err).WithDocument(documentID)
	}

	logger.Info("Deleted document %s (%d chunks)", documentID, len(chunkIDs))
	return chunkIDs, nil
}

// Close releases the Milvus connection.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// Dimension returns the configured embedding dimension.
func (s *MilvusStore) Dimension() int {
	return s.dim
}
