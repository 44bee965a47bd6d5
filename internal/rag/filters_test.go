package rag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentscholar/kindex/internal/core"
	kberrors "github.com/agentscholar/kindex/internal/errors"
)

func TestParseFiltersTermClause(t *testing.T) {
	clauses, err := ParseFilters(map[string]interface{}{"document_id": "doc_abc123"})
	require.NoError(t, err)
	require.Len(t, clauses, 1)

	term, ok := clauses[0].(*TermClause)
	require.True(t, ok)
	assert.Equal(t, "document_id", term.Field)
	assert.Equal(t, "doc_abc123", term.Value)
	assert.Equal(t, `document_id == "doc_abc123"`, term.Expr())
}

func TestParseFiltersTermsClause(t *testing.T) {
	clauses, err := ParseFilters(map[string]interface{}{
		"file_type": []interface{}{"pdf", "text"},
	})
	require.NoError(t, err)
	require.Len(t, clauses, 1)

	terms, ok := clauses[0].(*TermsClause)
	require.True(t, ok)
	assert.Equal(t, `file_type in ["pdf", "text"]`, terms.Expr())
}

func TestParseFiltersRangeClause(t *testing.T) {
	clauses, err := ParseFilters(map[string]interface{}{
		"start_position": map[string]interface{}{
			"range": map[string]interface{}{"gte": 100, "lt": 500},
		},
	})
	require.NoError(t, err)
	require.Len(t, clauses, 1)

	rng, ok := clauses[0].(*RangeClause)
	require.True(t, ok)
	assert.Equal(t, int64(100), rng.GTE)
	assert.Equal(t, int64(500), rng.LT)
	assert.Equal(t, "start_position >= 100 and start_position < 500", rng.Expr())
}

func TestParseFiltersDateStringsBecomeMillis(t *testing.T) {
	clauses, err := ParseFilters(map[string]interface{}{
		"publication_date": map[string]interface{}{
			"range": map[string]interface{}{"gte": "2023-01-01"},
		},
	})
	require.NoError(t, err)

	rng := clauses[0].(*RangeClause)
	want := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, rng.GTE)
}

func TestParseFiltersInvalidSpecs(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"empty field name":   {"": "x"},
		"empty value list":   {"file_type": []interface{}{}},
		"bare object":        {"file_type": map[string]interface{}{"weird": 1}},
		"range plus extras":  {"f": map[string]interface{}{"range": map[string]interface{}{"gte": 1}, "x": 2}},
		"empty range":        {"f": map[string]interface{}{"range": map[string]interface{}{}}},
		"unknown range op":   {"f": map[string]interface{}{"range": map[string]interface{}{"between": 1}}},
		"unsupported scalar": {"f": struct{}{}},
		"bad date string":    {"publication_date": map[string]interface{}{"range": map[string]interface{}{"gte": "soon"}}},
	}
	for name, filters := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFilters(filters)
			require.Error(t, err)
			assert.True(t, kberrors.IsKind(err, kberrors.KindInvalidFilter),
				"want invalid-filter kind, got %v", err)
		})
	}
}

func TestBuildExprJoinsDeterministically(t *testing.T) {
	clauses, err := ParseFilters(map[string]interface{}{
		"file_type":   "pdf",
		"document_id": "doc_1",
	})
	require.NoError(t, err)
	// Fields sort alphabetically regardless of map iteration order.
	assert.Equal(t, `document_id == "doc_1" and file_type == "pdf"`, BuildExpr(clauses))
}

func TestBuildExprEmpty(t *testing.T) {
	assert.Equal(t, "", BuildExpr(nil))
}

func TestAuthorsExprUsesArrayOperators(t *testing.T) {
	clauses, err := ParseFilters(map[string]interface{}{"authors": "Ada Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, `array_contains(authors, "Ada Lovelace")`, clauses[0].Expr())

	clauses, err = ParseFilters(map[string]interface{}{
		"authors": []string{"Ada Lovelace", "Alan Turing"},
	})
	require.NoError(t, err)
	assert.Equal(t, `array_contains_any(authors, ["Ada Lovelace", "Alan Turing"])`, clauses[0].Expr())
}

func TestMetadataExprRendersJSONPath(t *testing.T) {
	clauses, err := ParseFilters(map[string]interface{}{"metadata.file_type": "pdf"})
	require.NoError(t, err)
	assert.Equal(t, `metadata["file_type"] == "pdf"`, clauses[0].Expr())
}

func TestExprQuotesEmbeddedQuotes(t *testing.T) {
	clauses, err := ParseFilters(map[string]interface{}{"title": `He said "hi"`})
	require.NoError(t, err)
	assert.Equal(t, `title == "He said \"hi\""`, clauses[0].Expr())
}

func TestClauseMatchesRecord(t *testing.T) {
	pub := time.Date(2022, 6, 15, 0, 0, 0, 0, time.UTC)
	rec := &core.IndexRecord{
		ChunkID:         "doc_1_chunk_0000",
		DocumentID:      "doc_1",
		Title:           "Attention Is All You Need",
		Authors:         []string{"Vaswani", "Shazeer"},
		PublicationDate: &pub,
		StartPosition:   0,
		EndPosition:     900,
		Metadata:        map[string]interface{}{"file_type": "pdf"},
	}

	match := func(filters map[string]interface{}) bool {
		clauses, err := ParseFilters(filters)
		require.NoError(t, err)
		return matchesAll(rec, clauses)
	}

	assert.True(t, match(map[string]interface{}{"document_id": "doc_1"}))
	assert.False(t, match(map[string]interface{}{"document_id": "doc_2"}))
	assert.True(t, match(map[string]interface{}{"authors": "Shazeer"}))
	assert.False(t, match(map[string]interface{}{"authors": "Hinton"}))
	assert.True(t, match(map[string]interface{}{"authors": []string{"Hinton", "Vaswani"}}))
	assert.True(t, match(map[string]interface{}{"metadata.file_type": "pdf"}))
	assert.False(t, match(map[string]interface{}{"metadata.missing": "x"}))
	assert.True(t, match(map[string]interface{}{
		"publication_date": map[string]interface{}{
			"range": map[string]interface{}{"gte": "2022-01-01", "lt": "2023-01-01"},
		},
	}))
	assert.False(t, match(map[string]interface{}{
		"publication_date": map[string]interface{}{
			"range": map[string]interface{}{"gte": "2023-01-01"},
		},
	}))
	assert.True(t, match(map[string]interface{}{
		"end_position": map[string]interface{}{
			"range": map[string]interface{}{"lte": 900},
		},
	}))
}

func TestRangeMatchMissingDateNeverMatches(t *testing.T) {
	rec := &core.IndexRecord{DocumentID: "doc_x"}
	clauses, err := ParseFilters(map[string]interface{}{
		"publication_date": map[string]interface{}{
			"range": map[string]interface{}{"gte": "2000-01-01"},
		},
	})
	require.NoError(t, err)
	assert.False(t, matchesAll(rec, clauses))
}
