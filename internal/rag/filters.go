package rag

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentscholar/kindex/internal/core"
	kberrors "github.com/agentscholar/kindex/internal/errors"
)

// Filter clauses are the validated, tagged form of a generic filter spec:
// a list value becomes Terms, a {"range": {...}} map becomes Range, a scalar
// becomes Term. Anything else fails the parse with an invalid-filter error
// instead of being silently dropped.

// Clause is one validated filter condition.
type Clause interface {
	// Expr renders the clause as a Milvus boolean expression fragment.
	Expr() string
	// Matches evaluates the clause against an in-memory record.
	Matches(rec *core.IndexRecord) bool
}

// TermClause matches a field against a single scalar value.
type TermClause struct {
	Field string
	Value interface{}
}

// TermsClause matches a field against any value in a set.
type TermsClause struct {
	Field  string
	Values []interface{}
}

// RangeClause bounds a field between optional inclusive/exclusive limits.
// Unset bounds are nil.
type RangeClause struct {
	Field string
	GTE   interface{}
	GT    interface{}
	LTE   interface{}
	LT    interface{}
}

// ParseFilters validates a generic filter mapping into clauses. Clauses come
// back ordered by field name so rendered expressions are deterministic.
func ParseFilters(filters map[string]interface{}) ([]Clause, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(filters))
	for field := range filters {
		if field == "" {
			return nil, kberrors.Newf(kberrors.KindInvalidFilter, "filter field name is empty")
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	clauses := make([]Clause, 0, len(fields))
	for _, field := range fields {
		clause, err := parseClause(field, filters[field])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func parseClause(field string, value interface{}) (Clause, error) {
	switch v := value.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil, kberrors.Newf(kberrors.KindInvalidFilter,
				"filter %q: value list is empty", field)
		}
		values := make([]interface{}, len(v))
		for i, item := range v {
			scalar, err := normalizeScalar(field, item)
			if err != nil {
				return nil, err
			}
			values[i] = scalar
		}
		return &TermsClause{Field: field, Values: values}, nil

	case []string:
		if len(v) == 0 {
			return nil, kberrors.Newf(kberrors.KindInvalidFilter,
				"filter %q: value list is empty", field)
		}
		values := make([]interface{}, len(v))
		for i, item := range v {
			scalar, err := normalizeScalar(field, item)
			if err != nil {
				return nil, err
			}
			values[i] = scalar
		}
		return &TermsClause{Field: field, Values: values}, nil

	case map[string]interface{}:
		rangeSpec, ok := v["range"]
		if !ok || len(v) != 1 {
			return nil, kberrors.Newf(kberrors.KindInvalidFilter,
				"filter %q: object values must be {\"range\": {...}}", field)
		}
		bounds, ok := rangeSpec.(map[string]interface{})
		if !ok || len(bounds) == 0 {
			return nil, kberrors.Newf(kberrors.KindInvalidFilter,
				"filter %q: range spec must be an object with at least one bound", field)
		}
		clause := &RangeClause{Field: field}
		for op, bound := range bounds {
			scalar, err := normalizeScalar(field, bound)
			if err != nil {
				return nil, err
			}
			switch op {
			case "gte":
				clause.GTE = scalar
			case "gt":
				clause.GT = scalar
			case "lte":
				clause.LTE = scalar
			case "lt":
				clause.LT = scalar
			default:
				return nil, kberrors.Newf(kberrors.KindInvalidFilter,
					"filter %q: unknown range operator %q", field, op)
			}
		}
		return clause, nil

	case string, bool, float64, float32, int, int32, int64:
		scalar, err := normalizeScalar(field, v)
		if err != nil {
			return nil, err
		}
		return &TermClause{Field: field, Value: scalar}, nil

	default:
		return nil, kberrors.Newf(kberrors.KindInvalidFilter,
			"filter %q: unsupported value type %T", field, value)
	}
}

// dateFields are persisted as unix milliseconds; string values in filters on
// these fields are parsed as timestamps.
func isDateField(field string) bool {
	return field == fieldPublicationDate || field == fieldCreatedAt
}

// normalizeScalar converts a filter value into its persisted representation:
// timestamps to unix milliseconds, integral numerics to int64.
func normalizeScalar(field string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		if isDateField(field) {
			ms, err := parseTimestamp(v)
			if err != nil {
				return nil, kberrors.Newf(kberrors.KindInvalidFilter,
					"filter %q: cannot parse %q as a timestamp", field, v)
			}
			return ms, nil
		}
		return v, nil
	case bool:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return nil, kberrors.Newf(kberrors.KindInvalidFilter,
			"filter %q: unsupported scalar type %T", field, value)
	}
}

func parseTimestamp(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}

// BuildExpr joins clauses into a single Milvus boolean expression. Empty
// input renders to the empty string (match all).
func BuildExpr(clauses []Clause) string {
	if len(clauses) == 0 {
		return ""
	}
	parts := make([]string, len(clauses))
	for i, clause := range clauses {
		parts[i] = clause.Expr()
	}
	return strings.Join(parts, " and ")
}

// Expr renders a term clause. The authors array and metadata keys need
// dedicated operators in Milvus.
func (c *TermClause) Expr() string {
	if c.Field == fieldAuthors {
		return fmt.Sprintf("array_contains(%s, %s)", fieldAuthors, renderLiteral(c.Value))
	}
	return fmt.Sprintf("%s == %s", renderField(c.Field), renderLiteral(c.Value))
}

// Expr renders a terms clause.
func (c *TermsClause) Expr() string {
	literals := make([]string, len(c.Values))
	for i, v := range c.Values {
		literals[i] = renderLiteral(v)
	}
	set := "[" + strings.Join(literals, ", ") + "]"
	if c.Field == fieldAuthors {
		return fmt.Sprintf("array_contains_any(%s, %s)", fieldAuthors, set)
	}
	return fmt.Sprintf("%s in %s", renderField(c.Field), set)
}

// Expr renders a range clause as a conjunction of its set bounds.
func (c *RangeClause) Expr() string {
	var parts []string
	field := renderField(c.Field)
	if c.GTE != nil {
		parts = append(parts, fmt.Sprintf("%s >= %s", field, renderLiteral(c.GTE)))
	}
	if c.GT != nil {
		parts = append(parts, fmt.Sprintf("%s > %s", field, renderLiteral(c.GT)))
	}
	if c.LTE != nil {
		parts = append(parts, fmt.Sprintf("%s <= %s", field, renderLiteral(c.LTE)))
	}
	if c.LT != nil {
		parts = append(parts, fmt.Sprintf("%s < %s", field, renderLiteral(c.LT)))
	}
	return strings.Join(parts, " and ")
}

// renderField maps dotted metadata paths to Milvus JSON access syntax.
func renderField(field string) string {
	if key, ok := strings.CutPrefix(field, "metadata."); ok {
		return fmt.Sprintf(`%s["%s"]`, fieldMetadata, key)
	}
	return field
}

func renderLiteral(value interface{}) string {
	switch v := value.(type) {
	case string:
		return quoteString(v)
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return quoteString(fmt.Sprintf("%v", v))
	}
}

// quoteString escapes a value for embedding in a Milvus expression.
func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// Matches evaluates a term clause against a record.
func (c *TermClause) Matches(rec *core.IndexRecord) bool {
	if c.Field == fieldAuthors {
		for _, author := range rec.Authors {
			if equalValues(author, c.Value) {
				return true
			}
		}
		return false
	}
	value, ok := recordField(rec, c.Field)
	return ok && equalValues(value, c.Value)
}

// Matches evaluates a terms clause against a record.
func (c *TermsClause) Matches(rec *core.IndexRecord) bool {
	if c.Field == fieldAuthors {
		for _, author := range rec.Authors {
			for _, v := range c.Values {
				if equalValues(author, v) {
					return true
				}
			}
		}
		return false
	}
	value, ok := recordField(rec, c.Field)
	if !ok {
		return false
	}
	for _, v := range c.Values {
		if equalValues(value, v) {
			return true
		}
	}
	return false
}

// Matches evaluates a range clause against a record.
func (c *RangeClause) Matches(rec *core.IndexRecord) bool {
	value, ok := recordField(rec, c.Field)
	if !ok {
		return false
	}
	got, ok := asFloat(value)
	if !ok {
		return false
	}
	if c.GTE != nil {
		if bound, ok := asFloat(c.GTE); !ok || got < bound {
			return false
		}
	}
	if c.GT != nil {
		if bound, ok := asFloat(c.GT); !ok || got <= bound {
			return false
		}
	}
	if c.LTE != nil {
		if bound, ok := asFloat(c.LTE); !ok || got > bound {
			return false
		}
	}
	if c.LT != nil {
		if bound, ok := asFloat(c.LT); !ok || got >= bound {
			return false
		}
	}
	return true
}

// recordField resolves a filter field name to the record's value. Dotted
// metadata paths read from the metadata map; unknown fields resolve to
// nothing and never match.
func recordField(rec *core.IndexRecord, field string) (interface{}, bool) {
	switch field {
	case fieldChunkID:
		return rec.ChunkID, true
	case fieldDocumentID:
		return rec.DocumentID, true
	case fieldTitle:
		return rec.Title, true
	case fieldContent:
		return rec.Content, true
	case fieldChunkContent:
		return rec.ChunkContent, true
	case fieldEmbeddingVersion:
		return rec.EmbeddingVersion, true
	case fieldStartPosition:
		return int64(rec.StartPosition), true
	case fieldEndPosition:
		return int64(rec.EndPosition), true
	case fieldPublicationDate:
		if rec.PublicationDate == nil {
			return nil, false
		}
		return rec.PublicationDate.UnixMilli(), true
	case fieldCreatedAt:
		return rec.CreatedAt.UnixMilli(), true
	}
	if key, ok := strings.CutPrefix(field, "metadata."); ok {
		value, present := rec.Metadata[key]
		return value, present
	}
	return nil, false
}

// equalValues compares loosely across numeric representations, since JSON
// decoding produces float64 where records may hold int64.
func equalValues(a, b interface{}) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
