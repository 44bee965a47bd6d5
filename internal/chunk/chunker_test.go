package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortContentSingleSpan(t *testing.T) {
	content := "A short paragraph that fits in one chunk."
	spans := Split(content, DefaultTargetSize, DefaultOverlap)

	require.Len(t, spans, 1)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len(content), spans[0].End)
	assert.Equal(t, content, spans[0].Content)
}

func TestSplitEmptyContent(t *testing.T) {
	assert.Empty(t, Split("", DefaultTargetSize, DefaultOverlap))
}

func TestSplitCoversAllContent(t *testing.T) {
	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	spans := Split(content, 500, 100)
	require.NotEmpty(t, spans)

	// First span starts at the beginning, last span ends at the end, and
	// consecutive spans overlap or touch: no byte is skipped.
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len(content), spans[len(spans)-1].End)
	for i := 1; i < len(spans); i++ {
		assert.LessOrEqual(t, spans[i].Start, spans[i-1].End,
			"span %d leaves a gap", i)
		assert.Greater(t, spans[i].End, spans[i-1].End,
			"span %d does not advance", i)
	}
}

func TestSplitSpansMatchPositions(t *testing.T) {
	content := strings.Repeat("Sentence one is here. Sentence two follows.\n\n", 100)
	for _, span := range Split(content, 400, 80) {
		assert.Equal(t, content[span.Start:span.End], span.Content)
	}
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("x", 450)
	content := para + "\n\n" + para + "\n\n" + para
	spans := Split(content, 500, 50)

	require.GreaterOrEqual(t, len(spans), 2)
	// The first cut lands right after the paragraph break inside the
	// window's tail, not mid-paragraph.
	assert.Equal(t, para+"\n\n", spans[0].Content)
}

func TestSplitPrefersSentenceBreaks(t *testing.T) {
	sentence := strings.Repeat("w", 440) + ". "
	content := sentence + sentence + sentence
	spans := Split(content, 500, 50)

	require.GreaterOrEqual(t, len(spans), 2)
	assert.True(t, strings.HasSuffix(spans[0].Content, ". "),
		"chunk should end at a sentence boundary, got %q", spans[0].Content[len(spans[0].Content)-10:])
}

func TestSplitOverlapClampedToHalfTarget(t *testing.T) {
	content := strings.Repeat("abcdefghij ", 100)
	// Overlap >= target would never advance; it gets clamped instead.
	spans := Split(content, 100, 100)
	require.NotEmpty(t, spans)
	for i := 1; i < len(spans); i++ {
		assert.Greater(t, spans[i].Start, spans[i-1].Start)
	}
	assert.Equal(t, len(content), spans[len(spans)-1].End)
}

func TestSplitNeverCutsRunes(t *testing.T) {
	content := strings.Repeat("résumé naïve café über ", 200)
	for _, span := range Split(content, 300, 60) {
		assert.True(t, utf8.ValidString(span.Content),
			"span [%d:%d] splits a rune", span.Start, span.End)
	}
}

func TestSplitDeterministic(t *testing.T) {
	content := strings.Repeat("Stable input, stable output. ", 150)
	first := Split(content, 500, 100)
	second := Split(content, 500, 100)
	assert.Equal(t, first, second)
}
