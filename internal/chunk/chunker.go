// Package chunk splits document text into position-addressed spans for
// embedding. Splitting is a pure function of its input: the same content and
// settings always produce the same spans.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Default splitting parameters, in bytes.
const (
	DefaultTargetSize = 1000
	DefaultOverlap    = 200
)

// Span is one bounded excerpt. Start and End are byte offsets into the
// original content and Content == content[Start:End], so excerpts can be
// regenerated losslessly from positions alone.
type Span struct {
	Start   int
	End     int
	Content string
}

// sentence terminators searched for inside the break window, in rfind order.
var sentenceEndings = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// Split cuts content into ordered spans of at most targetSize bytes with up
// to overlap bytes shared between neighbours. Spans cover the whole input
// with no gaps. Break points prefer paragraph, then sentence, then word
// boundaries inside the last fifth of the window; span edges never split a
// UTF-8 rune.
func Split(content string, targetSize, overlap int) []Span {
	if content == "" {
		return nil
	}
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize {
		overlap = targetSize / 2
	}

	if len(content) <= targetSize {
		return []Span{{Start: 0, End: len(content), Content: content}}
	}

	var spans []Span
	start := 0
	for start < len(content) {
		end := start + targetSize
		if end >= len(content) {
			end = len(content)
		} else {
			end = breakPoint(content, start, end)
			end = alignRuneStart(content, end)
			if end <= start {
				end = nextRuneStart(content, start+1)
			}
		}

		spans = append(spans, Span{Start: start, End: end, Content: content[start:end]})

		if end >= len(content) {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		// Start the overlap window at a word boundary when one exists.
		if sp := strings.LastIndex(content[next:end], " "); sp > 0 {
			next += sp + 1
		}
		start = nextRuneStart(content, next)
	}
	return spans
}

// breakPoint finds the best cut position in (start, maxEnd], searching the
// last 20% of the window. Preference order: paragraph, newline, sentence
// ending, word boundary. Falls back to maxEnd.
func breakPoint(content string, start, maxEnd int) int {
	searchStart := maxEnd - (maxEnd-start)/5
	if searchStart < start {
		searchStart = start
	}
	window := content[searchStart:maxEnd]

	if p := strings.LastIndex(window, "\n\n"); p > 0 {
		return searchStart + p + 2
	}
	if p := strings.LastIndex(window, "\n"); p > 0 {
		return searchStart + p + 1
	}

	best := -1
	for _, ending := range sentenceEndings {
		if p := strings.LastIndex(window, ending); p >= 0 && p+len(ending) > best {
			best = p + len(ending)
		}
	}
	if best > 0 {
		return searchStart + best
	}

	if p := strings.LastIndex(window, " "); p > 0 {
		return searchStart + p
	}
	return maxEnd
}

// alignRuneStart moves pos left until it sits on a rune boundary.
func alignRuneStart(content string, pos int) int {
	for pos > 0 && pos < len(content) && !utf8.RuneStart(content[pos]) {
		pos--
	}
	return pos
}

// nextRuneStart moves pos right until it sits on a rune boundary.
func nextRuneStart(content string, pos int) int {
	for pos < len(content) && !utf8.RuneStart(content[pos]) {
		pos++
	}
	return pos
}
