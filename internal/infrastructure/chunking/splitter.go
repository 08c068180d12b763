package chunking

import (
	"math"
	"unicode"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

const (
	DefaultCharsPerToken = 4.0
	// boundary search looks back over the last fifth of a window for whitespace.
	snapFraction = 0.2
)

// Splitter cuts text into overlapping windows sized in approximate tokens.
// Token counts are estimated as runes/CharsPerToken; this is an approximation,
// not a tokenizer, and is only used for sizing.
type Splitter struct {
	CharsPerToken float64
}

func NewSplitter(charsPerToken float64) *Splitter {
	if charsPerToken <= 0 || math.IsNaN(charsPerToken) {
		charsPerToken = DefaultCharsPerToken
	}
	return &Splitter{CharsPerToken: charsPerToken}
}

// EstimateTokens returns the approximate token count of text.
func (s *Splitter) EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / s.CharsPerToken))
}

// Split is deterministic: the same text and sizes always produce the same
// window boundaries.
func (s *Splitter) Split(text string, chunkSizeTokens, overlapTokens int) []domain.TextWindow {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	size := int(math.Round(float64(max(chunkSizeTokens, 1)) * s.CharsPerToken))
	size = max(size, 1)
	overlap := int(math.Round(float64(max(overlapTokens, 0)) * s.CharsPerToken))
	if overlap >= size {
		overlap = size / 4
	}

	out := make([]domain.TextWindow, 0, n/max(size-overlap, 1)+1)
	start := skipSpace(runes, 0, n)
	for start < n {
		end := s.cut(runes, start, size)

		trimmedEnd := end
		for trimmedEnd > start && unicode.IsSpace(runes[trimmedEnd-1]) {
			trimmedEnd--
		}
		if trimmedEnd > start {
			chunk := string(runes[start:trimmedEnd])
			out = append(out, domain.TextWindow{
				Position:   len(out),
				Text:       chunk,
				StartRune:  start,
				EndRune:    trimmedEnd,
				TokenCount: s.EstimateTokens(chunk),
			})
		}
		if end >= n {
			break
		}
		start = nextStart(runes, start, end, overlap)
	}
	return out
}

func (s *Splitter) cut(runes []rune, start, size int) int {
	n := len(runes)
	end := start + size
	if end >= n {
		return n
	}
	floor := end - int(float64(size)*snapFraction)
	if floor <= start {
		floor = start + 1
	}
	for i := end; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

func nextStart(runes []rune, start, end, overlap int) int {
	next := end - overlap
	if next <= start {
		next = start + 1
	}
	// avoid starting mid-word inside the overlap region
	for j := next; j < end; j++ {
		if unicode.IsSpace(runes[j-1]) {
			next = j
			break
		}
	}
	return skipSpace(runes, next, len(runes))
}

func skipSpace(runes []rune, i, n int) int {
	for i < n && unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}
