package usecase

import (
	"strings"
	"unicode"
)

var stopWords = toSet(
	"a", "an", "the", "and", "or", "but", "of", "to", "in", "on", "at", "for", "by", "with", "from",
	"as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these",
	"those", "there", "their", "they", "them", "he", "she", "we", "you", "your", "i", "me", "my",
	"our", "us", "do", "does", "did", "have", "has", "had", "what", "which", "who", "whom", "when",
	"where", "why", "how", "can", "could", "should", "would", "will", "shall", "may", "might",
	"must", "not", "no", "if", "then", "than", "so", "such", "about", "into", "over", "under",
	"any", "all", "some", "each", "also", "only", "other", "say", "says", "said", "tell",
)

func toSet(items ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}

// splitAlphaNumLower lowercases s and splits it on every rune that is not a letter or digit.
func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func contentTokens(s string) []string {
	tokens := splitAlphaNumLower(s)
	out := tokens[:0]
	for _, token := range tokens {
		if _, stop := stopWords[token]; stop {
			continue
		}
		out = append(out, token)
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := contentTokens(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// tokenContainment is the share of span tokens that also occur in chunk.
func tokenContainment(span, chunk map[string]struct{}) float64 {
	if len(span) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range span {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(span))
}

// paddedTokens joins tokens with single spaces and pads both ends, so phrase
// lookups can match on whole words with strings.Contains.
func paddedTokens(tokens []string) string {
	return " " + strings.Join(tokens, " ") + " "
}

func containsPhrase(padded, phrase string) bool {
	tokens := splitAlphaNumLower(phrase)
	if len(tokens) == 0 {
		return false
	}
	return strings.Contains(padded, paddedTokens(tokens))
}

func containsAnyPhrase(padded string, phrases []string) bool {
	for _, phrase := range phrases {
		if containsPhrase(padded, phrase) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := limit
	for i := limit; i > limit*4/5; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut]))
}
