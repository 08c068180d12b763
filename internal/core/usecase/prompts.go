package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

const documentExcerptRunes = 3000

func buildSummaryPrompt(title, documentText, window string) string {
	return fmt.Sprintf(`You situate a passage within a legal or government document to improve search retrieval.
Write one or two sentences naming the document, the part it belongs to and what the passage covers.
Answer with the context only. No preamble, no quotes.

Document title: %s

Document start:
%s

Passage:
%s
`, title, truncateRunes(documentText, documentExcerptRunes), window)
}

func buildReformulationPrompt(queryText string, filters domain.SearchFilter) string {
	scope := ""
	if !filters.IsZero() {
		scope = fmt.Sprintf("\nSearch scope: source=%q category=%q source_type=%q", filters.Source, filters.Category, filters.SourceType)
	}
	return fmt.Sprintf(`Rewrite the question below as a search query for a corpus of laws, regulations and official decisions.
Use precise legal terminology, keep every named entity and date, and return a single line.%s

Question: %s
`, scope, queryText)
}

func buildAnswerPrompt(queryText string, candidates []domain.RetrievalCandidate, hedge bool) string {
	var contextBuilder strings.Builder
	for idx, candidate := range candidates {
		c := candidate.Chunk
		fmt.Fprintf(&contextBuilder, "[%d] title=%s source_type=%s published=%s score=%.3f\n",
			idx+1, c.Title, c.SourceType, formatPublished(c.PublishedAt), candidate.FusedScore)
		for _, chunk := range candidate.Chunks() {
			contextBuilder.WriteString(chunk.Text)
			contextBuilder.WriteString("\n")
		}
		contextBuilder.WriteString("\n")
	}

	instruction := `Answer the question only from the context below.
Write short declarative sentences, each supported by the context.
If the context is insufficient, say it directly.`
	if hedge {
		instruction = `The context below is weak or only partly relevant.
Say clearly that the available sources may not fully answer the question.
State only what the context supports and do not guess beyond it.`
	}

	return fmt.Sprintf(`%s

Question:
%s

Context:
%s`, instruction, queryText, contextBuilder.String())
}

func buildChatPrompt(queryText string) string {
	return fmt.Sprintf(`You are an assistant for questions about laws and public administration.
Reply briefly and politely to the message below. Do not state legal facts.

Message: %s
`, queryText)
}

// sanitizeReformulation keeps the first non-empty line of a generated query.
func sanitizeReformulation(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "Query:")
		line = strings.Trim(strings.TrimSpace(line), "\"'`")
		if line != "" {
			return truncateRunes(domain.NormalizeQueryText(line), 300)
		}
	}
	return ""
}

func sanitizeSummary(raw string, maxRunes int) string {
	summary := strings.ReplaceAll(raw, domain.ContextOpenMarker, "")
	summary = strings.ReplaceAll(summary, domain.ContextCloseMarker, "")
	summary = strings.Join(strings.Fields(summary), " ")
	return truncateRunes(summary, maxRunes)
}

func formatPublished(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02")
}
