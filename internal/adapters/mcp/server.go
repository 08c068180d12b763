package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
)

const snippetRunes = 300

// NewServer exposes the answer and evidence services as MCP tools.
func NewServer(version string, answers ports.AnswerService, evidence ports.EvidenceService) *server.MCPServer {
	s := server.NewMCPServer(
		"legal-rag-assistant",
		version,
		server.WithToolCapabilities(false),
	)
	s.AddTool(answerQuestionTool(), handleAnswerQuestion(answers))
	s.AddTool(searchEvidenceTool(), handleSearchEvidence(evidence))
	return s
}

func handleAnswerQuestion(answers ports.AnswerService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		filters, err := filtersFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		answer, err := answers.Answer(ctx, query, filters)
		if err != nil {
			slog.Warn("mcp_answer_failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatAnswer(answer)), nil
	}
}

func handleSearchEvidence(evidence ports.EvidenceService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		filters, err := filtersFromRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		bundle, err := evidence.SearchEvidence(ctx, query, filters)
		if err != nil {
			slog.Warn("mcp_evidence_failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("evidence search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatEvidence(bundle)), nil
	}
}

func filtersFromRequest(request mcp.CallToolRequest) (domain.SearchFilter, error) {
	filters := domain.SearchFilter{
		Source:     request.GetString("source", ""),
		Category:   request.GetString("category", ""),
		SourceType: request.GetString("source_type", ""),
	}
	var err error
	if filters.DateFrom, err = parseDate("date_from", request.GetString("date_from", "")); err != nil {
		return domain.SearchFilter{}, err
	}
	if filters.DateTo, err = parseDate("date_to", request.GetString("date_to", "")); err != nil {
		return domain.SearchFilter{}, err
	}
	return filters, nil
}

func parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("%s must be a YYYY-MM-DD date", field)
	}
	return &t, nil
}

func formatAnswer(answer *domain.Answer) string {
	var b strings.Builder
	b.WriteString(answer.Text)
	b.WriteString("\n")

	if answer.Evidence != nil {
		fmt.Fprintf(&b, "\nEvidence: %s after %d correction(s)", answer.Evidence.Verdict, answer.Evidence.CorrectionIterations)
		if answer.Hedged {
			b.WriteString(", answer hedged")
		}
		b.WriteString("\n")
	}

	if len(answer.Citations) == 0 {
		return b.String()
	}
	titles := chunkTitles(answer.Evidence)
	b.WriteString("\nCitations:\n")
	for i, citation := range answer.Citations {
		if !citation.Supported() {
			fmt.Fprintf(&b, "%d. %q (unsupported)\n", i+1, citation.Claim)
			continue
		}
		sources := make([]string, 0, len(citation.ChunkIDs))
		for _, id := range citation.ChunkIDs {
			if title, ok := titles[id]; ok {
				sources = append(sources, fmt.Sprintf("%s [%s]", title, id))
				continue
			}
			sources = append(sources, id)
		}
		fmt.Fprintf(&b, "%d. %q -> %s\n", i+1, citation.Claim, strings.Join(sources, "; "))
	}
	return b.String()
}

func formatEvidence(bundle *domain.EvidenceBundle) string {
	if bundle.IsEmpty() {
		return "No evidence found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Verdict: %s (%d candidates, %d correction(s))\n", bundle.Verdict, len(bundle.Candidates), bundle.CorrectionIterations)
	if bundle.Degraded {
		b.WriteString("Warning: one retrieval path was unavailable.\n")
	}
	for i, candidate := range bundle.Candidates {
		chunk := candidate.Chunk
		title := chunk.Title
		if title == "" {
			title = chunk.Source
		}
		fmt.Fprintf(&b, "\n## %d. %s\n", i+1, title)
		fmt.Fprintf(&b, "**Chunk:** %s | **Score:** %.3f | **Path:** %s\n", chunk.ChunkID, candidate.FusedScore, candidate.Path)
		if chunk.SourceType != "" {
			fmt.Fprintf(&b, "**Type:** %s\n", chunk.SourceType)
		}
		fmt.Fprintf(&b, "\n%s\n", truncateRunes(chunk.Text, snippetRunes))
	}
	return b.String()
}

func chunkTitles(bundle *domain.EvidenceBundle) map[string]string {
	out := make(map[string]string)
	if bundle == nil {
		return out
	}
	for _, candidate := range bundle.Candidates {
		for _, chunk := range candidate.Chunks() {
			title := chunk.Title
			if title == "" {
				title = chunk.Source
			}
			out[chunk.ChunkID] = title
		}
	}
	return out
}

func truncateRunes(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
