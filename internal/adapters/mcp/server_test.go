package mcpadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

type answersFake struct {
	answer     *domain.Answer
	err        error
	gotFilters domain.SearchFilter
}

func (f *answersFake) Answer(_ context.Context, _ string, filters domain.SearchFilter) (*domain.Answer, error) {
	f.gotFilters = filters
	return f.answer, f.err
}

func (f *answersFake) AnswerStream(ctx context.Context, q string, filters domain.SearchFilter, _ func(domain.PipelineEvent)) (*domain.Answer, error) {
	return f.Answer(ctx, q, filters)
}

type evidenceFake struct {
	bundle *domain.EvidenceBundle
	err    error
}

func (f evidenceFake) SearchEvidence(context.Context, string, domain.SearchFilter) (*domain.EvidenceBundle, error) {
	return f.bundle, f.err
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func pressBundle() *domain.EvidenceBundle {
	return &domain.EvidenceBundle{
		Verdict: domain.VerdictGreen,
		Candidates: []domain.RetrievalCandidate{{
			Chunk: domain.RetrievedChunk{
				ChunkID:    "press:3",
				DocumentID: "press",
				Title:      "Press Freedom Act",
				SourceType: "statute",
				Text:       "Article 3. The press shall be free from prior restraint.",
			},
			FusedScore: 0.91,
			Path:       domain.PathBoth,
		}},
	}
}

func TestServerRegistersBothTools(t *testing.T) {
	s := NewServer("test", &answersFake{}, evidenceFake{})
	for _, name := range []string{"answer_question", "search_evidence"} {
		if s.GetTool(name) == nil {
			t.Fatalf("tool %q is not registered", name)
		}
	}
}

func TestAnswerQuestionFormatsCitations(t *testing.T) {
	answers := &answersFake{answer: &domain.Answer{
		Text:     "The press is free from prior restraint.",
		Evidence: pressBundle(),
		Citations: []domain.Citation{
			{Claim: "The press is free from prior restraint.", ChunkIDs: []string{"press:3"}, Support: 0.8},
			{Claim: "Fines apply.", ChunkIDs: []string{}},
		},
	}}
	handler := handleAnswerQuestion(answers)

	res, err := handler(context.Background(), callRequest("answer_question", map[string]any{
		"query":       "is the press free",
		"source_type": "statute",
		"date_from":   "1990-01-01",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	text := resultText(t, res)
	if !strings.Contains(text, "Press Freedom Act [press:3]") {
		t.Fatalf("expected titled citation, got %q", text)
	}
	if !strings.Contains(text, `"Fines apply." (unsupported)`) {
		t.Fatalf("expected unsupported claim marker, got %q", text)
	}
	if answers.gotFilters.SourceType != "statute" || answers.gotFilters.DateFrom == nil {
		t.Fatalf("filters not forwarded: %+v", answers.gotFilters)
	}
}

func TestAnswerQuestionRequiresQuery(t *testing.T) {
	res, err := handleAnswerQuestion(&answersFake{})(context.Background(), callRequest("answer_question", map[string]any{}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing query")
	}
}

func TestAnswerQuestionRejectsMalformedDate(t *testing.T) {
	res, err := handleAnswerQuestion(&answersFake{})(context.Background(), callRequest("answer_question", map[string]any{
		"query":   "q",
		"date_to": "tomorrow",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "date_to") {
		t.Fatalf("expected date_to error, got %+v", res)
	}
}

func TestSearchEvidenceReportsFailureAsToolError(t *testing.T) {
	handler := handleSearchEvidence(evidenceFake{err: domain.WrapError(domain.ErrRetrievalUnavailable, "search", errors.New("timeout"))})

	res, err := handler(context.Background(), callRequest("search_evidence", map[string]any{"query": "permits"}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "retrieval unavailable") {
		t.Fatalf("expected retrieval failure tool error, got %+v", res)
	}
}

func TestSearchEvidenceFormatsCandidates(t *testing.T) {
	res, err := handleSearchEvidence(evidenceFake{bundle: pressBundle()})(context.Background(), callRequest("search_evidence", map[string]any{"query": "press"}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	text := resultText(t, res)
	for _, want := range []string{"Verdict: green", "## 1. Press Freedom Act", "**Score:** 0.910", "prior restraint"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
}

func TestSearchEvidenceEmptyBundle(t *testing.T) {
	res, err := handleSearchEvidence(evidenceFake{bundle: &domain.EvidenceBundle{Verdict: domain.VerdictRed}})(context.Background(), callRequest("search_evidence", map[string]any{"query": "q"}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if got := resultText(t, res); got != "No evidence found." {
		t.Fatalf("unexpected text: %q", got)
	}
}
