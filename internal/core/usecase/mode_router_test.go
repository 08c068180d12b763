package usecase

import (
	"testing"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

func testRouterRules() domain.RouterRules {
	return domain.RouterRules{
		Smalltalk:    []string{"hello", "thanks", "what time is it", "how are you"},
		Procedural:   []string{"how to", "how do i", "steps", "apply for"},
		EdgeCase:     []string{"compare", "versus", "exception", "what if"},
		EvidenceOnly: []string{"show sources", "quote", "exact text"},
		LegalTerms:   []string{"law", "article", "statute", "permit", "tax", "right", "rights"},
	}
}

func TestModeRouterClassify(t *testing.T) {
	router := NewModeRouter(testRouterRules())

	tests := []struct {
		name    string
		query   string
		mode    domain.ResponseMode
		intent  domain.Intent
		broaden bool
		relax   bool
	}{
		{name: "time question is smalltalk", query: "what time is it", mode: domain.ModeDirectChat, intent: domain.IntentSmalltalk},
		{name: "greeting", query: "Hello!", mode: domain.ModeDirectChat, intent: domain.IntentSmalltalk},
		{name: "stop words only", query: "is it?", mode: domain.ModeDirectChat, intent: domain.IntentSmalltalk},
		{name: "legal term overrides smalltalk", query: "thanks, what does the law say about rights", mode: domain.ModeAssistedRAG, intent: domain.IntentFactual},
		{name: "factual", query: "what does the law say about freedom of expression", mode: domain.ModeAssistedRAG, intent: domain.IntentFactual},
		{name: "procedural", query: "how do I apply for a building permit", mode: domain.ModeAssistedRAG, intent: domain.IntentProcedural, relax: true},
		{name: "edge phrase", query: "compare the 2019 and 2021 tax regimes", mode: domain.ModeAssistedRAG, intent: domain.IntentEdgeCase, broaden: true},
		{name: "short ambiguous", query: "zoning", mode: domain.ModeAssistedRAG, intent: domain.IntentEdgeCase, broaden: true},
		{name: "short legal stays factual", query: "tax article", mode: domain.ModeAssistedRAG, intent: domain.IntentFactual},
		{name: "evidence only", query: "quote the exact text of the statute on data retention", mode: domain.ModeEvidenceOnly, intent: domain.IntentFactual},
		{name: "phrase must match whole words", query: "the lawyer's fees under article 3 of the statute", mode: domain.ModeAssistedRAG, intent: domain.IntentFactual},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := domain.Query{Raw: tc.query, Normalized: domain.NormalizeQueryText(tc.query)}
			got := router.Classify(q)
			if got.Mode != tc.mode || got.Intent != tc.intent {
				t.Fatalf("Classify(%q) = %s/%s, want %s/%s", tc.query, got.Mode, got.Intent, tc.mode, tc.intent)
			}
			if got.BroadenFilters != tc.broaden || got.RelaxThresholds != tc.relax {
				t.Fatalf("Classify(%q) flags = %+v", tc.query, got)
			}
		})
	}
}

func TestModeRouterSmalltalkNeverRetrieves(t *testing.T) {
	router := NewModeRouter(testRouterRules())
	route := router.Classify(domain.Query{Raw: "what time is it", Normalized: "what time is it"})
	if route.Mode.RequiresRetrieval() {
		t.Fatalf("expected no-retrieval mode, got %s", route.Mode)
	}
}
