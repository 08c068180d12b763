package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

const threeParagraphs = "Article 1. Everyone has the right to freedom of expression.\n\n" +
	"Article 2. The exercise of these freedoms may be subject to restrictions.\n\n" +
	"Article 3. This act enters into force on publication."

func TestEnrichPrefixesContextSummary(t *testing.T) {
	gen := &generatorFake{fn: func(_ context.Context, prompt string) (string, error) {
		return "  This passage is part of the Press Act.\n", nil
	}}
	enricher := NewChunkEnricher(paragraphChunker{}, gen, DefaultEnrichConfig())
	doc := &domain.Document{ID: "doc-1", Title: "Press Act"}

	chunks, err := enricher.Enrich(context.Background(), doc, threeParagraphs, 500, 50)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.PositionIndex != i {
			t.Fatalf("chunk %d has position %d", i, chunk.PositionIndex)
		}
		if chunk.ContextSummary != "This passage is part of the Press Act." {
			t.Fatalf("unexpected summary %q", chunk.ContextSummary)
		}
		want := "<context>\nThis passage is part of the Press Act.\n</context>\n" + chunk.OriginalText
		if chunk.EnrichedText != want {
			t.Fatalf("unexpected enriched text %q", chunk.EnrichedText)
		}
		if chunk.ID != ChunkID("doc-1", i) || chunk.DocumentID != "doc-1" {
			t.Fatalf("unexpected chunk identity %+v", chunk)
		}
	}
	if !strings.Contains(gen.prompts[0], "Press Act") {
		t.Fatalf("expected document title in summary prompt")
	}
}

func TestEnrichKeepsWindowWhenSummaryFails(t *testing.T) {
	gen := &generatorFake{fn: func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Passage:\nArticle 2.") {
			return "", errors.New("model unavailable")
		}
		return "Context.", nil
	}}
	enricher := NewChunkEnricher(paragraphChunker{}, gen, DefaultEnrichConfig())

	chunks, err := enricher.Enrich(context.Background(), &domain.Document{ID: "doc-1"}, threeParagraphs, 500, 50)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if chunks[1].Enriched() || chunks[1].EnrichedText != chunks[1].OriginalText {
		t.Fatalf("expected unenriched fallback for failed window, got %+v", chunks[1])
	}
	if !chunks[0].Enriched() || !chunks[2].Enriched() {
		t.Fatalf("expected other windows to stay enriched")
	}
}

func TestEnrichEmptySummaryFallsBack(t *testing.T) {
	gen := &generatorFake{fn: func(context.Context, string) (string, error) { return " <context></context> ", nil }}
	enricher := NewChunkEnricher(paragraphChunker{}, gen, DefaultEnrichConfig())

	chunks, err := enricher.Enrich(context.Background(), &domain.Document{ID: "doc-1"}, threeParagraphs, 500, 50)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	for _, chunk := range chunks {
		if chunk.EnrichedText != chunk.OriginalText {
			t.Fatalf("expected original text, got %q", chunk.EnrichedText)
		}
	}
}

func TestEnrichPartitionIsIdempotent(t *testing.T) {
	gen := &generatorFake{fn: func(context.Context, string) (string, error) { return "Context.", nil }}
	enricher := NewChunkEnricher(paragraphChunker{}, gen, DefaultEnrichConfig())
	doc := &domain.Document{ID: "doc-1"}

	first, err := enricher.Enrich(context.Background(), doc, threeParagraphs, 500, 50)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	second, err := enricher.Enrich(context.Background(), doc, threeParagraphs, 500, 50)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("partition changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].OriginalText != second[i].OriginalText {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestEnrichBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	gen := &generatorFake{fn: func(context.Context, string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return "Context.", nil
	}}
	cfg := DefaultEnrichConfig()
	cfg.Concurrency = 2
	enricher := NewChunkEnricher(paragraphChunker{}, gen, cfg)

	text := strings.Repeat("Section text.\n\n", 8)
	chunks, err := enricher.Enrich(context.Background(), &domain.Document{ID: "doc-1"}, text, 500, 50)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if len(chunks) != 8 {
		t.Fatalf("expected 8 chunks, got %d", len(chunks))
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent summaries, got %d", peak.Load())
	}
}

func TestEnrichSummaryTimeoutFallsBack(t *testing.T) {
	gen := &generatorFake{fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	cfg := DefaultEnrichConfig()
	cfg.SummaryTimeout = 20 * time.Millisecond
	enricher := NewChunkEnricher(paragraphChunker{}, gen, cfg)

	chunks, err := enricher.Enrich(context.Background(), &domain.Document{ID: "doc-1"}, threeParagraphs, 500, 50)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	for _, chunk := range chunks {
		if chunk.Enriched() {
			t.Fatalf("expected timed-out summaries to be dropped")
		}
	}
}

func TestEnrichReturnsErrorOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &generatorFake{fn: func(context.Context, string) (string, error) {
		cancel()
		return "Context.", nil
	}}
	enricher := NewChunkEnricher(paragraphChunker{}, gen, DefaultEnrichConfig())

	_, err := enricher.Enrich(ctx, &domain.Document{ID: "doc-1"}, threeParagraphs, 500, 50)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
