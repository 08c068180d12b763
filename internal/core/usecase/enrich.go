package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
)

type EnrichConfig struct {
	ChunkSizeTokens  int
	OverlapTokens    int
	SummaryMaxTokens int
	Temperature      float64
	Concurrency      int
	SummaryTimeout   time.Duration
	// CharsPerToken converts the summary token budget into a rune cap.
	CharsPerToken float64
}

func DefaultEnrichConfig() EnrichConfig {
	return EnrichConfig{
		ChunkSizeTokens:  500,
		OverlapTokens:    50,
		SummaryMaxTokens: 150,
		Temperature:      0.1,
		Concurrency:      4,
		SummaryTimeout:   10 * time.Second,
		CharsPerToken:    4.0,
	}
}

func (c EnrichConfig) normalize() EnrichConfig {
	def := DefaultEnrichConfig()
	if c.ChunkSizeTokens <= 0 {
		c.ChunkSizeTokens = def.ChunkSizeTokens
	}
	if c.OverlapTokens < 0 {
		c.OverlapTokens = 0
	}
	if c.SummaryMaxTokens <= 0 || c.SummaryMaxTokens > def.SummaryMaxTokens {
		c.SummaryMaxTokens = def.SummaryMaxTokens
	}
	if c.Temperature < 0 {
		c.Temperature = def.Temperature
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.SummaryTimeout <= 0 {
		c.SummaryTimeout = def.SummaryTimeout
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = def.CharsPerToken
	}
	return c
}

// ChunkEnricher splits a document into windows and prefixes each window with a
// generated context summary. A failed summary leaves the window unprefixed.
type ChunkEnricher struct {
	chunker   ports.Chunker
	generator ports.Generator
	cfg       EnrichConfig
}

func NewChunkEnricher(chunker ports.Chunker, generator ports.Generator, cfg EnrichConfig) *ChunkEnricher {
	return &ChunkEnricher{
		chunker:   chunker,
		generator: generator,
		cfg:       cfg.normalize(),
	}
}

func (e *ChunkEnricher) Config() EnrichConfig {
	return e.cfg
}

// Enrich returns one chunk per window in document order. Only cancellation of
// ctx is reported as an error.
func (e *ChunkEnricher) Enrich(ctx context.Context, doc *domain.Document, documentText string, chunkSizeTokens, overlapTokens int) ([]domain.Chunk, error) {
	if chunkSizeTokens <= 0 {
		chunkSizeTokens = e.cfg.ChunkSizeTokens
	}
	if overlapTokens < 0 {
		overlapTokens = e.cfg.OverlapTokens
	}

	windows := e.chunker.Split(documentText, chunkSizeTokens, overlapTokens)
	chunks := make([]domain.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = domain.Chunk{
			ID:            ChunkID(doc.ID, w.Position),
			DocumentID:    doc.ID,
			PositionIndex: w.Position,
			OriginalText:  w.Text,
			EnrichedText:  w.Text,
			TokenCount:    w.TokenCount,
		}
	}
	if e.generator == nil || len(chunks) == 0 {
		return chunks, ctx.Err()
	}

	var failed atomic.Int32
	maxRunes := int(float64(e.cfg.SummaryMaxTokens) * e.cfg.CharsPerToken)

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i := range chunks {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			summary, err := e.summarize(ctx, doc.Title, documentText, chunks[i].OriginalText, maxRunes)
			if err != nil {
				failed.Add(1)
				slog.Warn("chunk_summary_failed",
					"document_id", doc.ID,
					"position", chunks[i].PositionIndex,
					"error", err,
				)
				return nil
			}
			chunks[i].ContextSummary = summary
			chunks[i].EnrichedText = domain.BuildEnrichedText(summary, chunks[i].OriginalText)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Info("chunk_enrichment_completed",
		"document_id", doc.ID,
		"chunks", len(chunks),
		"summary_failures", failed.Load(),
	)
	return chunks, nil
}

func (e *ChunkEnricher) summarize(ctx context.Context, title, documentText, window string, maxRunes int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.SummaryTimeout)
	defer cancel()

	raw, err := e.generator.Generate(callCtx, buildSummaryPrompt(title, documentText, window), e.cfg.SummaryMaxTokens, e.cfg.Temperature)
	if err != nil {
		return "", err
	}
	summary := sanitizeSummary(raw, maxRunes)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}

// ChunkID is stable for a document position, so re-ingestion overwrites index points in place.
func ChunkID(documentID string, position int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("chunk:%s:%d", documentID, position))).String()
}
