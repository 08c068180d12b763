package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
)

var errPathUnreachable = errors.New("collaborator reported unreachable")

type HybridSearchConfig struct {
	// CandidatesPerPath is how many hits each path requests before fusion.
	CandidatesPerPath int
	WeightSemantic    float64
	WeightLexical     float64
	MinFusedScore     float64
	ProximityWindow   int
	EmbedTimeout      time.Duration
	VectorTimeout     time.Duration
	LexicalTimeout    time.Duration
}

func DefaultHybridSearchConfig() HybridSearchConfig {
	return HybridSearchConfig{
		CandidatesPerPath: 30,
		WeightSemantic:    0.7,
		WeightLexical:     0.3,
		MinFusedScore:     0.5,
		ProximityWindow:   1,
		EmbedTimeout:      5 * time.Second,
		VectorTimeout:     5 * time.Second,
		LexicalTimeout:    5 * time.Second,
	}
}

func (c HybridSearchConfig) normalize() HybridSearchConfig {
	def := DefaultHybridSearchConfig()
	if c.CandidatesPerPath <= 0 {
		c.CandidatesPerPath = def.CandidatesPerPath
	}
	if c.WeightSemantic < 0 || c.WeightLexical < 0 || c.WeightSemantic+c.WeightLexical == 0 {
		c.WeightSemantic, c.WeightLexical = def.WeightSemantic, def.WeightLexical
	}
	if c.MinFusedScore < 0 {
		c.MinFusedScore = 0
	}
	if c.ProximityWindow < 0 {
		c.ProximityWindow = 0
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = def.EmbedTimeout
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = def.VectorTimeout
	}
	if c.LexicalTimeout <= 0 {
		c.LexicalTimeout = def.LexicalTimeout
	}
	return c
}

// HybridSearchEngine runs semantic and lexical retrieval concurrently and
// fuses the two result sets. A failed path degrades the result; two failed
// paths are reported as domain.ErrRetrievalUnavailable.
type HybridSearchEngine struct {
	embedder ports.Embedder
	vectors  ports.VectorIndex
	lexical  ports.LexicalIndex
	metrics  ports.PipelineMetrics
	cfg      HybridSearchConfig
}

func NewHybridSearchEngine(
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	lexical ports.LexicalIndex,
	metrics ports.PipelineMetrics,
	cfg HybridSearchConfig,
) *HybridSearchEngine {
	return &HybridSearchEngine{
		embedder: embedder,
		vectors:  vectors,
		lexical:  lexical,
		metrics:  metrics,
		cfg:      cfg.normalize(),
	}
}

func (e *HybridSearchEngine) Config() HybridSearchConfig {
	return e.cfg
}

func (e *HybridSearchEngine) Search(ctx context.Context, q domain.Query, k int) (domain.SearchResult, error) {
	return e.SearchWithThreshold(ctx, q, k, e.cfg.MinFusedScore)
}

func (e *HybridSearchEngine) SearchWithThreshold(ctx context.Context, q domain.Query, k int, minScore float64) (domain.SearchResult, error) {
	text := q.Normalized
	if text == "" {
		text = domain.NormalizeQueryText(q.Raw)
	}
	if text == "" {
		return domain.SearchResult{}, domain.WrapError(domain.ErrInvalidInput, "hybrid search", errors.New("empty query"))
	}

	var (
		semantic, lexical []domain.RetrievedChunk
		semErr, lexErr    error
	)

	var g errgroup.Group
	g.Go(func() error {
		semantic, semErr = e.semanticPath(ctx, text, q.Filters)
		return nil
	})
	g.Go(func() error {
		lexical, lexErr = e.lexicalPath(ctx, text, q.Filters)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.SearchResult{}, err
	}

	result := domain.SearchResult{}
	if semErr != nil {
		e.recordPathFailure(domain.PathSemantic, semErr)
		result.FailedPaths = append(result.FailedPaths, domain.PathSemantic)
	}
	if lexErr != nil {
		e.recordPathFailure(domain.PathLexical, lexErr)
		result.FailedPaths = append(result.FailedPaths, domain.PathLexical)
	}
	if semErr != nil && lexErr != nil {
		return domain.SearchResult{FailedPaths: result.FailedPaths}, domain.WrapError(
			domain.ErrRetrievalUnavailable,
			"hybrid search",
			errors.Join(semErr, lexErr),
		)
	}
	result.Degraded = len(result.FailedPaths) > 0

	result.Candidates = fuseCandidates(semantic, lexical, fusionParams{
		weightSemantic:  e.cfg.WeightSemantic,
		weightLexical:   e.cfg.WeightLexical,
		minScore:        minScore,
		proximityWindow: e.cfg.ProximityWindow,
		limit:           k,
	})
	return result, nil
}

func (e *HybridSearchEngine) semanticPath(ctx context.Context, text string, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	if unreachable(ctx, e.embedder) || unreachable(ctx, e.vectors) {
		return nil, errPathUnreachable
	}

	embedCtx, cancelEmbed := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	vector, err := e.embedder.EmbedQuery(embedCtx, text)
	cancelEmbed()
	if err != nil {
		return nil, err
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, e.cfg.VectorTimeout)
	defer cancelSearch()
	return e.vectors.Nearest(searchCtx, vector, e.cfg.CandidatesPerPath, filter)
}

func (e *HybridSearchEngine) lexicalPath(ctx context.Context, text string, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	if unreachable(ctx, e.lexical) {
		return nil, errPathUnreachable
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.cfg.LexicalTimeout)
	defer cancel()
	return e.lexical.Match(searchCtx, text, e.cfg.CandidatesPerPath, filter)
}

func (e *HybridSearchEngine) recordPathFailure(path domain.RetrievalPath, err error) {
	slog.Warn("retrieval_path_failed", "path", path, "error", err)
	if e.metrics != nil {
		e.metrics.RecordPathFailure(path)
	}
}

// unreachable polls the optional health signal of a collaborator.
func unreachable(ctx context.Context, collaborator any) bool {
	reporter, ok := collaborator.(ports.HealthReporter)
	if !ok {
		return false
	}
	return reporter.Health(ctx) == domain.HealthUnreachable
}
