package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
)

const (
	chatFallbackText = "Hello. Ask me a question about laws, regulations or official decisions."
	noEvidenceText   = "I could not find sources in the document corpus that answer this question."
)

type EvidenceResolver interface {
	Resolve(ctx context.Context, q domain.Query, route domain.Route) (*domain.EvidenceBundle, error)
}

type QueryConfig struct {
	MaxQueryRunes        int
	AnswerTimeout        time.Duration
	AnswerMaxTokens      int
	AnswerTemperature    float64
	ChatMaxTokens        int
	ContextCandidates    int
	EvidenceSnippetRunes int
}

func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		MaxQueryRunes:        2000,
		AnswerTimeout:        30 * time.Second,
		AnswerMaxTokens:      512,
		AnswerTemperature:    0.2,
		ChatMaxTokens:        128,
		ContextCandidates:    6,
		EvidenceSnippetRunes: 400,
	}
}

func (c QueryConfig) normalize() QueryConfig {
	def := DefaultQueryConfig()
	if c.MaxQueryRunes <= 0 {
		c.MaxQueryRunes = def.MaxQueryRunes
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = def.AnswerTimeout
	}
	if c.AnswerMaxTokens <= 0 {
		c.AnswerMaxTokens = def.AnswerMaxTokens
	}
	if c.AnswerTemperature < 0 {
		c.AnswerTemperature = def.AnswerTemperature
	}
	if c.ChatMaxTokens <= 0 {
		c.ChatMaxTokens = def.ChatMaxTokens
	}
	if c.ContextCandidates <= 0 {
		c.ContextCandidates = def.ContextCandidates
	}
	if c.EvidenceSnippetRunes <= 0 {
		c.EvidenceSnippetRunes = def.EvidenceSnippetRunes
	}
	return c
}

// QueryUseCase answers questions: route, resolve evidence, generate, cite.
type QueryUseCase struct {
	router    *ModeRouter
	resolver  EvidenceResolver
	generator ports.Generator
	citations *CitationAssembler
	metrics   ports.PipelineMetrics
	stats     *PipelineStats
	cfg       QueryConfig
}

func NewQueryUseCase(
	router *ModeRouter,
	resolver EvidenceResolver,
	generator ports.Generator,
	citations *CitationAssembler,
	metrics ports.PipelineMetrics,
	stats *PipelineStats,
	cfg QueryConfig,
) *QueryUseCase {
	return &QueryUseCase{
		router:    router,
		resolver:  resolver,
		generator: generator,
		citations: citations,
		metrics:   metrics,
		stats:     stats,
		cfg:       cfg.normalize(),
	}
}

func (uc *QueryUseCase) Answer(ctx context.Context, queryText string, filters domain.SearchFilter) (*domain.Answer, error) {
	return uc.AnswerStream(ctx, queryText, filters, nil)
}

func (uc *QueryUseCase) AnswerStream(
	ctx context.Context,
	queryText string,
	filters domain.SearchFilter,
	emit func(domain.PipelineEvent),
) (*domain.Answer, error) {
	started := time.Now()
	q, err := uc.prepare(queryText, filters)
	if err != nil {
		uc.stats.RecordValidationFailure()
		return nil, err
	}

	answer := &domain.Answer{Citations: []domain.Citation{}}
	stage := func(s domain.Stage, since time.Time, payload any) {
		d := time.Since(since)
		answer.Timings = append(answer.Timings, domain.NewStageTiming(s, d))
		if uc.metrics != nil {
			uc.metrics.ObserveStage(s, d)
		}
		if emit != nil {
			emit(domain.PipelineEvent{Stage: s, Payload: payload})
		}
	}

	routeStarted := time.Now()
	route := uc.router.Classify(q)
	q.Intent = route.Intent
	answer.Mode = route.Mode
	answer.Intent = route.Intent
	stage(domain.StageRoute, routeStarted, route)

	if !route.Mode.RequiresRetrieval() {
		generationStarted := time.Now()
		answer.Text = uc.chat(ctx, q)
		stage(domain.StageGeneration, generationStarted, nil)
		return uc.complete(answer, started, stage), nil
	}

	retrievalStarted := time.Now()
	bundle, err := uc.resolver.Resolve(ctx, q, route)
	if err != nil {
		uc.stats.RecordRetrievalFailure()
		slog.Warn("answer_retrieval_failed", "intent", q.Intent, "error", err)
		return nil, fmt.Errorf("resolve evidence: %w", err)
	}
	answer.Evidence = bundle
	stage(domain.StageRetrieval, retrievalStarted, bundle)

	generationStarted := time.Now()
	switch {
	case bundle.IsEmpty():
		answer.Text = noEvidenceText
		answer.Hedged = true
	case route.Mode == domain.ModeEvidenceOnly:
		answer.Text = uc.extractiveText(bundle)
	default:
		if err := uc.generate(ctx, q, bundle, answer); err != nil {
			return nil, err
		}
	}
	stage(domain.StageGeneration, generationStarted, answer.Text)

	if !bundle.IsEmpty() {
		citationStarted := time.Now()
		answer.Citations = uc.citations.AttachCitations(answer.Text, bundle)
		for _, citation := range answer.Citations {
			if !citation.Supported() {
				answer.UnsupportedClaims++
			}
		}
		stage(domain.StageCitation, citationStarted, answer.Citations)
	}
	return uc.complete(answer, started, stage), nil
}

// SearchEvidence resolves evidence without generating. Smalltalk routing is
// ignored because the caller asked for sources explicitly.
func (uc *QueryUseCase) SearchEvidence(ctx context.Context, queryText string, filters domain.SearchFilter) (*domain.EvidenceBundle, error) {
	q, err := uc.prepare(queryText, filters)
	if err != nil {
		uc.stats.RecordValidationFailure()
		return nil, err
	}

	route := uc.router.Classify(q)
	if route.Intent == domain.IntentSmalltalk {
		route = domain.Route{Mode: domain.ModeEvidenceOnly, Intent: domain.IntentFactual}
	}
	route.Mode = domain.ModeEvidenceOnly
	q.Intent = route.Intent

	bundle, err := uc.resolver.Resolve(ctx, q, route)
	if err != nil {
		uc.stats.RecordRetrievalFailure()
		return nil, fmt.Errorf("resolve evidence: %w", err)
	}
	return bundle, nil
}

func (uc *QueryUseCase) prepare(queryText string, filters domain.SearchFilter) (domain.Query, error) {
	normalized := domain.NormalizeQueryText(queryText)
	if normalized == "" {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("query is empty"))
	}
	if !utf8.ValidString(queryText) {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("query is not valid utf-8"))
	}
	if n := utf8.RuneCountInString(normalized); n > uc.cfg.MaxQueryRunes {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("query is %d characters, limit is %d", n, uc.cfg.MaxQueryRunes))
	}
	filters.Category = strings.ToLower(strings.TrimSpace(filters.Category))
	filters.SourceType = strings.ToLower(strings.TrimSpace(filters.SourceType))
	filters.Source = strings.TrimSpace(filters.Source)
	if err := filters.Validate(); err != nil {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "answer", err)
	}
	return domain.Query{Raw: queryText, Normalized: normalized, Filters: filters}, nil
}

func (uc *QueryUseCase) chat(ctx context.Context, q domain.Query) string {
	callCtx, cancel := context.WithTimeout(ctx, uc.cfg.AnswerTimeout)
	defer cancel()

	text, err := uc.generator.Generate(callCtx, buildChatPrompt(q.Normalized), uc.cfg.ChatMaxTokens, uc.cfg.AnswerTemperature)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			slog.Warn("chat_generation_failed", "error", err)
		}
		return chatFallbackText
	}
	return strings.TrimSpace(text)
}

// generate writes the model answer into answer. A red bundle switches the
// prompt to hedging. If the model fails, the extractive text is used instead.
func (uc *QueryUseCase) generate(ctx context.Context, q domain.Query, bundle *domain.EvidenceBundle, answer *domain.Answer) error {
	hedge := bundle.Verdict == domain.VerdictRed
	candidates := bundle.Candidates
	if len(candidates) > uc.cfg.ContextCandidates {
		candidates = candidates[:uc.cfg.ContextCandidates]
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.cfg.AnswerTimeout)
	defer cancel()

	text, err := uc.generator.Generate(callCtx, buildAnswerPrompt(q.Normalized, candidates, hedge), uc.cfg.AnswerMaxTokens, uc.cfg.AnswerTemperature)
	if err == nil {
		text = strings.TrimSpace(text)
	}
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil || text == "":
		slog.Warn("answer_generation_failed", "verdict", bundle.Verdict, "error", err)
		answer.Text = uc.extractiveText(bundle)
		answer.Hedged = true
	default:
		answer.Text = text
		answer.Hedged = hedge
	}
	return nil
}

// extractiveText lists the top evidence passages verbatim.
func (uc *QueryUseCase) extractiveText(bundle *domain.EvidenceBundle) string {
	var b strings.Builder
	for idx, candidate := range bundle.Candidates {
		if idx == uc.cfg.ContextCandidates {
			break
		}
		title := candidate.Chunk.Title
		if title == "" {
			title = candidate.Chunk.Source
		}
		snippet := truncateRunes(strings.Join(strings.Fields(candidate.Chunk.Text), " "), uc.cfg.EvidenceSnippetRunes)
		if idx > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s: %s", idx+1, title, snippet)
	}
	return b.String()
}

func (uc *QueryUseCase) complete(answer *domain.Answer, started time.Time, stage func(domain.Stage, time.Time, any)) *domain.Answer {
	stage(domain.StageTotal, started, nil)
	if uc.metrics != nil {
		verdict, iterations := domain.Verdict(""), 0
		if answer.Evidence != nil {
			verdict, iterations = answer.Evidence.Verdict, answer.Evidence.CorrectionIterations
		}
		uc.metrics.RecordOutcome(answer.Mode, verdict, iterations)
	}
	uc.stats.RecordAnswer(answer)
	slog.Info("answer_completed",
		"mode", answer.Mode,
		"intent", answer.Intent,
		"hedged", answer.Hedged,
		"citations", len(answer.Citations),
		"unsupported_claims", answer.UnsupportedClaims,
	)
	return answer
}
