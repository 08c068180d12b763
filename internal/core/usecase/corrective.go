package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
)

// LoopState is a state of the corrective retrieval machine.
type LoopState string

const (
	StateInitial     LoopState = "initial"
	StateEvaluate    LoopState = "evaluate"
	StateBroaden     LoopState = "broaden"
	StateReformulate LoopState = "reformulate"
	StateAccepted    LoopState = "accepted"
	StateExhausted   LoopState = "exhausted"
	StateFailed      LoopState = "failed"
)

// nextState is the transition taken after a search has been evaluated.
func nextState(verdict domain.Verdict, used, maxIterations int) LoopState {
	switch {
	case verdict == domain.VerdictGreen:
		return StateAccepted
	case used >= maxIterations:
		return StateExhausted
	case verdict == domain.VerdictYellow:
		return StateBroaden
	default:
		return StateReformulate
	}
}

type Searcher interface {
	SearchWithThreshold(ctx context.Context, q domain.Query, k int, minScore float64) (domain.SearchResult, error)
}

type CorrectiveConfig struct {
	MaxIterations       int
	TopK                int
	MinFusedScore       float64
	LowerThresholdDelta float64
	MaxExpansionTerms   int
	ResolveTimeout      time.Duration
	ReformulateTimeout  time.Duration
}

func DefaultCorrectiveConfig() CorrectiveConfig {
	return CorrectiveConfig{
		MaxIterations:       2,
		TopK:                8,
		MinFusedScore:       0.5,
		LowerThresholdDelta: 0.15,
		MaxExpansionTerms:   6,
		ResolveTimeout:      20 * time.Second,
		ReformulateTimeout:  8 * time.Second,
	}
}

func (c CorrectiveConfig) normalize() CorrectiveConfig {
	def := DefaultCorrectiveConfig()
	if c.MaxIterations < 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	if c.MinFusedScore < 0 {
		c.MinFusedScore = 0
	}
	if c.LowerThresholdDelta <= 0 {
		c.LowerThresholdDelta = def.LowerThresholdDelta
	}
	if c.MaxExpansionTerms <= 0 {
		c.MaxExpansionTerms = def.MaxExpansionTerms
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = def.ResolveTimeout
	}
	if c.ReformulateTimeout <= 0 {
		c.ReformulateTimeout = def.ReformulateTimeout
	}
	return c
}

// searchPlan is one concrete search: query text, filters and score floor.
type searchPlan struct {
	query    domain.Query
	minScore float64
	strategy domain.CorrectionStrategy
}

func (p searchPlan) key() string {
	return fmt.Sprintf("%s|%s|%.3f", strings.ToLower(p.query.Normalized), p.query.Filters.Key(), p.minScore)
}

// CorrectiveRetrievalLoop drives search, evaluation and correction until the
// evidence is accepted or the iteration budget is spent. It never runs more
// than MaxIterations+1 searches and never repeats an identical search.
type CorrectiveRetrievalLoop struct {
	search    Searcher
	evaluator *EvidenceEvaluator
	generator ports.Generator
	synonyms  map[string][]string
	cfg       CorrectiveConfig
}

func NewCorrectiveRetrievalLoop(
	search Searcher,
	evaluator *EvidenceEvaluator,
	generator ports.Generator,
	synonyms map[string][]string,
	cfg CorrectiveConfig,
) *CorrectiveRetrievalLoop {
	return &CorrectiveRetrievalLoop{
		search:    search,
		evaluator: evaluator,
		generator: generator,
		synonyms:  synonyms,
		cfg:       cfg.normalize(),
	}
}

type loopRun struct {
	plan       searchPlan
	visited    map[string]struct{}
	iterations int
	best       *domain.EvidenceBundle
	last       domain.SearchResult
	attempts   []domain.RetrievalAttempt
}

// Resolve returns the best evidence bundle found for q. It fails only when
// the first search fails outright or the caller cancels ctx.
func (l *CorrectiveRetrievalLoop) Resolve(ctx context.Context, q domain.Query, route domain.Route) (*domain.EvidenceBundle, error) {
	loopCtx, cancel := context.WithTimeout(ctx, l.cfg.ResolveTimeout)
	defer cancel()

	initial := searchPlan{query: q, minScore: l.cfg.MinFusedScore, strategy: domain.StrategyInitial}
	if route.BroadenFilters {
		initial.query.Filters = domain.SearchFilter{}
	}

	run := &loopRun{plan: initial, visited: make(map[string]struct{}, l.cfg.MaxIterations+1)}
	state := StateInitial
	for {
		switch state {
		case StateInitial, StateBroaden, StateReformulate:
			if state != StateInitial {
				next, ok := l.correct(loopCtx, state, run)
				if !ok {
					return l.finish(run, domain.OutcomeExhausted), nil
				}
				run.plan = next
			}
			if _, seen := run.visited[run.plan.key()]; seen {
				return l.finish(run, domain.OutcomeRepeated), nil
			}
			run.visited[run.plan.key()] = struct{}{}
			if state != StateInitial {
				run.iterations++
			}

			var err error
			state, err = l.searchOnce(ctx, loopCtx, run)
			if err != nil {
				return nil, err
			}

		case StateEvaluate:
			current := run.attempts[len(run.attempts)-1].Verdict
			state = nextState(current, run.iterations, l.cfg.MaxIterations)

		case StateAccepted:
			return l.finish(run, domain.OutcomeAccepted), nil

		case StateExhausted:
			return l.finish(run, domain.OutcomeExhausted), nil

		case StateFailed:
			return l.finish(run, domain.OutcomeDeadline), nil
		}
	}
}

// searchOnce runs the current plan and folds the result into the run.
func (l *CorrectiveRetrievalLoop) searchOnce(ctx, loopCtx context.Context, run *loopRun) (LoopState, error) {
	plan := run.plan
	attempt := domain.RetrievalAttempt{
		Iteration: run.iterations,
		Strategy:  plan.strategy,
		QueryText: plan.query.Normalized,
		Filters:   plan.query.Filters,
		MinScore:  plan.minScore,
	}

	result, err := l.search.SearchWithThreshold(loopCtx, plan.query, l.cfg.TopK, plan.minScore)
	if err != nil {
		attempt.Error = err.Error()
		run.attempts = append(run.attempts, attempt)
		slog.Warn("correction_search_failed", "iteration", run.iterations, "strategy", plan.strategy, "error", err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return StateFailed, ctxErr
		}
		if run.best == nil {
			if loopCtx.Err() != nil && !errors.Is(err, domain.ErrRetrievalUnavailable) {
				err = domain.WrapError(domain.ErrRetrievalUnavailable, "resolve", err)
			}
			return StateFailed, err
		}
		if loopCtx.Err() != nil {
			return StateFailed, nil
		}
		return StateExhausted, nil
	}

	verdict := l.evaluator.EvaluateResult(result, plan.query)
	attempt.Verdict = verdict
	attempt.Candidates = len(result.Candidates)
	attempt.Degraded = result.Degraded
	if len(result.Candidates) > 0 {
		attempt.TopScore = result.Candidates[0].FusedScore
	}
	run.attempts = append(run.attempts, attempt)
	run.last = result

	bundle := &domain.EvidenceBundle{
		Candidates:    result.Candidates,
		Verdict:       verdict,
		BestIteration: run.iterations,
		Degraded:      result.Degraded,
	}
	if bundle.Candidates == nil {
		bundle.Candidates = []domain.RetrievalCandidate{}
	}
	if betterBundle(bundle, run.best) {
		run.best = bundle
	}

	slog.Info("correction_step",
		"iteration", run.iterations,
		"strategy", plan.strategy,
		"verdict", verdict,
		"candidates", len(result.Candidates),
		"degraded", result.Degraded,
	)

	if loopCtx.Err() != nil {
		return StateFailed, nil
	}
	return StateEvaluate, nil
}

// correct derives the next plan for a broaden or reformulate step. ok=false
// means no strategy can change the search any further.
func (l *CorrectiveRetrievalLoop) correct(ctx context.Context, state LoopState, run *loopRun) (searchPlan, bool) {
	current := run.plan
	if state == StateBroaden {
		return l.broaden(current)
	}

	// Nothing matched under filters: the filters are the likeliest cause.
	if len(run.last.Candidates) == 0 && !current.query.Filters.IsZero() {
		next := current
		next.query.Filters = domain.SearchFilter{}
		next.strategy = domain.StrategyRelaxFilters
		return next, true
	}

	if next, ok := l.reformulate(ctx, current); ok {
		if _, seen := run.visited[next.key()]; !seen {
			return next, true
		}
	}

	next := current
	next.minScore = max(0, l.cfg.MinFusedScore-l.cfg.LowerThresholdDelta)
	next.strategy = domain.StrategyLowerThreshold
	if next.minScore >= current.minScore {
		return searchPlan{}, false
	}
	return next, true
}

// broaden relaxes one filter level at a time: date range, then category and
// source type, then source. With no filter left it expands the query terms.
func (l *CorrectiveRetrievalLoop) broaden(current searchPlan) (searchPlan, bool) {
	next := current
	next.strategy = domain.StrategyRelaxFilters
	f := current.query.Filters
	switch {
	case f.HasDateRange():
		next.query.Filters.DateFrom, next.query.Filters.DateTo = nil, nil
		return next, true
	case f.Category != "" || f.SourceType != "":
		next.query.Filters.Category, next.query.Filters.SourceType = "", ""
		return next, true
	case f.Source != "":
		next.query.Filters.Source = ""
		return next, true
	}

	expanded, ok := expandTerms(current.query.Normalized, l.synonyms, l.cfg.MaxExpansionTerms)
	if !ok {
		return searchPlan{}, false
	}
	next.query.Normalized = expanded
	next.strategy = domain.StrategyExpandTerms
	return next, true
}

func (l *CorrectiveRetrievalLoop) reformulate(ctx context.Context, current searchPlan) (searchPlan, bool) {
	if l.generator == nil {
		return searchPlan{}, false
	}
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.ReformulateTimeout)
	defer cancel()

	raw, err := l.generator.Generate(callCtx, buildReformulationPrompt(current.query.Normalized, current.query.Filters), 64, 0.2)
	if err != nil {
		slog.Warn("query_reformulation_failed", "error", err)
		return searchPlan{}, false
	}
	text := sanitizeReformulation(raw)
	if text == "" || strings.EqualFold(text, current.query.Normalized) {
		return searchPlan{}, false
	}

	next := current
	next.query.Normalized = text
	next.strategy = domain.StrategyReformulate
	return next, true
}

func (l *CorrectiveRetrievalLoop) finish(run *loopRun, outcome domain.LoopOutcome) *domain.EvidenceBundle {
	best := run.best
	if best == nil {
		best = &domain.EvidenceBundle{Candidates: []domain.RetrievalCandidate{}, Verdict: domain.VerdictRed}
	}
	if best.Verdict == domain.VerdictGreen {
		outcome = domain.OutcomeAccepted
	}
	best.Outcome = outcome
	best.CorrectionIterations = run.iterations
	best.Attempts = run.attempts
	return best
}

// betterBundle prefers the higher verdict, then the higher top score. Ties
// keep the earlier bundle.
func betterBundle(candidate, current *domain.EvidenceBundle) bool {
	if current == nil {
		return true
	}
	if candidate.Verdict.Rank() != current.Verdict.Rank() {
		return candidate.Verdict.Rank() > current.Verdict.Rank()
	}
	return candidate.TopScore() > current.TopScore()
}

// expandTerms appends related terms for query words found in the synonym table.
func expandTerms(text string, synonyms map[string][]string, limit int) (string, bool) {
	if len(synonyms) == 0 || limit <= 0 {
		return "", false
	}
	tokens := splitAlphaNumLower(text)
	present := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		present[token] = struct{}{}
	}

	added := make([]string, 0, limit)
	for _, token := range tokens {
		for _, related := range synonyms[token] {
			if len(added) == limit {
				break
			}
			if _, ok := present[related]; ok {
				continue
			}
			present[related] = struct{}{}
			added = append(added, related)
		}
	}
	if len(added) == 0 {
		return "", false
	}
	return text + " " + strings.Join(added, " "), true
}
