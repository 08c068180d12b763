package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
)

type searchCall struct {
	text     string
	filters  domain.SearchFilter
	minScore float64
}

type searcherFake struct {
	mu    sync.Mutex
	calls []searchCall
	fn    func(ctx context.Context, call int, q domain.Query, minScore float64) (domain.SearchResult, error)
}

func (f *searcherFake) SearchWithThreshold(ctx context.Context, q domain.Query, _ int, minScore float64) (domain.SearchResult, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, searchCall{text: q.Normalized, filters: q.Filters, minScore: minScore})
	f.mu.Unlock()
	return f.fn(ctx, call, q, minScore)
}

func found(candidates ...domain.RetrievalCandidate) domain.SearchResult {
	return domain.SearchResult{Candidates: candidates}
}

func newLoop(search Searcher, gen *generatorFake, synonyms map[string][]string, cfg CorrectiveConfig) *CorrectiveRetrievalLoop {
	var generator ports.Generator
	if gen != nil {
		generator = gen
	}
	return NewCorrectiveRetrievalLoop(search, NewEvidenceEvaluator(DefaultEvidenceConfig()), generator, synonyms, cfg)
}

func factualQuery(text string, filters domain.SearchFilter) domain.Query {
	return domain.Query{Raw: text, Normalized: text, Intent: domain.IntentFactual, Filters: filters}
}

var factualRoute = domain.Route{Mode: domain.ModeAssistedRAG, Intent: domain.IntentFactual}

func TestNextState(t *testing.T) {
	tests := []struct {
		verdict domain.Verdict
		used    int
		want    LoopState
	}{
		{domain.VerdictGreen, 0, StateAccepted},
		{domain.VerdictGreen, 2, StateAccepted},
		{domain.VerdictYellow, 0, StateBroaden},
		{domain.VerdictYellow, 2, StateExhausted},
		{domain.VerdictRed, 1, StateReformulate},
		{domain.VerdictRed, 2, StateExhausted},
	}
	for _, tt := range tests {
		if got := nextState(tt.verdict, tt.used, 2); got != tt.want {
			t.Fatalf("nextState(%s, %d) = %s, want %s", tt.verdict, tt.used, got, tt.want)
		}
	}
}

func TestResolveAcceptsGreenWithoutCorrection(t *testing.T) {
	search := &searcherFake{fn: func(context.Context, int, domain.Query, float64) (domain.SearchResult, error) {
		return found(candidate("a", "statute", 0.9), candidate("b", "statute", 0.8)), nil
	}}
	loop := newLoop(search, nil, nil, DefaultCorrectiveConfig())

	bundle, err := loop.Resolve(context.Background(), factualQuery("freedom of expression", domain.SearchFilter{}), factualRoute)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if bundle.Verdict != domain.VerdictGreen || bundle.Outcome != domain.OutcomeAccepted {
		t.Fatalf("expected accepted green bundle, got %s/%s", bundle.Verdict, bundle.Outcome)
	}
	if bundle.CorrectionIterations != 0 || len(search.calls) != 1 {
		t.Fatalf("expected single search without corrections, got iterations=%d searches=%d", bundle.CorrectionIterations, len(search.calls))
	}
}

func TestResolveRelaxesFiltersAfterEmptyFirstPass(t *testing.T) {
	search := &searcherFake{fn: func(_ context.Context, _ int, q domain.Query, _ float64) (domain.SearchResult, error) {
		if !q.Filters.IsZero() {
			return found(), nil
		}
		return found(candidate("a", "statute", 0.6)), nil
	}}
	loop := newLoop(search, nil, nil, DefaultCorrectiveConfig())

	bundle, err := loop.Resolve(context.Background(), factualQuery("vehicle registration fee", domain.SearchFilter{Category: "transport"}), factualRoute)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if bundle.Verdict != domain.VerdictYellow {
		t.Fatalf("expected yellow, got %s", bundle.Verdict)
	}
	if bundle.CorrectionIterations != 1 {
		t.Fatalf("expected 1 correction iteration, got %d", bundle.CorrectionIterations)
	}
	if len(bundle.Candidates) != 1 {
		t.Fatalf("expected the relaxed-filter candidate, got %d", len(bundle.Candidates))
	}
	if bundle.Attempts[1].Strategy != domain.StrategyRelaxFilters {
		t.Fatalf("expected relax_filters correction, got %s", bundle.Attempts[1].Strategy)
	}
}

func TestResolveBroadensFilterLevelsInOrder(t *testing.T) {
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	filters := domain.SearchFilter{Source: "gazette", Category: "tax", DateFrom: &from}
	search := &searcherFake{fn: func(context.Context, int, domain.Query, float64) (domain.SearchResult, error) {
		return found(candidate("a", "statute", 0.6)), nil
	}}
	cfg := DefaultCorrectiveConfig()
	cfg.MaxIterations = 3
	loop := newLoop(search, nil, nil, cfg)

	if _, err := loop.Resolve(context.Background(), factualQuery("income tax rate", filters), factualRoute); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(search.calls) != 4 {
		t.Fatalf("expected 4 searches, got %d", len(search.calls))
	}
	if search.calls[1].filters.HasDateRange() || search.calls[1].filters.Category != "tax" {
		t.Fatalf("expected date range dropped first, got %+v", search.calls[1].filters)
	}
	if search.calls[2].filters.Category != "" || search.calls[2].filters.Source != "gazette" {
		t.Fatalf("expected category dropped second, got %+v", search.calls[2].filters)
	}
	if !search.calls[3].filters.IsZero() {
		t.Fatalf("expected source dropped last, got %+v", search.calls[3].filters)
	}
}

func TestResolveCountsConsumedCorrectionsNotBestIteration(t *testing.T) {
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	filters := domain.SearchFilter{Category: "tax", DateFrom: &from}
	search := &searcherFake{fn: func(_ context.Context, call int, _ domain.Query, _ float64) (domain.SearchResult, error) {
		if call == 0 {
			return found(candidate("a", "statute", 0.7)), nil
		}
		return found(candidate("a", "statute", 0.6)), nil
	}}
	loop := newLoop(search, nil, nil, DefaultCorrectiveConfig())

	bundle, err := loop.Resolve(context.Background(), factualQuery("income tax rate", filters), factualRoute)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(search.calls) != 3 {
		t.Fatalf("expected two broadenings after the first pass, got %d searches", len(search.calls))
	}
	if bundle.CorrectionIterations != 2 || bundle.BestIteration != 0 {
		t.Fatalf("expected 2 consumed corrections with best from the first pass, got consumed=%d best=%d",
			bundle.CorrectionIterations, bundle.BestIteration)
	}
	if bundle.TopScore() != 0.7 {
		t.Fatalf("expected first-pass candidates to be kept, got top score %f", bundle.TopScore())
	}
}

func TestResolveExpandsTermsWhenNoFilterLeft(t *testing.T) {
	search := &searcherFake{fn: func(context.Context, int, domain.Query, float64) (domain.SearchResult, error) {
		return found(candidate("a", "statute", 0.6)), nil
	}}
	synonyms := map[string][]string{"fine": {"penalty", "sanction"}}
	loop := newLoop(search, nil, synonyms, DefaultCorrectiveConfig())

	bundle, err := loop.Resolve(context.Background(), factualQuery("parking fine amount", domain.SearchFilter{}), factualRoute)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := search.calls[1].text; got != "parking fine amount penalty sanction" {
		t.Fatalf("unexpected expanded query %q", got)
	}
	if bundle.Attempts[1].Strategy != domain.StrategyExpandTerms {
		t.Fatalf("expected expand_terms strategy, got %s", bundle.Attempts[1].Strategy)
	}
	if bundle.Outcome != domain.OutcomeExhausted {
		t.Fatalf("expected exhausted outcome, got %s", bundle.Outcome)
	}
}

func TestResolveReformulatesOnRed(t *testing.T) {
	search := &searcherFake{fn: func(_ context.Context, _ int, q domain.Query, _ float64) (domain.SearchResult, error) {
		if strings.Contains(q.Normalized, "statute") {
			return found(candidate("a", "statute", 0.9), candidate("b", "statute", 0.8)), nil
		}
		return found(candidate("a", "statute", 0.3)), nil
	}}
	gen := &generatorFake{fn: func(context.Context, string) (string, error) {
		return "Query: statute on freedom of assembly\nextra line", nil
	}}
	loop := newLoop(search, gen, nil, DefaultCorrectiveConfig())

	bundle, err := loop.Resolve(context.Background(), factualQuery("can we protest", domain.SearchFilter{}), factualRoute)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if search.calls[1].text != "statute on freedom of assembly" {
		t.Fatalf("unexpected reformulated query %q", search.calls[1].text)
	}
	if bundle.Verdict != domain.VerdictGreen || bundle.CorrectionIterations != 1 {
		t.Fatalf("expected green after one correction, got %s/%d", bundle.Verdict, bundle.CorrectionIterations)
	}
}

func TestResolveLowersThresholdWhenReformulationFails(t *testing.T) {
	search := &searcherFake{fn: func(context.Context, int, domain.Query, float64) (domain.SearchResult, error) {
		return found(candidate("a", "statute", 0.3)), nil
	}}
	gen := &generatorFake{fn: func(context.Context, string) (string, error) { return "", errors.New("model down") }}
	loop := newLoop(search, gen, nil, DefaultCorrectiveConfig())

	bundle, err := loop.Resolve(context.Background(), factualQuery("can we protest", domain.SearchFilter{}), factualRoute)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(search.calls) != 2 {
		t.Fatalf("expected initial + lowered search, got %d", len(search.calls))
	}
	if got := search.calls[1].minScore; got < 0.349 || got > 0.351 {
		t.Fatalf("expected lowered threshold 0.35, got %f", got)
	}
	if bundle.Verdict != domain.VerdictRed || len(bundle.Candidates) == 0 {
		t.Fatalf("expected non-empty red bundle, got %+v", bundle)
	}
}

func TestResolveTerminatesWithoutRepeatingSearches(t *testing.T) {
	for _, maxIterations := range []int{0, 1, 2, 3, 5} {
		t.Run(fmt.Sprintf("max=%d", maxIterations), func(t *testing.T) {
			search := &searcherFake{fn: func(context.Context, int, domain.Query, float64) (domain.SearchResult, error) {
				return found(candidate("a", "news", 0.2)), nil
			}}
			var n int
			var mu sync.Mutex
			gen := &generatorFake{fn: func(context.Context, string) (string, error) {
				mu.Lock()
				defer mu.Unlock()
				n++
				return []string{"alpha", "beta"}[n%2], nil
			}}
			cfg := DefaultCorrectiveConfig()
			cfg.MaxIterations = maxIterations
			loop := newLoop(search, gen, map[string][]string{"tax": {"levy"}}, cfg)

			bundle, err := loop.Resolve(context.Background(), factualQuery("tax", domain.SearchFilter{}), factualRoute)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if len(search.calls) > maxIterations+1 {
				t.Fatalf("ran %d searches with budget %d", len(search.calls), maxIterations)
			}
			if bundle.CorrectionIterations > maxIterations || len(bundle.Attempts) != len(search.calls) {
				t.Fatalf("inconsistent trace: iterations=%d attempts=%d searches=%d",
					bundle.CorrectionIterations, len(bundle.Attempts), len(search.calls))
			}
			seen := map[string]bool{}
			for _, call := range search.calls {
				key := fmt.Sprintf("%s|%s|%.3f", call.text, call.filters.Key(), call.minScore)
				if seen[key] {
					t.Fatalf("search repeated: %s", key)
				}
				seen[key] = true
			}
		})
	}
}

func TestResolveFirstAttemptFailureIsExplicit(t *testing.T) {
	search := &searcherFake{fn: func(context.Context, int, domain.Query, float64) (domain.SearchResult, error) {
		return domain.SearchResult{}, domain.WrapError(domain.ErrRetrievalUnavailable, "hybrid search", errors.New("both paths failed"))
	}}
	loop := newLoop(search, nil, nil, DefaultCorrectiveConfig())

	bundle, err := loop.Resolve(context.Background(), factualQuery("tax", domain.SearchFilter{}), factualRoute)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) || bundle != nil {
		t.Fatalf("expected explicit failure, got bundle=%v err=%v", bundle, err)
	}
}

func TestResolveLaterFailureKeepsBestBundle(t *testing.T) {
	search := &searcherFake{fn: func(_ context.Context, call int, _ domain.Query, _ float64) (domain.SearchResult, error) {
		if call == 0 {
			return found(candidate("a", "statute", 0.6)), nil
		}
		return domain.SearchResult{}, domain.ErrRetrievalUnavailable
	}}
	loop := newLoop(search, nil, nil, DefaultCorrectiveConfig())

	bundle, err := loop.Resolve(context.Background(), factualQuery("tax", domain.SearchFilter{Category: "tax"}), factualRoute)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if bundle.Verdict != domain.VerdictYellow || len(bundle.Candidates) != 1 {
		t.Fatalf("expected first yellow bundle, got %+v", bundle)
	}
	if bundle.Attempts[1].Error == "" {
		t.Fatalf("expected failed attempt in trace")
	}
}

func TestResolveReturnsBestBundleOnDeadline(t *testing.T) {
	search := &searcherFake{fn: func(ctx context.Context, call int, _ domain.Query, _ float64) (domain.SearchResult, error) {
		if call == 0 {
			return found(candidate("a", "statute", 0.3)), nil
		}
		<-ctx.Done()
		return domain.SearchResult{}, ctx.Err()
	}}
	cfg := DefaultCorrectiveConfig()
	cfg.ResolveTimeout = 50 * time.Millisecond
	loop := newLoop(search, nil, nil, cfg)

	bundle, err := loop.Resolve(context.Background(), factualQuery("tax", domain.SearchFilter{}), factualRoute)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if bundle.Outcome != domain.OutcomeDeadline || len(bundle.Candidates) != 1 {
		t.Fatalf("expected deadline outcome with first bundle, got %+v", bundle)
	}
}

func TestResolvePropagatesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	search := &searcherFake{fn: func(ctx context.Context, call int, _ domain.Query, _ float64) (domain.SearchResult, error) {
		if call == 0 {
			return found(candidate("a", "statute", 0.3)), nil
		}
		cancel()
		return domain.SearchResult{}, ctx.Err()
	}}
	loop := newLoop(search, nil, nil, DefaultCorrectiveConfig())

	_, err := loop.Resolve(ctx, factualQuery("tax", domain.SearchFilter{}), factualRoute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResolveEdgeCaseStartsUnfiltered(t *testing.T) {
	search := &searcherFake{fn: func(context.Context, int, domain.Query, float64) (domain.SearchResult, error) {
		return found(candidate("a", "statute", 0.9), candidate("b", "statute", 0.9)), nil
	}}
	loop := newLoop(search, nil, nil, DefaultCorrectiveConfig())
	route := domain.Route{Mode: domain.ModeAssistedRAG, Intent: domain.IntentEdgeCase, BroadenFilters: true}

	q := factualQuery("exceptions", domain.SearchFilter{Category: "tax"})
	q.Intent = domain.IntentEdgeCase
	if _, err := loop.Resolve(context.Background(), q, route); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !search.calls[0].filters.IsZero() {
		t.Fatalf("expected unfiltered first search, got %+v", search.calls[0].filters)
	}
}

func TestExpandTermsSkipsPresentTerms(t *testing.T) {
	got, ok := expandTerms("law and statute", map[string][]string{"law": {"statute", "act", "legislation"}}, 1)
	if !ok || got != "law and statute act" {
		t.Fatalf("expandTerms() = %q, %v", got, ok)
	}
	if _, ok := expandTerms("weather", map[string][]string{"law": {"act"}}, 6); ok {
		t.Fatalf("expected no expansion")
	}
}

func TestResolveOverEmptyCorpusIsRedNotAnOutage(t *testing.T) {
	engine := NewHybridSearchEngine(&embedderFake{}, &vectorIndexFake{}, &lexicalIndexFake{}, nil, DefaultHybridSearchConfig())
	loop := newLoop(engine, nil, nil, DefaultCorrectiveConfig())

	bundle, err := loop.Resolve(context.Background(), factualQuery("freedom of expression", domain.SearchFilter{}), factualRoute)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if bundle.Verdict != domain.VerdictRed || !bundle.IsEmpty() || bundle.Degraded {
		t.Fatalf("expected an empty red bundle, got verdict=%s candidates=%d degraded=%v", bundle.Verdict, len(bundle.Candidates), bundle.Degraded)
	}
}
