package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/legal-rag-assistant/internal/config"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
	"github.com/kirillkom/legal-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/rules"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/legal-rag-assistant/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue       ports.MessageQueue
	Repo        ports.DocumentRepository
	IngestUC    *usecase.IngestDocumentUseCase
	ProcessUC   *usecase.ProcessDocumentUseCase
	QueryUC     *usecase.QueryUseCase
	StatusUC    *usecase.StatusUseCase
	HTTPMetrics *metrics.HTTPServerMetrics

	closeFn func()
}

// New wires the full pipeline. service labels the metrics of the calling binary.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg))

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ruleSet, err := rules.Load(cfg.RouterRulesPath)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load router rules: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	pipelineMetrics := metrics.NewPipelineMetrics(service, httpMetrics.Registerer())

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		HTTPTimeout: cfg.OllamaTimeout,
		Resilience:  executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	qdrantClient := qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{Resilience: executor})
	denseIndex := qdrant.NewDenseIndex(qdrantClient)
	sparseIndex := qdrant.NewSparseIndex(qdrantClient)

	splitter := chunking.NewSplitter(cfg.CharsPerToken)
	extractor := plaintext.NewExtractor(storage)

	enricher := usecase.NewChunkEnricher(splitter, generator, usecase.EnrichConfig{
		ChunkSizeTokens:  cfg.ChunkSizeTokens,
		OverlapTokens:    cfg.ChunkOverlapTokens,
		SummaryMaxTokens: cfg.EnrichSummaryMaxTokens,
		Temperature:      cfg.EnrichTemperature,
		Concurrency:      cfg.EnrichConcurrency,
		SummaryTimeout:   cfg.EnrichSummaryTimeout,
		CharsPerToken:    cfg.CharsPerToken,
	})
	search := usecase.NewHybridSearchEngine(embedder, denseIndex, sparseIndex, pipelineMetrics, usecase.HybridSearchConfig{
		CandidatesPerPath: cfg.RAGCandidates,
		WeightSemantic:    cfg.RAGWeightSemantic,
		WeightLexical:     cfg.RAGWeightLexical,
		MinFusedScore:     cfg.RAGMinFusedScore,
		ProximityWindow:   cfg.RAGProximityWindow,
		EmbedTimeout:      cfg.EmbedTimeout,
		VectorTimeout:     cfg.VectorTimeout,
		LexicalTimeout:    cfg.LexicalTimeout,
	})
	evaluator := usecase.NewEvidenceEvaluator(usecase.EvidenceConfig{
		GreenThreshold:     cfg.RAGGreenThreshold,
		YellowThreshold:    cfg.RAGYellowThreshold,
		GreenMinDocuments:  cfg.RAGGreenMinDocuments,
		ProceduralRelax:    cfg.RAGProceduralRelax,
		PrimarySourceTypes: cfg.RAGPrimarySourceTypes,
	})
	loop := usecase.NewCorrectiveRetrievalLoop(search, evaluator, generator, ruleSet.Synonyms, usecase.CorrectiveConfig{
		MaxIterations:       cfg.RAGMaxIterations,
		TopK:                cfg.RAGTopK,
		MinFusedScore:       cfg.RAGMinFusedScore,
		LowerThresholdDelta: cfg.RAGLowerThresholdDelta,
		MaxExpansionTerms:   cfg.RAGMaxExpansionTerms,
		ResolveTimeout:      cfg.RAGResolveTimeout,
		ReformulateTimeout:  cfg.ReformulateTimeout,
	})
	citations := usecase.NewCitationAssembler(usecase.CitationConfig{
		MinOverlap:  cfg.CitationMinOverlap,
		MaxPerClaim: cfg.CitationMaxPerClaim,
	})
	router := usecase.NewModeRouter(ruleSet.Router)
	stats := usecase.NewPipelineStats()

	queryCfg := usecase.DefaultQueryConfig()
	queryCfg.MaxQueryRunes = cfg.MaxQueryChars
	queryCfg.AnswerTimeout = cfg.AnswerTimeout
	queryCfg.AnswerMaxTokens = cfg.AnswerMaxTokens
	queryCfg.AnswerTemperature = cfg.AnswerTemperature

	processUC := usecase.NewProcessDocumentUseCase(repo, extractor, enricher, embedder, qdrantClient, cfg.EmbedBatchSize)
	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue, processUC)
	queryUC := usecase.NewQueryUseCase(router, loop, generator, citations, pipelineMetrics, stats, queryCfg)
	statusUC := usecase.NewStatusUseCase(stats, repo, queue, embedder, generator, denseIndex, sparseIndex)

	slog.Info("pipeline_wired",
		"service", service,
		"collection", cfg.QdrantCollection,
		"max_iterations", cfg.RAGMaxIterations,
		"router_rules", rulesSource(cfg.RouterRulesPath),
	)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		IngestUC:    ingestUC,
		ProcessUC:   processUC,
		QueryUC:     queryUC,
		StatusUC:    statusUC,
		HTTPMetrics: httpMetrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = cfg.RetryInitialBackoff
	out.RetryMaxBackoff = cfg.RetryMaxBackoff
	out.BreakerEnabled = cfg.BreakerEnabled
	out.BreakerMinRequests = uint32(max(cfg.BreakerMinRequests, 0))
	out.BreakerFailureRatio = cfg.BreakerFailureRatio
	out.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	out.BreakerHalfOpenMaxCalls = uint32(max(cfg.BreakerHalfOpenMaxCalls, 0))
	return out
}

func rulesSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
