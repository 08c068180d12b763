package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
)

const defaultEmbedBatchSize = 32

type ProcessDocumentUseCase struct {
	repo           ports.DocumentRepository
	extractor      ports.TextExtractor
	enricher       *ChunkEnricher
	embedder       ports.Embedder
	indexer        ports.ChunkIndexer
	embedBatchSize int
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	enricher *ChunkEnricher,
	embedder ports.Embedder,
	indexer ports.ChunkIndexer,
	embedBatchSize int,
) *ProcessDocumentUseCase {
	if embedBatchSize <= 0 {
		embedBatchSize = defaultEmbedBatchSize
	}
	return &ProcessDocumentUseCase{
		repo:           repo,
		extractor:      extractor,
		enricher:       enricher,
		embedder:       embedder,
		indexer:        indexer,
		embedBatchSize: embedBatchSize,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if _, err := uc.processPipeline(ctx, documentID); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	started := time.Now()
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return nil, err
	}

	cfg := uc.enricher.Config()
	chunks, err := uc.enricher.Enrich(ctx, doc, text, cfg.ChunkSizeTokens, cfg.OverlapTokens)
	if err != nil {
		return nil, fmt.Errorf("enrich chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if err := uc.index(ctx, doc, chunks, vectors); err != nil {
		return nil, err
	}

	if err := uc.repo.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("persist chunks: %w", err)
	}

	slog.Info("document_processed",
		"document_id", doc.ID,
		"chunks", len(chunks),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

// embed vectorizes the enriched texts in batches.
func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.embedBatchSize {
		end := min(start+uc.embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.EnrichedText)
		}

		batch, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(batch) != len(texts) {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts)),
			)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// index replaces every indexed point of the document.
func (uc *ProcessDocumentUseCase) index(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if err := uc.indexer.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete previous index points: %w", err)
	}
	if err := uc.indexer.IndexChunks(ctx, doc, chunks, vectors); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
