package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	processor *ProcessDocumentUseCase
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	processor *ProcessDocumentUseCase,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:      repo,
		storage:   storage,
		queue:     queue,
		processor: processor,
	}
}

// Upload stores the document and hands processing to the worker via the queue.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, text string, meta domain.DocumentMetadata) (*domain.Document, error) {
	doc, err := uc.store(ctx, text, meta)
	if err != nil {
		return nil, err
	}

	event := domain.IngestEvent{DocumentID: doc.ID, UploadedAt: doc.CreatedAt}
	if err := uc.queue.PublishDocumentIngested(ctx, event); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return doc, nil
}

// Ingest stores the document, runs enrichment and indexing inline and
// returns the persisted chunks.
func (uc *IngestDocumentUseCase) Ingest(ctx context.Context, text string, meta domain.DocumentMetadata) ([]domain.Chunk, error) {
	doc, err := uc.store(ctx, text, meta)
	if err != nil {
		return nil, err
	}
	if err := uc.processor.ProcessByID(ctx, doc.ID); err != nil {
		return nil, err
	}

	chunks, err := uc.repo.ListChunks(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}

func (uc *IngestDocumentUseCase) store(ctx context.Context, text string, meta domain.DocumentMetadata) (*domain.Document, error) {
	meta, err := validateIngest(text, meta)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := id + ".txt"
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, strings.NewReader(text)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Source:      meta.Source,
		Title:       meta.Title,
		Category:    meta.Category,
		Agency:      meta.Agency,
		SourceType:  meta.SourceType,
		PublishedAt: meta.PublishedAt,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	return doc, nil
}

func validateIngest(text string, meta domain.DocumentMetadata) (domain.DocumentMetadata, error) {
	if strings.TrimSpace(text) == "" {
		return meta, domain.WrapError(domain.ErrInvalidInput, "ingest", errors.New("document text is empty"))
	}
	if !utf8.ValidString(text) {
		return meta, domain.WrapError(domain.ErrInvalidInput, "ingest", errors.New("document text is not valid utf-8"))
	}

	meta.Source = strings.TrimSpace(meta.Source)
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Category = strings.ToLower(strings.TrimSpace(meta.Category))
	meta.SourceType = strings.ToLower(strings.TrimSpace(meta.SourceType))
	meta.Agency = strings.TrimSpace(meta.Agency)
	if meta.Source == "" {
		return meta, domain.WrapError(domain.ErrInvalidInput, "ingest", errors.New("source is required"))
	}
	if meta.Title == "" {
		meta.Title = meta.Source
	}
	return meta, nil
}
