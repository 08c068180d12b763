package ports

import (
	"context"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

// AnswerService is the inbound contract for question answering.
type AnswerService interface {
	Answer(ctx context.Context, queryText string, filters domain.SearchFilter) (*domain.Answer, error)
	// AnswerStream behaves like Answer and reports each completed stage to emit.
	AnswerStream(ctx context.Context, queryText string, filters domain.SearchFilter, emit func(domain.PipelineEvent)) (*domain.Answer, error)
}

// EvidenceService resolves evidence for a query without generating an answer.
type EvidenceService interface {
	SearchEvidence(ctx context.Context, queryText string, filters domain.SearchFilter) (*domain.EvidenceBundle, error)
}

// DocumentIngestor is the inbound contract for asynchronous document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, text string, meta domain.DocumentMetadata) (*domain.Document, error)
}

// ChunkIngestor runs the ingestion pipeline synchronously and returns the stored chunks.
type ChunkIngestor interface {
	Ingest(ctx context.Context, text string, meta domain.DocumentMetadata) ([]domain.Chunk, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// StatusReporter exposes collaborator health and pipeline statistics.
type StatusReporter interface {
	Status(ctx context.Context) domain.PipelineStatus
}
