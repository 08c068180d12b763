package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

// DocumentRepository persists documents and their chunks.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	// ReplaceChunks atomically swaps every stored chunk of a document.
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// ObjectStorage stores raw document text.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, event domain.IngestEvent) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, domain.IngestEvent) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into overlapping windows sized in approximate tokens.
type Chunker interface {
	Split(text string, chunkSizeTokens, overlapTokens int) []domain.TextWindow
}

// ChunkIndexer writes chunk embeddings and their lexical terms into the search index.
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// VectorIndex returns nearest neighbours by cosine similarity.
type VectorIndex interface {
	Nearest(ctx context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
}

// LexicalIndex returns keyword matches ranked by a BM25-style score.
type LexicalIndex interface {
	Match(ctx context.Context, text string, k int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// HealthReporter is implemented by collaborators that can report reachability.
type HealthReporter interface {
	Name() string
	Health(ctx context.Context) domain.HealthStatus
}

// PipelineMetrics receives query pipeline observations.
type PipelineMetrics interface {
	ObserveStage(stage domain.Stage, d time.Duration)
	RecordOutcome(mode domain.ResponseMode, verdict domain.Verdict, iterations int)
	RecordPathFailure(path domain.RetrievalPath)
}
