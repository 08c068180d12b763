package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/config"
	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

type answerFake struct {
	answer *domain.Answer
	err    error
	events []domain.PipelineEvent

	gotQuery   string
	gotFilters domain.SearchFilter
}

func (f *answerFake) Answer(ctx context.Context, queryText string, filters domain.SearchFilter) (*domain.Answer, error) {
	return f.AnswerStream(ctx, queryText, filters, nil)
}

func (f *answerFake) AnswerStream(_ context.Context, queryText string, filters domain.SearchFilter, emit func(domain.PipelineEvent)) (*domain.Answer, error) {
	f.gotQuery = queryText
	f.gotFilters = filters
	if emit != nil {
		for _, event := range f.events {
			emit(event)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.Answer{Text: "ok", Mode: domain.ModeAssistedRAG, Citations: []domain.Citation{}}, nil
}

type evidenceFake struct {
	bundle *domain.EvidenceBundle
	err    error
}

func (f evidenceFake) SearchEvidence(context.Context, string, domain.SearchFilter) (*domain.EvidenceBundle, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.bundle != nil {
		return f.bundle, nil
	}
	return &domain.EvidenceBundle{Candidates: []domain.RetrievalCandidate{}, Verdict: domain.VerdictRed}, nil
}

type uploadFake struct {
	err     error
	gotMeta domain.DocumentMetadata
}

func (f *uploadFake) Upload(_ context.Context, text string, meta domain.DocumentMetadata) (*domain.Document, error) {
	f.gotMeta = meta
	if f.err != nil {
		return nil, f.err
	}
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty text"))
	}
	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Source:      meta.Source,
		Title:       meta.Title,
		StoragePath: "doc-1.txt",
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type ingestorFake struct {
	chunks []domain.Chunk
	err    error
}

func (f ingestorFake) Ingest(context.Context, string, domain.DocumentMetadata) ([]domain.Chunk, error) {
	return f.chunks, f.err
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Source: "usc-5", Title: "Title 5", StoragePath: id + ".txt", Status: domain.StatusReady}, nil
}

type statusFake struct{}

func (statusFake) Status(context.Context) domain.PipelineStatus {
	return domain.PipelineStatus{
		Collaborators: []domain.CollaboratorHealth{{Name: "ollama", Status: domain.HealthHealthy}},
		Queries:       3,
	}
}

func defaultServices() Services {
	return Services{
		Answers:   &answerFake{},
		Evidence:  evidenceFake{},
		Uploads:   &uploadFake{},
		Ingestor:  ingestorFake{},
		Documents: docsFake{},
		Status:    statusFake{},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, svc Services) http.Handler {
	t.Helper()
	rt, err := NewRouter(cfg, svc, nil)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return rt.Handler()
}
