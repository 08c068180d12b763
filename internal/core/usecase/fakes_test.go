package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

type generatorFake struct {
	mu      sync.Mutex
	fn      func(ctx context.Context, prompt string) (string, error)
	prompts []string
	calls   atomic.Int32
}

func (f *generatorFake) Generate(ctx context.Context, prompt string, _ int, _ float64) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.fn == nil {
		return "", errors.New("generator not configured")
	}
	return f.fn(ctx, prompt)
}

// paragraphChunker splits on blank lines, one window per paragraph.
type paragraphChunker struct{}

func (paragraphChunker) Split(text string, _, _ int) []domain.TextWindow {
	out := make([]domain.TextWindow, 0)
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, domain.TextWindow{Position: len(out), Text: part, TokenCount: len(strings.Fields(part))})
	}
	return out
}

type embedderFake struct {
	mu      sync.Mutex
	batches [][]string
	err     error
	delay   time.Duration
	health  domain.HealthStatus
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, _ string) ([]float32, error) {
	if err := wait(ctx, f.delay); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f *embedderFake) Name() string { return "embedder-fake" }

func (f *embedderFake) Health(context.Context) domain.HealthStatus {
	if f.health == "" {
		return domain.HealthHealthy
	}
	return f.health
}

type vectorIndexFake struct {
	chunks []domain.RetrievedChunk
	err    error
	delay  time.Duration
	health domain.HealthStatus
	calls  atomic.Int32
}

func (f *vectorIndexFake) Nearest(ctx context.Context, _ []float32, k int, _ domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	f.calls.Add(1)
	if err := wait(ctx, f.delay); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return limitChunks(f.chunks, k), nil
}

func (f *vectorIndexFake) Name() string { return "vector-fake" }

func (f *vectorIndexFake) Health(context.Context) domain.HealthStatus {
	if f.health == "" {
		return domain.HealthHealthy
	}
	return f.health
}

type lexicalIndexFake struct {
	chunks []domain.RetrievedChunk
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *lexicalIndexFake) Match(ctx context.Context, _ string, k int, _ domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	f.calls.Add(1)
	if err := wait(ctx, f.delay); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return limitChunks(f.chunks, k), nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func limitChunks(chunks []domain.RetrievedChunk, k int) []domain.RetrievedChunk {
	if k > 0 && len(chunks) > k {
		return chunks[:k]
	}
	return chunks
}

type metricsFake struct {
	mu           sync.Mutex
	stages       map[domain.Stage]int
	outcomes     []domain.Verdict
	pathFailures map[domain.RetrievalPath]int
}

func newMetricsFake() *metricsFake {
	return &metricsFake{
		stages:       make(map[domain.Stage]int),
		pathFailures: make(map[domain.RetrievalPath]int),
	}
}

func (m *metricsFake) ObserveStage(stage domain.Stage, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage]++
}

func (m *metricsFake) RecordOutcome(_ domain.ResponseMode, verdict domain.Verdict, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, verdict)
}

func (m *metricsFake) RecordPathFailure(path domain.RetrievalPath) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pathFailures[path]++
}

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type repoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	chunks      map[string][]domain.Chunk
	statusCalls []statusCall
	createErr   error
	replaceErr  error
}

func newRepoFake(docs ...*domain.Document) *repoFake {
	f := &repoFake{docs: make(map[string]*domain.Document), chunks: make(map[string][]domain.Chunk)}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return f
}

func (f *repoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *repoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
		doc.Error = errMessage
	}
	return nil
}

func (f *repoFake) ReplaceChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks[documentID] = append([]domain.Chunk(nil), chunks...)
	if doc, ok := f.docs[documentID]; ok {
		doc.ChunkCount = len(chunks)
	}
	return nil
}

func (f *repoFake) ListChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Chunk(nil), f.chunks[documentID]...), nil
}

type storageFake struct {
	mu    sync.Mutex
	files map[string]string
	err   error
}

func newStorageFake() *storageFake {
	return &storageFake{files: make(map[string]string)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = string(raw)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.files[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

// storageExtractor reads the stored text back, like the plaintext extractor.
type storageExtractor struct {
	storage *storageFake
	err     error
}

func (e *storageExtractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	rc, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	return strings.TrimSpace(string(raw)), err
}

type queueFake struct {
	events []domain.IngestEvent
	err    error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, event domain.IngestEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, domain.IngestEvent) error) error {
	return errors.New("not implemented")
}

type indexerFake struct {
	deleted []string
	indexed map[string]int
	err     error
}

func (f *indexerFake) IndexChunks(_ context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if f.err != nil {
		return f.err
	}
	if len(chunks) != len(vectors) {
		return errors.New("chunks/vectors mismatch")
	}
	if f.indexed == nil {
		f.indexed = make(map[string]int)
	}
	f.indexed[doc.ID] = len(chunks)
	return nil
}

func (f *indexerFake) DeleteDocument(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

func statute(docID string, pos int, text string, score float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		ChunkID:       ChunkID(docID, pos),
		DocumentID:    docID,
		PositionIndex: pos,
		Title:         "Act " + docID,
		SourceType:    "statute",
		Text:          text,
		Score:         score,
	}
}
