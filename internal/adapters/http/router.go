package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/config"
	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
	"github.com/kirillkom/legal-rag-assistant/internal/observability/metrics"
)

const (
	maxRequestBodyBytes = 8 << 20
	backpressureWait    = 250 * time.Millisecond
	dateLayout          = "2006-01-02"
)

// Services groups the inbound ports served over HTTP.
type Services struct {
	Answers   ports.AnswerService
	Evidence  ports.EvidenceService
	Uploads   ports.DocumentIngestor
	Ingestor  ports.ChunkIngestor
	Documents ports.DocumentReader
	Status    ports.StatusReporter
}

type Router struct {
	cfg       config.Config
	svc       Services
	metrics   *metrics.HTTPServerMetrics
	validator *requestValidator
}

func NewRouter(cfg config.Config, svc Services, httpMetrics *metrics.HTTPServerMetrics) (*Router, error) {
	rt := &Router{
		cfg:     cfg,
		svc:     svc,
		metrics: httpMetrics,
	}
	if cfg.APIValidateRequests {
		validator, err := newRequestValidator()
		if err != nil {
			return nil, err
		}
		rt.validator = validator
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/status", rt.status)
	mux.HandleFunc("POST /v1/answer", rt.answer)
	mux.HandleFunc("POST /v1/answer/stream", rt.answerStream)
	mux.HandleFunc("POST /v1/evidence", rt.searchEvidence)
	mux.HandleFunc("POST /v1/ingest", rt.ingest)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{document_id}", rt.getDocumentByID)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.validator != nil {
		handler = rt.validator.middleware(handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) status(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Status == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "status reporting is not configured")
		return
	}
	writeJSON(w, http.StatusOK, rt.svc.Status.Status(r.Context()))
}

type filtersRequest struct {
	Source     string `json:"source"`
	Category   string `json:"category"`
	SourceType string `json:"source_type"`
	DateFrom   string `json:"date_from"`
	DateTo     string `json:"date_to"`
}

func (f filtersRequest) toDomain() (domain.SearchFilter, error) {
	from, err := parseDate("filters.date_from", f.DateFrom)
	if err != nil {
		return domain.SearchFilter{}, err
	}
	to, err := parseDate("filters.date_to", f.DateTo)
	if err != nil {
		return domain.SearchFilter{}, err
	}
	return domain.SearchFilter{
		Source:     f.Source,
		Category:   f.Category,
		SourceType: f.SourceType,
		DateFrom:   from,
		DateTo:     to,
	}, nil
}

type queryRequest struct {
	Query   string         `json:"query"`
	Filters filtersRequest `json:"filters"`
}

type metadataRequest struct {
	Source      string `json:"source"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Agency      string `json:"agency"`
	SourceType  string `json:"source_type"`
	PublishedAt string `json:"published_at"`
}

type ingestRequest struct {
	Text     string          `json:"text"`
	Metadata metadataRequest `json:"metadata"`
}

func (req ingestRequest) metadata() (domain.DocumentMetadata, error) {
	published, err := parseDate("metadata.published_at", req.Metadata.PublishedAt)
	if err != nil {
		return domain.DocumentMetadata{}, err
	}
	return domain.DocumentMetadata{
		Source:      req.Metadata.Source,
		Title:       req.Metadata.Title,
		Category:    req.Metadata.Category,
		Agency:      req.Metadata.Agency,
		SourceType:  req.Metadata.SourceType,
		PublishedAt: published,
	}, nil
}

type ingestResponse struct {
	DocumentID string         `json:"document_id"`
	ChunkCount int            `json:"chunk_count"`
	Chunks     []domain.Chunk `json:"chunks"`
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	req, filters, ok := rt.decodeQuery(w, r)
	if !ok {
		return
	}
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	answer, err := rt.svc.Answers.Answer(ctx, req.Query, filters)
	if err != nil {
		rt.logFailure(r, "answer_request_failed", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// answerStream emits one "stage" event per completed pipeline stage and a
// final "answer" event. Failures after the first event arrive as an "error" event.
func (rt *Router) answerStream(w http.ResponseWriter, r *http.Request) {
	stream, err := newEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}
	req, filters, ok := rt.decodeQuery(w, r)
	if !ok {
		return
	}
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	answer, err := rt.svc.Answers.AnswerStream(ctx, req.Query, filters, func(event domain.PipelineEvent) {
		if sendErr := stream.Send("stage", event); sendErr != nil {
			slog.Debug("sse_write_failed", "request_id", requestIDFromContext(r.Context()), "error", sendErr)
		}
	})
	if err != nil {
		rt.logFailure(r, "answer_request_failed", err)
		if !stream.Started() {
			writeDomainError(w, err)
			return
		}
		status, code := mapErrorToHTTPStatus(err)
		_ = stream.Send("error", errorResponse{Error: http.StatusText(status), Code: code})
		return
	}
	_ = stream.Send("answer", answer)
}

func (rt *Router) searchEvidence(w http.ResponseWriter, r *http.Request) {
	req, filters, ok := rt.decodeQuery(w, r)
	if !ok {
		return
	}
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	bundle, err := rt.svc.Evidence.SearchEvidence(ctx, req.Query, filters)
	if err != nil {
		rt.logFailure(r, "evidence_request_failed", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (rt *Router) ingest(w http.ResponseWriter, r *http.Request) {
	req, meta, ok := rt.decodeIngest(w, r)
	if !ok {
		return
	}
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	chunks, err := rt.svc.Ingestor.Ingest(ctx, req.Text, meta)
	if err != nil {
		rt.logFailure(r, "ingest_request_failed", err)
		writeDomainError(w, err)
		return
	}
	resp := ingestResponse{ChunkCount: len(chunks), Chunks: chunks}
	if len(chunks) > 0 {
		resp.DocumentID = chunks[0].DocumentID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	req, meta, ok := rt.decodeIngest(w, r)
	if !ok {
		return
	}

	doc, err := rt.svc.Uploads.Upload(r.Context(), req.Text, meta)
	if err != nil {
		rt.logFailure(r, "upload_request_failed", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("document_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "document id is required")
		return
	}

	doc, err := rt.svc.Documents.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, domain.SearchFilter, bool) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return req, domain.SearchFilter{}, false
	}
	filters, err := req.Filters.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return req, domain.SearchFilter{}, false
	}
	return req, filters, true
}

func (rt *Router) decodeIngest(w http.ResponseWriter, r *http.Request) (ingestRequest, domain.DocumentMetadata, bool) {
	var req ingestRequest
	if !decodeJSON(w, r, &req) {
		return req, domain.DocumentMetadata{}, false
	}
	meta, err := req.metadata()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return req, domain.DocumentMetadata{}, false
	}
	return req, meta, true
}

func (rt *Router) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if rt.cfg.APIRequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), rt.cfg.APIRequestTimeout)
}

func (rt *Router) logFailure(r *http.Request, event string, err error) {
	status, code := mapErrorToHTTPStatus(err)
	attrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"status", status,
		"code", code,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		slog.Error(event, attrs...)
		return
	}
	slog.Warn(event, attrs...)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body is too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return false
	}
	return true
}

func parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%s must be a YYYY-MM-DD date", field)
	}
	return &t, nil
}
