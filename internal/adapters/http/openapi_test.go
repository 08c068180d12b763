package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/legal-rag-assistant/internal/config"
)

func TestRequestValidationRejectsSchemaViolations(t *testing.T) {
	cases := []struct {
		name    string
		path    string
		payload map[string]any
	}{
		{name: "missing query", path: "/v1/answer", payload: map[string]any{"filters": map[string]any{}}},
		{name: "empty query", path: "/v1/evidence", payload: map[string]any{"query": ""}},
		{name: "unknown filter", path: "/v1/answer", payload: map[string]any{"query": "q", "filters": map[string]any{"jurisdiction": "eu"}}},
		{name: "bad date", path: "/v1/answer/stream", payload: map[string]any{"query": "q", "filters": map[string]any{"date_from": "01/02/2020"}}},
		{name: "missing source", path: "/v1/documents", payload: map[string]any{"text": "Article 1.", "metadata": map[string]any{"title": "t"}}},
		{name: "empty text", path: "/v1/ingest", payload: map[string]any{"text": "", "metadata": map[string]any{"source": "s"}}},
	}

	handler := newTestHandler(t, config.Config{APIValidateRequests: true}, defaultServices())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := postJSON(t, handler, tc.path, tc.payload)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
			if resp := decodeError(t, res); resp.Code != "invalid_request" {
				t.Fatalf("expected invalid_request code, got %+v", resp)
			}
		})
	}
}

func TestRequestValidationAcceptsValidRequests(t *testing.T) {
	handler := newTestHandler(t, config.Config{APIValidateRequests: true}, defaultServices())

	res := postJSON(t, handler, "/v1/answer", map[string]any{
		"query":   "what is the appeal period",
		"filters": map[string]any{"source_type": "regulation", "date_to": "2024-12-31"},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-7", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for document lookup, got %d", rec.Code)
	}
}

func TestRequestValidationPassesUnknownRoutesThrough(t *testing.T) {
	handler := newTestHandler(t, config.Config{APIValidateRequests: true}, defaultServices())

	req := httptest.NewRequest(http.MethodGet, "/v1/unknown", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected mux 404, got %d", res.Code)
	}
}
