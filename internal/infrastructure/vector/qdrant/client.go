package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"

	opEnsure       = "qdrant.ensure_collection"
	opUpsert       = "qdrant.upsert"
	opDelete       = "qdrant.delete"
	opSearchDense  = "qdrant.search_dense"
	opSearchSparse = "qdrant.search_sparse"
)

type Options struct {
	HTTPTimeout time.Duration
	Resilience  *resilience.Executor
}

// Client stores every chunk as one point carrying a named dense vector for
// semantic search and a named sparse vector for lexical search.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return NewWithOptions(baseURL, collection, Options{})
}

func NewWithOptions(baseURL, collection string, opts Options) *Client {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	executor := opts.Resilience
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) IndexChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID: chunk.ID,
			Vector: map[string]any{
				denseVectorName:  vectors[i],
				sparseVectorName: encodeSparseDocument(chunk.OriginalText, doc.Title),
			},
			Payload: chunkPayload(doc, chunk),
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.call(ctx, opUpsert, http.MethodPut, path, map[string]any{"points": points}, nil)
}

// DeleteDocument removes every point of a document. Missing collections are not an error.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{matchCondition("doc_id", documentID)},
		},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	err := c.call(ctx, opDelete, http.MethodPost, path, body, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) searchDense(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": vector,
		},
		"limit":        limit,
		"with_payload": true,
	}
	return c.search(ctx, opSearchDense, reqBody, filter)
}

func (c *Client) searchSparse(ctx context.Context, text string, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	sparse := encodeSparseQuery(text)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   sparseVectorName,
			"vector": sparse,
		},
		"limit":        limit,
		"with_payload": true,
	}
	return c.search(ctx, opSearchSparse, reqBody, filter)
}

func (c *Client) search(ctx context.Context, operation string, reqBody map[string]any, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.call(ctx, operation, http.MethodPost, path, reqBody, &searchResp); err != nil {
		// The collection is created by the first indexed document; before that the corpus is empty.
		if IsNotFound(err) {
			return []domain.RetrievedChunk{}, nil
		}
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		chunk := chunkFromPayload(r.Payload)
		if chunk.ChunkID == "" {
			chunk.ChunkID = fmt.Sprintf("%v", r.ID)
		}
		chunk.Score = r.Score
		out = append(out, chunk)
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{
				"modifier": "idf",
			},
		},
	}

	err := c.call(ctx, opEnsure, http.MethodPut, "/collections/"+c.collection, reqBody, nil)
	// 409 when the collection already exists.
	if err != nil && !IsConflict(err) {
		return err
	}
	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload, out any) error {
	err := c.executor.Execute(ctx, operation, func(callCtx context.Context) error {
		return c.doJSON(callCtx, method, path, payload, out, operation)
	}, classifyQdrantError)
	return wrapTemporaryIfNeeded(operation, err)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
