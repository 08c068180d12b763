package qdrant

import (
	"context"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

// DenseIndex exposes the collection's dense vectors as a cosine nearest-neighbour index.
type DenseIndex struct {
	client *Client
}

func NewDenseIndex(client *Client) *DenseIndex {
	return &DenseIndex{client: client}
}

func (i *DenseIndex) Name() string { return "qdrant-dense" }

func (i *DenseIndex) Health(context.Context) domain.HealthStatus {
	return i.client.executor.Health(opSearchDense)
}

func (i *DenseIndex) Nearest(ctx context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	return i.client.searchDense(ctx, vector, k, filter)
}

// SparseIndex exposes the collection's hashed term vectors as a BM25-style keyword index.
type SparseIndex struct {
	client *Client
}

func NewSparseIndex(client *Client) *SparseIndex {
	return &SparseIndex{client: client}
}

func (i *SparseIndex) Name() string { return "qdrant-lexical" }

func (i *SparseIndex) Health(context.Context) domain.HealthStatus {
	return i.client.executor.Health(opSearchSparse)
}

func (i *SparseIndex) Match(ctx context.Context, text string, k int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	return i.client.searchSparse(ctx, text, k, filter)
}
