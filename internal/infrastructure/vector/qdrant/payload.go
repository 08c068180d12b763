package qdrant

import (
	"fmt"
	"math"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

func chunkPayload(doc *domain.Document, chunk domain.Chunk) map[string]any {
	payload := map[string]any{
		"doc_id":         doc.ID,
		"chunk_id":       chunk.ID,
		"position_index": chunk.PositionIndex,
		"title":          doc.Title,
		"source":         doc.Source,
		"category":       doc.Category,
		"agency":         doc.Agency,
		"source_type":    doc.SourceType,
		"text":           chunk.OriginalText,
	}
	if doc.PublishedAt != nil {
		payload["published_at"] = doc.PublishedAt.UTC().Format(time.RFC3339)
		payload["published_at_unix"] = doc.PublishedAt.UTC().Unix()
	}
	return payload
}

func chunkFromPayload(payload map[string]any) domain.RetrievedChunk {
	out := domain.RetrievedChunk{
		ChunkID:       getStringPayload(payload, "chunk_id"),
		DocumentID:    getStringPayload(payload, "doc_id"),
		PositionIndex: getIntPayload(payload, "position_index"),
		Title:         getStringPayload(payload, "title"),
		Source:        getStringPayload(payload, "source"),
		Category:      getStringPayload(payload, "category"),
		Agency:        getStringPayload(payload, "agency"),
		SourceType:    getStringPayload(payload, "source_type"),
		Text:          getStringPayload(payload, "text"),
	}
	if raw := getStringPayload(payload, "published_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			out.PublishedAt = &ts
		}
	}
	return out
}

// buildFilter translates a search filter into a Qdrant "must" clause, or nil when empty.
func buildFilter(filter domain.SearchFilter) map[string]any {
	must := make([]map[string]any, 0, 4)
	if filter.Source != "" {
		must = append(must, matchCondition("source", filter.Source))
	}
	if filter.Category != "" {
		must = append(must, matchCondition("category", filter.Category))
	}
	if filter.SourceType != "" {
		must = append(must, matchCondition("source_type", filter.SourceType))
	}
	if filter.HasDateRange() {
		rng := map[string]any{}
		if filter.DateFrom != nil {
			rng["gte"] = filter.DateFrom.UTC().Unix()
		}
		if filter.DateTo != nil {
			rng["lte"] = filter.DateTo.UTC().Unix()
		}
		must = append(must, map[string]any{"key": "published_at_unix", "range": rng})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func matchCondition(key, value string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		if math.IsNaN(v) {
			return 0
		}
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
