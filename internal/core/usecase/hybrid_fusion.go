package usecase

import (
	"sort"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

type fusionParams struct {
	weightSemantic  float64
	weightLexical   float64
	minScore        float64
	proximityWindow int
	limit           int
}

// fuseCandidates merges both result sets into scored candidates. The output
// depends only on the two input lists, never on which path finished first.
func fuseCandidates(semantic, lexical []domain.RetrievedChunk, p fusionParams) []domain.RetrievalCandidate {
	acc := make(map[string]*domain.RetrievalCandidate, len(semantic)+len(lexical))
	order := make([]string, 0, len(semantic)+len(lexical))

	add := func(chunks []domain.RetrievedChunk, normalized []float64, path domain.RetrievalPath) {
		for i, chunk := range chunks {
			key := chunkKey(chunk)
			chunk.ChunkID = key
			c, ok := acc[key]
			if !ok {
				c = &domain.RetrievalCandidate{Chunk: chunk, Path: path}
				acc[key] = c
				order = append(order, key)
			} else {
				c.Chunk = preferRicherChunk(c.Chunk, chunk)
				if c.Path != path {
					c.Path = domain.PathBoth
				}
			}
			switch path {
			case domain.PathSemantic:
				c.SemanticScore = max(c.SemanticScore, normalized[i])
			case domain.PathLexical:
				c.LexicalScore = max(c.LexicalScore, normalized[i])
			}
		}
	}
	add(semantic, normalizeSemantic(semantic), domain.PathSemantic)
	add(lexical, normalizeLexical(lexical), domain.PathLexical)

	out := make([]domain.RetrievalCandidate, 0, len(order))
	for _, key := range order {
		c := acc[key]
		c.FusedScore = p.weightSemantic*c.SemanticScore + p.weightLexical*c.LexicalScore
		c.Chunk.Score = c.FusedScore
		if c.FusedScore < p.minScore {
			continue
		}
		out = append(out, *c)
	}

	sortCandidates(out)
	out = mergeNeighbours(out, p.proximityWindow)
	if p.limit > 0 && len(out) > p.limit {
		out = out[:p.limit]
	}
	return out
}

// normalizeSemantic maps cosine similarities into [0,1]; they are already
// comparable across queries, so only the negative half is clipped.
func normalizeSemantic(chunks []domain.RetrievedChunk) []float64 {
	out := make([]float64, len(chunks))
	for i, c := range chunks {
		out[i] = clamp01(c.Score)
	}
	return out
}

// normalizeLexical divides BM25-style scores by the best score of the set.
func normalizeLexical(chunks []domain.RetrievedChunk) []float64 {
	out := make([]float64, len(chunks))
	best := 0.0
	for _, c := range chunks {
		best = max(best, c.Score)
	}
	if best <= 0 {
		return out
	}
	for i, c := range chunks {
		out[i] = clamp01(c.Score / best)
	}
	return out
}

// sortCandidates orders by fused score, then newer publication date, then
// earlier position, then chunk id. The order is total.
func sortCandidates(candidates []domain.RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidateLess(candidates[i], candidates[j])
	})
}

func candidateLess(a, b domain.RetrievalCandidate) bool {
	if a.FusedScore != b.FusedScore {
		return a.FusedScore > b.FusedScore
	}
	ad, bd := a.Chunk.PublishedAt, b.Chunk.PublishedAt
	switch {
	case ad != nil && bd == nil:
		return true
	case ad == nil && bd != nil:
		return false
	case ad != nil && bd != nil && !ad.Equal(*bd):
		return ad.After(*bd)
	}
	if a.Chunk.PositionIndex != b.Chunk.PositionIndex {
		return a.Chunk.PositionIndex < b.Chunk.PositionIndex
	}
	return a.Chunk.ChunkID < b.Chunk.ChunkID
}

// mergeNeighbours folds lower-ranked chunks of the same document that sit
// within window positions of a kept candidate into that candidate. The kept
// candidate's scores and path stay its own; merged chunks carry theirs in Score.
func mergeNeighbours(sorted []domain.RetrievalCandidate, window int) []domain.RetrievalCandidate {
	if window <= 0 || len(sorted) < 2 {
		return sorted
	}
	out := make([]domain.RetrievalCandidate, 0, len(sorted))
	for _, c := range sorted {
		merged := false
		for i := range out {
			if out[i].Chunk.DocumentID != c.Chunk.DocumentID || !withinWindow(out[i], c.Chunk.PositionIndex, window) {
				continue
			}
			out[i].Merged = append(out[i].Merged, c.Chunks()...)
			merged = true
			break
		}
		if !merged {
			out = append(out, c)
		}
	}
	for i := range out {
		sort.SliceStable(out[i].Merged, func(a, b int) bool {
			return out[i].Merged[a].PositionIndex < out[i].Merged[b].PositionIndex
		})
	}
	return out
}

func withinWindow(c domain.RetrievalCandidate, position, window int) bool {
	for _, chunk := range c.Chunks() {
		d := chunk.PositionIndex - position
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

func chunkKey(chunk domain.RetrievedChunk) string {
	if chunk.ChunkID != "" {
		return chunk.ChunkID
	}
	return ChunkID(chunk.DocumentID, chunk.PositionIndex)
}

func preferRicherChunk(current, candidate domain.RetrievedChunk) domain.RetrievedChunk {
	if current.ChunkID == "" {
		current.ChunkID = candidate.ChunkID
	}
	if current.Text == "" {
		current.Text = candidate.Text
	}
	if current.Title == "" {
		current.Title = candidate.Title
	}
	if current.Source == "" {
		current.Source = candidate.Source
	}
	if current.Category == "" {
		current.Category = candidate.Category
	}
	if current.Agency == "" {
		current.Agency = candidate.Agency
	}
	if current.SourceType == "" {
		current.SourceType = candidate.SourceType
	}
	if current.PublishedAt == nil {
		current.PublishedAt = candidate.PublishedAt
	}
	return current
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
