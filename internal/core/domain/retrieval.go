package domain

import "time"

// RetrievedChunk is a chunk as returned by an index, carrying the document
// metadata needed for ranking and display.
type RetrievedChunk struct {
	ChunkID       string     `json:"chunk_id"`
	DocumentID    string     `json:"document_id"`
	PositionIndex int        `json:"position_index"`
	Title         string     `json:"title,omitempty"`
	Source        string     `json:"source,omitempty"`
	Category      string     `json:"category,omitempty"`
	Agency        string     `json:"agency,omitempty"`
	SourceType    string     `json:"source_type,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Text          string     `json:"text"`
	Score         float64    `json:"score"`
}

type RetrievalPath string

const (
	PathSemantic RetrievalPath = "semantic"
	PathLexical  RetrievalPath = "lexical"
	PathBoth     RetrievalPath = "both"
)

type RetrievalCandidate struct {
	Chunk         RetrievedChunk   `json:"chunk"`
	Merged        []RetrievedChunk `json:"merged,omitempty"`
	SemanticScore float64          `json:"semantic_score"`
	LexicalScore  float64          `json:"lexical_score"`
	FusedScore    float64          `json:"fused_score"`
	Path          RetrievalPath    `json:"retrieval_path"`
}

// Chunks returns the primary chunk followed by any proximity-merged neighbours.
func (c RetrievalCandidate) Chunks() []RetrievedChunk {
	out := make([]RetrievedChunk, 0, 1+len(c.Merged))
	out = append(out, c.Chunk)
	out = append(out, c.Merged...)
	return out
}

func (c RetrievalCandidate) ChunkIDs() []string {
	out := make([]string, 0, 1+len(c.Merged))
	out = append(out, c.Chunk.ChunkID)
	for _, m := range c.Merged {
		out = append(out, m.ChunkID)
	}
	return out
}

type SearchResult struct {
	Candidates  []RetrievalCandidate `json:"candidates"`
	Degraded    bool                 `json:"degraded"`
	FailedPaths []RetrievalPath      `json:"failed_paths,omitempty"`
}

type Verdict string

const (
	VerdictRed    Verdict = "red"
	VerdictYellow Verdict = "yellow"
	VerdictGreen  Verdict = "green"
)

// Rank orders verdicts: red < yellow < green.
func (v Verdict) Rank() int {
	switch v {
	case VerdictGreen:
		return 2
	case VerdictYellow:
		return 1
	default:
		return 0
	}
}

func MinVerdict(a, b Verdict) Verdict {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}

type CorrectionStrategy string

const (
	StrategyInitial        CorrectionStrategy = "initial"
	StrategyRelaxFilters   CorrectionStrategy = "relax_filters"
	StrategyExpandTerms    CorrectionStrategy = "expand_terms"
	StrategyReformulate    CorrectionStrategy = "reformulate"
	StrategyLowerThreshold CorrectionStrategy = "lower_threshold"
)

// RetrievalAttempt records one search run of the corrective loop.
type RetrievalAttempt struct {
	Iteration  int                `json:"iteration"`
	Strategy   CorrectionStrategy `json:"strategy"`
	QueryText  string             `json:"query_text"`
	Filters    SearchFilter       `json:"filters"`
	MinScore   float64            `json:"min_score"`
	Verdict    Verdict            `json:"verdict,omitempty"`
	Candidates int                `json:"candidates"`
	TopScore   float64            `json:"top_score"`
	Degraded   bool               `json:"degraded,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type LoopOutcome string

const (
	OutcomeAccepted  LoopOutcome = "accepted"
	OutcomeExhausted LoopOutcome = "exhausted"
	OutcomeRepeated  LoopOutcome = "repeated_state"
	OutcomeDeadline  LoopOutcome = "deadline"
)

// EvidenceBundle is the best result of a corrective run. CorrectionIterations
// counts every correction the run consumed; BestIteration is the one that
// produced Candidates.
type EvidenceBundle struct {
	Candidates           []RetrievalCandidate `json:"candidates"`
	Verdict              Verdict              `json:"verdict"`
	CorrectionIterations int                  `json:"correction_iterations"`
	BestIteration        int                  `json:"best_iteration"`
	Degraded             bool                 `json:"degraded"`
	Outcome              LoopOutcome          `json:"outcome"`
	Attempts             []RetrievalAttempt   `json:"attempts,omitempty"`
}

func (b *EvidenceBundle) TopScore() float64 {
	if b == nil || len(b.Candidates) == 0 {
		return 0
	}
	return b.Candidates[0].FusedScore
}

func (b *EvidenceBundle) IsEmpty() bool {
	return b == nil || len(b.Candidates) == 0
}

// ChunkIndex maps every chunk ID in the bundle (primary and merged) to its candidate.
func (b *EvidenceBundle) ChunkIndex() map[string]RetrievalCandidate {
	if b == nil {
		return nil
	}
	out := make(map[string]RetrievalCandidate, len(b.Candidates))
	for _, c := range b.Candidates {
		for _, id := range c.ChunkIDs() {
			out[id] = c
		}
	}
	return out
}
