package domain

import "time"

type Citation struct {
	Claim    string   `json:"claim"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	ChunkIDs []string `json:"chunk_ids"`
	Support  float64  `json:"support"`
}

func (c Citation) Supported() bool {
	return len(c.ChunkIDs) > 0
}

type Stage string

const (
	StageRoute      Stage = "route"
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
	StageCitation   Stage = "citation"
	StageTotal      Stage = "total"
)

type StageTiming struct {
	Stage      Stage   `json:"stage"`
	DurationMS float64 `json:"duration_ms"`
}

func NewStageTiming(stage Stage, d time.Duration) StageTiming {
	return StageTiming{Stage: stage, DurationMS: float64(d.Microseconds()) / 1000.0}
}

type Answer struct {
	Text              string          `json:"text"`
	Citations         []Citation      `json:"citations"`
	Mode              ResponseMode    `json:"mode"`
	Intent            Intent          `json:"intent"`
	Evidence          *EvidenceBundle `json:"evidence,omitempty"`
	Hedged            bool            `json:"hedged"`
	UnsupportedClaims int             `json:"unsupported_claims"`
	Timings           []StageTiming   `json:"timings"`
}

// PipelineEvent is emitted while an answer is being produced, for incremental delivery.
type PipelineEvent struct {
	Stage   Stage `json:"stage"`
	Payload any   `json:"payload,omitempty"`
}
