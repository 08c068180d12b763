package domain

type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthDegraded    HealthStatus = "degraded"
	HealthUnreachable HealthStatus = "unreachable"
)

type CollaboratorHealth struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
}

// PipelineStatus is the snapshot served to dashboards.
type PipelineStatus struct {
	Collaborators        []CollaboratorHealth   `json:"collaborators"`
	Queries              int64                  `json:"queries"`
	RetrievalFailures    int64                  `json:"retrieval_failures"`
	ValidationFailures   int64                  `json:"validation_failures"`
	Verdicts             map[Verdict]int64      `json:"verdicts"`
	Modes                map[ResponseMode]int64 `json:"modes"`
	CorrectionIterations map[int]int64          `json:"correction_iterations"`
	AvgStageLatencyMS    map[Stage]float64      `json:"avg_stage_latency_ms"`
}
