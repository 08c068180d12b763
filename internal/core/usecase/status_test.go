package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

func TestStatusReportsCollaboratorsAndStats(t *testing.T) {
	stats := NewPipelineStats()
	stats.RecordAnswer(&domain.Answer{
		Mode:     domain.ModeAssistedRAG,
		Evidence: &domain.EvidenceBundle{Verdict: domain.VerdictYellow, CorrectionIterations: 1},
		Timings:  []domain.StageTiming{{Stage: domain.StageTotal, DurationMS: 10}, {Stage: domain.StageTotal, DurationMS: 30}},
	})
	stats.RecordAnswer(&domain.Answer{Mode: domain.ModeDirectChat})
	stats.RecordRetrievalFailure()

	uc := NewStatusUseCase(stats, &embedderFake{}, &vectorIndexFake{health: domain.HealthUnreachable})
	status := uc.Status(context.Background())

	if len(status.Collaborators) != 2 {
		t.Fatalf("expected 2 collaborators, got %+v", status.Collaborators)
	}
	if status.Collaborators[0].Name != "embedder-fake" || status.Collaborators[0].Status != domain.HealthHealthy {
		t.Fatalf("unexpected first collaborator %+v", status.Collaborators[0])
	}
	if status.Collaborators[1].Status != domain.HealthUnreachable {
		t.Fatalf("expected unreachable vector index, got %+v", status.Collaborators[1])
	}
	if status.Queries != 3 || status.RetrievalFailures != 1 {
		t.Fatalf("unexpected counters %+v", status)
	}
	if status.Verdicts[domain.VerdictYellow] != 1 || status.CorrectionIterations[1] != 1 {
		t.Fatalf("unexpected verdict distribution %+v", status)
	}
	if status.Modes[domain.ModeDirectChat] != 1 {
		t.Fatalf("unexpected mode counts %+v", status.Modes)
	}
	if got := status.AvgStageLatencyMS[domain.StageTotal]; got != 20 {
		t.Fatalf("expected average total latency 20ms, got %f", got)
	}
}

func TestPipelineStatsSnapshotIsACopy(t *testing.T) {
	stats := NewPipelineStats()
	stats.RecordAnswer(&domain.Answer{Mode: domain.ModeDirectChat})
	snapshot := stats.Snapshot()
	snapshot.Modes[domain.ModeDirectChat] = 42

	if stats.Snapshot().Modes[domain.ModeDirectChat] != 1 {
		t.Fatalf("snapshot shares state with stats")
	}
}
