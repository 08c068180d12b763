package usecase

import (
	"maps"
	"sync"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

// PipelineStats accumulates in-process query statistics for the status endpoint.
// It is safe for concurrent use.
type PipelineStats struct {
	mu                 sync.Mutex
	queries            int64
	retrievalFailures  int64
	validationFailures int64
	verdicts           map[domain.Verdict]int64
	modes              map[domain.ResponseMode]int64
	iterations         map[int]int64
	stageTotals        map[domain.Stage]time.Duration
	stageCounts        map[domain.Stage]int64
}

func NewPipelineStats() *PipelineStats {
	return &PipelineStats{
		verdicts:    make(map[domain.Verdict]int64),
		modes:       make(map[domain.ResponseMode]int64),
		iterations:  make(map[int]int64),
		stageTotals: make(map[domain.Stage]time.Duration),
		stageCounts: make(map[domain.Stage]int64),
	}
}

func (s *PipelineStats) RecordAnswer(answer *domain.Answer) {
	if s == nil || answer == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries++
	s.modes[answer.Mode]++
	if answer.Evidence != nil {
		s.verdicts[answer.Evidence.Verdict]++
		s.iterations[answer.Evidence.CorrectionIterations]++
	}
	for _, timing := range answer.Timings {
		s.stageTotals[timing.Stage] += time.Duration(timing.DurationMS * float64(time.Millisecond))
		s.stageCounts[timing.Stage]++
	}
}

func (s *PipelineStats) RecordRetrievalFailure() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.queries++
	s.retrievalFailures++
	s.mu.Unlock()
}

func (s *PipelineStats) RecordValidationFailure() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.validationFailures++
	s.mu.Unlock()
}

// Snapshot copies the counters; the returned maps are owned by the caller.
func (s *PipelineStats) Snapshot() domain.PipelineStatus {
	if s == nil {
		return domain.PipelineStatus{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	avg := make(map[domain.Stage]float64, len(s.stageTotals))
	for stage, total := range s.stageTotals {
		if n := s.stageCounts[stage]; n > 0 {
			avg[stage] = float64(total.Microseconds()) / 1000.0 / float64(n)
		}
	}
	return domain.PipelineStatus{
		Queries:              s.queries,
		RetrievalFailures:    s.retrievalFailures,
		ValidationFailures:   s.validationFailures,
		Verdicts:             maps.Clone(s.verdicts),
		Modes:                maps.Clone(s.modes),
		CorrectionIterations: maps.Clone(s.iterations),
		AvgStageLatencyMS:    avg,
	}
}
