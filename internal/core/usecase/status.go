package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
	"github.com/kirillkom/legal-rag-assistant/internal/core/ports"
)

const healthProbeTimeout = 2 * time.Second

type StatusUseCase struct {
	reporters []ports.HealthReporter
	stats     *PipelineStats
}

func NewStatusUseCase(stats *PipelineStats, reporters ...ports.HealthReporter) *StatusUseCase {
	return &StatusUseCase{reporters: reporters, stats: stats}
}

// Status probes every collaborator concurrently and attaches the stats snapshot.
// A probe whose context expires is reported unreachable.
func (uc *StatusUseCase) Status(ctx context.Context) domain.PipelineStatus {
	status := uc.stats.Snapshot()
	status.Collaborators = make([]domain.CollaboratorHealth, len(uc.reporters))

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for i, reporter := range uc.reporters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			health := reporter.Health(probeCtx)
			if probeCtx.Err() != nil && health == domain.HealthHealthy {
				health = domain.HealthUnreachable
			}
			status.Collaborators[i] = domain.CollaboratorHealth{Name: reporter.Name(), Status: health}
		}()
	}
	wg.Wait()
	return status
}
