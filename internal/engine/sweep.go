package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/postpilot/postpilot/internal/repository"
)

const sweepBatchSize = 50

// Sweep is the safety net behind the queue: it picks up scheduled rows
// whose due instant has passed but that no live lease covers, which is
// what a crashed worker or a lost queue task leaves behind. Wired to cron
// at the configured poll interval.
type Sweep struct {
	rr       repository.RowRepository
	executor *Executor
	limit    int
}

func NewSweep(rr repository.RowRepository, executor *Executor, concurrency int) *Sweep {
	return &Sweep{rr: rr, executor: executor, limit: concurrency}
}

func (s *Sweep) Run() {
	ctx := context.Background()

	due, err := s.rr.ListDue(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if len(due) == 0 {
		return
	}

	slog.Info("sweep found due rows", "count", len(due))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.limit)

	for _, row := range due {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(rowID string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			s.executor.ExecuteRow(ctx, rowID)
		}(row.ID)
	}

	wg.Wait()
}
