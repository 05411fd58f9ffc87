package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cfg "github.com/postpilot/postpilot/configs"
	"github.com/postpilot/postpilot/internal/lifecycle"
	"github.com/postpilot/postpilot/internal/models"
	"github.com/postpilot/postpilot/internal/queue"
	"github.com/postpilot/postpilot/internal/repository"
	"github.com/postpilot/postpilot/internal/transfer"
)

// Executor runs the resolve-then-publish sequence for one leased row. The
// engine package provides the implementation.
type Executor interface {
	ExecuteRow(ctx context.Context, rowID string) transfer.RowResult
}

// DispatchCoordinator submits a batch of rows: due rows are published
// immediately, future rows are parked on the queue until their due instant.
// Rows are isolated from each other; one bad row never aborts the batch.
type DispatchCoordinator interface {
	Submit(ctx context.Context, userID int64, rowIDs []string) (*transfer.BatchResult, error)
}

type dispatchCoordinator struct {
	cfg      cfg.Config
	rr       repository.RowRepository
	rm       repository.RowMediaRepository
	st       repository.SettingsRepository
	executor Executor
	client   queue.Enqueuer
}

func NewDispatchCoordinator(
	cfg cfg.Config,
	rr repository.RowRepository,
	rm repository.RowMediaRepository,
	st repository.SettingsRepository,
	executor Executor,
	client queue.Enqueuer) DispatchCoordinator {
	return &dispatchCoordinator{
		cfg:      cfg,
		rr:       rr,
		rm:       rm,
		st:       st,
		executor: executor,
		client:   client,
	}
}

func (d *dispatchCoordinator) Submit(ctx context.Context, userID int64, rowIDs []string) (*transfer.BatchResult, error) {
	if len(rowIDs) == 0 {
		return nil, fmt.Errorf("no rows selected for submission")
	}

	offset, err := d.timezoneOffset(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]transfer.RowResult, len(rowIDs))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, d.cfg.Scheduler.DispatchLimit)

	for i, rowID := range rowIDs {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, rowID string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			results[i] = d.submitRow(ctx, userID, rowID, offset)
		}(i, rowID)
	}

	wg.Wait()

	batch := &transfer.BatchResult{Results: results}
	for _, res := range results {
		switch {
		case res.Deferred:
			batch.Deferred++
		case res.Success:
			batch.Succeeded++
		default:
			batch.Failed++
		}
	}
	return batch, nil
}

func (d *dispatchCoordinator) submitRow(ctx context.Context, userID int64, rowID string, offsetMinutes int) transfer.RowResult {
	fail := func(err error) transfer.RowResult {
		slog.Info("row submission failed", "row_id", rowID, "error", err.Error())
		return transfer.RowResult{RowID: rowID, Error: err.Error()}
	}

	owned, err := d.rr.CheckByUserID(ctx, rowID, userID)
	if err != nil {
		return fail(err)
	}
	if !owned {
		return fail(fmt.Errorf("row doesn't exist"))
	}

	row, err := d.rr.GetByID(ctx, rowID)
	if err != nil {
		return fail(err)
	}

	media, err := d.rm.ListByRowID(ctx, rowID)
	if err != nil {
		return fail(err)
	}
	for _, ref := range media {
		row.Media = append(row.Media, *ref)
	}

	now := time.Now().UTC()
	if row.Status == models.RowStatusDraft {
		if err := lifecycle.Transition(row, models.RowStatusReady, now); err != nil {
			return fail(err)
		}
	}
	if row.Status != models.RowStatusReady {
		return fail(fmt.Errorf("row is %s, only draft or ready rows can be submitted", row.Status))
	}

	dueAt, err := row.ComputeDueAt(offsetMinutes)
	if err != nil {
		return fail(err)
	}

	if err := lifecycle.Transition(row, models.RowStatusScheduled, now); err != nil {
		return fail(err)
	}
	if err := d.rr.MarkScheduled(ctx, rowID, dueAt); err != nil {
		return fail(err)
	}

	if delay := dueAt.Sub(now); delay > 0 {
		if err := queue.EnqueueRow(d.client, queue.PublishRowPayload{RowID: rowID}, delay); err != nil {
			return fail(fmt.Errorf("error scheduling row: %w", err))
		}
		return transfer.RowResult{RowID: rowID, Deferred: true}
	}

	// Already due: publish in place through the leased execution path.
	return d.executor.ExecuteRow(ctx, rowID)
}

func (d *dispatchCoordinator) timezoneOffset(ctx context.Context, userID int64) (int, error) {
	settings, found, err := d.st.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil // UTC until the user configures an offset
	}
	return settings.TimezoneOffsetMinutes, nil
}
