// Package engine executes due rows. Two activation paths feed it: queue
// tasks enqueued at submit time, and a periodic sweep that picks up rows
// the queue missed (crashes, expired leases). Both funnel into ExecuteRow,
// which is safe to race: the row lease guarantees a single winner.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	cfg "github.com/postpilot/postpilot/configs"
	"github.com/postpilot/postpilot/internal/models"
	"github.com/postpilot/postpilot/internal/repository"
	"github.com/postpilot/postpilot/internal/service"
	"github.com/postpilot/postpilot/internal/transfer"
)

type Executor struct {
	cfg      cfg.Config
	rr       repository.RowRepository
	rm       repository.RowMediaRepository
	ac       repository.SocialAccountRepository
	pa       repository.PublishAttemptRepository
	resolver service.MediaResolver
	adapter  service.PlatformAdapter
	owner    string
}

func NewExecutor(
	cfg cfg.Config,
	rr repository.RowRepository,
	rm repository.RowMediaRepository,
	ac repository.SocialAccountRepository,
	pa repository.PublishAttemptRepository,
	resolver service.MediaResolver,
	adapter service.PlatformAdapter) *Executor {
	owner, err := gonanoid.New()
	if err != nil {
		owner = fmt.Sprintf("engine-%d", time.Now().UnixNano())
	}
	return &Executor{
		cfg:      cfg,
		rr:       rr,
		rm:       rm,
		ac:       ac,
		pa:       pa,
		resolver: resolver,
		adapter:  adapter,
		owner:    owner,
	}
}

// ExecuteRow leases a row, resolves its media, publishes it, and persists
// the outcome. A row that cannot be leased is left alone: some other
// worker owns it.
func (e *Executor) ExecuteRow(ctx context.Context, rowID string) transfer.RowResult {
	row, err := e.rr.GetByID(ctx, rowID)
	if err != nil {
		return transfer.RowResult{RowID: rowID, Error: err.Error()}
	}
	if row == nil {
		return transfer.RowResult{RowID: rowID, Error: "row not found"}
	}
	if row.Status != models.RowStatusScheduled {
		// Cancelled or already terminal; a stale queue task lands here.
		return transfer.RowResult{RowID: rowID, Error: fmt.Sprintf("row is %s, not scheduled", row.Status)}
	}

	now := time.Now().UTC()
	leased, err := e.rr.AcquireLease(ctx, rowID, e.owner, now.Add(e.cfg.Scheduler.LeaseTTL), now)
	if err != nil {
		return transfer.RowResult{RowID: rowID, Error: err.Error()}
	}
	if !leased {
		return transfer.RowResult{RowID: rowID, Error: "row is leased by another worker"}
	}

	attemptNo := row.AttemptCount + 1
	result := e.publishLeased(ctx, row, attemptNo)

	attempt := models.PublishAttempt{
		RowID:        rowID,
		AccountID:    row.AccountID,
		AttemptNo:    attemptNo,
		ErrorMessage: result.Error,
	}
	if _, err := e.pa.Create(ctx, &attempt); err != nil {
		slog.Info("error saving publish attempt", "row_id", rowID, "error", err.Error())
	}

	return result
}

func (e *Executor) publishLeased(ctx context.Context, row *models.ContentRow, attemptNo int) transfer.RowResult {
	media, err := e.rm.ListByRowID(ctx, row.ID)
	if err != nil {
		return e.settle(ctx, row, attemptNo, err)
	}
	for _, ref := range media {
		row.Media = append(row.Media, *ref)
	}

	resolveCtx, cancel := context.WithTimeout(ctx, e.cfg.Scheduler.ResolveTimeout)
	err = e.resolver.Resolve(resolveCtx, row)
	cancel()
	if err != nil {
		return e.settle(ctx, row, attemptNo, err)
	}

	account, err := e.ac.GetByID(ctx, row.AccountID)
	if err != nil {
		return e.settle(ctx, row, attemptNo, err)
	}
	if account == nil || !account.IsConnected {
		return e.settle(ctx, row, attemptNo, &service.ConfigurationError{Reason: "social account not connected"})
	}

	publishCtx, cancel := context.WithTimeout(ctx, e.cfg.Scheduler.PublishTimeout)
	postID, err := e.adapter.Publish(publishCtx, account, row.PostType, row.Caption, row.Media)
	cancel()
	if err != nil {
		return e.settle(ctx, row, attemptNo, err)
	}

	if err := e.rr.MarkPublished(ctx, row.ID, postID); err != nil {
		slog.Error("row published but status not persisted", "row_id", row.ID, "error", err.Error())
		return transfer.RowResult{RowID: row.ID, Error: err.Error()}
	}

	slog.Info("row published", "row_id", row.ID, "platform_post_id", postID, "attempt", attemptNo)
	return transfer.RowResult{RowID: row.ID, Success: true, PlatformPostID: postID}
}

// settle applies the retry policy to a failed attempt: recoverable errors
// are rescheduled with exponential backoff until the attempt budget runs
// out, everything else is terminal.
func (e *Executor) settle(ctx context.Context, row *models.ContentRow, attemptNo int, cause error) transfer.RowResult {
	if service.IsRecoverable(cause) && attemptNo < e.cfg.Scheduler.MaxAttempts {
		backoff := e.cfg.Scheduler.BackoffBase << (attemptNo - 1)
		nextDue := time.Now().UTC().Add(backoff)

		if err := e.rr.Reschedule(ctx, row.ID, nextDue, attemptNo); err != nil {
			slog.Error("failed to reschedule row", "row_id", row.ID, "error", err.Error())
			return transfer.RowResult{RowID: row.ID, Error: err.Error()}
		}

		slog.Info("row execution failed, will retry", "row_id", row.ID,
			"attempt", attemptNo, "backoff", backoff.String(), "error", cause.Error())
		return transfer.RowResult{RowID: row.ID, Deferred: true, Error: cause.Error()}
	}

	if err := e.rr.MarkFailed(ctx, row.ID, cause.Error(), attemptNo); err != nil {
		slog.Error("failed to persist row failure", "row_id", row.ID, "error", err.Error())
	}

	slog.Info("row failed", "row_id", row.ID, "attempt", attemptNo, "error", cause.Error())
	return transfer.RowResult{RowID: row.ID, Error: cause.Error()}
}
