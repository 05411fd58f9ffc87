package engine

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/postpilot/postpilot/internal/queue"
)

// HandlePublishRowTask is the asynq entry point: a task fires at the row's
// due instant and runs the leased execution path. The outcome is persisted
// on the row itself, so the task never asks asynq to retry; retries are the
// engine's own backoff reschedules.
func (e *Executor) HandlePublishRowTask(ctx context.Context, task *asynq.Task) error {
	var payload queue.PublishRowPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	e.ExecuteRow(ctx, payload.RowID)
	return nil
}
