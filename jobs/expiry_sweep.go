package jobs

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/kasirku/kasir/internal/expiry"
)

// ExpirySweepJob runs the expiry sweep for TaskExpirySweep tasks.
type ExpirySweepJob struct {
	runner *expiry.Scheduler
}

// NewExpirySweepJob reuses the scheduler's RunOnce so worker runs share its
// logging, metrics and overlap guard.
func NewExpirySweepJob(runner *expiry.Scheduler) *ExpirySweepJob {
	return &ExpirySweepJob{runner: runner}
}

// Handle executes one sweep. Failures are returned so asynq retries them.
func (j *ExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.runner == nil {
		return errors.New("expiry sweep: handler not configured")
	}
	var payload ExpirySweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.runner.RunOnce(ctx)
	return err
}
