package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExpirySweep zeroes the stock of expired packaged products.
	TaskExpirySweep = "inventory:expiry_sweep"
)

// ExpirySweepPayload carries scheduling metadata.
type ExpirySweepPayload struct {
	RequestedAt time.Time `json:"requested_at"`
	Reason      string    `json:"reason,omitempty"`
}

// NewExpirySweepTask constructs an Asynq task for the expiry sweep. Tasks
// are unique for a minute so a cron tick and a manual trigger collapse.
func NewExpirySweepTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(ExpirySweepPayload{RequestedAt: time.Now().UTC(), Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpirySweep, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Unique(time.Minute),
	), nil
}
