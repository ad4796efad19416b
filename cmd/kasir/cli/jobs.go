// Package cli holds the operational subcommands of the kasir binary.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/kasirku/kasir/internal/platform/cache"
	"github.com/kasirku/kasir/jobs"
)

// Enqueuer matches *jobs.Client.
type Enqueuer interface {
	EnqueueExpirySweep(ctx context.Context, reason string) (*asynq.TaskInfo, error)
	Close() error
}

// QueueInspector is the subset of *asynq.Inspector the CLI reads.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector QueueInspector
}

// NewJobsCLI initialises the CLI helpers for the given Redis.
func NewJobsCLI(opts cache.Options) *JobsCLI {
	return &JobsCLI{
		client:    jobs.NewClient(opts.AsynqOpts()),
		inspector: asynq.NewInspector(opts.AsynqOpts()),
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case "expiry_sweep", jobs.TaskExpirySweep:
		return c.client.EnqueueExpirySweep(ctx, "cli")
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	stats.Pending = info.Pending
	stats.Active = info.Active
	stats.Scheduled = info.Scheduled
	stats.Retry = info.Retry
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// JobsOpener connects a JobsCLI for one command invocation.
type JobsOpener func() (*JobsCLI, error)

// NewJobsCommand builds `jobs trigger|stats|scheduled`.
func NewJobsCommand(open JobsOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "inspect and trigger background jobs",
	}
	cmd.AddCommand(
		jobsTriggerCommand(open),
		jobsStatsCommand(open),
		jobsScheduledCommand(open),
	)
	return cmd
}

func jobsTriggerCommand(open JobsOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger [job]",
		Short: "enqueue a job now (expiry_sweep)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(open, func(c *JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
				return err
			})
		},
	}
}

func jobsStatsCommand(open JobsOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJobsCLI(open, func(c *JobsCLI) error {
				s, err := c.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
				return err
			})
		},
	}
}

func jobsScheduledCommand(open JobsOpener) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "list scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJobsCLI(open, func(c *JobsCLI) error {
				tasks, err := c.ListScheduled(cmd.Context(), size)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05")); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 20, "page size")
	return cmd
}

func withJobsCLI(open JobsOpener, fn func(*JobsCLI) error) error {
	c, err := open()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
