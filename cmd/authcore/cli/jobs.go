package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/jobready/authcore/jobs"
)

// Enqueuer submits principal invalidation tasks.
type Enqueuer interface {
	EnqueuePrincipalInvalidate(ctx context.Context, payload jobs.PrincipalInvalidatePayload) (*asynq.TaskInfo, error)
}

// QueueInspector reads queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector QueueInspector
	closers   []io.Closer
}

// NewJobsCLI initialises the CLI helpers against the given Redis connection.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) (*JobsCLI, error) {
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(redisOpts)
	return &JobsCLI{client: client, inspector: inspector, closers: []io.Closer{client, inspector}}, nil
}

// NewJobsCLIWith builds the helpers on caller-supplied collaborators.
func NewJobsCLIWith(client Enqueuer, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	for _, closer := range c.closers {
		if closeErr := closer.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// InvalidateOptions defines flags for the invalidate command.
type InvalidateOptions struct {
	AccountIDs []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// InvalidateSummary is the JSON output of the invalidate command.
type InvalidateSummary struct {
	TaskID     string   `json:"task_id"`
	Queue      string   `json:"queue"`
	AccountIDs []string `json:"account_ids"`
}

// InvalidateCommand enqueues a principal:invalidate task for the accounts.
func (c *JobsCLI) InvalidateCommand(ctx context.Context, opts InvalidateOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	if c == nil || c.client == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "invalidate: client not configured")
		return 1
	}
	ids := make([]string, 0, len(opts.AccountIDs))
	for _, id := range opts.AccountIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "invalidate: at least one --account is required")
		return 1
	}
	info, err := c.client.EnqueuePrincipalInvalidate(ctx, jobs.PrincipalInvalidatePayload{AccountIDs: ids})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "invalidate: %v\n", err)
		return 1
	}
	summary := InvalidateSummary{Queue: jobs.QueueDefault, AccountIDs: ids}
	if info != nil {
		summary.TaskID = info.ID
		summary.Queue = info.Queue
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "invalidate: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s on %s for %d account(s)\n", summary.TaskID, summary.Queue, len(ids))
	return 0
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// QueueOptions defines flags for the queue command.
type QueueOptions struct {
	Stdout io.Writer
	Stderr io.Writer
}

// QueueCommand prints the default queue statistics as JSON.
func (c *JobsCLI) QueueCommand(ctx context.Context, opts QueueOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "queue: %v\n", err)
		return 1
	}
	if err := json.NewEncoder(opts.Stdout).Encode(stats); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "queue: encode json: %v\n", err)
		return 1
	}
	return 0
}

func defaultWriters(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
