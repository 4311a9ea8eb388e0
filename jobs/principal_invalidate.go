package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/jobready/authcore/internal/jobs"
	"github.com/jobready/authcore/internal/rbac"
)

// PrincipalInvalidateJob deletes cached principals named by a task.
type PrincipalInvalidateJob struct {
	Cache   rbac.Invalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPrincipalInvalidateJob wires dependencies for the handler.
func NewPrincipalInvalidateJob(cache rbac.Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *PrincipalInvalidateJob {
	return &PrincipalInvalidateJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypePrincipalInvalidate tasks. Malformed payloads are
// not retried.
func (j *PrincipalInvalidateJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Cache == nil {
		return errors.New("principal invalidate: handler not configured")
	}
	var payload PrincipalInvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.AccountIDs) == 0 {
		return nil
	}

	tracker := j.Metrics.Track(TaskTypePrincipalInvalidate)
	defer func() {
		err = tracker.End(err)
	}()

	if err := j.Cache.InvalidateAccounts(ctx, payload.AccountIDs...); err != nil {
		j.logger().Warn("principal invalidate", slog.Int("accounts", len(payload.AccountIDs)), slog.Any("error", err))
		return err
	}
	j.logger().Debug("principal invalidate", slog.Int("accounts", len(payload.AccountIDs)))
	return nil
}

func (j *PrincipalInvalidateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
