package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePrincipalInvalidate drops cached principals.
	TaskTypePrincipalInvalidate = "principal:invalidate"
)

// PrincipalInvalidatePayload lists the accounts whose cached principals are stale.
type PrincipalInvalidatePayload struct {
	AccountIDs []string `json:"account_ids"`
}

// NewPrincipalInvalidateTask constructs an Asynq task.
func NewPrincipalInvalidateTask(payload PrincipalInvalidatePayload) (*asynq.Task, error) {
	if len(payload.AccountIDs) == 0 {
		return nil, errors.New("jobs: principal invalidate needs at least one account id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePrincipalInvalidate, data, asynq.MaxRetry(5)), nil
}
